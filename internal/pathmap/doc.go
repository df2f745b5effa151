// Translates host directories into the fixed layout seen by a build sandbox.
//
// Every build container sees its inputs under a single root ([Root]) with one
// subdirectory per role: source, manifest, artifacts and scratch. The host
// side is canonicalized first through a [Canonicalizer] so that two different
// spellings of the same directory ("../app", "/home/me/app") are recognized
// as one. When the manifest lives in the source directory, the sandbox
// manifest directory collapses onto the sandbox source directory so the same
// host directory is never mounted twice.
//
// Example usage:
//
//	host, dirs, err := pathmap.Derive("./hello", "./hello/requirements.txt", pathmap.OS{})
//	if err != nil {
//	    return err
//	}
//
//	paths := pathmap.TranslateList(searchPaths, map[string]string{
//	    host.Source:   dirs.Source,
//	    host.Manifest: dirs.Manifest,
//	}, pathmap.OS{})
package pathmap
