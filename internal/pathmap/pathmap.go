package pathmap

import (
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
)

// Root directory inside the sandbox under which all build directories live.
const Root = "/tmp/samcli"

// Sandbox directories for the four roles of a build.
type Dirs struct {
	Source    string // Function code.
	Manifest  string // Directory containing the dependency manifest.
	Artifacts string // Build output.
	Scratch   string // Temporary files for the builder.
}

// Canonical host directories a build reads from.
type HostDirs struct {
	Source       string // Canonical source directory.
	Manifest     string // Canonical parent directory of the manifest file.
	ManifestFile string // Base name of the manifest file.
}

// Returns the sandbox directories for the given canonical host directories.
//
// The comparison is purely lexical. When source and manifest name the same
// directory, the manifest directory is the sandbox source directory.
func ContainerDirs(source, manifest string) Dirs {
	dirs := Dirs{
		Source:    path.Join(Root, "source"),
		Manifest:  path.Join(Root, "manifest"),
		Artifacts: path.Join(Root, "artifacts"),
		Scratch:   path.Join(Root, "scratch"),
	}

	if filepath.Clean(source) == filepath.Clean(manifest) {
		dirs.Manifest = dirs.Source
	}

	return dirs
}

// Canonicalizes the source directory and manifest file path, then derives
// the sandbox directories for them.
//
// The manifest path names a file. Its canonical parent becomes the host
// manifest directory and its base name the manifest file name.
func Derive(source, manifestPath string, canon Canonicalizer) (HostDirs, Dirs, error) {
	src, err := canon.Canonicalize(source)
	if err != nil {
		return HostDirs{}, Dirs{}, fmt.Errorf("%w: %w", ErrCanonicalize, err)
	}

	manifest, err := canon.Canonicalize(manifestPath)
	if err != nil {
		return HostDirs{}, Dirs{}, fmt.Errorf("%w: %w", ErrCanonicalize, err)
	}

	host := HostDirs{
		Source:       src,
		Manifest:     filepath.Dir(manifest),
		ManifestFile: filepath.Base(manifest),
	}

	return host, ContainerDirs(host.Source, host.Manifest), nil
}

// Replaces host paths with their sandbox equivalents.
//
// Both the mapping keys and each input are canonicalized before comparison.
// Inputs with no mapping, or that cannot be canonicalized, are passed through
// unchanged: they are not mounted in the sandbox and the builder will simply
// not find anything there. A nil or empty input is returned as-is.
func TranslateList(paths []string, mapping map[string]string, canon Canonicalizer) []string {
	if len(paths) == 0 {
		return paths
	}

	canonical := make(map[string]string, len(mapping))
	for host, sandbox := range mapping {
		key, err := canon.Canonicalize(host)
		if err != nil {
			key = filepath.Clean(host)
		}
		canonical[key] = sandbox
	}

	result := make([]string, 0, len(paths))
	for _, original := range paths {
		abs, err := canon.Canonicalize(original)
		if err == nil {
			if sandbox, ok := canonical[abs]; ok {
				result = append(result, sandbox)
				continue
			}
		}
		slog.Debug("host path is not mounted in the sandbox", "path", original)
		result = append(result, original)
	}

	return result
}
