// Package image maps function runtimes to build container images.
//
// A [Resolver] is a declarative table: an ordered list of exact-match
// [Entry] values consulted first, and a single fallback rule that derives
// an image name from the runtime when no entry matches. Resolution is a pure
// function of the runtime string.
//
// Example usage:
//
//	ref, err := image.Default().Resolve("python3.7")
//	if err != nil {
//	    return err
//	}
//	// ref == "lambci/lambda:build-python3.7"
package image
