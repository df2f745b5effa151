package pathmap

import (
	"errors"
	"io/fs"
	"path/filepath"
)

// Resolves host paths to a canonical absolute form.
type Canonicalizer interface {
	Canonicalize(path string) (string, error)
}

// Adapts a function to the [Canonicalizer] interface.
type CanonicalizerFunc func(path string) (string, error)

// Calls f(path).
func (f CanonicalizerFunc) Canonicalize(path string) (string, error) {
	return f(path)
}

// Canonicalizes paths against the real filesystem.
//
// Paths are made absolute relative to the working directory and symlinks are
// resolved. A path that does not exist yet keeps its absolute, cleaned form.
type OS struct{}

// Returns the absolute, symlink-free form of path.
func (OS) Canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return abs, nil
		}
		return "", err
	}

	return resolved, nil
}

// Canonicalizes paths lexically, without touching the filesystem.
//
// Relative paths are joined to Base. Useful where the paths are known to be
// symlink-free, and in tests.
type Lexical struct {
	Base string // Directory relative paths are resolved against.
}

// Returns path cleaned and, if relative, joined to l.Base.
func (l Lexical) Canonicalize(path string) (string, error) {
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	return filepath.Join(l.Base, path), nil
}
