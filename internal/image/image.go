package image

import (
	"fmt"
	"strings"

	"github.com/distribution/reference"
)

const (

	// Repository used by the fallback rule.
	FallbackRepository = "lambci/lambda"

	// Tag prefix used by the fallback rule. The runtime name is appended.
	FallbackTagPrefix = "build-"
)

// Maps one runtime to one image.
type Entry struct {
	Runtime string `yaml:"runtime" json:"runtime"` // Exact runtime identifier.
	Image   string `yaml:"image" json:"image"`     // Image reference used for the runtime.
}

// Derives an image name for runtimes absent from the table.
type Fallback func(runtime string) string

// Curated runtime images that do not follow the fallback convention.
var curated = []Entry{
	{Runtime: "nodejs10.x", Image: "amazon/lambda-build-node10.x"},
}

// Resolves runtimes to images.
type Resolver struct {
	entries  []Entry
	fallback Fallback
}

// Creates a resolver from a table and a fallback rule.
//
// Entries are matched in order, so an earlier entry shadows a later one for
// the same runtime. A nil fallback uses [Convention].
func New(entries []Entry, fallback Fallback) *Resolver {
	if fallback == nil {
		fallback = Convention
	}
	return &Resolver{
		entries:  append([]Entry(nil), entries...),
		fallback: fallback,
	}
}

// Returns a resolver with the curated table and the conventional fallback.
//
// Extra entries are placed before the curated ones so callers can replace
// any curated image.
func Default(extra ...Entry) *Resolver {
	entries := make([]Entry, 0, len(extra)+len(curated))
	entries = append(entries, extra...)
	entries = append(entries, curated...)
	return New(entries, Convention)
}

// The conventional image name for a runtime: "lambci/lambda:build-<runtime>".
func Convention(runtime string) string {
	return FallbackRepository + ":" + FallbackTagPrefix + runtime
}

// Returns the image reference for the runtime.
//
// Runtimes that are empty or that cannot be spelled as an image tag are
// unsupported.
func (r *Resolver) Resolve(runtime string) (string, error) {
	runtime = strings.TrimSpace(runtime)
	if runtime == "" {
		return "", fmt.Errorf("%w: empty runtime", ErrUnsupportedRuntime)
	}

	for _, e := range r.entries {
		if e.Runtime == runtime {
			return e.Image, nil
		}
	}

	ref := r.fallback(runtime)
	if _, err := reference.ParseNormalizedNamed(ref); err != nil {
		return "", fmt.Errorf("%w: %q has no viable image: %w", ErrUnsupportedRuntime, runtime, err)
	}

	return ref, nil
}

// Returns the fully-qualified form of an image reference.
//
// Short Docker Hub names are expanded ("lambci/lambda:build-go1.x" becomes
// "docker.io/lambci/lambda:build-go1.x") and a missing tag defaults to
// "latest", which is what containerd expects when pulling.
func Normalize(ref string) (string, error) {
	named, err := reference.ParseNormalizedNamed(ref)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidReference, err)
	}
	return reference.TagNameOnly(named).String(), nil
}
