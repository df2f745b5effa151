package rpc

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/cruciblehq/lambdad/internal/pathmap"
)

const (

	// JSON-RPC version carried in the "jsonschema" field.
	JSONRPCVersion = "2.0"

	// Builder protocol version this host speaks.
	DefaultProtocolVersion = "0.3"

	// Method invoked on the builder.
	Method = "LambdaBuilder.build"

	// Identifier of the single request sent per build. Each build runs in its
	// own sandbox, so the identifier never needs to correlate anything.
	RequestID = 1

	// Name of the builder executable inside build images.
	DefaultExecutable = "lambda-builders"

	// Separator of paths inside the sandbox.
	sandboxSeparator = "/"
)

// Identifies which builder behavior to invoke.
type Capability struct {
	Language             string // e.g. "python".
	DependencyManager    string // e.g. "pip".
	ApplicationFramework string // Empty when the function has none.
}

// Inputs of a build request.
type Params struct {
	ProtocolVersion       string       // Builder protocol version.
	Capability            Capability   // Builder capability.
	Dirs                  pathmap.Dirs // Sandbox directories.
	ManifestFileName      string       // Manifest file name inside Dirs.Manifest.
	Runtime               string       // Function runtime.
	Optimizations         any          // Opaque builder optimizations.
	Options               any          // Opaque builder options.
	ExecutableSearchPaths []string     // Sandbox paths searched for build tools.
	Mode                  string       // Build mode, empty when unset.
}

// A single build request. Immutable once constructed.
type Request struct {
	params Params
}

// Creates a request from params.
func NewRequest(p Params) Request {
	p.ExecutableSearchPaths = slices.Clone(p.ExecutableSearchPaths)
	return Request{params: p}
}

// Returns a copy of the request parameters.
func (r Request) Params() Params {
	p := r.params
	p.ExecutableSearchPaths = slices.Clone(p.ExecutableSearchPaths)
	return p
}

// Returns the sandbox path of the manifest file.
func (r Request) ManifestPath() string {
	return r.params.Dirs.Manifest + sandboxSeparator + r.params.ManifestFileName
}

// Serializes the request to its wire form.
func (r Request) Encode() (string, error) {
	b, err := json.Marshal(r.wire())
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrEncode, err)
	}
	return string(b), nil
}

// Returns the builder argv for an encoded request.
func Entrypoint(executable, encoded string) []string {
	return []string{executable, encoded}
}

type wireRequest struct {
	JSONSchema string     `json:"jsonschema"`
	ID         int        `json:"id"`
	Method     string     `json:"method"`
	Params     wireParams `json:"params"`
}

type wireParams struct {
	ProtocolVersion       string         `json:"__protocol_version"`
	Capability            wireCapability `json:"capability"`
	SourceDir             string         `json:"source_dir"`
	ArtifactsDir          string         `json:"artifacts_dir"`
	ScratchDir            string         `json:"scratch_dir"`
	ManifestPath          string         `json:"manifest_path"`
	Runtime               string         `json:"runtime"`
	Optimizations         any            `json:"optimizations"`
	Options               any            `json:"options"`
	ExecutableSearchPaths []string       `json:"executable_search_paths"`
	Mode                  *string        `json:"mode"`
}

type wireCapability struct {
	Language             string  `json:"language"`
	DependencyManager    string  `json:"dependency_manager"`
	ApplicationFramework *string `json:"application_framework"`
}

func (r Request) wire() wireRequest {
	p := r.params
	return wireRequest{
		JSONSchema: JSONRPCVersion,
		ID:         RequestID,
		Method:     Method,
		Params: wireParams{
			ProtocolVersion: p.ProtocolVersion,
			Capability: wireCapability{
				Language:             p.Capability.Language,
				DependencyManager:    p.Capability.DependencyManager,
				ApplicationFramework: nullable(p.Capability.ApplicationFramework),
			},
			SourceDir:             p.Dirs.Source,
			ArtifactsDir:          p.Dirs.Artifacts,
			ScratchDir:            p.Dirs.Scratch,
			ManifestPath:          r.ManifestPath(),
			Runtime:               p.Runtime,
			Optimizations:         p.Optimizations,
			Options:               p.Options,
			ExecutableSearchPaths: p.ExecutableSearchPaths,
			Mode:                  nullable(p.Mode),
		},
	}
}

// Empty strings travel as JSON null.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
