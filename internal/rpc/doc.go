// Package rpc speaks the JSON-RPC protocol of the builder running inside a
// build sandbox.
//
// Exactly one request is sent per build. It travels as a single argv token
// of the builder executable ([Entrypoint]) rather than over stdin, and the
// builder answers with one JSON-RPC response on stdout. [ParseResponse]
// decodes that answer and maps builder error codes onto [BuildError],
// [IncompatibleBuilderError] and [ErrBuilderCrashed].
//
// Example usage:
//
//	req := rpc.NewRequest(rpc.Params{
//	    ProtocolVersion:  rpc.DefaultProtocolVersion,
//	    Capability:       rpc.Capability{Language: "python", DependencyManager: "pip"},
//	    Dirs:             dirs,
//	    ManifestFileName: "requirements.txt",
//	    Runtime:          "python3.7",
//	})
//
//	encoded, err := req.Encode()
//	if err != nil {
//	    return err
//	}
//
//	argv := rpc.Entrypoint(rpc.DefaultExecutable, encoded)
package rpc
