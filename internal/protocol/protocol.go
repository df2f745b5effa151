package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/cruciblehq/lambdad/internal/build"
)

// Version of the envelope format. Peers reject envelopes of other versions.
const Version = 1

// Names the operation an envelope carries.
type Command string

const (
	CmdBuild    Command = "build"    // Build functions of an inventory.
	CmdImport   Command = "import"   // Import a build image from an OCI archive.
	CmdStatus   Command = "status"   // Report daemon status.
	CmdShutdown Command = "shutdown" // Stop the daemon.
	CmdOK       Command = "ok"       // Successful reply.
	CmdError    Command = "error"    // Failed reply carrying an ErrorResult.
)

// Wire frame of every message.
type Envelope struct {
	Version int             `json:"version"`           // Envelope format version.
	Command Command         `json:"command"`           // Operation or reply kind.
	Payload json.RawMessage `json:"payload,omitempty"` // Command-specific body.
}

// Payload of [CmdBuild].
type BuildRequest struct {
	Inventory    *build.Inventory `json:"inventory"`               // Functions of the project.
	Target       string           `json:"target,omitempty"`        // Single function to build. Empty builds all.
	BuildDir     string           `json:"build_dir,omitempty"`     // Artifacts root. Relative to the project.
	ManifestPath string           `json:"manifest_path,omitempty"` // Manifest override.
	Mode         string           `json:"mode,omitempty"`          // "debug", "release" or empty.
}

// Reply to [CmdBuild].
type BuildResult struct {
	Artifacts map[string]string `json:"artifacts"` // Artifacts directory by function name.
}

// Payload of [CmdImport].
type ImportRequest struct {
	Path string `json:"path"` // OCI archive on the daemon's host.
	Ref  string `json:"ref"`  // Tag to apply to the imported image.
}

// Reply to [CmdStatus].
type StatusResult struct {
	Running   bool   `json:"running"`
	Version   string `json:"version"`
	Pid       int    `json:"pid"`
	Uptime    string `json:"uptime"`
	Builds    int    `json:"builds"`    // Build commands served.
	Sandboxes int    `json:"sandboxes"` // Sandbox containers currently known to containerd.
}

// Classifies a failed command for the client.
type ErrorKind string

const (
	KindInvalidRequest      ErrorKind = "invalid_request"
	KindTargetNotFound      ErrorKind = "target_not_found"
	KindUnsupportedRuntime  ErrorKind = "unsupported_runtime"
	KindBuildFailure        ErrorKind = "build_failure"
	KindIncompatibleBuilder ErrorKind = "incompatible_builder"
	KindBuilderCrashed      ErrorKind = "builder_crashed"
	KindCancelled           ErrorKind = "cancelled"
	KindInternal            ErrorKind = "internal"
)

// Payload of [CmdError].
type ErrorResult struct {
	Kind     ErrorKind `json:"kind"`
	Message  string    `json:"message"`
	Function string    `json:"function,omitempty"` // Function whose build failed.
	Output   string    `json:"output,omitempty"`   // Sandbox output when the builder gave no answer.
}

func (e *ErrorResult) Error() string {
	return e.Message
}

// Encodes an envelope for cmd with the given payload. A nil payload is
// omitted.
func Encode(cmd Command, payload any) ([]byte, error) {
	env := Envelope{Version: Version, Command: cmd}

	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrEncode, err)
		}
		env.Payload = raw
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	return data, nil
}

// Decodes an envelope and returns its raw payload.
func Decode(data []byte) (*Envelope, json.RawMessage, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if env.Version != Version {
		return nil, nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, env.Version)
	}
	if env.Command == "" {
		return nil, nil, fmt.Errorf("%w: missing command", ErrDecode)
	}
	return &env, env.Payload, nil
}

// Decodes a payload into T. An empty payload yields the zero value.
func DecodePayload[T any](payload json.RawMessage) (*T, error) {
	var v T
	if len(payload) == 0 {
		return &v, nil
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return &v, nil
}
