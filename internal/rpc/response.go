package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
)

const (

	// Protocol version not supported by the builder.
	CodeUnsupportedProtocol = 505

	// JSON-RPC "method not found".
	CodeMethodNotFound = -32601
)

// A JSON-RPC response from the builder.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  *Result         `json:"result,omitempty"`
	Error   *ResponseError  `json:"error,omitempty"`
}

// Payload of a successful build.
type Result struct {
	ArtifactsDir string `json:"artifacts_dir"`
}

// Error object of a failed call.
type ResponseError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Decodes the builder's stdout and classifies builder errors.
//
// Codes in the 4xx range mean the function failed to build and yield a
// [*BuildError]. Protocol mismatches (505, -32601) yield an
// [*IncompatibleBuilderError] naming image. Any other code is reported as
// [ErrBuilderCrashed].
func ParseResponse(data []byte, image string) (*Response, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty output", ErrMalformedResponse)
	}

	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	if resp.Error == nil {
		return &resp, nil
	}

	code, msg := resp.Error.Code, resp.Error.Message
	switch {
	case code >= 400 && code < 500:
		return nil, &BuildError{Message: msg}
	case code == CodeUnsupportedProtocol:
		return nil, &IncompatibleBuilderError{Image: image, Message: msg}
	case code == CodeMethodNotFound:
		slog.Debug("builder does not support the requested method", "image", image)
		return nil, &IncompatibleBuilderError{Image: image, Message: msg}
	default:
		return nil, fmt.Errorf("%w: code %d: %s", ErrBuilderCrashed, code, msg)
	}
}
