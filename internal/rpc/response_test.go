package rpc

import (
	"errors"
	"testing"
)

func TestParseResponseSuccess(t *testing.T) {
	out := []byte(`{"jsonrpc": "2.0", "id": 1, "result": {"artifacts_dir": "/tmp/samcli/artifacts"}}` + "\n")

	resp, err := ParseResponse(out, "img")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Result == nil || resp.Result.ArtifactsDir != "/tmp/samcli/artifacts" {
		t.Errorf("Result = %+v, want artifacts dir", resp.Result)
	}
}

func TestParseResponseErrors(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   error
	}{
		{"build failure", `{"jsonrpc":"2.0","id":1,"error":{"code":400,"message":"pip failed"}}`, ErrBuildFailed},
		{"build failure upper bound", `{"jsonrpc":"2.0","id":1,"error":{"code":499,"message":"x"}}`, ErrBuildFailed},
		{"unsupported protocol", `{"jsonrpc":"2.0","id":1,"error":{"code":505,"message":"bad version"}}`, ErrIncompatibleBuilder},
		{"method not found", `{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"no method"}}`, ErrIncompatibleBuilder},
		{"internal error", `{"jsonrpc":"2.0","id":1,"error":{"code":500,"message":"boom"}}`, ErrBuilderCrashed},
		{"parse error", `{"jsonrpc":"2.0","id":1,"error":{"code":-32700,"message":"boom"}}`, ErrBuilderCrashed},
		{"empty", "   \n", ErrMalformedResponse},
		{"not json", "Traceback (most recent call last):", ErrMalformedResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseResponse([]byte(tt.output), "img")
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParseResponseBuildErrorMessage(t *testing.T) {
	_, err := ParseResponse([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":400,"message":"pip failed"}}`), "img")

	var buildErr *BuildError
	if !errors.As(err, &buildErr) {
		t.Fatalf("error = %v, want *BuildError", err)
	}
	if buildErr.Message != "pip failed" {
		t.Errorf("Message = %q, want %q", buildErr.Message, "pip failed")
	}
}

func TestParseResponseIncompatibleNamesImage(t *testing.T) {
	_, err := ParseResponse([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":505,"message":"bad version"}}`), "lambci/lambda:build-python3.7")

	var incompatible *IncompatibleBuilderError
	if !errors.As(err, &incompatible) {
		t.Fatalf("error = %v, want *IncompatibleBuilderError", err)
	}
	if incompatible.Image != "lambci/lambda:build-python3.7" {
		t.Errorf("Image = %q", incompatible.Image)
	}
	if incompatible.Message != "bad version" {
		t.Errorf("Message = %q", incompatible.Message)
	}
}
