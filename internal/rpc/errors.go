package rpc

import (
	"errors"
	"fmt"
)

var (
	ErrEncode              = errors.New("cannot encode builder request")
	ErrMalformedResponse   = errors.New("malformed builder response")
	ErrBuildFailed         = errors.New("build failed")
	ErrIncompatibleBuilder = errors.New("incompatible builder version")
	ErrBuilderCrashed      = errors.New("builder crashed")
)

// Reported by the builder when the function itself failed to build, for
// example because a dependency could not be resolved.
type BuildError struct {
	Message string // Builder diagnostic.
}

func (e *BuildError) Error() string {
	return e.Message
}

func (e *BuildError) Unwrap() error {
	return ErrBuildFailed
}

// Reported when the builder inside the image does not speak the protocol
// version or method this host sends.
type IncompatibleBuilderError struct {
	Image   string // Image whose builder rejected the request.
	Message string // Builder diagnostic.
}

func (e *IncompatibleBuilderError) Error() string {
	return fmt.Sprintf("%s is not compatible with this version of lambdad: %s", e.Image, e.Message)
}

func (e *IncompatibleBuilderError) Unwrap() error {
	return ErrIncompatibleBuilder
}
