package build

import (
	"errors"
	"fmt"
)

var (
	ErrBuild               = errors.New("build failed")
	ErrFileSystemOperation = errors.New("file system operation failed")
	ErrTargetNotFound      = errors.New("target not found")
	ErrInvalidInventory    = errors.New("invalid function inventory")
	ErrInvalidMode         = errors.New("invalid build mode")
)

// Failure of a single function build.
type FunctionError struct {
	Function string // Function name.
	Output   string // Sandbox output, when the builder produced no usable answer.
	Err      error  // Underlying cause.
}

func (e *FunctionError) Error() string {
	return fmt.Sprintf("building %s: %v", e.Function, e.Err)
}

func (e *FunctionError) Unwrap() []error {
	return []error{ErrBuild, e.Err}
}
