package image

import "errors"

var (
	ErrUnsupportedRuntime = errors.New("unsupported runtime")
	ErrInvalidReference   = errors.New("invalid image reference")
)
