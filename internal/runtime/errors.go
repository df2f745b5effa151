package runtime

import "errors"

var (
	ErrRuntime           = errors.New("runtime error")
	ErrInvalidSpec       = errors.New("invalid execution spec")
	ErrImagePull         = errors.New("cannot pull image")
	ErrCancelled         = errors.New("sandbox cancelled")
	ErrInvalidTransition = errors.New("invalid sandbox state transition")
	ErrEmptyArchive      = errors.New("archive contains no image")
	ErrMultipleImages    = errors.New("archive contains more than one image")
)
