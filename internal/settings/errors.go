package settings

import "errors"

var (
	ErrLoad    = errors.New("cannot load settings")
	ErrInvalid = errors.New("invalid settings")
)
