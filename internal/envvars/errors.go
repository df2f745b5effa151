package envvars

import "errors"

var (
	ErrReadOverrides    = errors.New("cannot read environment variables file")
	ErrInvalidOverrides = errors.New("invalid environment variables file")
)
