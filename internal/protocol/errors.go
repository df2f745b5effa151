package protocol

import "errors"

var (
	ErrEncode             = errors.New("cannot encode message")
	ErrDecode             = errors.New("cannot decode message")
	ErrUnsupportedVersion = errors.New("unsupported protocol version")
)
