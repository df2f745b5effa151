package client

import "errors"

var (
	ErrUnavailable     = errors.New("daemon is not reachable")
	ErrUnexpectedReply = errors.New("unexpected reply from daemon")
)
