package workflow

import "errors"

var ErrUnsupportedRuntime = errors.New("unsupported runtime")
