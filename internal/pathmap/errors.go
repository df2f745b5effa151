package pathmap

import "errors"

var ErrCanonicalize = errors.New("cannot canonicalize path")
