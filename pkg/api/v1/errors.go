package v1

import "errors"

// ErrInvalidRequest matches every trace validation failure under errors.Is.
var ErrInvalidRequest = errors.New("invalid request")
