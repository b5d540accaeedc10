package app

import "errors"

// ErrInvalidInput is returned when a request payload fails validation.
var ErrInvalidInput = errors.New("invalid input")
