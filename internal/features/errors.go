package features

import "errors"

// ErrInvalidInput is returned when a submission fails validation.
var ErrInvalidInput = errors.New("invalid input")
