package decay

import "errors"

// Sentinel kinds for decay errors.
var (
	ErrInvalidHalfLife = errors.New("invalid half-life")
)
