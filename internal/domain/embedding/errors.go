package embedding

import "errors"

// Sentinel kinds for projection errors.
var (
	ErrInvalidConfig     = errors.New("invalid projector config")
	ErrMissingProfile    = errors.New("missing profile")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)
