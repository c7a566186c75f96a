package weights

import "errors"

// Sentinel kinds for weight table errors.
var (
	ErrInvalidWeight = errors.New("invalid weight")
)
