package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrNotFound  = errors.New("not found")
	ErrLeaseHeld = errors.New("run lease already held")
)
