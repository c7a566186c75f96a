package service

import "errors"

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrValidation    = errors.New("validation failed")
	ErrNotConfigured = errors.New("service not configured")
)
