package batch

import "errors"

// Sentinel kinds for batch coordination errors.
var (
	ErrRunInProgress = errors.New("batch run already in progress")
)
