package aggregate

import "errors"

// Sentinel kinds for aggregation errors.
var (
	ErrInvalidWindow = errors.New("invalid leaderboard window")
)
