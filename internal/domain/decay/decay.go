// Package decay computes half-life based decay multipliers.
//
// The same curve serves two distinct clocks in the pipeline: profile
// updates decay by time since the user's last interaction, mutation
// deltas decay by how stale the event is at processing time. The two
// half-lives are configured separately and must not be collapsed.
package decay

import (
	"fmt"
	"math"
	"time"
)

const hoursPerDay = 24.0

// Model computes decay factors for a fixed half-life.
type Model struct {
	halfLifeDays float64
}

// New validates the half-life and returns a Model. A non-positive
// half-life is a configuration error, not a soft default.
func New(halfLifeDays float64) (Model, error) {
	if halfLifeDays <= 0 || math.IsNaN(halfLifeDays) || math.IsInf(halfLifeDays, 0) {
		return Model{}, fmt.Errorf("%w: half-life must be a positive number of days, got %v", ErrInvalidHalfLife, halfLifeDays)
	}
	return Model{halfLifeDays: halfLifeDays}, nil
}

// HalfLifeDays returns the configured half-life.
func (m Model) HalfLifeDays() float64 {
	return m.halfLifeDays
}

// Factor returns 0.5^(elapsedDays/halfLife) for the elapsed time between
// last and now. Returns exactly 1.0 at zero (or negative) elapsed time
// and decreases strictly with elapsed time, approaching but never
// reaching zero.
func (m Model) Factor(last, now time.Time) float64 {
	if last.IsZero() || !now.After(last) {
		return 1.0
	}
	elapsedDays := now.Sub(last).Hours() / hoursPerDay
	return math.Pow(0.5, elapsedDays/m.halfLifeDays)
}

// Factor is the one-shot form for callers that carry the half-life as
// data, e.g. per-profile half-lives loaded from storage.
func Factor(last, now time.Time, halfLifeDays float64) (float64, error) {
	m, err := New(halfLifeDays)
	if err != nil {
		return 0, err
	}
	return m.Factor(last, now), nil
}
