// Package embedding applies decayed exponential-moving-average updates to
// user profiles by mirroring against entity embeddings.
package embedding

import (
	"fmt"
	"math"
	"time"

	"github.com/okian/affinity/internal/domain/decay"
	"github.com/okian/affinity/internal/domain/model"
	"github.com/okian/affinity/internal/domain/weights"
)

// Default projector configuration constants.
const (
	defaultDimensions      = 384
	defaultHalfLifeDays    = 90.0
	defaultLearningRate    = 0.1
	defaultBackfillRecency = 0.25
	blendSumEpsilon        = 1e-9
)

// defaultBlend is the composite blend across the four domains; the
// importances must sum to 1.
var defaultBlend = [4]float64{0.40, 0.30, 0.15, 0.15}

// Result reports one projection outcome. When Skipped is set the profile
// was left untouched and Reason names the missing reference.
type Result struct {
	Profile          *model.UserProfile
	DomainDeltaNorms [4]float64
	Skipped          bool
	Reason           string
}

// Projector computes profile updates. It is pure: identical inputs yield
// identical outputs, which keeps replay and debugging deterministic.
type Projector struct {
	dims            int
	blend           [4]float64
	halfLifeDays    float64
	learningRate    float64
	backfillRecency float64
}

// Option applies a configuration option to the Projector.
type Option func(*Projector)

// WithDimensions sets the per-domain vector dimensionality.
func WithDimensions(dims int) Option {
	return func(p *Projector) {
		p.dims = dims
	}
}

// WithBlend sets the composite blend importances (must sum to 1).
func WithBlend(blend [4]float64) Option {
	return func(p *Projector) {
		p.blend = blend
	}
}

// WithHalfLifeDays sets the half-life seeded into new profiles.
func WithHalfLifeDays(days float64) Option {
	return func(p *Projector) {
		p.halfLifeDays = days
	}
}

// WithLearningRate sets the learning rate seeded into new profiles.
func WithLearningRate(rate float64) Option {
	return func(p *Projector) {
		p.learningRate = rate
	}
}

// WithBackfillRecency sets the recency factor applied to backfilled
// events, in (0, 1].
func WithBackfillRecency(f float64) Option {
	return func(p *Projector) {
		p.backfillRecency = f
	}
}

// New constructs a Projector and validates its configuration. Bad
// parameters fail construction outright.
func New(opts ...Option) (*Projector, error) {
	p := &Projector{
		dims:            defaultDimensions,
		blend:           defaultBlend,
		halfLifeDays:    defaultHalfLifeDays,
		learningRate:    defaultLearningRate,
		backfillRecency: defaultBackfillRecency,
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.dims <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive, got %d", ErrInvalidConfig, p.dims)
	}
	sum := 0.0
	for _, b := range p.blend {
		if b < 0 {
			return nil, fmt.Errorf("%w: blend importances must not be negative", ErrInvalidConfig)
		}
		sum += b
	}
	if math.Abs(sum-1.0) > blendSumEpsilon {
		return nil, fmt.Errorf("%w: blend importances must sum to 1, got %v", ErrInvalidConfig, sum)
	}
	if p.halfLifeDays <= 0 {
		return nil, fmt.Errorf("%w: half-life must be positive, got %v", ErrInvalidConfig, p.halfLifeDays)
	}
	if p.learningRate <= 0 || p.learningRate > 1 {
		return nil, fmt.Errorf("%w: learning rate must be in (0, 1], got %v", ErrInvalidConfig, p.learningRate)
	}
	if p.backfillRecency <= 0 || p.backfillRecency > 1 {
		return nil, fmt.Errorf("%w: backfill recency must be in (0, 1], got %v", ErrInvalidConfig, p.backfillRecency)
	}
	return p, nil
}

// Dimensions returns the configured per-domain dimensionality.
func (p *Projector) Dimensions() int {
	return p.dims
}

// NewProfile lazily initializes a near-zero, low-confidence profile for a
// user seen for the first time.
func (p *Projector) NewProfile(userID string, now time.Time) *model.UserProfile {
	profile := &model.UserProfile{
		UserID:       userID,
		Dimensions:   p.dims,
		Generation:   1,
		HalfLifeDays: p.halfLifeDays,
		LearningRate: p.learningRate,
		Confidence:   0,
		UpdatedAt:    now,
	}
	for d := range profile.Vectors {
		profile.Vectors[d] = make([]float64, p.dims)
	}
	profile.Composite = p.composite(profile.Vectors)
	return profile
}

// Project applies one event to a profile. The input profile is not
// mutated; the returned profile carries generation+1 and a freshly
// recomputed composite. A nil entity yields a skip result, not an error:
// the event still counts as processed for this projector.
func (p *Projector) Project(ev *model.InteractionEvent, profile *model.UserProfile, entity *model.EntityProfile, w weights.EventWeights, now time.Time) (Result, error) {
	if profile == nil {
		return Result{}, fmt.Errorf("%w: user profile", ErrMissingProfile)
	}
	if entity == nil {
		return Result{Profile: profile, Skipped: true, Reason: "entity profile absent"}, nil
	}
	if entity.Dimensions != profile.Dimensions {
		return Result{}, fmt.Errorf("%w: entity %d vs profile %d", ErrDimensionMismatch, entity.Dimensions, profile.Dimensions)
	}

	factor, err := decay.Factor(profile.LastInteraction, ev.OccurredAt, profile.HalfLifeDays)
	if err != nil {
		return Result{}, fmt.Errorf("profile %s: %w", profile.UserID, err)
	}

	alpha := profile.LearningRate * w.Intensity * p.recencyFactor(ev.Source)

	updated := &model.UserProfile{
		UserID:          profile.UserID,
		Dimensions:      profile.Dimensions,
		Generation:      profile.Generation + 1,
		HalfLifeDays:    profile.HalfLifeDays,
		LearningRate:    profile.LearningRate,
		LastInteraction: ev.OccurredAt,
		UpdatedAt:       now,
	}

	var norms [4]float64
	for d := range model.Domains {
		old := profile.Vectors[d]
		target := entity.Vectors[d]
		pull := clamp01(alpha * w.Domains[d])
		next := make([]float64, len(old))
		var sq float64
		for i := range old {
			next[i] = (1-pull)*old[i]*factor + pull*target[i]
			diff := next[i] - old[i]
			sq += diff * diff
		}
		updated.Vectors[d] = next
		norms[d] = math.Sqrt(sq)
	}
	updated.Composite = p.composite(updated.Vectors)
	updated.Confidence = profile.Confidence + (1-profile.Confidence)*clamp01(alpha)

	return Result{Profile: updated, DomainDeltaNorms: norms}, nil
}

// recencyFactor scales alpha down for backfilled events so historical
// imports do not overwrite fresh signal.
func (p *Projector) recencyFactor(s model.Source) float64 {
	if s == model.SourceBackfill {
		return p.backfillRecency
	}
	return 1.0
}

// composite blends the four domain vectors into one using the configured
// importances.
func (p *Projector) composite(vectors [4][]float64) []float64 {
	out := make([]float64, p.dims)
	for d, vec := range vectors {
		imp := p.blend[d]
		for i := range vec {
			out[i] += imp * vec[i]
		}
	}
	return out
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
