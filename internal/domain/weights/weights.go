// Package weights maps event types to the per-category and per-domain
// base weights that drive both projections.
package weights

import (
	"fmt"

	"github.com/okian/affinity/internal/domain/model"
)

// EventWeights carries everything the projectors need to know about one
// event type: the base intensity feeding the embedding learning rate, the
// per-domain mirror weights, and the per-category mutation weights.
type EventWeights struct {
	Intensity  float64
	Domains    [4]float64
	Categories map[model.Category]float64
}

// Table is the static weight table, loaded from configuration at startup
// and immutable afterwards.
type Table struct {
	events          map[model.EventType]EventWeights
	userOverrides   map[string]map[model.EventType]map[model.Category]float64
	defaultCategory float64
}

// Option applies a configuration option to the Table.
type Option func(*Table)

// WithEventWeights replaces the weights for one event type.
func WithEventWeights(t model.EventType, w EventWeights) Option {
	return func(tbl *Table) {
		tbl.events[t] = w
	}
}

// WithDefaultCategoryWeight sets the weight used for (event type,
// category) pairs not present in the table.
func WithDefaultCategoryWeight(w float64) Option {
	return func(tbl *Table) {
		tbl.defaultCategory = w
	}
}

// WithCategoryWeights overlays per-category weights from configuration,
// keyed by event type then category. Unknown event types or categories
// are a configuration error caught by validation.
func WithCategoryWeights(overlay map[string]map[string]float64) Option {
	return func(tbl *Table) {
		for et, cats := range overlay {
			w, ok := tbl.events[model.EventType(et)]
			if !ok {
				w = EventWeights{Intensity: 1.0, Domains: uniformDomains(), Categories: map[model.Category]float64{}}
			}
			if w.Categories == nil {
				w.Categories = map[model.Category]float64{}
			}
			for cat, weight := range cats {
				w.Categories[model.Category(cat)] = weight
			}
			tbl.events[model.EventType(et)] = w
		}
	}
}

// WithUserCategoryWeights overlays per-user category weights, keyed by
// user ID, then event type, then category. Users without an entry fall
// back to the shared table.
func WithUserCategoryWeights(overlay map[string]map[string]map[string]float64) Option {
	return func(tbl *Table) {
		for user, types := range overlay {
			byType, ok := tbl.userOverrides[user]
			if !ok {
				byType = map[model.EventType]map[model.Category]float64{}
				tbl.userOverrides[user] = byType
			}
			for et, cats := range types {
				byCat, ok := byType[model.EventType(et)]
				if !ok {
					byCat = map[model.Category]float64{}
					byType[model.EventType(et)] = byCat
				}
				for cat, weight := range cats {
					byCat[model.Category(cat)] = weight
				}
			}
		}
	}
}

// New builds a Table from the built-in defaults plus options, then
// validates it. Invalid weights fail construction; there is no silent
// fallback.
func New(opts ...Option) (*Table, error) {
	tbl := &Table{
		events:          defaults(),
		userOverrides:   map[string]map[model.EventType]map[model.Category]float64{},
		defaultCategory: 1.0,
	}
	for _, opt := range opts {
		opt(tbl)
	}
	if err := tbl.validate(); err != nil {
		return nil, err
	}
	return tbl, nil
}

func (t *Table) validate() error {
	if t.defaultCategory < 0 {
		return fmt.Errorf("%w: default category weight must not be negative", ErrInvalidWeight)
	}
	for et, w := range t.events {
		if !et.Valid() {
			return fmt.Errorf("%w: unknown event type %q", ErrInvalidWeight, et)
		}
		if w.Intensity <= 0 {
			return fmt.Errorf("%w: intensity for %q must be positive", ErrInvalidWeight, et)
		}
		for i, dw := range w.Domains {
			if dw < 0 {
				return fmt.Errorf("%w: domain weight %s for %q must not be negative", ErrInvalidWeight, model.Domains[i], et)
			}
		}
		for cat, cw := range w.Categories {
			if !knownCategory(cat) {
				return fmt.Errorf("%w: unknown category %q for %q", ErrInvalidWeight, cat, et)
			}
			if cw < 0 {
				return fmt.Errorf("%w: category weight %s for %q must not be negative", ErrInvalidWeight, cat, et)
			}
		}
	}
	for user, types := range t.userOverrides {
		if user == "" {
			return fmt.Errorf("%w: user override with empty user id", ErrInvalidWeight)
		}
		for et, cats := range types {
			if !et.Valid() {
				return fmt.Errorf("%w: unknown event type %q for user %q", ErrInvalidWeight, et, user)
			}
			for cat, cw := range cats {
				if !knownCategory(cat) {
					return fmt.Errorf("%w: unknown category %q for user %q", ErrInvalidWeight, cat, user)
				}
				if cw < 0 {
					return fmt.Errorf("%w: category weight %s for user %q must not be negative", ErrInvalidWeight, cat, user)
				}
			}
		}
	}
	return nil
}

func knownCategory(c model.Category) bool {
	for _, k := range model.Categories {
		if c == k {
			return true
		}
	}
	return false
}

// For returns the weights for an event type. Unlisted types get unit
// intensity and uniform domain weights so a new event type degrades
// gracefully instead of dropping signal.
func (t *Table) For(et model.EventType) EventWeights {
	if w, ok := t.events[et]; ok {
		return w
	}
	return EventWeights{Intensity: 1.0, Domains: uniformDomains(), Categories: nil}
}

// Category returns the weight for one (event type, category) pair,
// falling back to the default category weight.
func (t *Table) Category(et model.EventType, cat model.Category) float64 {
	if w, ok := t.events[et]; ok {
		if cw, ok := w.Categories[cat]; ok {
			return cw
		}
	}
	return t.defaultCategory
}

// CategoryFor returns the weight for one (event type, category) pair as
// seen by a specific user. A per-user override wins; users without one
// get the shared table's answer.
func (t *Table) CategoryFor(userID string, et model.EventType, cat model.Category) float64 {
	if byType, ok := t.userOverrides[userID]; ok {
		if cw, ok := byType[et][cat]; ok {
			return cw
		}
	}
	return t.Category(et, cat)
}

func uniformDomains() [4]float64 {
	return [4]float64{1.0, 1.0, 1.0, 1.0}
}

// defaults is the built-in weight table. Configuration overlays on top.
func defaults() map[model.EventType]EventWeights {
	return map[model.EventType]EventWeights{
		model.EventContentPlayed: {
			Intensity: 1.0,
			Domains:   [4]float64{1.0, 0.8, 0.2, 0.1},
			Categories: map[model.Category]float64{
				model.CategoryEngagement: 1.0,
			},
		},
		model.EventContentShared: {
			Intensity: 1.2,
			Domains:   [4]float64{1.0, 1.0, 0.2, 0.1},
			Categories: map[model.Category]float64{
				model.CategoryEngagement: 1.0,
				model.CategoryReach:      1.0,
			},
		},
		model.EventSocialFollowed: {
			Intensity: 1.5,
			Domains:   [4]float64{0.8, 1.0, 0.3, 0.2},
			Categories: map[model.Category]float64{
				model.CategoryLoyalty: 1.0,
			},
		},
		model.EventPaymentCompleted: {
			Intensity: 2.0,
			Domains:   [4]float64{0.5, 0.6, 1.0, 0.2},
			Categories: map[model.Category]float64{
				model.CategorySpending: 1.0,
			},
		},
		model.EventAttended: {
			Intensity: 2.5,
			Domains:   [4]float64{0.9, 0.9, 0.5, 1.0},
			Categories: map[model.Category]float64{
				model.CategoryEngagement: 1.0,
				model.CategoryReach:      1.0,
				model.CategoryLoyalty:    1.0,
			},
		},
		model.EventRSVPed: {
			Intensity: 1.2,
			Domains:   [4]float64{0.7, 0.8, 0.3, 0.9},
			Categories: map[model.Category]float64{
				model.CategoryEngagement: 1.0,
			},
		},
	}
}
