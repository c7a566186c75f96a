package model

import "time"

// Category labels one axis of the mutation ledger.
type Category string

const (
	CategoryEngagement Category = "engagement"
	CategorySpending   Category = "spending"
	CategoryReach      Category = "reach"
	CategoryLoyalty    Category = "loyalty"
)

// Categories lists every mutation category.
var Categories = []Category{CategoryEngagement, CategorySpending, CategoryReach, CategoryLoyalty}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, k := range Categories {
		if c == k {
			return true
		}
	}
	return false
}

// DomainMutation is one immutable, category-scoped contribution derived
// from a single event. Unique per (EventID, Category); that constraint is
// the idempotency guarantee for reprocessing.
type DomainMutation struct {
	EventID  string
	EntityID string
	UserID   string
	Category Category

	BaseDelta      float64
	Weight         float64
	Decay          float64
	EffectiveDelta float64

	OccurredAt time.Time
	CreatedAt  time.Time
}

// DomainStrength is the running total of mutation contributions for one
// entity in one category. Always recomputed from the mutation ledger,
// never incremented in place, so it stays rebuildable from scratch.
type DomainStrength struct {
	EntityID       string
	Category       Category
	TotalDelta     float64
	MutationCount  int64
	LastMutationAt time.Time
}
