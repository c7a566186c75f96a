// Package mutation derives immutable, category-scoped delta rows from
// interaction events.
package mutation

import (
	"time"

	"github.com/okian/affinity/internal/domain/decay"
	"github.com/okian/affinity/internal/domain/model"
	"github.com/okian/affinity/internal/domain/weights"
)

// Base delta constants per event kind. These are the raw contributions
// before category weighting and recency decay.
const (
	playedEngagement   = 1.0
	sharedEngagement   = 2.0
	rsvpedEngagement   = 1.5
	attendedEngagement = 3.0
	sharedReach        = 1.0
	attendedReach      = 2.0
	followedLoyalty    = 5.0
	attendedLoyalty    = 1.0
	centsPerUnit       = 100.0
)

// deltaFunc computes a category's raw contribution for an event. A zero
// return means the event does not touch the category, which is expected
// and produces no row.
type deltaFunc func(t model.EventType, p model.Payload) float64

// deltaFuncs holds one pure delta function per category.
var deltaFuncs = map[model.Category]deltaFunc{
	model.CategoryEngagement: engagementDelta,
	model.CategorySpending:   spendingDelta,
	model.CategoryReach:      reachDelta,
	model.CategoryLoyalty:    loyaltyDelta,
}

func engagementDelta(t model.EventType, _ model.Payload) float64 {
	switch t {
	case model.EventContentPlayed:
		return playedEngagement
	case model.EventContentShared:
		return sharedEngagement
	case model.EventRSVPed:
		return rsvpedEngagement
	case model.EventAttended:
		return attendedEngagement
	default:
		return 0
	}
}

func spendingDelta(t model.EventType, p model.Payload) float64 {
	if t != model.EventPaymentCompleted {
		return 0
	}
	return float64(p.AmountCents) / centsPerUnit
}

// reachDelta only counts attendance with a recorded location; absence of
// the field means zero contribution, not an error.
func reachDelta(t model.EventType, p model.Payload) float64 {
	switch t {
	case model.EventAttended:
		if p.Location == "" {
			return 0
		}
		return attendedReach
	case model.EventContentShared:
		return sharedReach
	default:
		return 0
	}
}

func loyaltyDelta(t model.EventType, _ model.Payload) float64 {
	switch t {
	case model.EventSocialFollowed:
		return followedLoyalty
	case model.EventAttended:
		return attendedLoyalty
	default:
		return 0
	}
}

// Projector derives mutation rows. The decay here runs on the processing
// clock: how stale the event is relative to when the batch handles it,
// with a short half-life, unlike the inter-event decay used for profile
// updates.
type Projector struct {
	table *weights.Table
	decay decay.Model
}

// New constructs a Projector. The half-life is validated up front.
func New(table *weights.Table, shortHalfLifeDays float64) (*Projector, error) {
	m, err := decay.New(shortHalfLifeDays)
	if err != nil {
		return nil, err
	}
	return &Projector{table: table, decay: m}, nil
}

// Derive computes zero to N mutation rows for an event, one per category
// with a nonzero effective delta. Deltas are independent across
// categories; an event with no impact anywhere yields an empty slice.
func (p *Projector) Derive(ev *model.InteractionEvent, now time.Time) []model.DomainMutation {
	factor := p.decay.Factor(ev.OccurredAt, now)
	entityID, _ := ev.EntityRef()

	var rows []model.DomainMutation
	for _, cat := range model.Categories {
		base := deltaFuncs[cat](ev.Type, ev.Payload)
		if base == 0 {
			continue
		}
		weight := p.table.CategoryFor(ev.UserID, ev.Type, cat)
		effective := base * weight * factor
		if effective == 0 {
			continue
		}
		rows = append(rows, model.DomainMutation{
			EventID:        ev.ID,
			EntityID:       entityID,
			UserID:         ev.UserID,
			Category:       cat,
			BaseDelta:      base,
			Weight:         weight,
			Decay:          factor,
			EffectiveDelta: effective,
			OccurredAt:     ev.OccurredAt,
			CreatedAt:      now,
		})
	}
	return rows
}
