// Package model contains domain models passed between layers.
package model

import "time"

// EventType identifies one kind of user interaction. The set is closed;
// append rejects anything else.
type EventType string

const (
	EventContentPlayed    EventType = "content.played"
	EventContentShared    EventType = "content.shared"
	EventSocialFollowed   EventType = "social.followed"
	EventPaymentCompleted EventType = "payment.completed"
	EventAttended         EventType = "event.attended"
	EventRSVPed           EventType = "event.rsvped"
)

// KnownEventTypes lists every accepted event type.
var KnownEventTypes = []EventType{
	EventContentPlayed,
	EventContentShared,
	EventSocialFollowed,
	EventPaymentCompleted,
	EventAttended,
	EventRSVPed,
}

// Valid reports whether t is part of the closed enumeration.
func (t EventType) Valid() bool {
	for _, k := range KnownEventTypes {
		if t == k {
			return true
		}
	}
	return false
}

// Source marks how an event entered the ledger. Backfilled events get a
// reduced recency factor in the embedding update.
type Source string

const (
	SourceLive     Source = "live"
	SourceBackfill Source = "backfill"
)

// InteractionEvent is one immutable row of the event ledger. Only the
// processing bookkeeping fields (Processed, ProcessedAt, Attempts,
// LastError, PermanentlyFailed) ever change after append, and only the
// batch coordinator changes them.
type InteractionEvent struct {
	ID         string
	UserID     string
	Type       EventType
	Payload    Payload
	OccurredAt time.Time
	Source     Source

	Processed         bool
	ProcessedAt       time.Time
	Attempts          int
	LastError         string
	PermanentlyFailed bool
}

// EntityRef returns the target entity reference carried by the payload.
func (e *InteractionEvent) EntityRef() (id, kind string) {
	return e.Payload.EntityID, e.Payload.EntityKind
}
