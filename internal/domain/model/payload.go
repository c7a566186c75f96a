package model

import (
	"encoding/json"
	"fmt"
)

// Payload is the validated, typed view of an event's metadata. Each event
// type requires a specific shape; fields not claimed by any shape are kept
// in Extra for forward compatibility but are never load-bearing.
type Payload struct {
	EntityID   string `json:"entity_id"`
	EntityKind string `json:"entity_kind"`

	// content.played
	DurationSeconds float64 `json:"duration_seconds,omitempty"`

	// content.shared
	Channel string `json:"channel,omitempty"`

	// payment.completed
	AmountCents int64  `json:"amount_cents,omitempty"`
	Currency    string `json:"currency,omitempty"`

	// event.attended
	Location string `json:"location,omitempty"`

	// Generic fallback for unmapped metadata.
	Extra map[string]any `json:"extra,omitempty"`
}

// entityKinds that may be referenced by an event.
var entityKinds = map[string]bool{
	"track":  true,
	"artist": true,
	"event":  true,
	"brand":  true,
}

// ParsePayload decodes and validates raw metadata for the given event type.
// Validation failures mean the event is rejected at append time, nothing
// is persisted.
func ParsePayload(t EventType, raw map[string]any) (Payload, error) {
	var p Payload

	// Round-trip through JSON so known keys land on typed fields and the
	// rest can be collected into Extra.
	buf, err := json.Marshal(raw)
	if err != nil {
		return p, fmt.Errorf("encode metadata: %w", err)
	}
	if err := json.Unmarshal(buf, &p); err != nil {
		return p, fmt.Errorf("decode metadata: %w", err)
	}
	p.Extra = collectExtra(raw)

	if p.EntityID == "" {
		return p, fmt.Errorf("metadata missing entity_id")
	}
	if p.EntityKind == "" {
		return p, fmt.Errorf("metadata missing entity_kind")
	}
	if !entityKinds[p.EntityKind] {
		return p, fmt.Errorf("unknown entity_kind %q", p.EntityKind)
	}

	switch t {
	case EventContentPlayed:
		if p.DurationSeconds < 0 {
			return p, fmt.Errorf("duration_seconds must not be negative")
		}
	case EventPaymentCompleted:
		if p.AmountCents <= 0 {
			return p, fmt.Errorf("amount_cents must be positive")
		}
	case EventContentShared, EventSocialFollowed, EventAttended, EventRSVPed:
		// No required fields beyond the entity reference. A location-less
		// event.attended is accepted; it simply contributes nothing to the
		// reach category downstream.
	default:
		return p, fmt.Errorf("unknown event type %q", t)
	}

	return p, nil
}

// knownPayloadKeys are the metadata keys claimed by typed fields.
var knownPayloadKeys = map[string]bool{
	"entity_id":        true,
	"entity_kind":      true,
	"duration_seconds": true,
	"channel":          true,
	"amount_cents":     true,
	"currency":         true,
	"location":         true,
	"extra":            true,
}

func collectExtra(raw map[string]any) map[string]any {
	var extra map[string]any
	for k, v := range raw {
		if knownPayloadKeys[k] {
			continue
		}
		if extra == nil {
			extra = make(map[string]any)
		}
		extra[k] = v
	}
	return extra
}

// Encode serializes the payload for storage.
func (p Payload) Encode() ([]byte, error) {
	buf, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return buf, nil
}

// DecodePayload deserializes a stored payload.
func DecodePayload(buf []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(buf, &p); err != nil {
		return p, fmt.Errorf("decode payload: %w", err)
	}
	return p, nil
}
