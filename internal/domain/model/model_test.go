package model_test

import (
	"testing"

	"github.com/okian/affinity/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestEventTypeValid(t *testing.T) {
	Convey("Given the closed event type enumeration", t, func() {
		Convey("Then every known type validates", func() {
			for _, et := range model.KnownEventTypes {
				So(et.Valid(), ShouldBeTrue)
			}
		})

		Convey("Then unknown types are rejected", func() {
			So(model.EventType("content.viewed").Valid(), ShouldBeFalse)
			So(model.EventType("").Valid(), ShouldBeFalse)
		})
	})
}

func TestParsePayload(t *testing.T) {
	Convey("Given raw event metadata", t, func() {
		Convey("When it carries a valid entity reference", func() {
			raw := map[string]any{
				"entity_id":        "track-1",
				"entity_kind":      "track",
				"duration_seconds": 187.5,
			}

			p, err := model.ParsePayload(model.EventContentPlayed, raw)
			So(err, ShouldBeNil)
			So(p.EntityID, ShouldEqual, "track-1")
			So(p.EntityKind, ShouldEqual, "track")
			So(p.DurationSeconds, ShouldEqual, 187.5)
		})

		Convey("When the entity reference is missing", func() {
			_, err := model.ParsePayload(model.EventContentPlayed, map[string]any{
				"entity_kind": "track",
			})
			So(err, ShouldNotBeNil)
		})

		Convey("When the entity kind is unknown", func() {
			_, err := model.ParsePayload(model.EventContentPlayed, map[string]any{
				"entity_id":   "x",
				"entity_kind": "galaxy",
			})
			So(err, ShouldNotBeNil)
		})

		Convey("When a payment has no positive amount", func() {
			_, err := model.ParsePayload(model.EventPaymentCompleted, map[string]any{
				"entity_id":   "artist-1",
				"entity_kind": "artist",
			})
			So(err, ShouldNotBeNil)
		})

		Convey("When an attendance has no location", func() {
			p, err := model.ParsePayload(model.EventAttended, map[string]any{
				"entity_id":   "event-1",
				"entity_kind": "event",
			})
			So(err, ShouldBeNil)
			So(p.Location, ShouldEqual, "")
		})

		Convey("When metadata carries unmapped keys", func() {
			p, err := model.ParsePayload(model.EventContentShared, map[string]any{
				"entity_id":   "track-9",
				"entity_kind": "track",
				"channel":     "dm",
				"campaign":    "spring",
			})
			So(err, ShouldBeNil)
			So(p.Extra["campaign"], ShouldEqual, "spring")
			So(p.Extra, ShouldNotContainKey, "channel")
		})

		Convey("When the event type itself is unknown", func() {
			_, err := model.ParsePayload(model.EventType("nope"), map[string]any{
				"entity_id":   "x",
				"entity_kind": "track",
			})
			So(err, ShouldNotBeNil)
		})
	})
}

func TestPayloadRoundTrip(t *testing.T) {
	Convey("Given a validated payload", t, func() {
		p, err := model.ParsePayload(model.EventAttended, map[string]any{
			"entity_id":   "event-2",
			"entity_kind": "event",
			"location":    "berlin",
		})
		So(err, ShouldBeNil)

		Convey("Then it encodes and decodes unchanged", func() {
			buf, err := p.Encode()
			So(err, ShouldBeNil)

			got, err := model.DecodePayload(buf)
			So(err, ShouldBeNil)
			So(got.EntityID, ShouldEqual, "event-2")
			So(got.Location, ShouldEqual, "berlin")
		})
	})
}
