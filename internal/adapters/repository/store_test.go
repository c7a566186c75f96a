package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/okian/affinity/internal/adapters/repository"
	"github.com/okian/affinity/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func openStore(t *testing.T) *repository.Store {
	t.Helper()
	s, err := repository.OpenMemory()
	if err != nil {
		t.Fatalf("open memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testEvent(id, userID string, et model.EventType, entityID string, occurred time.Time) *model.InteractionEvent {
	return &model.InteractionEvent{
		ID:         id,
		UserID:     userID,
		Type:       et,
		Payload:    model.Payload{EntityID: entityID, EntityKind: "track"},
		OccurredAt: occurred,
		Source:     model.SourceLive,
	}
}

func TestOpenMemoryMigrates(t *testing.T) {
	Convey("Given an in-memory store", t, func() {
		s := openStore(t)

		Convey("Then the schema is fully migrated", func() {
			v, err := s.SchemaVersion()
			So(err, ShouldBeNil)
			So(v, ShouldEqual, 7)
		})
	})
}

func TestEventLedger(t *testing.T) {
	Convey("Given an empty ledger", t, func() {
		s := openStore(t)
		ctx := context.Background()
		t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

		Convey("When appending events out of order", func() {
			So(s.AppendEvent(ctx, testEvent("ev-2", "u1", model.EventContentPlayed, "t1", t0.Add(time.Hour))), ShouldBeNil)
			So(s.AppendEvent(ctx, testEvent("ev-1", "u1", model.EventContentPlayed, "t1", t0)), ShouldBeNil)
			So(s.AppendEvent(ctx, testEvent("ev-3", "u2", model.EventContentShared, "t2", t0.Add(2*time.Hour))), ShouldBeNil)

			Convey("Then claiming returns them in occurrence order", func() {
				events, err := s.ClaimUnprocessed(ctx, 10)
				So(err, ShouldBeNil)
				So(events, ShouldHaveLength, 3)
				So(events[0].ID, ShouldEqual, "ev-1")
				So(events[1].ID, ShouldEqual, "ev-2")
				So(events[2].ID, ShouldEqual, "ev-3")
			})

			Convey("Then the claim honors the batch limit", func() {
				events, err := s.ClaimUnprocessed(ctx, 2)
				So(err, ShouldBeNil)
				So(events, ShouldHaveLength, 2)
			})

			Convey("When marking events processed", func() {
				So(s.MarkProcessed(ctx, []string{"ev-1", "ev-2"}, t0.Add(3*time.Hour)), ShouldBeNil)

				Convey("Then they are never reselected", func() {
					events, err := s.ClaimUnprocessed(ctx, 10)
					So(err, ShouldBeNil)
					So(events, ShouldHaveLength, 1)
					So(events[0].ID, ShouldEqual, "ev-3")
				})

				Convey("Then the backlog count reflects it", func() {
					n, err := s.CountUnprocessed(ctx)
					So(err, ShouldBeNil)
					So(n, ShouldEqual, 1)
				})
			})
		})

		Convey("When a payload round-trips through the ledger", func() {
			ev := testEvent("ev-p", "u1", model.EventAttended, "e1", t0)
			ev.Payload.Location = "porto"
			So(s.AppendEvent(ctx, ev), ShouldBeNil)

			got, err := s.GetEvent(ctx, "ev-p")
			So(err, ShouldBeNil)
			So(got.Payload.Location, ShouldEqual, "porto")
			So(got.Payload.EntityID, ShouldEqual, "e1")
			So(got.OccurredAt.Equal(t0), ShouldBeTrue)
		})
	})
}

func TestRecordFailure(t *testing.T) {
	Convey("Given an event that keeps failing", t, func() {
		s := openStore(t)
		ctx := context.Background()
		t0 := time.Now().UTC()
		So(s.AppendEvent(ctx, testEvent("ev-f", "u1", model.EventContentPlayed, "t1", t0)), ShouldBeNil)

		Convey("When it fails fewer times than the maximum", func() {
			permanent, err := s.RecordFailure(ctx, "ev-f", "boom", 3)
			So(err, ShouldBeNil)
			So(permanent, ShouldBeFalse)

			Convey("Then it stays claimable for retry", func() {
				events, err := s.ClaimUnprocessed(ctx, 10)
				So(err, ShouldBeNil)
				So(events, ShouldHaveLength, 1)
				So(events[0].Attempts, ShouldEqual, 1)
			})
		})

		Convey("When it reaches the maximum attempts", func() {
			for i := 0; i < 2; i++ {
				_, err := s.RecordFailure(ctx, "ev-f", "boom", 3)
				So(err, ShouldBeNil)
			}
			permanent, err := s.RecordFailure(ctx, "ev-f", "boom", 3)
			So(err, ShouldBeNil)
			So(permanent, ShouldBeTrue)

			Convey("Then it is parked, surfaced, and never reselected", func() {
				events, err := s.ClaimUnprocessed(ctx, 10)
				So(err, ShouldBeNil)
				So(events, ShouldBeEmpty)

				n, err := s.CountPermanentlyFailed(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)

				got, err := s.GetEvent(ctx, "ev-f")
				So(err, ShouldBeNil)
				So(got.PermanentlyFailed, ShouldBeTrue)
				So(got.LastError, ShouldEqual, "boom")
			})
		})

		Convey("When the event does not exist", func() {
			_, err := s.RecordFailure(ctx, "nope", "boom", 3)
			So(err, ShouldNotBeNil)
		})
	})
}
