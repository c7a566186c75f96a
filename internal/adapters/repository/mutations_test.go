package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/affinity/internal/adapters/repository"
	"github.com/okian/affinity/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func mutationRow(eventID, entityID string, cat model.Category, effective float64, occurred time.Time) model.DomainMutation {
	return model.DomainMutation{
		EventID:        eventID,
		EntityID:       entityID,
		UserID:         "u1",
		Category:       cat,
		BaseDelta:      effective,
		Weight:         1.0,
		Decay:          1.0,
		EffectiveDelta: effective,
		OccurredAt:     occurred,
		CreatedAt:      occurred,
	}
}

func TestInsertMutationsIdempotency(t *testing.T) {
	Convey("Given a mutation ledger", t, func() {
		s := openStore(t)
		ctx := context.Background()
		t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

		rows := []model.DomainMutation{
			mutationRow("ev-1", "track-1", model.CategoryEngagement, 1.0, t0),
			mutationRow("ev-1", "track-1", model.CategoryReach, 2.0, t0),
		}

		Convey("When inserting the same rows twice", func() {
			n, err := s.InsertMutations(ctx, rows)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 2)

			n, err = s.InsertMutations(ctx, rows)
			So(err, ShouldBeNil)

			Convey("Then the second insert is a no-op", func() {
				So(n, ShouldEqual, 0)
				count, err := s.CountMutations(ctx, "ev-1", model.CategoryEngagement)
				So(err, ShouldBeNil)
				So(count, ShouldEqual, 1)
			})
		})
	})
}

func TestStrengthRecompute(t *testing.T) {
	Convey("Given mutations for one entity across categories", t, func() {
		s := openStore(t)
		ctx := context.Background()
		t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

		_, err := s.InsertMutations(ctx, []model.DomainMutation{
			mutationRow("ev-1", "track-1", model.CategoryEngagement, 1.0, t0),
			mutationRow("ev-2", "track-1", model.CategoryEngagement, 0.5, t0.Add(time.Hour)),
			mutationRow("ev-3", "track-1", model.CategoryReach, 2.0, t0),
			mutationRow("ev-4", "track-2", model.CategoryEngagement, 9.0, t0),
		})
		So(err, ShouldBeNil)

		Convey("When recomputing strength", func() {
			So(s.RecomputeStrength(ctx, "track-1"), ShouldBeNil)

			Convey("Then totals are a pure fold over the ledger", func() {
				st, err := s.GetStrength(ctx, "track-1", model.CategoryEngagement)
				So(err, ShouldBeNil)
				So(st.TotalDelta, ShouldAlmostEqual, 1.5, 1e-12)
				So(st.MutationCount, ShouldEqual, 2)
				So(st.LastMutationAt.Equal(t0.Add(time.Hour)), ShouldBeTrue)

				reach, err := s.GetStrength(ctx, "track-1", model.CategoryReach)
				So(err, ShouldBeNil)
				So(reach.TotalDelta, ShouldAlmostEqual, 2.0, 1e-12)
			})

			Convey("Then recomputing again yields identical totals", func() {
				So(s.RecomputeStrength(ctx, "track-1"), ShouldBeNil)
				st, err := s.GetStrength(ctx, "track-1", model.CategoryEngagement)
				So(err, ShouldBeNil)
				So(st.TotalDelta, ShouldAlmostEqual, 1.5, 1e-12)
			})

			Convey("Then other entities are untouched", func() {
				_, err := s.GetStrength(ctx, "track-2", model.CategoryEngagement)
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestMutationBreakdown(t *testing.T) {
	Convey("Given mutations spread over time", t, func() {
		s := openStore(t)
		ctx := context.Background()
		now := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)

		_, err := s.InsertMutations(ctx, []model.DomainMutation{
			mutationRow("ev-1", "track-1", model.CategoryEngagement, 1.0, now.AddDate(0, 0, -3)),
			mutationRow("ev-2", "track-1", model.CategoryEngagement, 1.0, now.AddDate(0, 0, -20)),
			mutationRow("ev-3", "track-1", model.CategoryReach, 2.0, now.AddDate(0, 0, -3)),
		})
		So(err, ShouldBeNil)

		Convey("When restricted to a trailing 7-day window", func() {
			rows, err := s.MutationBreakdown(ctx, "track-1", "", 7, now)
			So(err, ShouldBeNil)

			Convey("Then only recent mutations count", func() {
				So(rows, ShouldHaveLength, 2)
				for _, r := range rows {
					So(r.Count, ShouldEqual, 1)
				}
			})
		})

		Convey("When unrestricted", func() {
			rows, err := s.MutationBreakdown(ctx, "track-1", model.CategoryEngagement, 0, now)
			So(err, ShouldBeNil)
			So(rows, ShouldHaveLength, 1)
			So(rows[0].Count, ShouldEqual, 2)
			So(rows[0].TotalDelta, ShouldAlmostEqual, 2.0, 1e-12)
		})
	})
}

func TestLeaderboardRebuild(t *testing.T) {
	Convey("Given a mutation ledger with ties", t, func() {
		s := openStore(t)
		ctx := context.Background()
		now := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)

		_, err := s.InsertMutations(ctx, []model.DomainMutation{
			mutationRow("ev-1", "bravo", model.CategoryEngagement, 5.0, now.AddDate(0, 0, -1)),
			mutationRow("ev-2", "alpha", model.CategoryEngagement, 5.0, now.AddDate(0, 0, -1)),
			mutationRow("ev-3", "charlie", model.CategoryEngagement, 7.0, now.AddDate(0, 0, -40)),
		})
		So(err, ShouldBeNil)

		Convey("When rebuilding the all-time view", func() {
			So(s.RebuildLeaderboard(ctx, model.CategoryEngagement, "all", time.Time{}, now), ShouldBeNil)
			entries, err := s.Leaderboard(ctx, model.CategoryEngagement, "all", 10)
			So(err, ShouldBeNil)

			Convey("Then ties break by entity id ascending", func() {
				So(entries, ShouldHaveLength, 3)
				So(entries[0].EntityID, ShouldEqual, "charlie")
				So(entries[1].EntityID, ShouldEqual, "alpha")
				So(entries[2].EntityID, ShouldEqual, "bravo")
				So(entries[1].Rank, ShouldEqual, 2)
			})

			Convey("Then rebuilding twice is byte-identical", func() {
				So(s.RebuildLeaderboard(ctx, model.CategoryEngagement, "all", time.Time{}, now), ShouldBeNil)
				again, err := s.Leaderboard(ctx, model.CategoryEngagement, "all", 10)
				So(err, ShouldBeNil)
				So(again, ShouldResemble, entries)
			})
		})

		Convey("When rebuilding a windowed view", func() {
			cutoff := now.AddDate(0, 0, -7)
			So(s.RebuildLeaderboard(ctx, model.CategoryEngagement, "7d", cutoff, now), ShouldBeNil)
			entries, err := s.Leaderboard(ctx, model.CategoryEngagement, "7d", 10)
			So(err, ShouldBeNil)

			Convey("Then stale mutations fall outside the window", func() {
				So(entries, ShouldHaveLength, 2)
				So(entries[0].EntityID, ShouldEqual, "alpha")
				So(entries[1].EntityID, ShouldEqual, "bravo")
			})
		})
	})
}

func TestRunLease(t *testing.T) {
	Convey("Given the run lease", t, func() {
		s := openStore(t)
		ctx := context.Background()
		now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

		Convey("When one holder claims it", func() {
			So(s.AcquireLease(ctx, "run-a", time.Minute, now), ShouldBeNil)

			Convey("Then a second holder is refused while it lives", func() {
				err := s.AcquireLease(ctx, "run-b", time.Minute, now.Add(time.Second))
				So(errors.Is(err, repository.ErrLeaseHeld), ShouldBeTrue)
			})

			Convey("Then the same holder can renew", func() {
				So(s.AcquireLease(ctx, "run-a", time.Minute, now.Add(30*time.Second)), ShouldBeNil)
			})

			Convey("Then an expired lease can be taken over", func() {
				So(s.AcquireLease(ctx, "run-b", time.Minute, now.Add(2*time.Minute)), ShouldBeNil)
			})

			Convey("Then releasing frees it immediately", func() {
				So(s.ReleaseLease(ctx, "run-a"), ShouldBeNil)
				So(s.AcquireLease(ctx, "run-b", time.Minute, now.Add(time.Second)), ShouldBeNil)
			})
		})
	})
}
