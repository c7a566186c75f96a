package aggregate_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/affinity/internal/aggregate"
	"github.com/okian/affinity/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeStore struct {
	mu         sync.Mutex
	recomputed []string
	rebuilt    []string
	cutoffs    map[string]time.Time
	failOn     string
}

func newFakeStore() *fakeStore {
	return &fakeStore{cutoffs: make(map[string]time.Time)}
}

func (f *fakeStore) RecomputeStrength(_ context.Context, entityID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if entityID == f.failOn {
		return errors.New("recompute boom")
	}
	f.recomputed = append(f.recomputed, entityID)
	return nil
}

func (f *fakeStore) RebuildLeaderboard(_ context.Context, category model.Category, window string, cutoff, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := string(category) + "/" + window
	f.rebuilt = append(f.rebuilt, key)
	f.cutoffs[key] = cutoff
	return nil
}

func TestParseWindows(t *testing.T) {
	Convey("Given window names from configuration", t, func() {
		Convey("When the names are well formed", func() {
			ws, err := aggregate.ParseWindows([]string{"7d", "30d", "all"})
			So(err, ShouldBeNil)
			So(ws, ShouldHaveLength, 3)
			So(ws[0], ShouldResemble, aggregate.Window{Name: "7d", Days: 7})
			So(ws[2], ShouldResemble, aggregate.Window{Name: "all"})
		})

		Convey("When a name is malformed", func() {
			for _, bad := range [][]string{{"week"}, {"0d"}, {"-3d"}, {"d"}, {}} {
				_, err := aggregate.ParseWindows(bad)
				So(errors.Is(err, aggregate.ErrInvalidWindow), ShouldBeTrue)
			}
		})
	})
}

func TestWindowCutoff(t *testing.T) {
	Convey("Given a reference time", t, func() {
		now := time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)

		Convey("Then a day window trails behind it", func() {
			w := aggregate.Window{Name: "7d", Days: 7}
			So(w.Cutoff(now).Equal(now.AddDate(0, 0, -7)), ShouldBeTrue)
		})

		Convey("Then all-time has no lower bound", func() {
			w := aggregate.Window{Name: "all"}
			So(w.Cutoff(now).IsZero(), ShouldBeTrue)
		})
	})
}

func TestRecomputeStrengths(t *testing.T) {
	Convey("Given entities touched by a batch", t, func() {
		ctx := context.Background()

		Convey("When every recompute succeeds", func() {
			store := newFakeStore()
			e := aggregate.New(store, nil, aggregate.WithWorkerCount(2))
			err := e.RecomputeStrengths(ctx, []string{"a", "b", "c"})
			So(err, ShouldBeNil)
			So(store.recomputed, ShouldHaveLength, 3)
		})

		Convey("When one entity fails", func() {
			store := newFakeStore()
			store.failOn = "b"
			e := aggregate.New(store, nil, aggregate.WithWorkerCount(1))
			err := e.RecomputeStrengths(ctx, []string{"a", "b", "c"})

			Convey("Then the rest still recompute and the error surfaces", func() {
				So(err, ShouldNotBeNil)
				So(store.recomputed, ShouldResemble, []string{"a", "c"})
			})
		})

		Convey("When there is nothing to do", func() {
			store := newFakeStore()
			e := aggregate.New(store, nil)
			So(e.RecomputeStrengths(ctx, nil), ShouldBeNil)
			So(store.recomputed, ShouldBeEmpty)
		})
	})
}

func TestRefreshLeaderboards(t *testing.T) {
	Convey("Given configured windows", t, func() {
		ctx := context.Background()
		now := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
		windows, err := aggregate.ParseWindows([]string{"7d", "all"})
		So(err, ShouldBeNil)

		store := newFakeStore()
		e := aggregate.New(store, windows)

		Convey("When refreshing two categories", func() {
			cats := []model.Category{model.CategoryEngagement, model.CategoryReach}
			So(e.RefreshLeaderboards(ctx, cats, now), ShouldBeNil)

			Convey("Then every category and window pair is rebuilt", func() {
				So(store.rebuilt, ShouldHaveLength, 4)
				So(store.rebuilt, ShouldContain, "engagement/7d")
				So(store.rebuilt, ShouldContain, "engagement/all")
				So(store.rebuilt, ShouldContain, "reach/7d")
				So(store.rebuilt, ShouldContain, "reach/all")
			})

			Convey("Then windowed cutoffs trail the reference time", func() {
				So(store.cutoffs["engagement/7d"].Equal(now.AddDate(0, 0, -7)), ShouldBeTrue)
				So(store.cutoffs["engagement/all"].IsZero(), ShouldBeTrue)
			})
		})
	})
}
