package embedding_test

import (
	"testing"
	"time"

	"github.com/okian/affinity/internal/domain/embedding"
	"github.com/okian/affinity/internal/domain/model"
	"github.com/okian/affinity/internal/domain/weights"
	. "github.com/smartystreets/goconvey/convey"
)

const testDims = 4

func newProjector() *embedding.Projector {
	p, err := embedding.New(
		embedding.WithDimensions(testDims),
		embedding.WithHalfLifeDays(90),
		embedding.WithLearningRate(0.1),
	)
	if err != nil {
		panic(err)
	}
	return p
}

func entityProfile(fill float64) *model.EntityProfile {
	e := &model.EntityProfile{EntityID: "track-1", Kind: "track", Dimensions: testDims}
	for d := range e.Vectors {
		e.Vectors[d] = make([]float64, testDims)
		for i := range e.Vectors[d] {
			e.Vectors[d][i] = fill
		}
	}
	return e
}

func playEvent(ts time.Time) *model.InteractionEvent {
	return &model.InteractionEvent{
		ID:         "ev-1",
		UserID:     "user-1",
		Type:       model.EventContentPlayed,
		Payload:    model.Payload{EntityID: "track-1", EntityKind: "track"},
		OccurredAt: ts,
		Source:     model.SourceLive,
	}
}

func unitWeights() weights.EventWeights {
	return weights.EventWeights{Intensity: 1.0, Domains: [4]float64{1, 1, 1, 1}}
}

func TestProjectWorkedExample(t *testing.T) {
	Convey("Given a fresh profile and a play event at t=0", t, func() {
		p := newProjector()
		t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
		profile := p.NewProfile("user-1", t0)
		entity := entityProfile(1.0)

		res, err := p.Project(playEvent(t0), profile, entity, unitWeights(), t0)
		So(err, ShouldBeNil)
		So(res.Skipped, ShouldBeFalse)

		Convey("Then every vector shifts by alpha times the gap to the entity", func() {
			// alpha = 0.1, old = 0, decay = 1.0: new = 0.1 * entity.
			for d := range model.Domains {
				for i := range res.Profile.Vectors[d] {
					So(res.Profile.Vectors[d][i], ShouldAlmostEqual, 0.1, 1e-12)
				}
				So(res.DomainDeltaNorms[d], ShouldBeGreaterThan, 0)
			}
		})

		Convey("Then the generation goes from 1 to 2", func() {
			So(profile.Generation, ShouldEqual, 1)
			So(res.Profile.Generation, ShouldEqual, 2)
		})

		Convey("Then the composite is the blended pure function of the domains", func() {
			// All domains hold 0.1 and the blend sums to 1.
			for i := range res.Profile.Composite {
				So(res.Profile.Composite[i], ShouldAlmostEqual, 0.1, 1e-12)
			}
		})

		Convey("Then the interaction timestamps advance", func() {
			So(res.Profile.LastInteraction.Equal(t0), ShouldBeTrue)
			So(res.Profile.Confidence, ShouldBeGreaterThan, 0)
		})

		Convey("Then the input profile is left untouched", func() {
			for d := range profile.Vectors {
				for i := range profile.Vectors[d] {
					So(profile.Vectors[d][i], ShouldEqual, 0)
				}
			}
		})
	})
}

func TestProjectDeterminism(t *testing.T) {
	Convey("Given identical inputs", t, func() {
		p := newProjector()
		t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
		profile := p.NewProfile("user-1", t0)
		entity := entityProfile(0.7)

		a, errA := p.Project(playEvent(t0), profile, entity, unitWeights(), t0)
		b, errB := p.Project(playEvent(t0), profile, entity, unitWeights(), t0)
		So(errA, ShouldBeNil)
		So(errB, ShouldBeNil)

		Convey("Then the projection is byte-identical", func() {
			for d := range model.Domains {
				So(a.Profile.Vectors[d], ShouldResemble, b.Profile.Vectors[d])
				So(a.DomainDeltaNorms[d], ShouldEqual, b.DomainDeltaNorms[d])
			}
			So(a.Profile.Composite, ShouldResemble, b.Profile.Composite)
		})
	})
}

func TestProjectInterEventDecay(t *testing.T) {
	Convey("Given a profile with prior signal", t, func() {
		p := newProjector()
		t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		profile := p.NewProfile("user-1", t0)
		entity := entityProfile(1.0)

		first, err := p.Project(playEvent(t0), profile, entity, unitWeights(), t0)
		So(err, ShouldBeNil)

		Convey("When the next event lands one half-life later", func() {
			later := t0.Add(90 * 24 * time.Hour)
			ev := playEvent(later)
			res, err := p.Project(ev, first.Profile, entity, unitWeights(), later)
			So(err, ShouldBeNil)

			Convey("Then old signal is halved before the pull", func() {
				// new = 0.9 * 0.1 * 0.5 + 0.1 * 1.0
				for i := range res.Profile.Vectors[0] {
					So(res.Profile.Vectors[0][i], ShouldAlmostEqual, 0.9*0.1*0.5+0.1, 1e-12)
				}
			})
		})
	})
}

func TestProjectBackfillRecency(t *testing.T) {
	Convey("Given a backfilled event", t, func() {
		p, err := embedding.New(
			embedding.WithDimensions(testDims),
			embedding.WithBackfillRecency(0.5),
			embedding.WithLearningRate(0.1),
		)
		So(err, ShouldBeNil)

		t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
		profile := p.NewProfile("user-1", t0)
		entity := entityProfile(1.0)

		ev := playEvent(t0)
		ev.Source = model.SourceBackfill

		res, err := p.Project(ev, profile, entity, unitWeights(), t0)
		So(err, ShouldBeNil)

		Convey("Then alpha is scaled by the backfill recency factor", func() {
			for i := range res.Profile.Vectors[0] {
				So(res.Profile.Vectors[0][i], ShouldAlmostEqual, 0.05, 1e-12)
			}
		})
	})
}

func TestProjectMissingEntity(t *testing.T) {
	Convey("Given an event whose entity has no embedding yet", t, func() {
		p := newProjector()
		t0 := time.Now().UTC()
		profile := p.NewProfile("user-1", t0)

		res, err := p.Project(playEvent(t0), profile, nil, unitWeights(), t0)

		Convey("Then the result is a logged skip, not an error", func() {
			So(err, ShouldBeNil)
			So(res.Skipped, ShouldBeTrue)
			So(res.Reason, ShouldNotBeEmpty)
			So(res.Profile.Generation, ShouldEqual, profile.Generation)
		})
	})
}

func TestProjectDimensionMismatch(t *testing.T) {
	Convey("Given an entity embedded at a different dimensionality", t, func() {
		p := newProjector()
		t0 := time.Now().UTC()
		profile := p.NewProfile("user-1", t0)
		entity := entityProfile(1.0)
		entity.Dimensions = testDims * 2

		_, err := p.Project(playEvent(t0), profile, entity, unitWeights(), t0)
		So(err, ShouldNotBeNil)
	})
}

func TestProjectorValidation(t *testing.T) {
	Convey("Given invalid projector configuration", t, func() {
		cases := []embedding.Option{
			embedding.WithDimensions(0),
			embedding.WithBlend([4]float64{0.5, 0.5, 0.5, 0.5}),
			embedding.WithHalfLifeDays(-1),
			embedding.WithLearningRate(0),
			embedding.WithLearningRate(1.5),
			embedding.WithBackfillRecency(0),
		}
		for _, opt := range cases {
			_, err := embedding.New(opt)
			So(err, ShouldNotBeNil)
		}
	})
}
