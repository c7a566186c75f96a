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

func TestUserProfileRoundTrip(t *testing.T) {
	Convey("Given a user profile with distinct domain vectors", t, func() {
		s := openStore(t)
		ctx := context.Background()
		now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

		p := &model.UserProfile{
			UserID:          "u1",
			Dimensions:      3,
			Generation:      4,
			HalfLifeDays:    90,
			LearningRate:    0.1,
			Confidence:      0.42,
			LastInteraction: now.Add(-time.Hour),
			UpdatedAt:       now,
		}
		p.Vectors[0] = []float64{0.1, 0.2, 0.3}
		p.Vectors[1] = []float64{-1, 0, 1}
		p.Vectors[2] = []float64{0, 0, 0}
		p.Vectors[3] = []float64{5.5, 6.5, 7.5}
		p.Composite = []float64{1, 2, 3}

		Convey("When stored and read back", func() {
			So(s.PutUserProfile(ctx, p), ShouldBeNil)
			got, err := s.GetUserProfile(ctx, "u1")
			So(err, ShouldBeNil)

			Convey("Then every field survives unchanged", func() {
				So(got.Generation, ShouldEqual, 4)
				So(got.Confidence, ShouldEqual, 0.42)
				So(got.HalfLifeDays, ShouldEqual, 90)
				for d := range got.Vectors {
					So(got.Vectors[d], ShouldResemble, p.Vectors[d])
				}
				So(got.Composite, ShouldResemble, p.Composite)
				So(got.LastInteraction.Equal(p.LastInteraction), ShouldBeTrue)
			})
		})

		Convey("When upserting a newer generation", func() {
			So(s.PutUserProfile(ctx, p), ShouldBeNil)
			p.Generation = 5
			p.Vectors[0] = []float64{9, 9, 9}
			So(s.PutUserProfile(ctx, p), ShouldBeNil)

			got, err := s.GetUserProfile(ctx, "u1")
			So(err, ShouldBeNil)
			So(got.Generation, ShouldEqual, 5)
			So(got.Vectors[0], ShouldResemble, []float64{9, 9, 9})

			n, err := s.CountUserProfiles(ctx)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)
		})

		Convey("When the user is unknown", func() {
			_, err := s.GetUserProfile(ctx, "ghost")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestEntityProfileRoundTrip(t *testing.T) {
	Convey("Given an entity profile", t, func() {
		s := openStore(t)
		ctx := context.Background()
		now := time.Now().UTC().Truncate(time.Millisecond)

		p := &model.EntityProfile{
			EntityID:   "track-1",
			Kind:       "track",
			Dimensions: 2,
			UpdatedAt:  now,
		}
		for d := range p.Vectors {
			p.Vectors[d] = []float64{float64(d), float64(d) + 0.5}
		}

		Convey("When stored and read back", func() {
			So(s.PutEntityProfile(ctx, p), ShouldBeNil)
			got, err := s.GetEntityProfile(ctx, "track-1")
			So(err, ShouldBeNil)
			So(got.Kind, ShouldEqual, "track")
			for d := range got.Vectors {
				So(got.Vectors[d], ShouldResemble, p.Vectors[d])
			}
		})

		Convey("When the entity is unknown", func() {
			_, err := s.GetEntityProfile(ctx, "ghost")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})
	})
}
