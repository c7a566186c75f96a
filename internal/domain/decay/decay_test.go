package decay_test

import (
	"testing"
	"time"

	"github.com/okian/affinity/internal/domain/decay"
	. "github.com/smartystreets/goconvey/convey"
)

func TestFactorFixpoints(t *testing.T) {
	Convey("Given a 90-day half-life model", t, func() {
		m, err := decay.New(90)
		So(err, ShouldBeNil)

		t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

		Convey("Then zero elapsed time decays by exactly 1.0", func() {
			So(m.Factor(t0, t0), ShouldEqual, 1.0)
		})

		Convey("Then one half-life decays by exactly 0.5", func() {
			So(m.Factor(t0, t0.Add(90*24*time.Hour)), ShouldAlmostEqual, 0.5, 1e-12)
		})

		Convey("Then two half-lives decay by 0.25", func() {
			So(m.Factor(t0, t0.Add(180*24*time.Hour)), ShouldAlmostEqual, 0.25, 1e-12)
		})

		Convey("Then the factor is strictly decreasing in elapsed time", func() {
			prev := 1.0
			for days := 1; days <= 400; days += 13 {
				f := m.Factor(t0, t0.Add(time.Duration(days)*24*time.Hour))
				So(f, ShouldBeLessThan, prev)
				So(f, ShouldBeGreaterThan, 0)
				prev = f
			}
		})

		Convey("Then negative elapsed time clamps to 1.0", func() {
			So(m.Factor(t0, t0.Add(-time.Hour)), ShouldEqual, 1.0)
		})

		Convey("Then a zero last-timestamp is treated as no history", func() {
			So(m.Factor(time.Time{}, t0), ShouldEqual, 1.0)
		})
	})
}

func TestInvalidHalfLife(t *testing.T) {
	Convey("Given non-positive half-lives", t, func() {
		for _, h := range []float64{0, -1, -90} {
			_, err := decay.New(h)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "half-life")
		}
	})

	Convey("Given the one-shot form", t, func() {
		now := time.Now()
		_, err := decay.Factor(now, now, 0)
		So(err, ShouldNotBeNil)

		f, err := decay.Factor(now, now, 30)
		So(err, ShouldBeNil)
		So(f, ShouldEqual, 1.0)
	})
}
