package metrics_test

import (
	"testing"

	"github.com/okian/affinity/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestManagerConstruction(t *testing.T) {
	Convey("Given a fresh registry", t, func() {
		reg := prometheus.NewRegistry()

		Convey("When creating a manager against it", func() {
			m := metrics.NewManager(
				metrics.WithPrometheusRegistry(reg),
				metrics.WithNamespace("testns"),
				metrics.WithSubsystem("testsub"),
			)

			Convey("Then the manager is usable and metrics are gatherable", func() {
				So(m, ShouldNotBeNil)
				families, err := reg.Gather()
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)
			})
		})
	})
}

func TestGlobalHelpers(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("Then record helpers do not panic", func() {
			So(func() {
				metrics.RecordEventAppended()
				metrics.RecordEventRejected()
				metrics.RecordBatchRun()
				metrics.RecordEventsClaimed(10)
				metrics.RecordEventsProcessed(9)
				metrics.RecordEventSkipped()
				metrics.RecordEventFailed()
				metrics.RecordBatchRunDuration(12.5)
				metrics.RecordMutationsInserted(4)
				metrics.RecordMutationsDuplicate(1)
				metrics.RecordProfileUpdate()
				metrics.RecordProfileSkip()
				metrics.RecordStrengthRecompute()
				metrics.RecordLeaderboardRefresh()
				metrics.RecordAggregationDuration(3.0)
				metrics.UpdateUnprocessedEvents(5)
				metrics.UpdatePermanentFailures(0)
				metrics.UpdateTrackedProfiles(2)
				metrics.UpdateWorkerCount(8)
				metrics.RecordHTTPRequest("events", "POST", "202")
				metrics.RecordHTTPRequestDuration("events", "POST", "202", 1.0)
				metrics.RecordErrorByComponent("batch", "lease_held")
			}, ShouldNotPanic)
		})

		Convey("Then the registry is exposed", func() {
			So(metrics.GetRegistry(), ShouldNotBeNil)
		})
	})
}
