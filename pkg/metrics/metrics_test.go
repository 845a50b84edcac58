package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithRegistry(registry))

			Convey("Then it should register all collectors", func() {
				So(manager, ShouldNotBeNil)
				manager.scans.WithLabelValues("accepted").Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)
				So(families[0].GetName(), ShouldStartWith, "gmscan_device_")
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("aln"),
				WithSubsystem("gm"),
				WithLatencyBuckets([]float64{1, 10, 100}),
				WithBatchSizeBuckets([]float64{1, 2}),
				WithRegistry(registry),
			)

			Convey("Then the names should use the namespace and subsystem", func() {
				manager.backlogSize.Set(3)
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(names, ShouldContain, "aln_gm_backlog_size")
			})
		})

		Convey("When registering twice on the same registry", func() {
			registry := prometheus.NewRegistry()
			_ = NewManager(WithRegistry(registry))

			Convey("Then it should panic on duplicate registration", func() {
				So(func() { NewManager(WithRegistry(registry)) }, ShouldPanic)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording scans", func() {
			before := testutil.ToFloat64(globalManager.scans.WithLabelValues("duplicate_token"))
			RecordScan("duplicate_token")
			RecordScan("duplicate_token")

			Convey("Then the counter should increase", func() {
				So(testutil.ToFloat64(globalManager.scans.WithLabelValues("duplicate_token")), ShouldEqual, before+2)
			})
		})

		Convey("When updating backlog gauges", func() {
			UpdateBacklogSize(7)
			UpdateBacklogCapacity(500)

			Convey("Then the gauges should hold the latest values", func() {
				So(testutil.ToFloat64(globalManager.backlogSize), ShouldEqual, 7)
				So(testutil.ToFloat64(globalManager.backlogCap), ShouldEqual, 500)
			})
		})

		Convey("When toggling the connection state", func() {
			SetConnectionUp(true)
			up := testutil.ToFloat64(globalManager.connectionUp)
			SetConnectionUp(false)
			down := testutil.ToFloat64(globalManager.connectionUp)

			Convey("Then the gauge should follow", func() {
				So(up, ShouldEqual, 1)
				So(down, ShouldEqual, 0)
			})
		})

		Convey("When recording delivery metrics", func() {
			So(func() {
				RecordDelivery("live", "confirmed")
				RecordDelivery("replay", "timeout")
				RecordAckLatency(42)
				RecordAckTimeout()
				RecordFlush("completed")
				RecordReplay("failed")
				RecordOrphansMerged(3)
				RecordBulkUpload("acknowledged", 12)
				RecordStorageError("repository")
				RecordErrorByComponent("delivery", "send_failed")
				RecordHTTPRequest("scan", "POST", "201")
				RecordHTTPRequestDuration("scan", "POST", "201", 3)
				UpdateTeamCount(4)
				UpdateSystemMemoryUsage(1024)
				UpdateSystemGoroutineCount(12)
			}, ShouldNotPanic)
		})

		Convey("When reading the registry", func() {
			So(GetRegistry(), ShouldEqual, customRegistry)
		})
	})
}
