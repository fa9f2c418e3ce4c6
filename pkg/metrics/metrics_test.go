package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsOptions(t *testing.T) {
	Convey("Given metrics options", t, func() {
		Convey("When creating options", func() {
			namespaceOpt := WithNamespace("test-namespace")
			subsystemOpt := WithSubsystem("test-subsystem")
			histogramBucketsOpt := WithHistogramBuckets([]float64{0.1, 0.5, 1.0})
			registryOpt := WithPrometheusRegistry(prometheus.NewRegistry())

			Convey("Then they should be valid functions", func() {
				So(namespaceOpt, ShouldNotBeNil)
				So(subsystemOpt, ShouldNotBeNil)
				So(histogramBucketsOpt, ShouldNotBeNil)
				So(registryOpt, ShouldNotBeNil)
			})
		})
	})
}

func TestManagerCreation(t *testing.T) {
	Convey("Given manager creation", t, func() {
		Convey("When creating with default options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test-namespace"),
				WithSubsystem("test-subsystem"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
			})
		})
	})
}

func TestPackageHelpers(t *testing.T) {
	Convey("Given the package-level helpers", t, func() {
		Convey("When pipeline counters are recorded", func() {
			recorders := []func(){
				func() { RecordEventIngested("score") },
				func() { RecordParseError("action") },
				RecordEventDuplicate,
				func() { RecordSessionClosed("score") },
				func() { RecordLateEventDropped("action") },
				RecordDroppedNoScore,
				RecordDroppedTooManyScore,
				RecordDroppedNoAction,
				RecordLatencyRecord,
				func() { RecordSnapshotPublished(1, 100) },
				RecordUnknownClassification,
				RecordAnomalyDetected,
				RecordBadUserEmitted,
				RecordEmissionSuppressed,
				RecordSinkError,
				func() { RecordSaltedBatch("salt-00") },
				func() { RecordWorkerProcessingLatency(12.5) },
				RecordWorkerError,
			}

			Convey("Then none of them panic", func() {
				for _, record := range recorders {
					So(record, ShouldNotPanic)
				}
			})
		})

		Convey("When gauges are updated", func() {
			updaters := []func(){
				func() { UpdateOpenSessions(5) },
				func() { UpdateQueueSize(10) },
				func() { UpdateQueueCapacity(100) },
				func() { UpdateQueueUtilization(0.1) },
				func() { UpdateWorkerActiveCount(4) },
				func() { UpdateSystemMemoryUsage(1 << 20) },
				func() { UpdateSystemGoroutineCount(42) },
			}

			Convey("Then none of them panic", func() {
				for _, update := range updaters {
					So(update, ShouldNotPanic)
				}
			})
		})

		Convey("When the registry is fetched", func() {
			registry := GetRegistry()

			Convey("Then the default metrics are gatherable", func() {
				So(registry, ShouldNotBeNil)
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)
			})
		})
	})
}
