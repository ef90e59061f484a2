package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetrics(t *testing.T) {
	Convey("Given a fresh set of metrics", t, func() {
		m := newMetrics()
		m.register(prometheus.NewRegistry())

		Convey("When crates are pushed", func() {
			m.RecordPush("local", 100, nil)
			m.RecordPush("local", 50, nil)
			m.RecordPush("s3", 10, errors.New("boom"))

			Convey("It should count results and bytes per store", func() {
				So(testutil.ToFloat64(m.cratesPushed.WithLabelValues("local", "success")), ShouldEqual, 2.0)
				So(testutil.ToFloat64(m.cratesPushed.WithLabelValues("s3", "failure")), ShouldEqual, 1.0)
				So(testutil.ToFloat64(m.crateBytesPushed.WithLabelValues("local")), ShouldEqual, 150.0)
				So(testutil.ToFloat64(m.crateBytesPushed.WithLabelValues("s3")), ShouldEqual, 0.0)
			})
		})

		Convey("When operations start and complete", func() {
			m.OperationStarted("backup")
			m.OperationStarted("backup")
			m.OperationCompleted("backup", time.Second, nil)

			Convey("It should track active operations and results", func() {
				So(testutil.ToFloat64(m.activeOperations.WithLabelValues("backup")), ShouldEqual, 1.0)
				So(testutil.ToFloat64(m.operations.WithLabelValues("backup", "success")), ShouldEqual, 1.0)
			})
		})

		Convey("When server reachability changes", func() {
			m.ServerReachable("catalog", true)
			So(testutil.ToFloat64(m.serverReachable.WithLabelValues("catalog")), ShouldEqual, 1.0)

			m.ServerReachable("catalog", false)
			So(testutil.ToFloat64(m.serverReachable.WithLabelValues("catalog")), ShouldEqual, 0.0)
		})

		Convey("When reservations and cleanups are recorded", func() {
			m.RecordReservation(true)
			m.RecordReservation(false)
			m.StagingFilesRemoved(3)

			So(testutil.ToFloat64(m.reservations.WithLabelValues("accepted")), ShouldEqual, 1.0)
			So(testutil.ToFloat64(m.reservations.WithLabelValues("rejected")), ShouldEqual, 1.0)
			So(testutil.ToFloat64(m.stagingRemoved), ShouldEqual, 3.0)
		})
	})
}
