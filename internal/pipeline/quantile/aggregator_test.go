package quantile_test

import (
	"testing"
	"time"

	"github.com/okian/botspot/internal/pipeline/quantile"
	"github.com/okian/botspot/internal/pipeline/sideinput"
	. "github.com/smartystreets/goconvey/convey"
)

func TestAggregatorCountTrigger(t *testing.T) {
	Convey("Given an aggregator re-firing every 100 values", t, func() {
		cell := sideinput.NewCell()
		agg := quantile.NewAggregator(cell,
			quantile.WithFanout(4),
			quantile.WithQuantileCount(21),
			quantile.WithCountTrigger(100),
			quantile.WithDelayTrigger(0),
		)
		defer agg.Stop()

		Convey("When fewer values than the trigger arrive", func() {
			for i := 0; i < 99; i++ {
				agg.Observe(int64(i))
			}

			Convey("Then no snapshot is published", func() {
				So(cell.Get().Version, ShouldEqual, 0)
			})
		})

		Convey("When the trigger count is reached", func() {
			for i := 0; i < 100; i++ {
				agg.Observe(int64(i))
			}

			Convey("Then a snapshot with all values is published", func() {
				snap := cell.Get()
				So(snap.Version, ShouldEqual, 1)
				So(snap.Count, ShouldEqual, 100)
				So(snap.Boundaries, ShouldHaveLength, 21)
			})
		})

		Convey("When the trigger fires a second time", func() {
			for i := 0; i < 200; i++ {
				agg.Observe(int64(i))
			}

			Convey("Then the snapshot accumulates across firings", func() {
				snap := cell.Get()
				So(snap.Version, ShouldEqual, 2)
				So(snap.Count, ShouldEqual, 200)
			})
		})
	})
}

func TestAggregatorDelayTrigger(t *testing.T) {
	Convey("Given an aggregator with only a short delay trigger", t, func() {
		cell := sideinput.NewCell()
		agg := quantile.NewAggregator(cell,
			quantile.WithFanout(2),
			quantile.WithCountTrigger(0),
			quantile.WithDelayTrigger(20*time.Millisecond),
		)
		defer agg.Stop()

		Convey("When a value arrives and the delay elapses", func() {
			agg.Observe(42)

			So(cell.Get().Version, ShouldEqual, 0)
			time.Sleep(100 * time.Millisecond)

			Convey("Then the timer firing publishes a snapshot", func() {
				snap := cell.Get()
				So(snap.Version, ShouldEqual, 1)
				So(snap.Count, ShouldEqual, 1)
			})

			Convey("And a later value re-arms the pane timer", func() {
				agg.Observe(7)
				time.Sleep(100 * time.Millisecond)
				So(cell.Get().Version, ShouldEqual, 2)
				So(cell.Get().Count, ShouldEqual, 2)
			})
		})
	})
}

func TestAggregatorFanoutInvariance(t *testing.T) {
	Convey("Given two aggregators differing only in fan-out", t, func() {
		feed := func(fanout int) []int64 {
			cell := sideinput.NewCell()
			agg := quantile.NewAggregator(cell,
				quantile.WithFanout(fanout),
				quantile.WithCountTrigger(1000),
				quantile.WithDelayTrigger(0),
			)
			defer agg.Stop()
			for i := 0; i < 1000; i++ {
				agg.Observe(int64(i * 10))
			}
			return cell.Get().Boundaries
		}

		Convey("Then their boundary estimates agree within the error bound", func() {
			one := feed(1)
			sixteen := feed(16)
			So(one, ShouldHaveLength, 21)
			So(sixteen, ShouldHaveLength, 21)
			for j := range one {
				diff := one[j] - sixteen[j]
				if diff < 0 {
					diff = -diff
				}
				So(diff, ShouldBeLessThan, 500)
			}
		})
	})
}

func TestAggregatorFireEmpty(t *testing.T) {
	Convey("Given an aggregator that has seen nothing", t, func() {
		cell := sideinput.NewCell()
		agg := quantile.NewAggregator(cell)
		defer agg.Stop()

		Convey("When a firing is forced", func() {
			agg.Fire()

			Convey("Then no empty snapshot is published", func() {
				So(cell.Get().Version, ShouldEqual, 0)
			})
		})
	})
}
