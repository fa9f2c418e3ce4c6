package app_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/okian/botspot/internal/adapters/sink"
	"github.com/okian/botspot/internal/app"
	"github.com/okian/botspot/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// feedPair pushes one action/score pair sharing a correlation key.
func feedPair(ctx context.Context, svc *app.Service, id, user string, at time.Time, latency time.Duration) {
	svc.IngestAction(ctx, model.Event{
		Kind:      model.KindAction,
		EventID:   id,
		User:      user,
		EventTime: at,
	})
	svc.IngestScore(ctx, model.Event{
		Kind:      model.KindScore,
		EventID:   id,
		User:      user,
		Team:      "red",
		Score:     5,
		EventTime: at.Add(latency),
	})
}

func TestServiceEndToEnd(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	Convey("Given a running pipeline over a memory sink", t, func() {
		out := sink.NewMemory()
		svc := app.New(
			app.WithSessionGap(time.Second),
			app.WithWatermarkIdleTimeout(0),
			app.WithAdvanceInterval(time.Hour), // advance manually
			app.WithAggregateTriggers(10, 0),
			app.WithQuantileCount(21),
			app.WithEmitDelay(20*time.Millisecond),
			app.WithSpreadDelay(20*time.Millisecond),
			app.WithSaltCount(4),
			app.WithWorkerCount(2),
			app.WithSink(out),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When many humans and one robot play", func() {
			// Humans take five seconds between play action and score.
			for i := 0; i < 40; i++ {
				id := fmt.Sprintf("evt-%02d", i)
				user := fmt.Sprintf("user-%02d", i)
				feedPair(ctx, svc, id, user, base.Add(time.Duration(i)*10*time.Second), 5*time.Second)
			}
			// The robot scores ten milliseconds after acting. The user sorts
			// last so snapshots from earlier records exist when it classifies.
			feedPair(ctx, svc, "evt-bot", "zz-bot", base, 10*time.Millisecond)

			svc.AdvanceWatermark(base.Add(time.Hour))

			Convey("Then a quantile snapshot has fired", func() {
				snap := svc.Snapshot()
				So(snap.Version, ShouldBeGreaterThan, 0)
				So(snap.Boundaries, ShouldHaveLength, 21)
				So(snap.Count, ShouldBeGreaterThanOrEqualTo, 10)
			})

			Convey("Then only the robot reaches the sink, exactly once", func() {
				time.Sleep(200 * time.Millisecond)
				rows := out.Records()
				So(rows, ShouldHaveLength, 1)
				So(rows[0].User, ShouldEqual, "zz-bot")
			})

			Convey("And a repeat detection within the epoch is suppressed", func() {
				later := base.Add(2 * time.Hour)
				feedPair(ctx, svc, "evt-bot-2", "zz-bot", later, 10*time.Millisecond)
				svc.AdvanceWatermark(later.Add(time.Hour))
				time.Sleep(200 * time.Millisecond)

				So(out.Records(), ShouldHaveLength, 1)
			})

			Convey("And a new epoch allows one more emission", func() {
				time.Sleep(100 * time.Millisecond)
				svc.ResetEpoch()

				later := base.Add(4 * time.Hour)
				feedPair(ctx, svc, "evt-bot-3", "zz-bot", later, 10*time.Millisecond)
				svc.AdvanceWatermark(later.Add(time.Hour))
				time.Sleep(200 * time.Millisecond)

				rows := out.Records()
				So(rows, ShouldHaveLength, 2)
				So(rows[1].User, ShouldEqual, "zz-bot")
			})
		})

		Convey("When an unmatched score session resolves", func() {
			svc.IngestScore(ctx, model.Event{
				Kind:      model.KindScore,
				EventID:   "evt-orphan",
				User:      "loner",
				EventTime: base,
			})
			svc.AdvanceWatermark(base.Add(time.Hour))
			time.Sleep(100 * time.Millisecond)

			Convey("Then nothing reaches the sink", func() {
				So(out.Records(), ShouldBeEmpty)
			})
		})

		Convey("When stats are read", func() {
			stats := svc.Stats()

			Convey("Then the monitoring keys are present", func() {
				So(stats, ShouldContainKey, "openSessions")
				So(stats, ShouldContainKey, "pendingJoins")
				So(stats, ShouldContainKey, "trackedUsers")
				So(stats, ShouldContainKey, "batchBacklog")
				So(stats, ShouldContainKey, "watermark")
			})
		})
	})
}

func TestServiceLifecycle(t *testing.T) {
	ctx := context.Background()

	Convey("Given a pipeline", t, func() {
		svc := app.New(app.WithAdvanceInterval(time.Hour))

		Convey("When started twice", func() {
			So(svc.Start(ctx), ShouldBeNil)

			Convey("Then the second start is a no-op", func() {
				So(svc.Start(ctx), ShouldBeNil)
				svc.Stop()
			})
		})

		Convey("When stopped before starting", func() {
			Convey("Then nothing panics", func() {
				So(svc.Stop, ShouldNotPanic)
			})
		})
	})
}
