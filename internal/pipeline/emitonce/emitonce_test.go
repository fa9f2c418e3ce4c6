package emitonce_test

import (
	"sync"
	"testing"
	"time"

	"github.com/okian/botspot/internal/domain/model"
	"github.com/okian/botspot/internal/pipeline/emitonce"
	. "github.com/smartystreets/goconvey/convey"
)

// recorder collects emissions from timer goroutines.
type recorder struct {
	mu   sync.Mutex
	recs []model.BadUserRecord
}

func (r *recorder) emit(rec model.BadUserRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, rec)
}

func (r *recorder) records() []model.BadUserRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.BadUserRecord(nil), r.recs...)
}

func TestEmitter(t *testing.T) {
	detected := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	Convey("Given an emitter with a short delay", t, func() {
		rec := &recorder{}
		e := emitonce.New(rec.emit,
			emitonce.WithDelay(10*time.Millisecond),
			emitonce.WithClock(func() time.Time { return detected }),
		)
		defer e.Close()

		Convey("When a user is observed once", func() {
			e.Observe("alice")

			Convey("Then nothing emits before the delay", func() {
				So(rec.records(), ShouldBeEmpty)
			})

			Convey("Then exactly one record emits after the delay", func() {
				time.Sleep(50 * time.Millisecond)
				got := rec.records()
				So(got, ShouldHaveLength, 1)
				So(got[0].User, ShouldEqual, "alice")
				So(got[0].DetectedAt, ShouldEqual, detected)
			})
		})

		Convey("When a user is observed repeatedly", func() {
			for i := 0; i < 20; i++ {
				e.Observe("alice")
			}
			time.Sleep(50 * time.Millisecond)

			Convey("Then only one record emits", func() {
				So(rec.records(), ShouldHaveLength, 1)
			})
		})

		Convey("When a user is observed again after emission", func() {
			e.Observe("alice")
			time.Sleep(50 * time.Millisecond)
			e.Observe("alice")
			time.Sleep(50 * time.Millisecond)

			Convey("Then repeats within the epoch stay suppressed", func() {
				So(rec.records(), ShouldHaveLength, 1)
			})
		})

		Convey("When distinct users are observed", func() {
			e.Observe("alice")
			e.Observe("bob")
			time.Sleep(50 * time.Millisecond)

			Convey("Then each emits once", func() {
				got := rec.records()
				So(got, ShouldHaveLength, 2)
				users := map[string]bool{got[0].User: true, got[1].User: true}
				So(users["alice"], ShouldBeTrue)
				So(users["bob"], ShouldBeTrue)
			})
		})

		Convey("When the epoch resets before the timer fires", func() {
			e.Observe("alice")
			e.ResetEpoch()
			time.Sleep(50 * time.Millisecond)

			Convey("Then the pending emission is cancelled", func() {
				So(rec.records(), ShouldBeEmpty)
				So(e.Size(), ShouldEqual, 0)
			})

			Convey("And the user starts a fresh cycle afterwards", func() {
				e.Observe("alice")
				time.Sleep(50 * time.Millisecond)
				So(rec.records(), ShouldHaveLength, 1)
			})
		})

		Convey("When many goroutines race on one user", func() {
			var wg sync.WaitGroup
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					e.Observe("alice")
				}()
			}
			wg.Wait()
			time.Sleep(50 * time.Millisecond)

			Convey("Then the emission still happens exactly once", func() {
				So(rec.records(), ShouldHaveLength, 1)
				So(e.Size(), ShouldEqual, 1)
			})
		})
	})
}
