package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/okian/botspot/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDeduper(t *testing.T) {
	ctx := context.Background()

	Convey("Given a fresh deduper", t, func() {
		d := dedupe.New()

		Convey("When an id is recorded for the first time", func() {
			seen := d.SeenAndRecord(ctx, "msg-1")

			Convey("Then it is reported as new", func() {
				So(seen, ShouldBeFalse)
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("And a redelivery is reported as seen", func() {
				So(d.SeenAndRecord(ctx, "msg-1"), ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When distinct ids are recorded", func() {
			So(d.SeenAndRecord(ctx, "msg-1"), ShouldBeFalse)
			So(d.SeenAndRecord(ctx, "msg-2"), ShouldBeFalse)

			Convey("Then each is tracked independently", func() {
				So(d.Size(), ShouldEqual, 2)
			})
		})
	})

	Convey("Given a deduper bounded to three ids", t, func() {
		d := dedupe.New(dedupe.WithMaxSize(3))
		for i := 0; i < 3; i++ {
			So(d.SeenAndRecord(ctx, fmt.Sprintf("msg-%d", i)), ShouldBeFalse)
		}

		Convey("When a fourth id arrives", func() {
			So(d.SeenAndRecord(ctx, "msg-3"), ShouldBeFalse)

			Convey("Then the oldest id is evicted first", func() {
				So(d.Size(), ShouldEqual, 3)
				So(d.SeenAndRecord(ctx, "msg-0"), ShouldBeFalse) // forgotten
				So(d.SeenAndRecord(ctx, "msg-2"), ShouldBeTrue)  // still held
				So(d.SeenAndRecord(ctx, "msg-3"), ShouldBeTrue)
			})
		})
	})

	Convey("Given an unbounded deduper", t, func() {
		d := dedupe.New(dedupe.WithMaxSize(0))
		for i := 0; i < 10_000; i++ {
			d.SeenAndRecord(ctx, fmt.Sprintf("msg-%d", i))
		}

		Convey("Then nothing is ever evicted", func() {
			So(d.Size(), ShouldEqual, 10_000)
			So(d.SeenAndRecord(ctx, "msg-0"), ShouldBeTrue)
		})
	})
}

func TestDeduperConcurrency(t *testing.T) {
	Convey("Given many goroutines racing on the same id", t, func() {
		d := dedupe.New()
		ctx := context.Background()

		const workers = 32
		var wg sync.WaitGroup
		var mu sync.Mutex
		newCount := 0
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if !d.SeenAndRecord(ctx, "contested") {
					mu.Lock()
					newCount++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		Convey("Then exactly one goroutine wins the record", func() {
			So(newCount, ShouldEqual, 1)
			So(d.Size(), ShouldEqual, 1)
		})
	})
}
