package dedupe_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/okian/gmscan/internal/adapters/kv"
	dedupe "github.com/okian/gmscan/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

type failingStore struct {
	*kv.Memory
	fail bool
}

func (f *failingStore) Set(ctx context.Context, key string, value []byte) error {
	if f.fail {
		return fmt.Errorf("disk full: %w", kv.ErrPersist)
	}
	return f.Memory.Set(ctx, key, value)
}

func TestGuard(t *testing.T) {
	ctx := context.Background()

	Convey("Given a guard over an empty store", t, func() {
		store := kv.NewMemory()
		g, err := dedupe.NewGuard(ctx, store)
		So(err, ShouldBeNil)
		So(g.Size(), ShouldEqual, 0)

		Convey("When a token is claimed", func() {
			already, err := g.Claim(ctx, "534e2b03")
			So(err, ShouldBeNil)
			So(already, ShouldBeFalse)

			Convey("Then it is claimed and a second claim is rejected", func() {
				So(g.IsClaimed(ctx, "534e2b03"), ShouldBeTrue)
				already, err := g.Claim(ctx, "534e2b03")
				So(err, ShouldBeNil)
				So(already, ShouldBeTrue)
				So(g.Size(), ShouldEqual, 1)
			})

			Convey("Then a new guard over the same store still sees it", func() {
				reloaded, err := dedupe.NewGuard(ctx, store)
				So(err, ShouldBeNil)
				So(reloaded.IsClaimed(ctx, "534e2b03"), ShouldBeTrue)
			})

			Convey("Then releasing frees it", func() {
				So(g.Release(ctx, "534e2b03"), ShouldBeNil)
				So(g.IsClaimed(ctx, "534e2b03"), ShouldBeFalse)
				So(g.Release(ctx, "534e2b03"), ShouldBeNil)
			})
		})

		Convey("When many goroutines claim the same token", func() {
			var wg sync.WaitGroup
			var mu sync.Mutex
			fresh := 0
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					already, err := g.Claim(ctx, "tac001")
					if err == nil && !already {
						mu.Lock()
						fresh++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			Convey("Then exactly one claim wins", func() {
				So(fresh, ShouldEqual, 1)
			})
		})
	})

	Convey("Given corrupt persisted data", t, func() {
		store := kv.NewMemory()
		So(store.Set(ctx, kv.KeyClaimedTokens, []byte("{oops")), ShouldBeNil)

		g, err := dedupe.NewGuard(ctx, store)

		Convey("Then the guard starts empty", func() {
			So(err, ShouldBeNil)
			So(g.Size(), ShouldEqual, 0)
		})
	})

	Convey("Given a store that fails to persist", t, func() {
		store := &failingStore{Memory: kv.NewMemory()}
		g, err := dedupe.NewGuard(ctx, store)
		So(err, ShouldBeNil)
		store.fail = true

		Convey("Then a claim returns the error and rolls back", func() {
			_, err := g.Claim(ctx, "tac001")
			So(errors.Is(err, kv.ErrPersist), ShouldBeTrue)
			So(g.IsClaimed(ctx, "tac001"), ShouldBeFalse)
		})
	})
}
