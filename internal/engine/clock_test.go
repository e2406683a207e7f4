package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/gigledger/internal/testutil"
)

func TestVersionClock_FollowsWallClock(t *testing.T) {
	clock := testutil.NewFakeClock(testStart)
	vc := NewVersionClock(clock)

	assert.Zero(t, vc.Current())
	assert.Equal(t, testStart.UnixMilli(), vc.Next())
	assert.Equal(t, testStart.UnixMilli()+1, vc.Next(), "same millisecond still advances")

	clock.Advance(time.Second)
	assert.Equal(t, testStart.Add(time.Second).UnixMilli(), vc.Next())

	clock.Set(testStart)
	assert.Equal(t, testStart.Add(time.Second).UnixMilli()+1, vc.Next(), "a clock stepping back never reuses a version")
}

func TestVersionClock_ConcurrentNextIsUnique(t *testing.T) {
	vc := NewVersionClock(testutil.NewFakeClock(testStart))
	const goroutines, calls = 50, 50

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[int64]bool)
	)
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < calls; j++ {
				v := vc.Next()
				mu.Lock()
				seen[v] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, goroutines*calls)
	assert.Equal(t, testStart.UnixMilli()+goroutines*calls-1, vc.Current())
}

func TestUUIDv7Generator(t *testing.T) {
	g := UUIDv7Generator{}
	a, b := g.Generate(), g.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}
