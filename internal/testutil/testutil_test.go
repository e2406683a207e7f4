package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeClock(t *testing.T) {
	start := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	clock := NewFakeClock(start)

	assert.Equal(t, start, clock.Now())
	assert.Equal(t, start.Add(time.Minute), clock.Advance(time.Minute))
	assert.Equal(t, start.Add(time.Minute), clock.Now())

	clock.Set(start.Add(-time.Hour))
	assert.Equal(t, start.Add(-time.Hour), clock.Now())
}

func TestSequentialIDs(t *testing.T) {
	ids := NewSequentialIDs("trip")
	assert.Equal(t, "trip-0001", ids.Generate())
	assert.Equal(t, "trip-0002", ids.Generate())

	assert.Equal(t, "id-0001", NewSequentialIDs("").Generate())
}

func TestSequentialIDs_ThreadSafe(t *testing.T) {
	ids := NewSequentialIDs("x")
	const n = 200

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]bool)
	)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			id := ids.Generate()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, n, "every id is unique")
}

func TestManualTicker(t *testing.T) {
	var tickers ManualTickers
	tk := tickers.New(time.Minute)
	require.Equal(t, 1, tickers.Count())
	assert.Same(t, tk, tickers.Last())
	assert.Equal(t, time.Minute, tk.Interval)

	at := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	got := make(chan time.Time, 1)
	go func() { got <- <-tk.C() }()

	require.True(t, tk.Tick(at))
	assert.Equal(t, at, <-got)

	tk.Stop()
	assert.True(t, tk.Stopped())
	assert.False(t, tk.Tick(at))
}
