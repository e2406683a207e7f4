package testutil

import (
	"sync"
	"sync/atomic"
	"time"
)

// ManualTicker is a ticker that fires only when Tick is called.
type ManualTicker struct {
	Interval time.Duration

	ch      chan time.Time
	stopped atomic.Bool
}

// NewManualTicker creates a ticker for interval d.
func NewManualTicker(d time.Duration) *ManualTicker {
	return &ManualTicker{Interval: d, ch: make(chan time.Time)}
}

// C returns the tick channel.
func (t *ManualTicker) C() <-chan time.Time { return t.ch }

// Stop stops the ticker. Later ticks are not delivered.
func (t *ManualTicker) Stop() { t.stopped.Store(true) }

// Stopped reports whether Stop was called.
func (t *ManualTicker) Stopped() bool { return t.stopped.Load() }

// Tick delivers at to the reader of C. It returns false if the ticker is
// stopped or nobody received the tick within a second.
func (t *ManualTicker) Tick(at time.Time) bool {
	if t.stopped.Load() {
		return false
	}
	select {
	case t.ch <- at:
		return true
	case <-time.After(time.Second):
		return false
	}
}

// ManualTickers records every ManualTicker it creates.
//
// Thread-safety: ManualTickers is safe for concurrent use.
type ManualTickers struct {
	mu      sync.Mutex
	tickers []*ManualTicker
}

// New creates and records a ticker. Its signature matches the scheduler's
// ticker factory once wrapped.
func (m *ManualTickers) New(d time.Duration) *ManualTicker {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := NewManualTicker(d)
	m.tickers = append(m.tickers, t)
	return t
}

// Last returns the most recently created ticker, or nil.
func (m *ManualTickers) Last() *ManualTicker {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.tickers) == 0 {
		return nil
	}
	return m.tickers[len(m.tickers)-1]
}

// Count returns how many tickers were created.
func (m *ManualTickers) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tickers)
}
