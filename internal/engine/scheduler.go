package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultPollInterval is used when Start is given a non-positive interval.
const DefaultPollInterval = time.Minute

// Ticker delivers ticks on C until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates a ticker firing every d.
type TickerFactory func(d time.Duration) Ticker

// NewSystemTicker wraps time.NewTicker.
func NewSystemTicker(d time.Duration) Ticker {
	return systemTicker{time.NewTicker(d)}
}

type systemTicker struct{ t *time.Ticker }

func (s systemTicker) C() <-chan time.Time { return s.t.C }
func (s systemTicker) Stop()               { s.t.Stop() }

// SchedulerState is Stopped or Running.
type SchedulerState string

const (
	Stopped SchedulerState = "stopped"
	Running SchedulerState = "running"
)

// PollScheduler drives periodic commit cycles.
//
// At most one cycle runs at a time. A tick (or TriggerNow) arriving while a
// cycle is in flight is dropped, not queued. A panic inside a cycle is
// recovered and logged and never stops the timer.
//
// Thread-safety: PollScheduler is safe for concurrent use.
type PollScheduler struct {
	committer Committer
	time      TimeSource
	newTicker TickerFactory
	logger    *slog.Logger

	inFlight atomic.Bool
	cycles   sync.WaitGroup

	mu       sync.Mutex
	state    SchedulerState
	interval time.Duration
	ticker   Ticker
	done     chan struct{}
	loop     sync.WaitGroup
	ctx      context.Context
	hidden   bool
	lastPoll time.Time
	// stopping is set while Stop waits on cycles; no cycle may be added then.
	stopping bool
}

// SchedulerOption configures a PollScheduler.
type SchedulerOption func(*PollScheduler)

// WithSchedulerTime sets the clock used for poll timestamps.
func WithSchedulerTime(ts TimeSource) SchedulerOption {
	return func(s *PollScheduler) { s.time = ts }
}

// WithTickerFactory sets how tickers are created (default NewSystemTicker).
func WithTickerFactory(f TickerFactory) SchedulerOption {
	return func(s *PollScheduler) { s.newTicker = f }
}

// WithSchedulerLogger sets the logger (default slog.Default()).
func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(s *PollScheduler) { s.logger = l }
}

// NewPollScheduler creates a stopped scheduler.
func NewPollScheduler(c Committer, opts ...SchedulerOption) *PollScheduler {
	s := &PollScheduler{
		committer: c,
		time:      SystemTime{},
		newTicker: NewSystemTicker,
		logger:    slog.Default(),
		state:     Stopped,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins polling every interval. Starting a running scheduler logs a
// warning and does nothing. Ticks stop when ctx is cancelled or Stop is
// called.
func (s *PollScheduler) Start(ctx context.Context, interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Running {
		s.logger.Warn("poll scheduler already running")
		return
	}
	if s.stopping {
		s.logger.Warn("poll scheduler still stopping")
		return
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	s.state = Running
	s.interval = interval
	s.lastPoll = s.time.Now()
	s.ctx = ctx
	s.ticker = s.newTicker(interval)
	s.done = make(chan struct{})

	s.loop.Add(1)
	go s.run(ctx, s.ticker, s.done)

	s.logger.Info("poll scheduler started", "interval", interval)
}

// Stop cancels the timer and waits for an in-flight cycle to finish.
// Stopping a stopped scheduler logs a warning and does nothing.
func (s *PollScheduler) Stop() {
	s.mu.Lock()
	if s.state == Stopped {
		s.mu.Unlock()
		s.logger.Warn("poll scheduler already stopped")
		return
	}
	s.halt()
	s.stopping = true
	s.mu.Unlock()

	s.loop.Wait()
	s.cycles.Wait()

	s.mu.Lock()
	s.stopping = false
	s.mu.Unlock()
	s.logger.Info("poll scheduler stopped")
}

// halt stops the ticker and loop. Caller holds mu.
func (s *PollScheduler) halt() {
	s.ticker.Stop()
	close(s.done)
	s.state = Stopped
}

// State returns Running or Stopped.
func (s *PollScheduler) State() SchedulerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// InFlight reports whether a cycle is running.
func (s *PollScheduler) InFlight() bool {
	return s.inFlight.Load()
}

// LastPollTime returns when polling last started, ticked, or the view was
// hidden.
func (s *PollScheduler) LastPollTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPoll
}

// SetHidden records a visibility change of the host view. Hiding records
// the time but keeps the timer running, since sync must continue in the
// background. On becoming visible, a catch-up cycle runs if at least one
// interval has passed since the last poll.
func (s *PollScheduler) SetHidden(hidden bool) {
	s.mu.Lock()
	now := s.time.Now()
	wasHidden := s.hidden
	s.hidden = hidden

	if hidden {
		s.lastPoll = now
		s.mu.Unlock()
		s.logger.Debug("view hidden, polling continues")
		return
	}

	drift := now.Sub(s.lastPoll)
	catchUp := wasHidden && s.state == Running && drift >= s.interval
	if catchUp {
		s.cycles.Add(1)
	}
	ctx := s.ctx
	s.mu.Unlock()

	s.logger.Debug("view visible", "since_last_poll", drift)
	if catchUp {
		go func() {
			defer s.cycles.Done()
			s.cycle(ctx, OpAutoSave)
		}()
	}
}

// TriggerNow runs a cycle immediately unless one is in flight or Stop is
// draining cycles, in which case ran is false. It works on a stopped
// scheduler too.
func (s *PollScheduler) TriggerNow(ctx context.Context) (report CommitReport, ran bool, err error) {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		s.logger.Debug("poll scheduler stopping, trigger dropped")
		return CommitReport{}, false, nil
	}
	s.cycles.Add(1)
	s.mu.Unlock()

	defer s.cycles.Done()
	return s.cycle(ctx, OpSave)
}

func (s *PollScheduler) run(ctx context.Context, t Ticker, done <-chan struct{}) {
	defer s.loop.Done()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			s.mu.Lock()
			if s.state == Running && s.done == done {
				s.halt()
			}
			s.mu.Unlock()
			return
		case <-t.C():
			s.cycles.Add(1)
			go func() {
				defer s.cycles.Done()
				s.cycle(ctx, OpAutoSave)
			}()
		}
	}
}

// cycle runs one commit cycle under the single-flight flag.
func (s *PollScheduler) cycle(ctx context.Context, op SyncOperation) (report CommitReport, ran bool, err error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.logger.Debug("commit cycle in flight, trigger dropped", "operation", op)
		return CommitReport{}, false, nil
	}
	defer s.inFlight.Store(false)

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("commit cycle panicked: %v", p)
			s.logger.Error("commit cycle panicked", "operation", op, "panic", p)
		}
	}()

	s.mu.Lock()
	s.lastPoll = s.time.Now()
	s.mu.Unlock()

	report, err = s.committer.Commit(ctx, op)
	if err != nil {
		s.logger.Error("commit cycle failed", "operation", op, "error", err)
	}
	return report, true, err
}

// Exclusive runs fn under the single-flight flag shared with commit
// cycles. It returns false without running fn when a cycle is in flight.
func (s *PollScheduler) Exclusive(fn func()) bool {
	if !s.inFlight.CompareAndSwap(false, true) {
		return false
	}
	defer s.inFlight.Store(false)
	fn()
	return true
}
