package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gigledger/internal/testutil"
)

// fakeCommitter records cycles. When gate is set, Commit blocks until it
// is closed; when panics is set, Commit panics once.
type fakeCommitter struct {
	mu      sync.Mutex
	ops     []SyncOperation
	calls   atomic.Int32
	entered chan struct{}
	gate    chan struct{}
	panics  atomic.Bool
}

func (c *fakeCommitter) Commit(ctx context.Context, op SyncOperation) (CommitReport, error) {
	c.calls.Add(1)
	c.mu.Lock()
	c.ops = append(c.ops, op)
	c.mu.Unlock()

	if c.panics.CompareAndSwap(true, false) {
		panic("remote exploded")
	}
	if c.entered != nil {
		c.entered <- struct{}{}
	}
	if c.gate != nil {
		<-c.gate
	}
	return CommitReport{Pushed: 1}, nil
}

func (c *fakeCommitter) lastOp() SyncOperation {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.ops) == 0 {
		return ""
	}
	return c.ops[len(c.ops)-1]
}

type schedulerFixture struct {
	committer *fakeCommitter
	clock     *testutil.FakeClock
	tickers   *testutil.ManualTickers
	scheduler *PollScheduler
}

func newSchedulerFixture(t *testing.T) *schedulerFixture {
	t.Helper()
	f := &schedulerFixture{
		committer: &fakeCommitter{},
		clock:     testutil.NewFakeClock(testStart),
		tickers:   &testutil.ManualTickers{},
	}
	f.scheduler = NewPollScheduler(f.committer,
		WithSchedulerTime(f.clock),
		WithTickerFactory(func(d time.Duration) Ticker { return f.tickers.New(d) }),
		WithSchedulerLogger(discardLogger()),
	)
	t.Cleanup(func() {
		if f.scheduler.State() == Running {
			f.scheduler.Stop()
		}
	})
	return f
}

func TestScheduler_StartStop(t *testing.T) {
	f := newSchedulerFixture(t)
	ctx := context.Background()

	assert.Equal(t, Stopped, f.scheduler.State())

	f.scheduler.Start(ctx, 30*time.Second)
	assert.Equal(t, Running, f.scheduler.State())
	assert.Equal(t, testStart, f.scheduler.LastPollTime())
	require.Equal(t, 1, f.tickers.Count())
	assert.Equal(t, 30*time.Second, f.tickers.Last().Interval)

	f.scheduler.Start(ctx, time.Second)
	assert.Equal(t, 1, f.tickers.Count(), "starting twice is a no-op")

	f.scheduler.Stop()
	assert.Equal(t, Stopped, f.scheduler.State())
	assert.True(t, f.tickers.Last().Stopped())

	f.scheduler.Stop()
	assert.Equal(t, Stopped, f.scheduler.State(), "stopping twice is a no-op")
}

func TestScheduler_DefaultInterval(t *testing.T) {
	f := newSchedulerFixture(t)
	f.scheduler.Start(context.Background(), 0)
	assert.Equal(t, DefaultPollInterval, f.tickers.Last().Interval)
}

func TestScheduler_TickRunsAutoSave(t *testing.T) {
	f := newSchedulerFixture(t)
	f.scheduler.Start(context.Background(), time.Minute)

	f.clock.Advance(time.Minute)
	require.True(t, f.tickers.Last().Tick(f.clock.Now()))

	assert.Eventually(t, func() bool { return f.committer.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, OpAutoSave, f.committer.lastOp())

	f.scheduler.Stop()
	assert.Equal(t, testStart.Add(time.Minute), f.scheduler.LastPollTime())
}

func TestScheduler_SingleFlight(t *testing.T) {
	f := newSchedulerFixture(t)
	f.committer.entered = make(chan struct{}, 1)
	f.committer.gate = make(chan struct{})
	f.scheduler.Start(context.Background(), time.Minute)

	require.True(t, f.tickers.Last().Tick(f.clock.Now()))
	<-f.committer.entered
	assert.True(t, f.scheduler.InFlight())

	_, ran, err := f.scheduler.TriggerNow(context.Background())
	assert.NoError(t, err)
	assert.False(t, ran, "a trigger during a cycle is dropped")

	close(f.committer.gate)
	f.scheduler.Stop()

	assert.Equal(t, int32(1), f.committer.calls.Load())
	assert.False(t, f.scheduler.InFlight())
}

func TestScheduler_TriggerNow(t *testing.T) {
	f := newSchedulerFixture(t)

	report, ran, err := f.scheduler.TriggerNow(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, 1, report.Pushed)
	assert.Equal(t, OpSave, f.committer.lastOp())
}

func TestScheduler_PanicIsRecovered(t *testing.T) {
	f := newSchedulerFixture(t)
	f.committer.panics.Store(true)

	_, ran, err := f.scheduler.TriggerNow(context.Background())
	assert.True(t, ran)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "remote exploded")
	assert.False(t, f.scheduler.InFlight())

	_, ran, err = f.scheduler.TriggerNow(context.Background())
	assert.True(t, ran)
	assert.NoError(t, err)
}

func TestScheduler_PanicInTickKeepsTimer(t *testing.T) {
	f := newSchedulerFixture(t)
	f.committer.panics.Store(true)
	f.scheduler.Start(context.Background(), time.Minute)

	require.True(t, f.tickers.Last().Tick(f.clock.Now()))
	assert.Eventually(t, func() bool { return f.committer.calls.Load() == 1 && !f.scheduler.InFlight() },
		time.Second, 5*time.Millisecond)

	require.True(t, f.tickers.Last().Tick(f.clock.Now()))
	assert.Eventually(t, func() bool { return f.committer.calls.Load() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, Running, f.scheduler.State())
}

func TestScheduler_VisibleAfterLongHideCatchesUp(t *testing.T) {
	f := newSchedulerFixture(t)
	f.scheduler.Start(context.Background(), time.Minute)

	f.scheduler.SetHidden(true)
	assert.Equal(t, testStart, f.scheduler.LastPollTime())
	assert.Equal(t, Running, f.scheduler.State(), "hiding never stops polling")

	f.clock.Advance(90 * time.Second)
	f.scheduler.SetHidden(false)

	assert.Eventually(t, func() bool { return f.committer.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, OpAutoSave, f.committer.lastOp())
}

func TestScheduler_VisibleSoonAfterHideDoesNothing(t *testing.T) {
	f := newSchedulerFixture(t)
	f.scheduler.Start(context.Background(), time.Minute)

	f.scheduler.SetHidden(true)
	f.clock.Advance(10 * time.Second)
	f.scheduler.SetHidden(false)

	f.scheduler.Stop()
	assert.Zero(t, f.committer.calls.Load())
}

func TestScheduler_StopsWhenContextCancelled(t *testing.T) {
	f := newSchedulerFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	f.scheduler.Start(ctx, time.Minute)

	cancel()
	assert.Eventually(t, func() bool { return f.scheduler.State() == Stopped }, time.Second, 5*time.Millisecond)
	assert.True(t, f.tickers.Last().Stopped())

	f.scheduler.Start(context.Background(), time.Minute)
	assert.Equal(t, Running, f.scheduler.State(), "a stopped scheduler can be restarted")
	assert.Equal(t, 2, f.tickers.Count())
}

func TestScheduler_Exclusive(t *testing.T) {
	f := newSchedulerFixture(t)

	ran := f.scheduler.Exclusive(func() {
		_, ok, err := f.scheduler.TriggerNow(context.Background())
		assert.NoError(t, err)
		assert.False(t, ok, "a commit cannot start while the slot is held")
	})
	assert.True(t, ran)
	assert.Zero(t, f.committer.calls.Load())
}

func TestScheduler_TriggerWhileStoppingIsDropped(t *testing.T) {
	f := newSchedulerFixture(t)
	f.committer.entered = make(chan struct{}, 1)
	f.committer.gate = make(chan struct{})
	f.scheduler.Start(context.Background(), time.Minute)

	require.True(t, f.tickers.Last().Tick(f.clock.Now()))
	<-f.committer.entered

	stopped := make(chan struct{})
	go func() {
		f.scheduler.Stop()
		close(stopped)
	}()
	assert.Eventually(t, func() bool { return f.scheduler.State() == Stopped }, time.Second, 5*time.Millisecond)

	_, ran, err := f.scheduler.TriggerNow(context.Background())
	assert.NoError(t, err)
	assert.False(t, ran, "Stop is draining cycles")

	f.scheduler.Start(context.Background(), time.Minute)
	assert.Equal(t, Stopped, f.scheduler.State(), "cannot restart until Stop returns")
	assert.Equal(t, 1, f.tickers.Count())

	close(f.committer.gate)
	<-stopped
	assert.Equal(t, int32(1), f.committer.calls.Load())

	f.committer.gate = nil
	f.committer.entered = nil
	_, ran, err = f.scheduler.TriggerNow(context.Background())
	require.NoError(t, err)
	assert.True(t, ran, "a stopped scheduler still runs manual cycles")
}

func TestScheduler_ConcurrentTriggersAndStop(t *testing.T) {
	for range 20 {
		f := newSchedulerFixture(t)
		f.scheduler.Start(context.Background(), time.Minute)

		var wg sync.WaitGroup
		for i := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if i%2 == 0 {
					f.scheduler.TriggerNow(context.Background())
					return
				}
				f.scheduler.SetHidden(true)
				f.clock.Advance(2 * time.Minute)
				f.scheduler.SetHidden(false)
			}()
		}
		f.scheduler.Stop()
		wg.Wait()

		assert.Equal(t, Stopped, f.scheduler.State())
		assert.Eventually(t, func() bool { return !f.scheduler.InFlight() }, time.Second, 5*time.Millisecond)
	}
}
