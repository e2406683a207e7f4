package engine

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gigledger/internal/testutil"
)

func newStatus(opts ...StatusOption) *StatusTracker {
	opts = append([]StatusOption{WithStatusLogger(discardLogger())}, opts...)
	return NewStatusTracker(opts...)
}

func TestStatus_StartsIdle(t *testing.T) {
	s := newStatus()
	assert.Equal(t, StateIdle, s.Current().State)
	assert.False(t, s.IsSyncing())
	assert.Equal(t, "Never", s.SinceLastSync())
}

func TestStatus_Lifecycle(t *testing.T) {
	s := newStatus(WithResetDelays(time.Hour, time.Hour))

	s.AddMessage("stale", LevelInfo)
	s.Begin(OpSave, 3)
	assert.True(t, s.IsSyncing())
	assert.Empty(t, s.Messages(), "begin clears the message log")
	assert.Equal(t, "Saving changes to the remote sheet...", s.Current().Message)

	s.Progress(1, "")
	cur := s.Current()
	assert.Equal(t, 1, cur.ItemsSynced)
	assert.Equal(t, 33, cur.Progress)
	assert.Equal(t, "Saving changes to the remote sheet...", cur.Message)

	s.Progress(2, "halfway")
	assert.Equal(t, 67, s.Current().Progress)
	assert.Equal(t, "halfway", s.Current().Message)

	s.Succeed("")
	cur = s.Current()
	assert.Equal(t, StateSuccess, cur.State)
	assert.Equal(t, 100, cur.Progress)
	assert.Equal(t, "Changes saved successfully", cur.Message)
	assert.False(t, s.LastSync().IsZero())
}

func TestStatus_FailKeepsLastSync(t *testing.T) {
	s := newStatus(WithResetDelays(time.Hour, time.Hour))

	s.Begin(OpAutoSave, 1)
	s.Fail("remote unavailable")

	cur := s.Current()
	assert.Equal(t, StateError, cur.State)
	assert.Equal(t, "remote unavailable", cur.Error)
	assert.Equal(t, "Auto-save failed", cur.Message)
	assert.True(t, s.LastSync().IsZero())

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "remote unavailable", msgs[0].Text)
	assert.Equal(t, LevelError, msgs[0].Level)
}

func TestStatus_RetryReturnsToIdleWithWarning(t *testing.T) {
	s := newStatus(WithResetDelays(time.Hour, time.Hour))
	events, unsubscribe := s.Subscribe()
	defer unsubscribe()

	s.Begin(OpAutoSave, 2)
	s.Retry("1 of 2 records could not be committed")

	cur := s.Current()
	assert.Equal(t, StateIdle, cur.State)
	assert.Equal(t, OpAutoSave, cur.Operation)
	assert.Equal(t, "1 of 2 records could not be committed", cur.Message)
	assert.Empty(t, cur.Error)
	assert.True(t, s.LastSync().IsZero())

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, LevelWarning, msgs[0].Level)

	require.Len(t, events, 2)
	assert.Equal(t, StateSyncing, (<-events).State)
	assert.Equal(t, StateIdle, (<-events).State)
}

func TestStatus_ResetsToIdle(t *testing.T) {
	s := newStatus(WithResetDelays(10*time.Millisecond, 10*time.Millisecond))

	s.Begin(OpLoad, 1)
	s.Succeed("")
	assert.Eventually(t, func() bool { return s.Current().State == StateIdle }, time.Second, 5*time.Millisecond)

	s.Begin(OpLoad, 1)
	s.Fail("boom")
	assert.Eventually(t, func() bool { return s.Current().State == StateIdle }, time.Second, 5*time.Millisecond)
}

func TestStatus_ZeroDelayResetsImmediately(t *testing.T) {
	s := newStatus(WithResetDelays(0, 0))

	s.Begin(OpSave, 1)
	s.Succeed("")
	assert.Equal(t, StateIdle, s.Current().State)
	assert.False(t, s.LastSync().IsZero())
}

func TestStatus_StaleResetIsIgnored(t *testing.T) {
	s := newStatus(WithResetDelays(20*time.Millisecond, 20*time.Millisecond))

	s.Begin(OpSave, 1)
	s.Succeed("")
	s.Begin(OpSave, 1)

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, StateSyncing, s.Current().State, "a new sync is not reset by the previous success timer")
}

func TestStatus_MessageLogIsBounded(t *testing.T) {
	s := newStatus()
	for i := 0; i < maxMessages+10; i++ {
		s.AddMessage(fmt.Sprintf("m%d", i), LevelInfo)
	}

	msgs := s.Messages()
	require.Len(t, msgs, maxMessages)
	assert.Equal(t, "m10", msgs[0].Text)
	assert.Equal(t, fmt.Sprintf("m%d", maxMessages+9), msgs[len(msgs)-1].Text)
}

func TestStatus_Subscribe(t *testing.T) {
	s := newStatus(WithResetDelays(time.Hour, time.Hour))
	events, unsubscribe := s.Subscribe()

	s.Begin(OpSave, 1)
	s.Succeed("done")

	ev := <-events
	assert.Equal(t, StateSyncing, ev.State)
	ev = <-events
	assert.Equal(t, StateSuccess, ev.State)
	assert.Equal(t, "done", ev.Message)

	unsubscribe()
	unsubscribe()
	_, open := <-events
	assert.False(t, open, "unsubscribe closes the channel")

	s.Reset()
	assert.Equal(t, StateIdle, s.Current().State)
}

func TestStatus_SlowSubscriberDoesNotBlock(t *testing.T) {
	s := newStatus(WithResetDelays(time.Hour, time.Hour))
	events, unsubscribe := s.Subscribe()
	defer unsubscribe()

	s.Begin(OpSave, 100)
	for i := 1; i <= 100; i++ {
		s.Progress(i, "")
	}

	assert.Len(t, events, subscriberBuffer)
	assert.Equal(t, 100, s.Current().ItemsSynced)
}

func TestStatus_SinceLastSync(t *testing.T) {
	clock := testutil.NewFakeClock(testStart)
	s := newStatus(WithStatusTimeSource(clock), WithResetDelays(time.Hour, time.Hour))

	s.Begin(OpSave, 1)
	s.Succeed("")
	assert.Equal(t, testStart, s.LastSync())
	assert.Equal(t, "Just now", s.SinceLastSync())

	clock.Advance(5 * time.Minute)
	assert.Equal(t, "5m ago", s.SinceLastSync())

	clock.Advance(2 * time.Hour)
	assert.Equal(t, "2h ago", s.SinceLastSync())

	clock.Advance(72 * time.Hour)
	assert.Equal(t, "3d ago", s.SinceLastSync())
}
