package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// SyncState is the state shown by status indicators.
type SyncState string

const (
	StateIdle    SyncState = "idle"
	StateSyncing SyncState = "syncing"
	StateSuccess SyncState = "success"
	StateError   SyncState = "error"
)

// SyncOperation names what a sync is doing.
type SyncOperation string

const (
	OpSave     SyncOperation = "save"
	OpLoad     SyncOperation = "load"
	OpAutoSave SyncOperation = "auto-save"
)

// Default delays before success and error states fall back to idle.
const (
	DefaultSuccessReset = 3 * time.Second
	DefaultErrorReset   = 5 * time.Second
)

// maxMessages bounds the message log.
const maxMessages = 50

// subscriberBuffer is the channel capacity of each subscriber. Events are
// dropped for a subscriber whose buffer is full.
const subscriberBuffer = 16

// StatusEvent is one transition of the sync status.
type StatusEvent struct {
	State       SyncState     `json:"state"`
	Operation   SyncOperation `json:"operation,omitempty"`
	Message     string        `json:"message"`
	Error       string        `json:"error,omitempty"`
	Progress    int           `json:"progress"`
	ItemsSynced int           `json:"items_synced"`
	TotalItems  int           `json:"total_items"`
	Timestamp   time.Time     `json:"timestamp"`
}

// MessageLevel classifies a log message.
type MessageLevel string

const (
	LevelInfo    MessageLevel = "info"
	LevelWarning MessageLevel = "warning"
	LevelError   MessageLevel = "error"
)

// StatusMessage is an entry of the message log.
type StatusMessage struct {
	Text      string       `json:"text"`
	Level     MessageLevel `json:"level"`
	Timestamp time.Time    `json:"timestamp"`
}

// StatusTracker holds the sync status state machine
// (idle → syncing → success|error → idle) and fans transitions out to
// subscribers.
//
// Thread-safety: StatusTracker is safe for concurrent use.
type StatusTracker struct {
	mu       sync.Mutex
	current  StatusEvent
	lastSync time.Time
	messages []StatusMessage
	subs     map[int]chan StatusEvent
	nextSub  int
	gen      uint64

	successReset time.Duration
	errorReset   time.Duration
	time         TimeSource
	logger       *slog.Logger
}

// StatusOption configures a StatusTracker.
type StatusOption func(*StatusTracker)

// WithResetDelays sets how long success and error states are held before
// returning to idle. A delay <= 0 returns to idle immediately.
func WithResetDelays(success, failure time.Duration) StatusOption {
	return func(s *StatusTracker) {
		s.successReset = success
		s.errorReset = failure
	}
}

// WithStatusTimeSource sets the clock used for timestamps.
func WithStatusTimeSource(ts TimeSource) StatusOption {
	return func(s *StatusTracker) { s.time = ts }
}

// WithStatusLogger sets the logger (default slog.Default()).
func WithStatusLogger(l *slog.Logger) StatusOption {
	return func(s *StatusTracker) { s.logger = l }
}

// NewStatusTracker creates a tracker in the idle state.
func NewStatusTracker(opts ...StatusOption) *StatusTracker {
	s := &StatusTracker{
		subs:         make(map[int]chan StatusEvent),
		successReset: DefaultSuccessReset,
		errorReset:   DefaultErrorReset,
		time:         SystemTime{},
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.current = StatusEvent{State: StateIdle, Timestamp: s.time.Now()}
	return s
}

// Begin enters the syncing state and clears the message log.
func (s *StatusTracker) Begin(op SyncOperation, totalItems int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = nil
	s.publish(StatusEvent{
		State:      StateSyncing,
		Operation:  op,
		Message:    operationMessage(op, StateSyncing),
		TotalItems: totalItems,
	})
}

// Progress records itemsSynced items done. An empty message keeps the
// current one.
func (s *StatusTracker) Progress(itemsSynced int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev := s.current
	ev.ItemsSynced = itemsSynced
	if ev.TotalItems > 0 {
		ev.Progress = (itemsSynced*100 + ev.TotalItems/2) / ev.TotalItems
	}
	if message != "" {
		ev.Message = message
	}
	s.publish(ev)
}

// Succeed enters the success state and records the last sync time.
func (s *StatusTracker) Succeed(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev := s.current
	ev.State = StateSuccess
	ev.Progress = 100
	ev.Error = ""
	ev.Message = message
	if ev.Message == "" {
		ev.Message = operationMessage(ev.Operation, StateSuccess)
	}
	s.publish(ev)
	s.lastSync = s.current.Timestamp
	s.scheduleReset(StateSuccess, s.successReset)
}

// Fail enters the error state. Local data is untouched; the error is also
// appended to the message log.
func (s *StatusTracker) Fail(errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev := s.current
	ev.State = StateError
	ev.Error = errMsg
	ev.Message = operationMessage(ev.Operation, StateError)
	s.addMessage(errMsg, LevelError)
	s.publish(ev)
	s.scheduleReset(StateError, s.errorReset)
}

// Retry ends a cycle that left work for the next one without reporting an
// error: message is logged as a warning and the status returns to idle.
// The last sync time is not updated.
func (s *StatusTracker) Retry(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.addMessage(message, LevelWarning)
	s.publish(StatusEvent{
		State:     StateIdle,
		Operation: s.current.Operation,
		Message:   message,
	})
}

// AddMessage appends to the message log, keeping the last 50 entries.
func (s *StatusTracker) AddMessage(text string, level MessageLevel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addMessage(text, level)
}

// Reset returns to idle.
func (s *StatusTracker) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publish(StatusEvent{State: StateIdle})
}

// Current returns the latest status.
func (s *StatusTracker) Current() StatusEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// IsSyncing reports whether a sync is in progress.
func (s *StatusTracker) IsSyncing() bool {
	return s.Current().State == StateSyncing
}

// LastSync returns the time of the last successful sync, or the zero time.
func (s *StatusTracker) LastSync() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSync
}

// SinceLastSync renders the time since the last successful sync
// ("Never", "Just now", "5m ago", "2h ago", "3d ago").
func (s *StatusTracker) SinceLastSync() string {
	last := s.LastSync()
	if last.IsZero() {
		return "Never"
	}

	d := s.time.Now().Sub(last)
	switch {
	case d >= 24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d/(24*time.Hour)))
	case d >= time.Hour:
		return fmt.Sprintf("%dh ago", int(d/time.Hour))
	case d >= time.Minute:
		return fmt.Sprintf("%dm ago", int(d/time.Minute))
	default:
		return "Just now"
	}
}

// Messages returns a copy of the message log, oldest first.
func (s *StatusTracker) Messages() []StatusMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]StatusMessage{}, s.messages...)
}

// Subscribe returns a channel receiving every later transition, and a
// function that unsubscribes and closes the channel.
func (s *StatusTracker) Subscribe() (<-chan StatusEvent, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan StatusEvent, subscriberBuffer)
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
}

// publish sets the current status and notifies subscribers. Caller holds mu.
func (s *StatusTracker) publish(ev StatusEvent) {
	ev.Timestamp = s.time.Now()
	s.current = ev
	s.gen++

	for id, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			s.logger.Warn("status subscriber is slow, event dropped", "subscriber", id, "state", ev.State)
		}
	}
}

// scheduleReset returns to idle after d unless another transition happens
// first. Caller holds mu.
func (s *StatusTracker) scheduleReset(from SyncState, d time.Duration) {
	if d <= 0 {
		s.publish(StatusEvent{State: StateIdle})
		return
	}

	gen := s.gen
	time.AfterFunc(d, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.gen == gen && s.current.State == from {
			s.publish(StatusEvent{State: StateIdle})
		}
	})
}

// addMessage appends to the log. Caller holds mu.
func (s *StatusTracker) addMessage(text string, level MessageLevel) {
	s.messages = append(s.messages, StatusMessage{Text: text, Level: level, Timestamp: s.time.Now()})
	if len(s.messages) > maxMessages {
		s.messages = append([]StatusMessage(nil), s.messages[len(s.messages)-maxMessages:]...)
	}
}

func operationMessage(op SyncOperation, state SyncState) string {
	messages := map[SyncOperation]map[SyncState]string{
		OpSave: {
			StateSyncing: "Saving changes to the remote sheet...",
			StateSuccess: "Changes saved successfully",
			StateError:   "Failed to save changes",
		},
		OpLoad: {
			StateSyncing: "Loading data from the remote sheet...",
			StateSuccess: "Data loaded successfully",
			StateError:   "Failed to load data",
		},
		OpAutoSave: {
			StateSyncing: "Auto-saving in background...",
			StateSuccess: "Auto-save completed",
			StateError:   "Auto-save failed",
		},
	}
	return messages[op][state]
}
