package harness

import "github.com/roach88/gigledger/internal/engine"

// TraceEvent records one executed step.
type TraceEvent struct {
	Step       int                  `json:"step"`
	Op         string               `json:"op"`
	Collection string               `json:"collection,omitempty"`
	Ref        string               `json:"ref,omitempty"`
	Report     *engine.CommitReport `json:"report,omitempty"`
	Error      string               `json:"error,omitempty"`
}

// LocalRow is a local record as it appears in a snapshot.
type LocalRow struct {
	Seq   int64  `json:"seq"`
	Ref   string `json:"ref"`
	State string `json:"state"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step expectation and assertion held.
	Pass bool `json:"pass"`

	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`

	// Local and Remote hold the final state of every collection the
	// scenario touched, keyed by collection name.
	Local  map[string][]LocalRow `json:"local"`
	Remote map[string][]string   `json:"remote"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Local:  make(map[string][]LocalRow),
		Remote: make(map[string][]string),
	}
}

// AddError records a failure and marks the result failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
