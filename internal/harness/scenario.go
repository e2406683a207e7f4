package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/gigledger/internal/ledger"
	"github.com/roach88/gigledger/internal/store"
)

// Scenario is one sync scenario.
type Scenario struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Steps       []Step      `yaml:"steps"`
	Assertions  []Assertion `yaml:"assertions"`
}

// Step is one operation against the engine or the sheet.
type Step struct {
	Op         string `yaml:"op"`
	Collection string `yaml:"collection,omitempty"`

	// As names the record created by a create step.
	As string `yaml:"as,omitempty"`

	// Ref names the record an update or delete step targets.
	Ref string `yaml:"ref,omitempty"`

	Payload map[string]any   `yaml:"payload,omitempty"`
	Rows    []map[string]any `yaml:"rows,omitempty"`

	// Duration is a Go duration for advance steps.
	Duration string `yaml:"duration,omitempty"`

	Expect *ExpectClause `yaml:"expect,omitempty"`

	// ExpectError inverts the step's success check.
	ExpectError bool `yaml:"expect_error,omitempty"`
}

// ExpectClause checks the report of a commit step. Only the counts given
// are compared.
type ExpectClause struct {
	Pushed    *int `yaml:"pushed,omitempty"`
	Deleted   *int `yaml:"deleted,omitempty"`
	Stale     *int `yaml:"stale,omitempty"`
	Failed    *int `yaml:"failed,omitempty"`
	Compacted *int `yaml:"compacted,omitempty"`
}

// Assertion checks the state after the last step.
type Assertion struct {
	Type       string           `yaml:"type"`
	Collection string           `yaml:"collection,omitempty"`
	Ref        string           `yaml:"ref,omitempty"`
	State      string           `yaml:"state,omitempty"`
	Count      int              `yaml:"count,omitempty"`
	Seqs       map[string]int64 `yaml:"seqs,omitempty"`
	Rows       []string         `yaml:"rows,omitempty"`
}

// Step ops.
const (
	OpCreate    = "create"
	OpUpdate    = "update"
	OpDelete    = "delete"
	OpCommit    = "commit"
	OpFail      = "fail"
	OpRecover   = "recover"
	OpSeed      = "seed"
	OpLoad      = "load"
	OpRecompute = "recompute"
	OpAdvance   = "advance"
)

// Assertion types.
const (
	AssertPending = "pending"
	AssertState   = "state"
	AssertSeqs    = "seqs"
	AssertRemote  = "remote"
)

// stateAbsent is reported for a ref whose record no longer exists.
const stateAbsent = "absent"

// BlankRow marks a blank sheet row in remote assertions and snapshots.
const BlankRow = "~"

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	refs := make(map[string]bool)
	for i, step := range s.Steps {
		if err := validateStep(step, refs); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step, refs map[string]bool) error {
	needCollection := func(kind ledger.Kind) error {
		c, err := ledger.ParseCollection(step.Collection)
		if err != nil {
			return err
		}
		if kind != 0 && c.Kind() != kind {
			return fmt.Errorf("%s is not a syncable collection", c)
		}
		return nil
	}
	needRef := func() error {
		if step.Ref == "" {
			return fmt.Errorf("%s: ref is required", step.Op)
		}
		if !refs[step.Ref] {
			return fmt.Errorf("%s: unknown ref %q", step.Op, step.Ref)
		}
		return nil
	}

	if step.Expect != nil && step.Op != OpCommit {
		return fmt.Errorf("%s: expect is only valid on commit", step.Op)
	}

	switch step.Op {
	case OpCreate:
		if err := needCollection(ledger.KindSyncable); err != nil {
			return err
		}
		if step.As == "" {
			return fmt.Errorf("create: as is required")
		}
		if refs[step.As] {
			return fmt.Errorf("create: ref %q already defined", step.As)
		}
		if step.Payload == nil {
			return fmt.Errorf("create: payload is required")
		}
		refs[step.As] = true
	case OpUpdate:
		if err := needRef(); err != nil {
			return err
		}
		if step.Payload == nil {
			return fmt.Errorf("update: payload is required")
		}
	case OpDelete:
		return needRef()
	case OpFail, OpRecover:
		return needCollection(0)
	case OpSeed:
		return needCollection(0)
	case OpAdvance:
		if _, err := time.ParseDuration(step.Duration); err != nil {
			return fmt.Errorf("advance: %w", err)
		}
	case OpCommit, OpLoad, OpRecompute:
	case "":
		return fmt.Errorf("op is required")
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertPending:
	case AssertState:
		if a.Ref == "" {
			return fmt.Errorf("state: ref is required")
		}
		switch store.LifecycleState(a.State) {
		case store.Clean, store.PendingCreate, store.PendingUpdate, store.PendingDelete:
		default:
			if a.State != stateAbsent {
				return fmt.Errorf("state: unknown state %q", a.State)
			}
		}
	case AssertSeqs:
		if _, err := ledger.ParseCollection(a.Collection); err != nil {
			return fmt.Errorf("seqs: %w", err)
		}
		if len(a.Seqs) == 0 {
			return fmt.Errorf("seqs: seqs is required")
		}
	case AssertRemote:
		if _, err := ledger.ParseCollection(a.Collection); err != nil {
			return fmt.Errorf("remote: %w", err)
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
