package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot is the golden form of a scenario run.
type Snapshot struct {
	ScenarioName string                `json:"scenario_name"`
	Pass         bool                  `json:"pass"`
	Trace        []TraceEvent          `json:"trace"`
	Local        map[string][]LocalRow `json:"local"`
	Remote       map[string][]string   `json:"remote"`
}

// MarshalSnapshot renders a result as indented JSON with a trailing newline.
// Map keys are sorted by encoding/json, so the output is deterministic.
func MarshalSnapshot(name string, result *Result) ([]byte, error) {
	data, err := json.MarshalIndent(Snapshot{
		ScenarioName: name,
		Pass:         result.Pass,
		Trace:        result.Trace,
		Local:        result.Local,
		Remote:       result.Remote,
	}, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// RunWithGolden runs a scenario and compares its snapshot with
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	data, err := MarshalSnapshot(scenario.Name, result)
	if err != nil {
		return nil, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)
	return result, nil
}
