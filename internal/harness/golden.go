package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/entitysync/internal/model"
)

// TraceSnapshot is the golden form of a scenario run.
type TraceSnapshot struct {
	ScenarioName string      `json:"scenario_name"`
	Steps        []StepTrace `json:"steps"`
}

// toCanonicalMap drops call sequence numbers, which depend on how many
// calls setup made, and empty fields.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	steps := make([]any, len(s.Steps))
	for i, step := range s.Steps {
		calls := make([]any, len(step.Calls))
		for j, c := range step.Calls {
			call := map[string]any{
				"collection": c.Collection,
				"method":     c.Method,
			}
			if c.ID != "" {
				call["id"] = c.ID
			}
			if c.Payload != nil {
				call["payload"] = c.Payload
			}
			if c.Err != "" {
				call["error"] = c.Err
			}
			calls[j] = call
		}
		stepMap := map[string]any{
			"op":    step.Op,
			"calls": calls,
		}
		if step.Error != "" {
			stepMap["error"] = step.Error
		}
		steps[i] = stepMap
	}
	return map[string]any{
		"scenario_name": s.ScenarioName,
		"steps":         steps,
	}
}

// MarshalTrace renders a result's trace as canonical JSON.
func MarshalTrace(scenarioName string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{ScenarioName: scenarioName, Steps: result.Steps}
	return model.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its trace with
// testdata/golden/<name>.golden.
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
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := MarshalTrace(scenarioName, result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
