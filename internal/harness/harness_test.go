package harness

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/entitysync/internal/model"
	"github.com/roach88/entitysync/internal/remote"
)

func intPtr(n int) *int { return &n }

func TestRun_TracesOnlyFlowCalls(t *testing.T) {
	scenario := &Scenario{
		Name:        "setup_untraced",
		Description: "setup calls are not traced",
		Setup: []Step{
			{Op: "keys.create", Args: map[string]any{"comment": "ci"}},
		},
		Flow: []Step{
			{Op: "keys.initial"},
		},
		Assertions: []Assertion{
			{Type: AssertRemoteCalls, Count: intPtr(0)},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Steps, 1)
	assert.Empty(t, result.Steps[0].Calls, "a key already exists after setup")
}

func TestRun_UnexpectedErrorFails(t *testing.T) {
	scenario := &Scenario{
		Name:        "unexpected",
		Description: "patching an unknown sink",
		Flow: []Step{
			{Op: "sinks.patch", Args: map[string]any{"id": "ghost", "patch": map[string]any{"type": "x"}}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "unexpected error")
	assert.NotEmpty(t, result.Steps[0].Error)
}

func TestRun_MissingExpectedErrorFails(t *testing.T) {
	scenario := &Scenario{
		Name:        "missing_error",
		Description: "pull succeeds",
		Flow: []Step{
			{Op: "pull", ExpectError: "fetch"},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "expected fetch error, got success")
}

func TestRun_WrongErrorKindFails(t *testing.T) {
	scenario := &Scenario{
		Name:        "wrong_kind",
		Description: "not found is not a depth error",
		Flow: []Step{
			{
				Op:          "sources.patch",
				Args:        map[string]any{"id": "ghost", "patch": map[string]any{"schedule": "daily"}},
				ExpectError: "patch_too_deep",
			},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "expected patch_too_deep error")
}

func TestRun_ContinuesAfterFailedStep(t *testing.T) {
	scenario := &Scenario{
		Name:        "continue",
		Description: "later steps still run",
		Seed: Seed{
			Sources: []map[string]any{{"id": "s1", "destinations": []any{}}},
		},
		Flow: []Step{
			{Op: "fail_next", Args: map[string]any{"collection": model.CollectionSources, "method": remote.MethodDelete}},
			{Op: "sources.delete", Args: map[string]any{"id": "s1"}, ExpectError: "injected"},
			{Op: "sources.delete", Args: map[string]any{"id": "s1"}},
		},
		Assertions: []Assertion{
			{Type: AssertFinalState, Collection: model.CollectionSources, ID: "s1", Absent: true},
			{Type: AssertRemoteCalls, Collection: model.CollectionSources, Method: remote.MethodDelete, Count: intPtr(2)},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "injected", result.Steps[1].Error)
	assert.Equal(t, ErrInjected.Error(), result.Steps[1].Calls[0].Err)
}

func TestRun_FailNextConflict(t *testing.T) {
	scenario := &Scenario{
		Name:        "conflict",
		Description: "injected conflict on add",
		Flow: []Step{
			{Op: "fail_next", Args: map[string]any{"collection": model.CollectionKeys, "method": remote.MethodAdd, "error": "conflict"}},
			{Op: "keys.create", Args: map[string]any{"comment": "dup"}, ExpectError: "conflict"},
		},
		Assertions: []Assertion{
			{Type: AssertOrphans, Count: intPtr(0)},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_BadSeed(t *testing.T) {
	scenario := &Scenario{
		Name:        "bad_seed",
		Description: "seed with an unknown key field",
		Seed: Seed{
			Keys: []map[string]any{{"uid": "k1", "colour": "red"}},
		},
		Flow: []Step{{Op: "pull"}},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seed keys")
}

func TestRun_SeedWithoutID(t *testing.T) {
	scenario := &Scenario{
		Name:        "seed_without_id",
		Description: "seeded entities need ids",
		Seed: Seed{
			Sources: []map[string]any{{"destinations": []any{}}},
		},
		Flow: []Step{{Op: "pull"}},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.ErrorIs(t, err, remote.ErrMissingID)
}

func TestRun_SetupFailureIsFatal(t *testing.T) {
	scenario := &Scenario{
		Name:        "setup_fails",
		Description: "setup must succeed",
		Setup: []Step{
			{Op: "sinks.delete", Args: map[string]any{"id": "d1", "extra": true}},
		},
		Flow: []Step{{Op: "pull"}},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "setup step 0 (sinks.delete)")
}

func TestRun_HiddenSinksFollowCatalog(t *testing.T) {
	scenario := &Scenario{
		Name:        "hidden",
		Description: "hidden sinks are not orphan candidates",
		Catalog:     map[string]bool{"internal": true},
		Seed: Seed{
			Sinks: []map[string]any{
				{"uid": "d1", "type": "internal", "onlyKeys": []any{}, "sources": []any{}},
			},
		},
		Flow: []Step{{Op: "pull"}},
		Assertions: []Assertion{
			{Type: AssertOrphans, Count: intPtr(0)},
			{Type: AssertFinalState, Collection: model.CollectionSinks, ID: "d1", Expect: map[string]any{"type": "internal"}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_ReplaceKeepsConfig(t *testing.T) {
	scenario := &Scenario{
		Name:        "replace",
		Description: "replace writes the full sink",
		Seed: Seed{
			Sinks:   []map[string]any{{"uid": "d1", "type": "webhook", "onlyKeys": []any{}, "sources": []any{"s1"}}},
			Sources: []map[string]any{{"id": "s1", "destinations": []any{"d1"}}},
		},
		Flow: []Step{
			{Op: "sinks.replace", Args: map[string]any{
				"entity": map[string]any{"uid": "d1", "type": "webhook", "url": "https://example.com", "onlyKeys": []any{}, "sources": []any{}},
			}},
		},
		Assertions: []Assertion{
			{Type: AssertFinalState, Collection: model.CollectionSinks, ID: "d1", Expect: map[string]any{"url": "https://example.com", "sources": []any{}}},
			{Type: AssertFinalState, Collection: model.CollectionSources, ID: "s1", Expect: map[string]any{"destinations": []any{}}},
			{Type: AssertOrphans, Kinds: []string{"sink_without_sources", "source_without_destinations"}, Count: intPtr(2)},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_UpdateConnectionsOff(t *testing.T) {
	scenario := &Scenario{
		Name:        "no_connections",
		Description: "update_connections false skips the cascade",
		Seed: Seed{
			Sinks: []map[string]any{{"uid": "d1", "type": "webhook", "onlyKeys": []any{}, "sources": []any{}}},
		},
		Flow: []Step{
			{Op: "sources.add", Args: map[string]any{
				"entity":             map[string]any{"id": "s1", "destinations": []any{"d1"}},
				"update_connections": false,
			}},
		},
		Assertions: []Assertion{
			{Type: AssertRemoteCalls, Method: remote.MethodPatch, Count: intPtr(0)},
			{Type: AssertOrphans, Kinds: []string{"edge_disagreement"}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestMarshalTrace_Canonical(t *testing.T) {
	result := NewResult()
	result.Steps = append(result.Steps, StepTrace{
		Op: "sinks.patch",
		Calls: []remote.Call{
			{Seq: 7, Collection: "destinations", Method: "patch", ID: "d1", Payload: model.Partial{"sources": []string{"s1"}}},
		},
	})

	data, err := MarshalTrace("demo", result)
	require.NoError(t, err)
	assert.Equal(t,
		`{"scenario_name":"demo","steps":[{"calls":[{"collection":"destinations","id":"d1","method":"patch","payload":{"sources":["s1"]}}],"op":"sinks.patch"}]}`,
		string(data))
	assert.True(t, json.Valid(data))
}
