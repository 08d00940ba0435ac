package harness

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/entitysync/internal/orphans"
	"github.com/roach88/entitysync/internal/remote"
)

func TestSubsetMatch(t *testing.T) {
	actual := map[string]any{
		"uid":      "d1",
		"onlyKeys": []any{"k1", "k2"},
		"config":   map[string]any{"retries": json.Number("3"), "url": "https://x"},
	}

	tests := []struct {
		name     string
		expected any
		wantPath string
		wantOK   bool
	}{
		{"empty", map[string]any{}, "", true},
		{"scalar field", map[string]any{"uid": "d1"}, "", true},
		{"nested subset", map[string]any{"config": map[string]any{"url": "https://x"}}, "", true},
		{"number", map[string]any{"config": map[string]any{"retries": json.Number("3")}}, "", true},
		{"list exact", map[string]any{"onlyKeys": []any{"k1", "k2"}}, "", true},
		{"list order matters", map[string]any{"onlyKeys": []any{"k2", "k1"}}, "onlyKeys", false},
		{"list subset is a mismatch", map[string]any{"onlyKeys": []any{"k1"}}, "onlyKeys", false},
		{"missing field", map[string]any{"type": "webhook"}, "type", false},
		{"nested mismatch", map[string]any{"config": map[string]any{"url": "https://y"}}, "config.url", false},
		{"object vs scalar", map[string]any{"uid": map[string]any{"a": "b"}}, "uid", false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			path, ok := subsetMatch(actual, tt.expected, "")
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantPath, path)
		})
	}

	path, ok := subsetMatch("x", "y", "")
	assert.False(t, ok)
	assert.Equal(t, "(root)", path)
}

func TestAssertRemoteCalls(t *testing.T) {
	result := NewResult()
	result.Steps = []StepTrace{
		{Op: "sources.add", Calls: []remote.Call{
			{Collection: "sources", Method: "add", ID: "s1"},
			{Collection: "destinations", Method: "patch", ID: "d1"},
		}},
		{Op: "sinks.link_keys", Calls: []remote.Call{
			{Collection: "destinations", Method: "patch", ID: "d2"},
		}},
	}

	assert.NoError(t, assertRemoteCalls(result, Assertion{Count: intPtr(3)}))
	assert.NoError(t, assertRemoteCalls(result, Assertion{Collection: "destinations", Method: "patch", Count: intPtr(2)}))
	assert.NoError(t, assertRemoteCalls(result, Assertion{ID: "d2", Count: intPtr(1)}))

	err := assertRemoteCalls(result, Assertion{Collection: "sources", Method: "patch", Count: intPtr(1)})
	require.Error(t, err)
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "0 call(s)", ae.Actual)
	assert.Contains(t, ae.Expected, "collection=sources method=patch")
}

func TestAssertOrphans(t *testing.T) {
	warnings := []orphans.Warning{
		{Kind: orphans.KeyUnlinked, Collection: "keys", ID: "k1"},
		{Kind: orphans.SinkWithoutSources, Collection: "destinations", ID: "d1"},
	}

	assert.NoError(t, assertOrphans(warnings, Assertion{Kinds: []string{"key_unlinked"}}))
	assert.NoError(t, assertOrphans(warnings, Assertion{Count: intPtr(2)}))
	assert.NoError(t, assertOrphans(nil, Assertion{Count: intPtr(0)}))

	err := assertOrphans(warnings, Assertion{Kinds: []string{"edge_disagreement"}, Count: intPtr(2)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key_unlinked(k1), sink_without_sources(d1)")

	assert.Error(t, assertOrphans(warnings, Assertion{Count: intPtr(1)}))
}

func TestAssertionError_Format(t *testing.T) {
	err := &AssertionError{
		Type:     AssertRemoteCalls,
		Expected: "1 call(s) matching id=d1",
		Actual:   "2 call(s)",
		Steps: []StepTrace{
			{Op: "keys.delete", Calls: []remote.Call{
				{Collection: "keys", Method: "delete", ID: "k1"},
				{Collection: "destinations", Method: "patch", ID: "d1"},
			}},
		},
	}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: remote_calls")
	assert.Contains(t, msg, "Expected: 1 call(s) matching id=d1")
	assert.Contains(t, msg, "Actual: 2 call(s)")
	assert.Contains(t, msg, "[1] keys.delete: keys delete k1")
	assert.Contains(t, msg, "[2] keys.delete: destinations patch d1")
}
