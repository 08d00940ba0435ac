package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/entitysync/internal/config"
	"github.com/roach88/entitysync/internal/model"
	"github.com/roach88/entitysync/internal/store"
)

// execute runs the root command and returns stdout.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// executeJSON runs a command with --format json --db and decodes the envelope.
func executeJSON(t *testing.T, db, stdin string, args ...string) (CLIResponse, json.RawMessage, error) {
	t.Helper()
	out, err := execute(t, stdin, append(args, "--db", db, "--format", "json")...)
	var raw struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
		Error  *CLIError       `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &raw), "output: %s", out)
	return CLIResponse{Status: raw.Status, Error: raw.Error}, raw.Data, err
}

func tempDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "workspace.db")
}

func TestPull_EmptyWorkspace(t *testing.T) {
	db := tempDB(t)

	resp, data, err := executeJSON(t, db, "", "pull")
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)

	var result PullResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Equal(t, config.DefaultWorkspace, result.Workspace)
	require.Len(t, result.Collections, 3)
	for _, c := range result.Collections {
		assert.Equal(t, 0, c.Count, c.Name)
		assert.Empty(t, c.Error, c.Name)
	}
}

func TestPull_NoRemoteConfigured(t *testing.T) {
	t.Setenv(config.EnvURL, "")

	_, err := execute(t, "", "pull")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no remote configured")
}

func TestKeys_CreateThenList(t *testing.T) {
	db := tempDB(t)

	_, data, err := executeJSON(t, db, "", "keys", "create", "--comment", "web", "--origin", "https://example.com")
	require.NoError(t, err)
	var created model.Key
	require.NoError(t, json.Unmarshal(data, &created))
	assert.NotEmpty(t, created.UID)
	assert.Equal(t, "web", created.Comment)
	assert.Equal(t, []string{"https://example.com"}, created.Origins)
	assert.True(t, strings.HasPrefix(created.ServerAuth, "s2s."+config.DefaultWorkspace+"."), created.ServerAuth)

	_, data, err = executeJSON(t, db, "", "keys", "list")
	require.NoError(t, err)
	var keys []KeyView
	require.NoError(t, json.Unmarshal(data, &keys))
	require.Len(t, keys, 1)
	assert.Equal(t, created.UID, keys[0].UID)
	assert.Empty(t, keys[0].Sinks)
}

func TestKeys_InitOnlyOnce(t *testing.T) {
	db := tempDB(t)

	_, data, err := executeJSON(t, db, "", "keys", "init")
	require.NoError(t, err)
	var first map[string]any
	require.NoError(t, json.Unmarshal(data, &first))
	assert.Equal(t, true, first["created"])

	_, data, err = executeJSON(t, db, "", "keys", "init")
	require.NoError(t, err)
	var second map[string]any
	require.NoError(t, json.Unmarshal(data, &second))
	assert.Equal(t, false, second["created"])
	assert.NotContains(t, second, "key")
}

func TestKeys_DeleteUnlinksSinks(t *testing.T) {
	db := tempDB(t)

	_, data, err := executeJSON(t, db, "", "keys", "create")
	require.NoError(t, err)
	var key model.Key
	require.NoError(t, json.Unmarshal(data, &key))

	_, _, err = executeJSON(t, db, `{"uid":"sink-a","type":"webhook","onlyKeys":["`+key.UID+`"]}`,
		"sinks", "add", "-")
	require.NoError(t, err)

	_, _, err = executeJSON(t, db, "", "keys", "delete", key.UID)
	require.NoError(t, err)

	_, data, err = executeJSON(t, db, "", "sinks", "list")
	require.NoError(t, err)
	var sinks []model.Sink
	require.NoError(t, json.Unmarshal(data, &sinks))
	require.Len(t, sinks, 1)
	assert.Empty(t, sinks[0].OnlyKeys)
}

func TestSinks_AddLinksSourcesAndKeys(t *testing.T) {
	db := tempDB(t)

	_, _, err := executeJSON(t, db, `{"id":"src-a","destinations":[]}`, "sources", "add", "-")
	require.NoError(t, err)

	_, data, err := executeJSON(t, db, `{"uid":"sink-a","type":"webhook","sources":["src-a"]}`,
		"sinks", "add", "-")
	require.NoError(t, err)
	var sink model.Sink
	require.NoError(t, json.Unmarshal(data, &sink))
	assert.Equal(t, "sink-a", sink.UID)

	_, data, err = executeJSON(t, db, "", "sources", "list")
	require.NoError(t, err)
	var sources []model.Source
	require.NoError(t, json.Unmarshal(data, &sources))
	require.Len(t, sources, 1)
	assert.Equal(t, []string{"sink-a"}, sources[0].Destinations)

	_, data, err = executeJSON(t, db, "", "keys", "create")
	require.NoError(t, err)
	var key model.Key
	require.NoError(t, json.Unmarshal(data, &key))

	_, _, err = executeJSON(t, db, "", "sinks", "link-keys", "--key", key.UID, "--sink", "sink-a")
	require.NoError(t, err)

	_, data, err = executeJSON(t, db, "", "keys", "list")
	require.NoError(t, err)
	var keys []KeyView
	require.NoError(t, json.Unmarshal(data, &keys))
	require.Len(t, keys, 1)
	assert.Equal(t, []string{"sink-a"}, keys[0].Sinks)

	resp, _, err := executeJSON(t, db, "", "orphans")
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
}

func TestSinks_SetKeyLinks(t *testing.T) {
	db := tempDB(t)
	for _, uid := range []string{"sink-a", "sink-b"} {
		_, _, err := executeJSON(t, db, `{"uid":"`+uid+`","type":"webhook","onlyKeys":["k1"]}`, "sinks", "add", "-")
		require.NoError(t, err)
	}

	_, data, err := executeJSON(t, db, "", "sinks", "set-key-links", "k1", "--sink", "sink-b")
	require.NoError(t, err)
	var result struct {
		Key   string   `json:"key"`
		Sinks []string `json:"sinks"`
	}
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Equal(t, "k1", result.Key)
	assert.Equal(t, []string{"sink-b"}, result.Sinks)
}

func TestSinks_ListFlagsExclusive(t *testing.T) {
	_, err := execute(t, "", "sinks", "list", "--hidden", "--all", "--db", tempDB(t))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSinks_AddInvalidDocument(t *testing.T) {
	_, err := execute(t, "{not json", "sinks", "add", "-", "--db", tempDB(t))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSources_DeleteUnlinksSinks(t *testing.T) {
	db := tempDB(t)
	_, _, err := executeJSON(t, db, `{"id":"src-a","destinations":["sink-a"]}`, "sources", "add", "-", "--no-connections")
	require.NoError(t, err)
	_, _, err = executeJSON(t, db, `{"uid":"sink-a","type":"webhook","sources":["src-a"]}`, "sinks", "add", "-")
	require.NoError(t, err)

	_, _, err = executeJSON(t, db, "", "sources", "delete", "src-a")
	require.NoError(t, err)

	_, data, err := executeJSON(t, db, "", "sinks", "list")
	require.NoError(t, err)
	var sinks []model.Sink
	require.NoError(t, json.Unmarshal(data, &sinks))
	require.Len(t, sinks, 1)
	assert.Empty(t, sinks[0].Sources)
}

func TestOrphans_DanglingReferenceFails(t *testing.T) {
	db := tempDB(t)

	st, err := store.Open(db)
	require.NoError(t, err)
	_, err = st.Table(config.DefaultWorkspace, model.CollectionSinks).Insert(context.Background(), "sink-x",
		map[string]any{"uid": "sink-x", "type": "webhook", "onlyKeys": []string{"missing"}, "sources": []string{}})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	resp, data, err := executeJSON(t, db, "", "orphans")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeOrphans, resp.Error.Code)

	var result OrphansResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Equal(t, 1, result.Counts["dangling_key_ref"])
	assert.Equal(t, 1, result.Counts["sink_without_sources"])
}

func TestOrphans_TextOutput(t *testing.T) {
	db := tempDB(t)
	_, _, err := executeJSON(t, db, "", "keys", "create")
	require.NoError(t, err)

	out, err := execute(t, "", "orphans", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "key_unlinked")
	assert.Contains(t, out, "warning")
}
