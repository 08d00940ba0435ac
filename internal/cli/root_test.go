package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/entitysync/internal/config"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "entitysync", cmd.Use)
	assert.Contains(t, cmd.Long, "write keys")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"pull"},
		{"keys", "list"},
		{"keys", "create"},
		{"keys", "delete"},
		{"keys", "init"},
		{"sinks", "list"},
		{"sinks", "add"},
		{"sinks", "delete"},
		{"sinks", "link-keys"},
		{"sinks", "set-key-links"},
		{"sources", "list"},
		{"sources", "add"},
		{"sources", "delete"},
		{"orphans"},
		{"test"},
		{"serve"},
	}

	for _, path := range commands {
		path := path
		t.Run(fmt.Sprint(path), func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err)
			require.NotNil(t, subCmd)
			assert.Equal(t, path[len(path)-1], subCmd.Name())
		})
	}
}

func TestDestinationsAlias(t *testing.T) {
	cmd := NewRootCommand()
	subCmd, _, err := cmd.Find([]string{"destinations", "list"})
	require.NoError(t, err)
	assert.Equal(t, "list", subCmd.Name())
	assert.Equal(t, "sinks", subCmd.Parent().Name())
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	workspaceFlag := cmd.PersistentFlags().Lookup("workspace")
	require.NotNil(t, workspaceFlag)
	assert.Equal(t, "w", workspaceFlag.Shorthand)

	require.NotNil(t, cmd.PersistentFlags().Lookup("db"))
	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "", "pull", "--format", "yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `invalid format "yaml"`)
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "entitysync.yaml")
	db := filepath.Join(dir, "workspace.db")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf("workspace: staging\nproject: acme\nstore:\n  path: %s\n", db)), 0o644))

	out, err := execute(t, "", "pull", "--config", cfgPath, "--format", "json")
	require.NoError(t, err)
	var resp struct {
		Data PullResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "staging", resp.Data.Workspace)
}

func TestConfigFile_UnknownField(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "entitysync.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("workspce: typo\n"), 0o644))

	_, err := execute(t, "", "pull", "--config", cfgPath, "--db", tempDB(t))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestWorkspaceFlagIsolatesData(t *testing.T) {
	db := tempDB(t)
	_, err := execute(t, "", "keys", "create", "--db", db, "--workspace", "one")
	require.NoError(t, err)

	out, err := execute(t, "", "keys", "list", "--db", db, "--workspace", "two", "--format", "json")
	require.NoError(t, err)
	var resp struct {
		Data []KeyView `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Empty(t, resp.Data)
}

func TestServeRequiresDB(t *testing.T) {
	_, err := execute(t, "", "serve")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestServe_HTTPClientRoundTrip(t *testing.T) {
	db := tempDB(t)
	ready := make(chan string, 1)
	opts := &ServeOptions{
		RootOptions: &RootOptions{Format: "text", Database: db},
		Addr:        "127.0.0.1:0",
		Ready:       func(addr string) { ready <- addr },
	}
	cmd := NewServeCommand(opts.RootOptions)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	cmd.SetContext(ctx)
	done := make(chan error, 1)
	go func() { done <- runServe(opts, cmd) }()

	var addr string
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not start")
	}

	resp, err := http.Get("http://" + addr + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// A client pointed at the served workspace sees keys created through it.
	t.Setenv(config.EnvURL, "http://"+addr)
	out := &bytes.Buffer{}
	client := NewRootCommand()
	client.SetOut(out)
	client.SetErr(io.Discard)
	client.SetArgs([]string{"keys", "create", "--comment", "over http", "--format", "json"})
	require.NoError(t, client.Execute())
	assert.Contains(t, out.String(), `"comment": "over http"`)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not shut down")
	}
}
