package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/entitysync/internal/catalog"
	"github.com/roach88/entitysync/internal/config"
	"github.com/roach88/entitysync/internal/entities"
	"github.com/roach88/entitysync/internal/model"
	"github.com/roach88/entitysync/internal/remote"
	"github.com/roach88/entitysync/internal/store"
)

// Session is a pulled Registry plus whatever must be closed afterwards.
type Session struct {
	Config   config.Config
	Catalog  catalog.Static
	Registry *entities.Registry
	Logger   *slog.Logger

	store *store.Store
}

// Close releases the local store, if any.
func (s *Session) Close() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}

// loadConfig merges the config file, the environment, and global flags.
func (o *RootOptions) loadConfig() (config.Config, error) {
	cfg := config.Default()
	if o.ConfigPath != "" {
		loaded, err := config.Load(o.ConfigPath)
		if err != nil {
			return cfg, WrapExitError(ExitCommandError, "failed to load config", err)
		}
		cfg = loaded
	}
	cfg.ApplyEnv(os.LookupEnv)
	if o.Database != "" {
		cfg.Store.Path = o.Database
		cfg.Remote.URL = ""
	}
	if o.Workspace != "" {
		cfg.Workspace = o.Workspace
	}
	if err := cfg.Validate(); err != nil {
		return cfg, WrapExitError(ExitCommandError, "invalid config", err)
	}
	return cfg, nil
}

// openSession builds the Registry for the configured remote and pulls every
// collection. Pull failures are left on the collections; commands that
// mutate should call requirePulled.
func (o *RootOptions) openSession(cmd *cobra.Command) (*Session, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	logger := o.Logger(cmd.ErrOrStderr()).With("workspace", cfg.Workspace)

	cat := catalog.Static{}
	if cfg.Catalog.Path != "" {
		cat, err = catalog.LoadCUE(cfg.Catalog.Path)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load catalog", err)
		}
	}

	s := &Session{Config: cfg, Catalog: cat, Logger: logger}
	opts := entities.Options{
		Catalog:     cat,
		ProjectID:   cfg.Project,
		TokenLength: cfg.Keys.TokenLength,
		MaxParallel: cfg.Cascade.MaxParallel,
		Logger:      logger,
	}

	switch {
	case cfg.Store.Path != "":
		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open database", err)
		}
		s.store = st
		opts.Keys = remote.NewStoreClient[model.Key](st.Table(cfg.Workspace, model.CollectionKeys), nil)
		opts.Sinks = remote.NewStoreClient(st.Table(cfg.Workspace, model.CollectionSinks),
			remote.AssignSinkUID(remote.UUIDv7))
		opts.Sources = remote.NewStoreClient(st.Table(cfg.Workspace, model.CollectionSources),
			remote.AssignSourceID(remote.UUIDv7))
		logger.Debug("using local workspace", "path", cfg.Store.Path)
	case cfg.Remote.URL != "":
		transport := remote.NewTransport(remote.TransportOptions{
			BaseURL:    cfg.Remote.URL,
			Token:      cfg.Remote.Token,
			MaxRetries: cfg.Remote.MaxRetries,
		})
		opts.Keys = remote.NewHTTPClient[model.Key](transport, cfg.Workspace, model.CollectionKeys)
		opts.Sinks = remote.NewHTTPClient[model.Sink](transport, cfg.Workspace, model.CollectionSinks)
		opts.Sources = remote.NewHTTPClient[model.Source](transport, cfg.Workspace, model.CollectionSources)
		logger.Debug("using configuration service", "url", cfg.Remote.URL)
	default:
		return nil, NewExitError(ExitCommandError,
			fmt.Sprintf("no remote configured: set remote.url, %s, or --db", config.EnvURL))
	}

	s.Registry = entities.NewRegistry(opts)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s.Registry.PullAll(ctx, true)
	return s, nil
}

// requirePulled fails when any collection could not be loaded, so no
// cascade runs against a partial view.
func (s *Session) requirePulled() error {
	if err := s.Registry.Err(); err != nil {
		return WrapExitError(ExitFailure, "pull failed", err)
	}
	return nil
}

// withSession opens a session, runs fn, and closes the session.
func (o *RootOptions) withSession(cmd *cobra.Command, fn func(ctx context.Context, s *Session) error) error {
	s, err := o.openSession(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			s.Logger.Error("error closing database", "error", err)
		}
	}()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, s)
}
