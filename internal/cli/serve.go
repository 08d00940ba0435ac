package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/entitysync/internal/httpapi"
	"github.com/roach88/entitysync/internal/metrics"
	"github.com/roach88/entitysync/internal/store"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr  string
	Token string

	// Ready, when set, receives the bound address once the listener is up.
	Ready func(addr string)
}

const shutdownTimeout = 5 * time.Second

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a SQLite workspace as a configuration service",
		Long: `Serve the collections of a local SQLite workspace over HTTP, so other
clients can point remote.url at it. Prometheus metrics are exposed on
/metrics.

Example:
  entitysync serve --db ./workspace.db --addr :8080
  entitysync serve --db ./workspace.db --token secret`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&opts.Token, "token", "", "bearer token required from clients (defaults to remote.token)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	if opts.Database == "" {
		return NewExitError(ExitCommandError, "serve requires --db")
	}
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	token := opts.Token
	if token == "" {
		token = cfg.Remote.Token
	}
	logger := opts.Logger(cmd.ErrOrStderr())

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	srv := &http.Server{
		Handler: httpapi.NewServerWithConfig(st, httpapi.ServerConfig{
			Token:   token,
			Logger:  logger,
			Metrics: metrics.New(),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	ln, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	addr := ln.Addr().String()
	logger.Info("serving workspace", "addr", addr, "db", cfg.Store.Path)
	fmt.Fprintf(cmd.OutOrStdout(), "Serving %s on %s\n", cfg.Store.Path, addr)
	if opts.Ready != nil {
		opts.Ready(addr)
	}

	select {
	case err := <-errCh:
		return WrapExitError(ExitFailure, "server error", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "shutdown failed", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return WrapExitError(ExitFailure, "server error", err)
	}
	logger.Info("server stopped gracefully")
	return nil
}
