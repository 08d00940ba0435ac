package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/entitysync/internal/model"
)

// KeyView is a key with the sinks that currently accept it.
type KeyView struct {
	model.Key
	Sinks []string `json:"sinks"`
}

// NewKeysCommand creates the keys command group.
func NewKeysCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage write keys",
	}
	cmd.AddCommand(newKeysListCommand(rootOpts))
	cmd.AddCommand(newKeysCreateCommand(rootOpts))
	cmd.AddCommand(newKeysDeleteCommand(rootOpts))
	cmd.AddCommand(newKeysInitCommand(rootOpts))
	return cmd
}

func newKeysListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List keys and the destinations linked to them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withSession(cmd, func(ctx context.Context, s *Session) error {
				if err := s.requirePulled(); err != nil {
					return err
				}
				views := make([]KeyView, 0, s.Registry.Keys.Len())
				for _, k := range s.Registry.Keys.List() {
					views = append(views, keyView(s, k))
				}
				return rootOpts.Formatter(cmd).Success(views, func(w io.Writer) error {
					if len(views) == 0 {
						fmt.Fprintln(w, "No keys.")
						return nil
					}
					for _, v := range views {
						fmt.Fprintf(w, "%s  %s", v.UID, v.ServerAuth)
						if v.Comment != "" {
							fmt.Fprintf(w, "  %q", v.Comment)
						}
						fmt.Fprintf(w, "  sinks=[%s]\n", strings.Join(v.Sinks, ","))
					}
					return nil
				})
			})
		},
	}
}

func keyView(s *Session, k model.Key) KeyView {
	v := KeyView{Key: k, Sinks: []string{}}
	for _, sink := range s.Registry.Keys.LinkedSinks(k.UID) {
		v.Sinks = append(v.Sinks, sink.UID)
	}
	return v
}

func newKeysCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		comment string
		origins []string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Generate and store a new key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withSession(cmd, func(ctx context.Context, s *Session) error {
				if err := s.requirePulled(); err != nil {
					return err
				}
				key, err := s.Registry.Keys.Create(ctx, comment, origins)
				if err != nil {
					return mutationFailed(rootOpts.Formatter(cmd), "create key", err)
				}
				return rootOpts.Formatter(cmd).Success(key, func(w io.Writer) error {
					fmt.Fprintf(w, "Created key %s\n", key.UID)
					fmt.Fprintf(w, "  server: %s\n  js:     %s\n", key.ServerAuth, key.JSAuth)
					return nil
				})
			})
		},
	}
	cmd.Flags().StringVar(&comment, "comment", "", "free-form description")
	cmd.Flags().StringSliceVar(&origins, "origin", nil, "allowed browser origin (repeatable)")
	return cmd
}

func newKeysDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <uid>",
		Short: "Delete a key and unlink it from every destination",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withSession(cmd, func(ctx context.Context, s *Session) error {
				if err := s.requirePulled(); err != nil {
					return err
				}
				uid := args[0]
				if err := s.Registry.Keys.Delete(ctx, uid); err != nil {
					return mutationFailed(rootOpts.Formatter(cmd), "delete key "+uid, err)
				}
				return rootOpts.Formatter(cmd).Success(map[string]string{"deleted": uid}, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "Deleted key %s\n", uid)
					return err
				})
			})
		},
	}
}

func newKeysInitCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the first key of an empty workspace",
		Long: `Create a key only when the workspace has none. A workspace that
already has keys is left unchanged.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withSession(cmd, func(ctx context.Context, s *Session) error {
				if err := s.requirePulled(); err != nil {
					return err
				}
				key, created, err := s.Registry.Keys.GenerateAddInitialKeyIfNeeded(ctx)
				if err != nil {
					return mutationFailed(rootOpts.Formatter(cmd), "create initial key", err)
				}
				data := map[string]any{"created": created}
				if created {
					data["key"] = key
				}
				return rootOpts.Formatter(cmd).Success(data, func(w io.Writer) error {
					if !created {
						_, err := fmt.Fprintln(w, "Workspace already has keys.")
						return err
					}
					_, err := fmt.Fprintf(w, "Created initial key %s\n", key.UID)
					return err
				})
			})
		},
	}
}

// mutationFailed reports a failed write and returns the ExitFailure error.
func mutationFailed(out *OutputFormatter, what string, err error) error {
	msg := what + " failed"
	if ferr := out.Error(CodeRemote, msg, nil, err.Error()); ferr != nil {
		return ferr
	}
	return WrapExitError(ExitFailure, msg, err)
}
