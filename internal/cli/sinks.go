package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/entitysync/internal/model"
)

// NewSinksCommand creates the sinks command group.
func NewSinksCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sinks",
		Aliases: []string{"destinations"},
		Short:   "Manage destinations",
	}
	cmd.AddCommand(newSinksListCommand(rootOpts))
	cmd.AddCommand(newSinksAddCommand(rootOpts))
	cmd.AddCommand(newSinksDeleteCommand(rootOpts))
	cmd.AddCommand(newSinksLinkKeysCommand(rootOpts))
	cmd.AddCommand(newSinksKeyLinksCommand(rootOpts))
	return cmd
}

func newSinksListCommand(rootOpts *RootOptions) *cobra.Command {
	var hidden, all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List destinations",
		Long: `List destinations. Destinations whose type the catalog marks as hidden
are left out unless --hidden (only those) or --all is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if hidden && all {
				return NewExitError(ExitCommandError, "--hidden and --all are mutually exclusive")
			}
			return rootOpts.withSession(cmd, func(ctx context.Context, s *Session) error {
				if err := s.requirePulled(); err != nil {
					return err
				}
				var sinks []model.Sink
				switch {
				case hidden:
					sinks = s.Registry.Sinks.ListHidden()
				case all:
					sinks = s.Registry.Sinks.ListIncludeHidden()
				default:
					sinks = s.Registry.Sinks.List()
				}
				if sinks == nil {
					sinks = []model.Sink{}
				}
				return rootOpts.Formatter(cmd).Success(sinks, func(w io.Writer) error {
					if len(sinks) == 0 {
						fmt.Fprintln(w, "No destinations.")
						return nil
					}
					for _, sink := range sinks {
						fmt.Fprintf(w, "%s  %s  keys=[%s]  sources=[%s]\n", sink.UID, sink.Type,
							strings.Join(sink.OnlyKeys, ","), strings.Join(sink.Sources, ","))
					}
					return nil
				})
			})
		},
	}
	cmd.Flags().BoolVar(&hidden, "hidden", false, "list only hidden destinations")
	cmd.Flags().BoolVar(&all, "all", false, "include hidden destinations")
	return cmd
}

func newSinksAddCommand(rootOpts *RootOptions) *cobra.Command {
	var noConnections bool
	cmd := &cobra.Command{
		Use:   "add <file|->",
		Short: "Add a destination from a JSON document",
		Long: `Add a destination. Sources listed in its "sources" field get the new
destination added to their destinations, unless --no-connections is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var sink model.Sink
			if err := readDocument(cmd, args[0], &sink); err != nil {
				return err
			}
			return rootOpts.withSession(cmd, func(ctx context.Context, s *Session) error {
				if err := s.requirePulled(); err != nil {
					return err
				}
				added, err := s.Registry.Sinks.Add(ctx, sink, !noConnections)
				if err != nil {
					return mutationFailed(rootOpts.Formatter(cmd), "add destination", err)
				}
				return rootOpts.Formatter(cmd).Success(added, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "Added destination %s\n", added.UID)
					return err
				})
			})
		},
	}
	cmd.Flags().BoolVar(&noConnections, "no-connections", false, "do not update linked sources")
	return cmd
}

func newSinksDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <uid>",
		Short: "Delete a destination and unlink it from its sources",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withSession(cmd, func(ctx context.Context, s *Session) error {
				if err := s.requirePulled(); err != nil {
					return err
				}
				uid := args[0]
				if err := s.Registry.Sinks.Delete(ctx, uid); err != nil {
					return mutationFailed(rootOpts.Formatter(cmd), "delete destination "+uid, err)
				}
				return rootOpts.Formatter(cmd).Success(map[string]string{"deleted": uid}, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "Deleted destination %s\n", uid)
					return err
				})
			})
		},
	}
}

func newSinksLinkKeysCommand(rootOpts *RootOptions) *cobra.Command {
	var keys, sinks []string
	cmd := &cobra.Command{
		Use:   "link-keys",
		Short: "Add keys to the onlyKeys of destinations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withSession(cmd, func(ctx context.Context, s *Session) error {
				if err := s.requirePulled(); err != nil {
					return err
				}
				if err := s.Registry.Sinks.LinkKeysToSinks(ctx, keys, sinks); err != nil {
					return mutationFailed(rootOpts.Formatter(cmd), "link keys", err)
				}
				data := map[string][]string{"keys": keys, "sinks": sinks}
				return rootOpts.Formatter(cmd).Success(data, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "Linked %d key(s) to %d destination(s)\n", len(keys), len(sinks))
					return err
				})
			})
		},
	}
	cmd.Flags().StringSliceVar(&keys, "key", nil, "key uid (repeatable)")
	cmd.Flags().StringSliceVar(&sinks, "sink", nil, "destination uid (repeatable)")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("sink")
	return cmd
}

func newSinksKeyLinksCommand(rootOpts *RootOptions) *cobra.Command {
	var sinks []string
	cmd := &cobra.Command{
		Use:   "set-key-links <key-uid>",
		Short: "Make the given destinations the exact set accepting a key",
		Long: `Make the given destinations the exact set whose onlyKeys contains the
key. Destinations not listed have the key removed. Passing no --sink
unlinks the key everywhere.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withSession(cmd, func(ctx context.Context, s *Session) error {
				if err := s.requirePulled(); err != nil {
					return err
				}
				key := args[0]
				if err := s.Registry.Sinks.UpdateLinksToKey(ctx, key, sinks); err != nil {
					return mutationFailed(rootOpts.Formatter(cmd), "update links to key "+key, err)
				}
				view := keyView(s, model.Key{UID: key})
				return rootOpts.Formatter(cmd).Success(map[string]any{"key": key, "sinks": view.Sinks},
					func(w io.Writer) error {
						_, err := fmt.Fprintf(w, "Key %s linked to [%s]\n", key, strings.Join(view.Sinks, ","))
						return err
					})
			})
		},
	}
	cmd.Flags().StringSliceVar(&sinks, "sink", nil, "destination uid (repeatable)")
	return cmd
}

// readDocument decodes a JSON entity from a file, or stdin for "-".
func readDocument(cmd *cobra.Command, path string, v any) error {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read document", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return WrapExitError(ExitCommandError, "invalid document", err)
	}
	return nil
}
