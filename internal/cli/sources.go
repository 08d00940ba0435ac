package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/entitysync/internal/model"
)

// NewSourcesCommand creates the sources command group.
func NewSourcesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Manage sources",
	}
	cmd.AddCommand(newSourcesListCommand(rootOpts))
	cmd.AddCommand(newSourcesAddCommand(rootOpts))
	cmd.AddCommand(newSourcesDeleteCommand(rootOpts))
	return cmd
}

func newSourcesListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withSession(cmd, func(ctx context.Context, s *Session) error {
				if err := s.requirePulled(); err != nil {
					return err
				}
				sources := s.Registry.Sources.List()
				if sources == nil {
					sources = []model.Source{}
				}
				return rootOpts.Formatter(cmd).Success(sources, func(w io.Writer) error {
					if len(sources) == 0 {
						fmt.Fprintln(w, "No sources.")
						return nil
					}
					for _, src := range sources {
						fmt.Fprintf(w, "%s  destinations=[%s]\n", src.ID, strings.Join(src.Destinations, ","))
					}
					return nil
				})
			})
		},
	}
}

func newSourcesAddCommand(rootOpts *RootOptions) *cobra.Command {
	var noConnections bool
	cmd := &cobra.Command{
		Use:   "add <file|->",
		Short: "Add a source from a JSON document",
		Long: `Add a source. Destinations listed in its "destinations" field get the
new source added to their sources, unless --no-connections is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var src model.Source
			if err := readDocument(cmd, args[0], &src); err != nil {
				return err
			}
			return rootOpts.withSession(cmd, func(ctx context.Context, s *Session) error {
				if err := s.requirePulled(); err != nil {
					return err
				}
				added, err := s.Registry.Sources.Add(ctx, src, !noConnections)
				if err != nil {
					return mutationFailed(rootOpts.Formatter(cmd), "add source", err)
				}
				return rootOpts.Formatter(cmd).Success(added, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "Added source %s\n", added.ID)
					return err
				})
			})
		},
	}
	cmd.Flags().BoolVar(&noConnections, "no-connections", false, "do not update linked destinations")
	return cmd
}

func newSourcesDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a source and unlink it from its destinations",
		Long: `Delete a source. A source the remote no longer has still gets unlinked
from every destination that lists it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withSession(cmd, func(ctx context.Context, s *Session) error {
				if err := s.requirePulled(); err != nil {
					return err
				}
				id := args[0]
				if err := s.Registry.Sources.Delete(ctx, id); err != nil {
					return mutationFailed(rootOpts.Formatter(cmd), "delete source "+id, err)
				}
				return rootOpts.Formatter(cmd).Success(map[string]string{"deleted": id}, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "Deleted source %s\n", id)
					return err
				})
			})
		},
	}
}
