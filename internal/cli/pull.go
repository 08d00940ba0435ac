package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// CollectionStatus is the load state of one collection after a pull.
type CollectionStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Count  int    `json:"count"`
	Hidden int    `json:"hidden,omitempty"`
	Error  string `json:"error,omitempty"`
}

// PullResult is the output of the pull command.
type PullResult struct {
	Workspace   string             `json:"workspace"`
	Collections []CollectionStatus `json:"collections"`
}

// NewPullCommand creates the pull command.
func NewPullCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pull",
		Short: "Load every collection and report its state",
		Long: `Load keys, destinations and sources from the configured remote.

Exits 1 when any collection fails to load; the other collections are
still reported.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withSession(cmd, func(ctx context.Context, s *Session) error {
				return runPull(rootOpts.Formatter(cmd), s)
			})
		},
	}
}

func runPull(out *OutputFormatter, s *Session) error {
	reg := s.Registry
	result := PullResult{
		Workspace: s.Config.Workspace,
		Collections: []CollectionStatus{
			{
				Name:   reg.Keys.Name(),
				Status: string(reg.Keys.Status()),
				Count:  reg.Keys.Len(),
				Error:  reg.Keys.ErrorMessage(),
			},
			{
				Name:   reg.Sinks.Name(),
				Status: string(reg.Sinks.Status()),
				Count:  len(reg.Sinks.List()),
				Hidden: len(reg.Sinks.ListHidden()),
				Error:  reg.Sinks.ErrorMessage(),
			},
			{
				Name:   reg.Sources.Name(),
				Status: string(reg.Sources.Status()),
				Count:  reg.Sources.Len(),
				Error:  reg.Sources.ErrorMessage(),
			},
		},
	}

	if err := reg.Err(); err != nil {
		if ferr := out.Error(CodeRemote, "pull failed", result, err.Error()); ferr != nil {
			return ferr
		}
		return WrapExitError(ExitFailure, "pull failed", err)
	}

	return out.Success(result, func(w io.Writer) error {
		fmt.Fprintf(w, "Workspace %s\n", result.Workspace)
		for _, c := range result.Collections {
			fmt.Fprintf(w, "  %-13s %-8s %d", c.Name, c.Status, c.Count)
			if c.Hidden > 0 {
				fmt.Fprintf(w, " (+%d hidden)", c.Hidden)
			}
			fmt.Fprintln(w)
		}
		return nil
	})
}
