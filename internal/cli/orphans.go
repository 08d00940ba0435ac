package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/entitysync/internal/orphans"
)

// OrphansResult is the output of the orphans command.
type OrphansResult struct {
	Warnings []orphans.Warning    `json:"warnings"`
	Counts   map[orphans.Kind]int `json:"counts"`
}

// NewOrphansCommand creates the orphans command.
func NewOrphansCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "orphans",
		Short: "Report entities with missing or inconsistent links",
		Long: `Report keys no destination accepts, destinations without sources,
sources without destinations, and links that point at missing entities
or disagree between the two sides.

Exit codes:
  0 - No inconsistencies (configuration gaps may still be listed)
  1 - Dangling references or edge disagreements were found`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withSession(cmd, func(ctx context.Context, s *Session) error {
				if err := s.requirePulled(); err != nil {
					return err
				}
				return runOrphans(rootOpts.Formatter(cmd), s)
			})
		},
	}
}

func runOrphans(out *OutputFormatter, s *Session) error {
	warnings := orphans.Detect(s.Registry.Snapshot())
	if warnings == nil {
		warnings = []orphans.Warning{}
	}
	result := OrphansResult{Warnings: warnings, Counts: orphans.Count(warnings)}

	if orphans.HasErrors(warnings) {
		msg := "link inconsistencies found"
		if out.Format == "json" {
			if err := out.Error(CodeOrphans, msg, result, nil); err != nil {
				return err
			}
		} else {
			writeWarnings(out.Writer, warnings)
		}
		return NewExitError(ExitFailure, msg)
	}

	return out.Success(result, func(w io.Writer) error {
		if len(warnings) == 0 {
			_, err := fmt.Fprintln(w, "No orphans.")
			return err
		}
		writeWarnings(w, warnings)
		return nil
	})
}

func writeWarnings(w io.Writer, warnings []orphans.Warning) {
	for _, warn := range warnings {
		fmt.Fprintf(w, "%-7s %-27s %s\n", warn.Kind.Severity(), warn.Kind, warn.Message)
	}
}
