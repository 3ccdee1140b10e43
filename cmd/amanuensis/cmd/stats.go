package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanuensis/internal/output"
)

func newStatsCmd(g *globals) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats [index]",
		Short: "Show document and batch counts for an index",
		Long: `Show how many documents an index holds and what the batch journal
recorded for it. Defaults to the configured index.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := g.cfg.Index.Name
			if len(args) == 1 {
				name = args[0]
			}

			b, release, err := g.openBackend()
			if err != nil {
				return err
			}
			defer release()

			stats, err := b.Stats(cmd.Context(), name)
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				return out.JSON(stats)
			}

			last := "never"
			if !stats.Journal.LastAppliedAt.IsZero() {
				last = stats.Journal.LastAppliedAt.Local().Format(time.RFC3339)
			}
			out.Statusf("", "Index %s", stats.Name)
			out.KeyValues(
				output.Field{Key: "documents", Value: stats.Documents},
				output.Field{Key: "batches", Value: stats.Journal.Batches},
				output.Field{Key: "failed batches", Value: stats.Journal.Failed},
				output.Field{Key: "adds", Value: stats.Journal.Adds},
				output.Field{Key: "deletes by query", Value: stats.Journal.DeletesByQuery},
				output.Field{Key: "deletes by term", Value: stats.Journal.DeletesByTerm},
				output.Field{Key: "documents deleted", Value: stats.Journal.Deleted},
				output.Field{Key: "last batch", Value: last},
			)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
