package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/harun/synmem/pkg/memory"
	"github.com/harun/synmem/pkg/query"
	"github.com/spf13/cobra"
)

func newSearchCmd(root *rootOptions) *cobra.Command {
	params := query.SearchParams{}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search memories",
		Long: `Search memories. The default hybrid mode fuses full-text relevance with
semantic similarity and falls back to full-text only when the embedding
provider is unavailable.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params.Query = strings.Join(args, " ")

			ctx, s, err := root.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			resp, err := s.Service.Search(ctx, params)
			if err != nil {
				return err
			}
			if root.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), resp)
			}

			out := cmd.OutOrStdout()
			if resp.Degraded {
				fmt.Fprintf(out, "Degraded results (%s)\n", strings.Join(resp.Reasons, ", "))
			}
			printResults(out, resp.Results)
			return nil
		},
	}

	cmd.Flags().StringVar(&params.Mode, "mode", query.ModeHybrid, "search mode: hybrid, fts or vector")
	cmd.Flags().IntVarP(&params.Limit, "limit", "n", query.DefaultLimit, "maximum number of results")
	cmd.Flags().StringSliceVar(&params.ContentTypes, "type", nil, "only these content types, repeatable")
	cmd.Flags().StringSliceVar(&params.Tags, "tag", nil, "only memories carrying all these tags, repeatable")

	return cmd
}

func newRecentCmd(root *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List the most recently stored memories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, s, err := root.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			results, err := s.Service.GetRecent(ctx, limit)
			if err != nil {
				return err
			}
			if root.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), results)
			}
			printResults(cmd.OutOrStdout(), results)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", query.DefaultLimit, "maximum number of memories")

	return cmd
}

func printResults(out io.Writer, results []memory.SearchResult) {
	if len(results) == 0 {
		fmt.Fprintln(out, "No memories found")
		return
	}
	for i, r := range results {
		label := r.Title
		if label == "" {
			label = r.MemoryID
		}
		if r.Source == memory.SourceRecent {
			fmt.Fprintf(out, "%d. %s (%s) %s\n", i+1, label, r.SourceRef, r.UpdatedAt.Local().Format("2006-01-02 15:04"))
		} else {
			fmt.Fprintf(out, "%d. [%.3f %s] %s (%s)\n", i+1, r.Score, r.Source, label, r.SourceRef)
		}
		fmt.Fprintf(out, "   %s\n", oneLine(r.Snippet))
	}
}
