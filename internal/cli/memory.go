package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/harun/synmem/pkg/query"
	"github.com/spf13/cobra"
)

type storeOptions struct {
	params query.StoreParams
	file   string
}

func newStoreCmd(root *rootOptions) *cobra.Command {
	opts := &storeOptions{}

	cmd := &cobra.Command{
		Use:   "store [content]",
		Short: "Store a memory",
		Long: `Store a memory in both indices. Content comes from the argument,
or from --file (use "-" for stdin). Storing an existing id replaces it.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readContent(cmd, args, opts.file)
			if err != nil {
				return err
			}
			opts.params.Content = content

			ctx, s, err := root.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			stored, err := s.Service.StoreMemory(ctx, opts.params)
			if err != nil {
				return err
			}
			if root.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), stored)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored memory %s\n", stored.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.params.ID, "id", "", "memory id (generated when empty)")
	cmd.Flags().StringVar(&opts.params.Source, "source", "", "source reference, usually the page URL")
	cmd.Flags().StringVar(&opts.params.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.params.ContentType, "type", "", "content type (text, table, article, ...)")
	cmd.Flags().StringSliceVar(&opts.params.Tags, "tag", nil, "tag, repeatable")
	cmd.Flags().StringToStringVar(&opts.params.Metadata, "meta", nil, "metadata key=value, repeatable")
	cmd.Flags().StringVar(&opts.file, "file", "", `read content from a file, "-" for stdin`)
	_ = cmd.MarkFlagRequired("source")

	return cmd
}

func readContent(cmd *cobra.Command, args []string, file string) (string, error) {
	switch {
	case len(args) == 1 && file != "":
		return "", fmt.Errorf("give content either as an argument or with --file, not both")
	case len(args) == 1:
		return args[0], nil
	case file == "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("failed to read content file: %w", err)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("content is required")
	}
}

func newGetCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Print a stored memory as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, s, err := root.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			m, err := s.Service.GetMemory(ctx, args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), m)
		},
	}
}

func newDeleteCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a memory from both indices",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, s, err := root.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			existed, err := s.Service.DeleteMemory(ctx, args[0])
			if err != nil {
				return err
			}
			if root.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{"id": args[0], "deleted": existed})
			}
			if existed {
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted memory %s\n", args[0])
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Memory %s not found\n", args[0])
			}
			return nil
		},
	}
}

func newStatsCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show storage statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, s, err := root.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			stats, err := s.Service.Stats(ctx)
			if err != nil {
				return err
			}
			if root.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), stats)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Engine:    %s\n", stats.Engine)
			fmt.Fprintf(out, "Memories:  %d\n", stats.Count)
			fmt.Fprintf(out, "Dimension: %d\n", stats.Dimension)
			if stats.Model != "" {
				fmt.Fprintf(out, "Model:     %s\n", stats.Model)
			}
			if stats.Path != "" {
				fmt.Fprintf(out, "Path:      %s\n", stats.Path)
			}
			return nil
		},
	}
}

// oneLine collapses whitespace so snippets print on a single line
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
