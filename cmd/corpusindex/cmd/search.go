package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/corpusindex/corpusindex/internal/search"
	"github.com/corpusindex/corpusindex/internal/store"
)

var (
	flagSearchLimit     int
	flagSearchMediaType string
	flagSearchBM25Only  bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the indexed corpus",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().IntVar(&flagSearchLimit, "limit", 10, "maximum number of results")
	searchCmd.Flags().StringVar(&flagSearchMediaType, "media-type", "", "restrict results to document, image, audio, or video")
	searchCmd.Flags().BoolVar(&flagSearchBM25Only, "bm25-only", false, "keyword-only search, skipping the embedder")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	query := strings.Join(args, " ")

	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	opts := search.SearchOptions{
		Limit:    flagSearchLimit,
		BM25Only: flagSearchBM25Only,
	}
	if flagSearchMediaType != "" {
		opts.Filter.MediaTypes = []store.MediaType{store.MediaType(flagSearchMediaType)}
	}

	results, err := a.engine.Search(ctx, query, opts)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if len(results) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no results")
		return nil
	}

	out := cmd.OutOrStdout()
	for i, r := range results {
		fmt.Fprintf(out, "%2d. [%.3f] %s\n", i+1, r.Score, r.Chunk.Path)
		fmt.Fprintf(out, "    %s\n", truncate(r.Chunk.Text, 160))
	}
	return nil
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
