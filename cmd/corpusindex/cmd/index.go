package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var flagRecursive bool

var indexCmd = &cobra.Command{
	Use:   "index <path>",
	Short: "Index a file or directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&flagRecursive, "recursive", true, "descend into subdirectories when path is a directory")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	path := args[0]

	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	if info.IsDir() {
		docs, errs := a.orch.IndexDirectory(ctx, path, flagRecursive)
		for _, e := range errs {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", e)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "indexed %d file(s)\n", len(docs))
		return nil
	}

	doc, err := a.orch.IndexFile(ctx, path)
	if err != nil {
		return fmt.Errorf("index %s: %w", path, err)
	}
	if doc == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "%s skipped (missing, too large, unsupported, or no extractable text)\n", path)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "indexed %s (%s, %d bytes)\n", doc.Path, doc.MediaType, doc.Size)
	return nil
}
