package cmd

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch <path>...",
	Short: "Watch paths and auto-index changes until interrupted",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	autoIndexer, err := a.newAutoIndexer()
	if err != nil {
		return fmt.Errorf("build auto-indexer: %w", err)
	}
	if err := autoIndexer.Start(ctx, args); err != nil {
		return fmt.Errorf("start watching: %w", err)
	}
	defer autoIndexer.Stop()

	slog.Info("watch: running", slog.Any("paths", args))
	<-ctx.Done()
	fmt.Fprintln(cmd.OutOrStdout(), "stopping")
	return nil
}
