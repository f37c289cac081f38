package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/corpusindex/corpusindex/internal/async"
	"github.com/corpusindex/corpusindex/internal/httpapi"
)

var flagServeWatch bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&flagServeWatch, "watch", false, "also auto-index the configured include paths while serving")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var autoIndexer *async.AutoIndexer
	if flagServeWatch {
		autoIndexer, err = a.newAutoIndexer()
		if err != nil {
			return fmt.Errorf("build auto-indexer: %w", err)
		}
		if err := autoIndexer.Start(ctx, a.cfg.Paths.Include); err != nil {
			return fmt.Errorf("start auto-indexer: %w", err)
		}
		defer autoIndexer.Stop()
	}

	handler := httpapi.NewRouter(httpapi.Deps{
		Indexer:  a.orch,
		Searcher: a.engine,
		Metadata: a.metadata,
	})

	addr := net.JoinHostPort(a.cfg.Server.Host, fmt.Sprintf("%d", a.cfg.Server.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("serve: listening", slog.String("addr", addr))
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
