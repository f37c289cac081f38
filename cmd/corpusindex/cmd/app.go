package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/corpusindex/corpusindex/internal/async"
	"github.com/corpusindex/corpusindex/internal/config"
	"github.com/corpusindex/corpusindex/internal/embed"
	"github.com/corpusindex/corpusindex/internal/extract"
	"github.com/corpusindex/corpusindex/internal/index"
	"github.com/corpusindex/corpusindex/internal/logging"
	"github.com/corpusindex/corpusindex/internal/search"
	"github.com/corpusindex/corpusindex/internal/store"
	"github.com/corpusindex/corpusindex/internal/watcher"
)

// app bundles the process-wide singletons every subcommand builds against:
// the two storage engines, the search engine, and the indexing orchestrator.
// Per SPEC_FULL.md §5, the stores are singletons within the process; every
// subcommand opens its own app rather than sharing one across invocations.
type app struct {
	cfg *config.Config

	metadata     store.MetadataStore
	bm25         store.BM25Index
	vector       *store.HNSWStore
	imageVectors *store.HNSWStore
	engine       *search.Engine
	orch         *index.Orchestrator

	vectorPath      string
	imageVectorPath string
	closeLog        func()
}

// newApp wires every component from cfg. Embedding/VLM connectivity
// failures are not fatal to the whole app: they are logged, an unreachable
// embedder is replaced by the static embedder, and an unreachable VLM is
// left nil, matching §7's "best-effort indexing" policy.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logCfg := logging.DefaultConfig()
	if cfg.Server.LogLevel != "" {
		logCfg.Level = cfg.Server.LogLevel
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return nil, fmt.Errorf("set up logging: %w", err)
	}
	slog.SetDefault(logger)

	dataDir := cfg.Server.DataDir
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		cleanup()
		return nil, fmt.Errorf("create data dir %s: %w", dataDir, err)
	}

	metadata, err := store.NewSQLiteStore(filepath.Join(dataDir, "corpus.db"))
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("open metadata store: %w", err)
	}

	bm25, err := store.NewBM25IndexWithBackend(filepath.Join(dataDir, "fulltext"), store.DefaultBM25Config(), cfg.Search.BM25Backend)
	if err != nil {
		metadata.Close()
		cleanup()
		return nil, fmt.Errorf("open bm25 index: %w", err)
	}

	embedder, err := buildEmbedder(ctx, cfg)
	if err != nil {
		slog.Warn("embedding provider unavailable, falling back to static embedder",
			slog.String("error", err.Error()))
		embedder = embed.NewStaticEmbedder()
	}

	dimensions := cfg.Embeddings.Dimensions
	if dimensions <= 0 {
		dimensions = embedder.Dimensions()
	}
	vectorPath := filepath.Join(dataDir, "vectors.gob")
	vector, err := openVectorStore(dataDir, vectorPath, dimensions)
	if err != nil {
		bm25.Close()
		metadata.Close()
		cleanup()
		return nil, fmt.Errorf("open vector store: %w", err)
	}

	// Image descriptions are the vector store's second logical table; kept
	// in its own on-disk graph (and its own lock directory, since
	// LockDataDir takes one lock per directory) so images never contend
	// with chunks for HNSW build parameters.
	imageDataDir := filepath.Join(dataDir, "images")
	imageVectorPath := filepath.Join(imageDataDir, "vectors.gob")
	imageVectors, err := openVectorStore(imageDataDir, imageVectorPath, dimensions)
	if err != nil {
		vector.Close()
		bm25.Close()
		metadata.Close()
		cleanup()
		return nil, fmt.Errorf("open image vector store: %w", err)
	}

	engine, err := search.NewEngine(bm25, vector, embedder, metadata, search.EngineConfig{
		DefaultLimit: cfg.Search.MaxResults,
		MaxLimit:     100,
		RRFConstant:  cfg.Search.RRFConstant,
	}, search.WithImageVectors(imageVectors))
	if err != nil {
		imageVectors.Close()
		vector.Close()
		bm25.Close()
		metadata.Close()
		cleanup()
		return nil, fmt.Errorf("build search engine: %w", err)
	}

	registry, vlmFallback := buildExtractors(ctx, cfg)

	orch := index.NewOrchestrator(index.OrchestratorConfig{
		Metadata:     metadata,
		Engine:       engine,
		Extractors:   registry,
		VLMFallback:  vlmFallback,
		ChunkSize:    cfg.Search.ChunkSize,
		ChunkOverlap: cfg.Search.ChunkOverlap,
	})

	return &app{
		cfg:             cfg,
		metadata:        metadata,
		bm25:            bm25,
		vector:          vector,
		imageVectors:    imageVectors,
		engine:          engine,
		orch:            orch,
		vectorPath:      vectorPath,
		imageVectorPath: imageVectorPath,
		closeLog:        cleanup,
	}, nil
}

func buildEmbedder(ctx context.Context, cfg *config.Config) (embed.Embedder, error) {
	return embed.NewEmbedder(ctx, embed.ProviderOllama, cfg.Embeddings)
}

func openVectorStore(dataDir, vectorPath string, dimensions int) (*store.HNSWStore, error) {
	vsCfg := store.DefaultVectorStoreConfig(dimensions)
	vector, err := store.NewHNSWStore(vsCfg)
	if err != nil {
		return nil, err
	}
	if err := vector.LockDataDir(dataDir); err != nil {
		return nil, err
	}
	if err := vector.Load(vectorPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("vector store: failed to load existing graph, starting empty",
			slog.String("path", vectorPath), slog.String("error", err.Error()))
	}
	return vector, nil
}

// buildExtractors assembles the extractor registry and, when a VLM is
// reachable, the PDF VLM fallback engine. A missing VLM only disables the
// fallback; plain-text PDF extraction still works.
func buildExtractors(ctx context.Context, cfg *config.Config) (*extract.Registry, *index.VLMFallbackEngine) {
	deps := extract.Dependencies{MinCharsPerPage: cfg.PDF.MinCharsPerPage}

	vlmClient, err := embed.NewVLMClientFromConfig(ctx, cfg.Embeddings, cfg.PDF)
	if err != nil {
		slog.Warn("vlm client unavailable, image description and PDF VLM fallback disabled",
			slog.String("error", err.Error()))
	} else {
		deps.VLM = vlmClient
	}

	deps.Transcriber = extract.NewHTTPTranscriber("", 5*time.Minute)

	registry := extract.DefaultRegistry(deps)

	var vlmFallback *index.VLMFallbackEngine
	if vlmClient != nil && cfg.PDF.VLMFallback {
		vlmFallback = index.NewVLMFallbackEngine(vlmClient, index.VLMFallbackConfig{
			DPI:         float64(cfg.PDF.VLMDPI),
			PageTimeout: cfg.PDF.VLMTimeout,
			MaxPages:    cfg.PDF.VLMMaxPages,
			Workers:     cfg.PDF.VLMWorkers,
		})
	}
	return registry, vlmFallback
}

// newWatcher builds the fsnotify-backed watcher with ignore patterns drawn
// from the paths configuration.
func (a *app) newWatcher() (*watcher.HybridWatcher, error) {
	debounce, err := time.ParseDuration(a.cfg.Performance.WatchDebounce)
	if err != nil || debounce <= 0 {
		debounce = 200 * time.Millisecond
	}
	return watcher.NewHybridWatcher(watcher.Options{
		DebounceWindow: debounce,
		IgnorePatterns: a.cfg.Paths.Exclude,
	})
}

// newAutoIndexer wires a fresh watcher and task queue to a's orchestrator.
func (a *app) newAutoIndexer() (*async.AutoIndexer, error) {
	w, err := a.newWatcher()
	if err != nil {
		return nil, fmt.Errorf("build watcher: %w", err)
	}
	queue := async.NewTaskQueue(async.TaskQueueConfig{
		Capacity:   a.cfg.Performance.QueueCapacity,
		MaxRetries: a.cfg.Performance.MaxRetries,
		Workers:    a.cfg.Performance.IndexWorkers,
	}, nil)
	return async.NewAutoIndexer(async.AutoIndexerConfig{
		Watcher: w,
		Queue:   queue,
		Indexer: a.orch,
	}), nil
}

// Close saves both vector graphs, then closes the search engine (which closes
// the bm25 index, both vector stores and the metadata store, in that order),
// calls the metadata store's Close once more, and closes the log file.
func (a *app) Close() error {
	var errs []error
	if err := a.vector.Save(a.vectorPath); err != nil {
		errs = append(errs, fmt.Errorf("save vector store: %w", err))
	}
	if err := a.imageVectors.Save(a.imageVectorPath); err != nil {
		errs = append(errs, fmt.Errorf("save image vector store: %w", err))
	}
	if err := a.engine.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close engine: %w", err))
	}
	if err := a.metadata.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close metadata store: %w", err))
	}
	if a.closeLog != nil {
		a.closeLog()
	}
	if len(errs) > 0 {
		return fmt.Errorf("app close: %v", errs)
	}
	return nil
}
