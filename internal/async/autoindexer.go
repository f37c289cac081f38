package async

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/corpusindex/corpusindex/internal/store"
	"github.com/corpusindex/corpusindex/internal/watcher"
)

// fileIndexer is the subset of index.Orchestrator the auto-indexer needs,
// narrowed so tests can substitute a fake.
type fileIndexer interface {
	IndexFile(ctx context.Context, path string) (*store.Document, error)
	DeleteByPath(ctx context.Context, path string) error
}

// eventWatcher is the subset of HybridWatcher the auto-indexer needs.
// HybridWatcher's Events() returns batched []FileEvent (debouncing coalesces
// bursts into batches), which is why this isn't simply watcher.Watcher.
type eventWatcher interface {
	Start(ctx context.Context, path string) error
	Stop() error
	Events() <-chan []watcher.FileEvent
	Errors() <-chan error
}

// AutoIndexerConfig wires a watcher and a task queue to an Orchestrator.
type AutoIndexerConfig struct {
	Watcher eventWatcher
	Queue   *TaskQueue
	Indexer fileIndexer
}

// AutoIndexer maps watcher events onto Task Queue entries per the fixed
// kind mapping: created -> index, modified -> update, deleted -> delete.
type AutoIndexer struct {
	watcher eventWatcher
	queue   *TaskQueue
	indexer fileIndexer

	cancel context.CancelFunc
	done   chan struct{}
}

// NewAutoIndexer creates an auto-indexer around the given watcher, queue,
// and orchestrator. The queue's handler is set to dispatch to the
// orchestrator; any handler already set on cfg.Queue is replaced.
func NewAutoIndexer(cfg AutoIndexerConfig) *AutoIndexer {
	a := &AutoIndexer{
		watcher: cfg.Watcher,
		queue:   cfg.Queue,
		indexer: cfg.Indexer,
		done:    make(chan struct{}),
	}
	a.queue.handler = a.handle
	return a
}

// Start brings the watcher and queue up and begins pumping watcher events
// into the queue as tasks.
func (a *AutoIndexer) Start(ctx context.Context, paths []string) error {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.queue.Start(ctx)

	for _, path := range paths {
		if err := a.watcher.Start(ctx, path); err != nil {
			cancel()
			return fmt.Errorf("start watcher for %s: %w", path, err)
		}
	}

	go a.pump(ctx)
	return nil
}

// Stop tears the pump, watcher, and queue down in reverse order and waits
// for the pump goroutine to exit.
func (a *AutoIndexer) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	_ = a.watcher.Stop()
	a.queue.Stop()
	<-a.done
}

func (a *AutoIndexer) pump(ctx context.Context) {
	defer close(a.done)

	for {
		select {
		case <-ctx.Done():
			return
		case events, ok := <-a.watcher.Events():
			if !ok {
				return
			}
			for _, event := range events {
				a.enqueue(event)
			}
		case err, ok := <-a.watcher.Errors():
			if !ok {
				continue
			}
			slog.Warn("watcher reported an error", slog.String("error", err.Error()))
		}
	}
}

func (a *AutoIndexer) enqueue(event watcher.FileEvent) {
	var kind TaskKind
	switch event.Operation {
	case watcher.OpCreate:
		kind = TaskIndex
	case watcher.OpModify:
		kind = TaskUpdate
	case watcher.OpDelete:
		kind = TaskDelete
	default:
		return
	}

	if _, err := a.queue.Enqueue(kind, event.Path); err != nil {
		slog.Warn("failed to enqueue watcher event",
			slog.String("path", event.Path), slog.String("kind", string(kind)), slog.String("error", err.Error()))
	}
}

// handle is the TaskHandler registered on the queue; it dispatches to the
// orchestrator by task kind.
func (a *AutoIndexer) handle(ctx context.Context, task *Task) (any, error) {
	switch task.Kind {
	case TaskIndex, TaskUpdate:
		// Content-hash dedup in the orchestrator short-circuits update tasks
		// for files that have not actually changed.
		return a.indexer.IndexFile(ctx, task.Path)
	case TaskDelete:
		// No dependent-row cleanup is attempted beyond what DeleteByPath
		// already cascades; a path with nothing indexed is a no-op.
		return nil, a.indexer.DeleteByPath(ctx, task.Path)
	default:
		return nil, fmt.Errorf("unknown task kind %q", task.Kind)
	}
}
