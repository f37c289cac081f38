package async

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskKind identifies what kind of work a Task represents.
type TaskKind string

const (
	TaskIndex  TaskKind = "index"
	TaskDelete TaskKind = "delete"
	TaskUpdate TaskKind = "update"
)

// TaskStatus tracks a Task through its lifecycle.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Task is a unit of indexing work submitted by the watcher or the CLI.
type Task struct {
	ID          string
	Kind        TaskKind
	Path        string
	Status      TaskStatus
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	Error       string
	Result      any
	RetryCount  int
	MaxRetries  int
}

// QueueStats summarizes the queue's current task counts.
type QueueStats struct {
	Pending    int
	Processing int
	Completed  int
	Failed     int
}

// ErrQueueFull is returned by Enqueue when the queue is at capacity.
var ErrQueueFull = errors.New("task queue is at capacity")

// TaskHandler performs the work named by a Task. An error triggers the
// queue's retry policy; the returned value is stashed on Task.Result.
type TaskHandler func(ctx context.Context, task *Task) (any, error)

// TaskQueueConfig configures a TaskQueue.
type TaskQueueConfig struct {
	// Capacity bounds how many tasks may be pending at once.
	// Zero means 10,000.
	Capacity int

	// PollInterval is how long an idle worker sleeps between checks for
	// new pending work. Zero means 1 second.
	PollInterval time.Duration

	// MaxRetries is the default retry budget for a task that has none of
	// its own. Zero means 3.
	MaxRetries int

	// Workers is the number of concurrent worker loops. Zero means 1.
	Workers int
}

func (c TaskQueueConfig) withDefaults() TaskQueueConfig {
	if c.Capacity <= 0 {
		c.Capacity = 10000
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	return c
}

// TaskQueue is a bounded, deduplicating, retrying FIFO queue of Tasks.
// A pending task for the same (Kind, Path) pair is never duplicated; the
// existing pending task is left in place instead.
type TaskQueue struct {
	cfg     TaskQueueConfig
	handler TaskHandler

	mu          sync.Mutex
	tasks       map[string]*Task
	pendingIDs  []string
	pendingKeys map[string]string // "kind|path" -> task ID

	wake   chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewTaskQueue creates a queue that dispatches dequeued tasks to handler.
func NewTaskQueue(cfg TaskQueueConfig, handler TaskHandler) *TaskQueue {
	return &TaskQueue{
		cfg:         cfg.withDefaults(),
		handler:     handler,
		tasks:       make(map[string]*Task),
		pendingKeys: make(map[string]string),
		wake:        make(chan struct{}, 1),
	}
}

func dedupeKey(kind TaskKind, path string) string {
	return string(kind) + "|" + path
}

// Enqueue adds a task for kind/path, unless a pending task for the same
// pair already exists, in which case that task is returned unchanged.
func (q *TaskQueue) Enqueue(kind TaskKind, path string) (*Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := dedupeKey(kind, path)
	if id, ok := q.pendingKeys[key]; ok {
		return q.tasks[id], nil
	}

	if len(q.pendingIDs) >= q.cfg.Capacity {
		return nil, ErrQueueFull
	}

	task := &Task{
		ID:         uuid.NewString(),
		Kind:       kind,
		Path:       path,
		Status:     TaskPending,
		CreatedAt:  time.Now(),
		MaxRetries: q.cfg.MaxRetries,
	}

	q.tasks[task.ID] = task
	q.pendingIDs = append(q.pendingIDs, task.ID)
	q.pendingKeys[key] = task.ID

	select {
	case q.wake <- struct{}{}:
	default:
	}

	return task, nil
}

// Get returns the task with the given ID, if known.
func (q *TaskQueue) Get(id string) (*Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[id]
	return t, ok
}

// Stats reports current task counts by status.
func (q *TaskQueue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	var s QueueStats
	for _, t := range q.tasks {
		switch t.Status {
		case TaskPending:
			s.Pending++
		case TaskProcessing:
			s.Processing++
		case TaskCompleted:
			s.Completed++
		case TaskFailed:
			s.Failed++
		}
	}
	return s
}

// Start launches the worker loops. Safe to call once; call Stop before a
// second Start.
func (q *TaskQueue) Start(ctx context.Context) {
	q.stopCh = make(chan struct{})
	ctx, cancel := context.WithCancel(ctx)

	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			q.workerLoop(ctx)
		}()
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		select {
		case <-q.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()
}

// Stop interrupts the workers and waits for in-flight tasks to return. No
// further tasks are dequeued once Stop has been called.
func (q *TaskQueue) Stop() {
	if q.stopCh == nil {
		return
	}
	close(q.stopCh)
	q.wg.Wait()
}

func (q *TaskQueue) workerLoop(ctx context.Context) {
	timer := time.NewTimer(q.cfg.PollInterval)
	defer timer.Stop()

	for {
		select {
		case <-q.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		task, ok := q.dequeue()
		if !ok {
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(q.cfg.PollInterval)
			select {
			case <-q.stopCh:
				return
			case <-ctx.Done():
				return
			case <-q.wake:
				continue
			case <-timer.C:
				continue
			}
		}

		q.process(ctx, task)
	}
}

// dequeue pops the oldest pending task, marking it processing.
func (q *TaskQueue) dequeue() (*Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pendingIDs) == 0 {
		return nil, false
	}

	id := q.pendingIDs[0]
	q.pendingIDs = q.pendingIDs[1:]

	task := q.tasks[id]
	delete(q.pendingKeys, dedupeKey(task.Kind, task.Path))

	now := time.Now()
	task.Status = TaskProcessing
	task.StartedAt = &now
	return task, true
}

func (q *TaskQueue) process(ctx context.Context, task *Task) {
	result, err := q.handler(ctx, task)

	q.mu.Lock()
	defer q.mu.Unlock()

	if err != nil {
		task.RetryCount++
		if task.RetryCount < task.MaxRetries {
			task.Status = TaskPending
			task.StartedAt = nil
			task.Error = err.Error()
			q.pendingIDs = append(q.pendingIDs, task.ID)
			q.pendingKeys[dedupeKey(task.Kind, task.Path)] = task.ID
			return
		}
		now := time.Now()
		task.Status = TaskFailed
		task.CompletedAt = &now
		task.Error = err.Error()
		return
	}

	now := time.Now()
	task.Status = TaskCompleted
	task.CompletedAt = &now
	task.Result = result
}
