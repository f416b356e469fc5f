package tasks

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// EventKind tags one line of a task's history.
type EventKind string

const (
	EventAdded   EventKind = "added"
	EventUpdated EventKind = "updated"
	EventSkipped EventKind = "skipped"
	EventError   EventKind = "error"
	EventInfo    EventKind = "info"
)

// Event is one append-only entry in a task's history. Item names what was
// processed; Outcome carries the reason or detail text.
type Event struct {
	Kind    EventKind `json:"kind"`
	Item    string    `json:"item,omitempty"`
	Outcome string    `json:"outcome,omitempty"`
}

// Task tracks one long-running operation. It is ephemeral and process-local:
// the catalog and the ledger are the system of record, a task only lets a
// polling caller watch an in-flight run.
type Task struct {
	ID        string      `json:"id"`
	Status    Status      `json:"status"`
	Progress  int         `json:"progress"`
	Events    []Event     `json:"-"`
	Result    interface{} `json:"result,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// maxRetainedTasks bounds the in-memory task table. The worker creates a
// task on every scheduled run, so without eviction a long-lived process
// would grow without bound. Terminal tasks beyond the cap are evicted
// oldest-first on create; active tasks are never evicted.
const maxRetainedTasks = 50

// Registry is an in-memory task table. Each task has a single writer (the
// job running it) and any number of polling readers; the registry serializes
// access so readers always see a consistent snapshot.
type Registry struct {
	mu          sync.RWMutex
	tasks       map[string]*Task
	subscribers map[string]map[int]func(Task)
	nextSubID   int
}

func NewRegistry() *Registry {
	return &Registry{
		tasks:       map[string]*Task{},
		subscribers: map[string]map[int]func(Task){},
	}
}

// Create registers a new pending task and returns its id.
func (r *Registry) Create() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.createLocked()
}

// CreateIfIdle registers a new pending task unless another task is pending
// or running. The check and the insert hold the same lock, so concurrent
// callers can't both start a run.
func (r *Registry) CreateIfIdle() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, task := range r.tasks {
		if task.Status == StatusPending || task.Status == StatusRunning {
			return "", false
		}
	}
	return r.createLocked(), true
}

func (r *Registry) createLocked() string {
	id := uuid.New().String()
	now := time.Now()

	r.tasks[id] = &Task{
		ID:        id,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.pruneLocked()
	return id
}

func (r *Registry) pruneLocked() {
	for len(r.tasks) > maxRetainedTasks {
		var oldest *Task
		for _, task := range r.tasks {
			if task.Status == StatusPending || task.Status == StatusRunning {
				continue
			}
			if oldest == nil || task.UpdatedAt.Before(oldest.UpdatedAt) {
				oldest = task
			}
		}
		if oldest == nil {
			return
		}
		delete(r.tasks, oldest.ID)
		delete(r.subscribers, oldest.ID)
	}
}

// UpdateStatus transitions a task. A non-empty message is appended to the
// task's history as an info or error event depending on the new status.
func (r *Registry) UpdateStatus(id string, status Status, message string) error {
	r.mu.Lock()
	task, ok := r.tasks[id]
	if !ok {
		r.mu.Unlock()
		return errors.Errorf("unknown task %q", id)
	}
	task.Status = status
	task.UpdatedAt = time.Now()
	if message != "" {
		kind := EventInfo
		if status == StatusFailed {
			kind = EventError
		}
		task.Events = append(task.Events, Event{Kind: kind, Outcome: message})
	}
	if status == StatusCompleted {
		task.Progress = 100
	}
	snapshot := snapshotLocked(task)
	subs := r.subscribersLocked(id)
	r.mu.Unlock()

	for _, fn := range subs {
		fn(snapshot)
	}
	return nil
}

// UpdateProgress advances a task's progress, optionally appending an event
// and replacing the result payload.
func (r *Registry) UpdateProgress(id string, progress int, event *Event, result interface{}) error {
	r.mu.Lock()
	task, ok := r.tasks[id]
	if !ok {
		r.mu.Unlock()
		return errors.Errorf("unknown task %q", id)
	}
	if progress >= 0 {
		if progress > 100 {
			progress = 100
		}
		task.Progress = progress
	}
	if event != nil {
		task.Events = append(task.Events, *event)
	}
	if result != nil {
		task.Result = result
	}
	task.UpdatedAt = time.Now()
	snapshot := snapshotLocked(task)
	subs := r.subscribersLocked(id)
	r.mu.Unlock()

	for _, fn := range subs {
		fn(snapshot)
	}
	return nil
}

// Get returns a snapshot of the task, or false when the id is unknown.
func (r *Registry) Get(id string) (Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	task, ok := r.tasks[id]
	if !ok {
		return Task{}, false
	}
	return snapshotLocked(task), true
}

// HasActive reports whether any task is currently pending or running. The
// sync handlers use it to refuse overlapping runs.
func (r *Registry) HasActive() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, task := range r.tasks {
		if task.Status == StatusPending || task.Status == StatusRunning {
			return true
		}
	}
	return false
}

// Subscribe registers a callback invoked synchronously on every update to
// the given task. The returned token is passed to Unsubscribe.
func (r *Registry) Subscribe(id string, fn func(Task)) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.subscribers[id] == nil {
		r.subscribers[id] = map[int]func(Task){}
	}
	r.nextSubID++
	r.subscribers[id][r.nextSubID] = fn
	return r.nextSubID
}

func (r *Registry) Unsubscribe(id string, token int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.subscribers[id], token)
	if len(r.subscribers[id]) == 0 {
		delete(r.subscribers, id)
	}
}

func (r *Registry) subscribersLocked(id string) []func(Task) {
	subs := make([]func(Task), 0, len(r.subscribers[id]))
	for _, fn := range r.subscribers[id] {
		subs = append(subs, fn)
	}
	return subs
}

func snapshotLocked(task *Task) Task {
	snapshot := *task
	snapshot.Events = append([]Event(nil), task.Events...)
	return snapshot
}
