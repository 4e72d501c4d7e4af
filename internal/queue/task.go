package queue

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"slices"
	"sync"
)

// Task handles jobs of one name with a typed payload.
type Task[P any] interface {
	Name() string
	Handle(ctx context.Context, payload P) error
}

// executor is the type-erased form of a Task.
type executor interface {
	Execute(ctx context.Context, payload json.RawMessage) error
}

// Registry maps task names to their handlers.
type Registry struct {
	executors map[string]executor
	mu        sync.RWMutex
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]executor)}
}

// Register adds task to r, replacing any task with the same name.
func Register[P any](r *Registry, task Task[P]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[task.Name()] = &taskWrapper[P]{task: task}
}

// Names returns the registered task names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.executors))
}

func (r *Registry) execute(ctx context.Context, name string, payload json.RawMessage) error {
	r.mu.RLock()
	exec, ok := r.executors[name]
	r.mu.RUnlock()
	if !ok {
		return ErrUnknownTask
	}
	return exec.Execute(ctx, payload)
}

type taskWrapper[P any] struct {
	task Task[P]
}

func (w *taskWrapper[P]) Execute(ctx context.Context, raw json.RawMessage) error {
	var payload P
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			return errors.Join(ErrInvalidPayload, err)
		}
	}
	return w.task.Handle(ctx, payload)
}
