package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/slok/scapd/internal/log"
	"github.com/slok/scapd/internal/model"
	"github.com/slok/scapd/internal/storage"
)

// RepositoryConfig is the configuration for the memory repository.
type RepositoryConfig struct {
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.Memory"})
	return nil
}

// Repository is an in-memory implementation of storage.TaskRepository.
type Repository struct {
	tasks  map[int]model.Task
	mu     sync.RWMutex
	logger log.Logger
}

var _ storage.TaskRepository = &Repository{}

// NewRepository creates a new memory repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Repository{
		tasks:  make(map[int]model.Task),
		logger: cfg.Logger,
	}, nil
}

// ListTasks returns all tasks sorted by ID.
func (r *Repository) ListTasks(ctx context.Context) ([]model.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tasks := make([]model.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		tasks = append(tasks, t.Copy())
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })

	return tasks, nil
}

// GetTask retrieves a task by ID.
func (r *Repository) GetTask(ctx context.Context, id int) (*model.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %d: %w", id, model.ErrNotFound)
	}

	// Return a copy
	taskCopy := t.Copy()
	return &taskCopy, nil
}

// SaveTask creates or replaces a task.
func (r *Repository) SaveTask(ctx context.Context, t model.Task) error {
	if t.ID <= 0 {
		return fmt.Errorf("task id must be positive: %w", model.ErrNotValid)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.tasks[t.ID] = t.Copy()
	r.logger.Debugf("Saved task in repository: %d", t.ID)

	return nil
}

// DeleteTask deletes a task.
func (r *Repository) DeleteTask(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[id]; !ok {
		return fmt.Errorf("task %d: %w", id, model.ErrNotFound)
	}

	delete(r.tasks, id)
	r.logger.Debugf("Deleted task from repository: %d", id)

	return nil
}
