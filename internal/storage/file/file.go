package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/slok/scapd/internal/conventions"
	"github.com/slok/scapd/internal/log"
	"github.com/slok/scapd/internal/model"
	"github.com/slok/scapd/internal/storage"
)

// RepositoryConfig is the configuration for the file repository.
type RepositoryConfig struct {
	// DataDir is the root directory, tasks and results are stored in their conventional subdirectories.
	DataDir string
	Logger  log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.DataDir == "" {
		return fmt.Errorf("data dir is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.File"})

	return nil
}

// Repository stores tasks as `tasks/<id>.yaml` files and results as `results/<task>/<result>/` directories.
type Repository struct {
	dataDir string
	logger  log.Logger
	// resultsMu serializes result ID allocation in the process. While a daemon
	// runs the other processes store nothing, they go through its API.
	resultsMu sync.Mutex
}

var (
	_ storage.TaskRepository   = &Repository{}
	_ storage.ResultRepository = &Repository{}
)

// NewRepository creates a new file repository, creating the directories if missing.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	for _, dir := range []string{conventions.TasksPath(cfg.DataDir), conventions.ResultsPath(cfg.DataDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("could not create %q directory: %w", dir, err)
		}
	}

	return &Repository{
		dataDir: cfg.DataDir,
		logger:  cfg.Logger,
	}, nil
}

// ListTasks loads all the task files. Files that can't be loaded are logged and skipped.
func (r *Repository) ListTasks(ctx context.Context) ([]model.Task, error) {
	entries, err := os.ReadDir(conventions.TasksPath(r.dataDir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []model.Task{}, nil
		}
		return nil, fmt.Errorf("could not read tasks directory: %w", err)
	}

	tasks := []model.Task{}
	for _, e := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if e.IsDir() || !strings.HasSuffix(e.Name(), conventions.TaskFileExt) {
			continue
		}

		id, err := strconv.Atoi(strings.TrimSuffix(e.Name(), conventions.TaskFileExt))
		if err != nil || id <= 0 {
			r.logger.Warningf("Ignoring %q, task files must be named <positive id>%s", e.Name(), conventions.TaskFileExt)
			continue
		}

		t, err := r.GetTask(ctx, id)
		if err != nil {
			r.logger.Errorf("Could not load task %d, skipping: %v", id, err)
			continue
		}
		tasks = append(tasks, *t)
	}

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })

	return tasks, nil
}

// GetTask loads a single task file.
func (r *Repository) GetTask(ctx context.Context, id int) (*model.Task, error) {
	data, err := os.ReadFile(conventions.TaskFilePath(r.dataDir, id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("task %d: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not read task %d: %w", id, err)
	}

	t, err := unmarshalTask(id, data)
	if err != nil {
		return nil, fmt.Errorf("could not load task %d: %w", id, err)
	}

	return t, nil
}

// SaveTask writes the task file atomically.
func (r *Repository) SaveTask(ctx context.Context, t model.Task) error {
	if t.ID <= 0 {
		return fmt.Errorf("task id must be positive: %w", model.ErrNotValid)
	}

	data, err := marshalTask(t)
	if err != nil {
		return err
	}

	path := conventions.TaskFilePath(r.dataDir, t.ID)
	if err := writeFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("could not write task %d: %w", t.ID, err)
	}
	r.logger.Debugf("Saved task %d at %q", t.ID, path)

	return nil
}

// DeleteTask deletes the task file.
func (r *Repository) DeleteTask(ctx context.Context, id int) error {
	err := os.Remove(conventions.TaskFilePath(r.dataDir, id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("task %d: %w", id, model.ErrNotFound)
		}
		return fmt.Errorf("could not delete task %d: %w", id, err)
	}

	return nil
}

// ListResultIDs returns the result IDs of a task in reverse numeric order.
func (r *Repository) ListResultIDs(ctx context.Context, taskID int) ([]int, error) {
	entries, err := os.ReadDir(conventions.TaskResultsPath(r.dataDir, taskID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []int{}, nil
		}
		return nil, fmt.Errorf("could not read task %d results: %w", taskID, err)
	}

	ids := []int{}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, err := strconv.Atoi(e.Name())
		if err != nil || id <= 0 {
			continue
		}
		ids = append(ids, id)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(ids)))

	return ids, nil
}

// StoreResult moves the evaluation directory to the next result ID (max existing + 1).
func (r *Repository) StoreResult(ctx context.Context, taskID int, evaluationDir string) (int, error) {
	r.resultsMu.Lock()
	defer r.resultsMu.Unlock()

	ids, err := r.ListResultIDs(ctx, taskID)
	if err != nil {
		return 0, err
	}
	next := 1
	if len(ids) > 0 {
		next = ids[0] + 1
	}

	if err := os.MkdirAll(conventions.TaskResultsPath(r.dataDir, taskID), 0o755); err != nil {
		return 0, fmt.Errorf("could not create task %d results directory: %w", taskID, err)
	}

	dst := conventions.ResultPath(r.dataDir, taskID, next)
	if err := os.Rename(evaluationDir, dst); err != nil {
		return 0, fmt.Errorf("could not move evaluation to %q: %w", dst, err)
	}
	r.logger.Debugf("Stored result %d of task %d", next, taskID)

	return next, nil
}

// GetResult returns the result metadata.
func (r *Repository) GetResult(ctx context.Context, taskID, resultID int) (*model.Result, error) {
	path := conventions.ResultPath(r.dataDir, taskID, resultID)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("result %d of task %d: %w", resultID, taskID, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not stat result: %w", err)
	}

	exitCode := model.ExitCodeError
	data, err := os.ReadFile(filepath.Join(path, conventions.ResultExitCodeFile))
	switch {
	case err == nil:
		code, err := strconv.Atoi(strings.TrimSpace(string(data)))
		if err != nil {
			r.logger.Warningf("Result %d of task %d has an invalid exit code %q", resultID, taskID, string(data))
		} else {
			exitCode = code
		}
	case errors.Is(err, fs.ErrNotExist):
		r.logger.Warningf("Result %d of task %d is missing the exit code", resultID, taskID)
	default:
		return nil, fmt.Errorf("could not read exit code: %w", err)
	}

	return &model.Result{
		TaskID:    taskID,
		ID:        resultID,
		ExitCode:  exitCode,
		CreatedAt: info.ModTime().UTC(),
	}, nil
}

// ReadResultFile returns the contents of a result file.
func (r *Repository) ReadResultFile(ctx context.Context, taskID, resultID int, name string) ([]byte, error) {
	if name != filepath.Base(name) {
		return nil, fmt.Errorf("invalid result file name %q: %w", name, model.ErrNotValid)
	}

	data, err := os.ReadFile(filepath.Join(conventions.ResultPath(r.dataDir, taskID, resultID), name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s of result %d of task %d: %w", name, resultID, taskID, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not read result file: %w", err)
	}

	return data, nil
}

// ResultPath returns the directory of an existing result.
func (r *Repository) ResultPath(ctx context.Context, taskID, resultID int) (string, error) {
	path := conventions.ResultPath(r.dataDir, taskID, resultID)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("result %d of task %d: %w", resultID, taskID, model.ErrNotFound)
		}
		return "", fmt.Errorf("could not stat result: %w", err)
	}

	return path, nil
}

// DeleteResult deletes a single result.
func (r *Repository) DeleteResult(ctx context.Context, taskID, resultID int) error {
	path, err := r.ResultPath(ctx, taskID, resultID)
	if err != nil {
		return err
	}

	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("could not delete result %d of task %d: %w", resultID, taskID, err)
	}

	return nil
}

// DeleteResults deletes all the results of a task.
func (r *Repository) DeleteResults(ctx context.Context, taskID int) error {
	if err := os.RemoveAll(conventions.TaskResultsPath(r.dataDir, taskID)); err != nil {
		return fmt.Errorf("could not delete task %d results: %w", taskID, err)
	}

	return nil
}

// SaveDaemonInfo publishes the running daemon.
func (r *Repository) SaveDaemonInfo(ctx context.Context, d model.DaemonInfo) error {
	data, err := marshalDaemonInfo(d)
	if err != nil {
		return err
	}

	if err := writeFileAtomic(conventions.DaemonFilePath(r.dataDir), data, 0o644); err != nil {
		return fmt.Errorf("could not write daemon info: %w", err)
	}

	return nil
}

// GetDaemonInfo returns the published daemon, model.ErrNotFound if there is none.
func (r *Repository) GetDaemonInfo(ctx context.Context) (*model.DaemonInfo, error) {
	data, err := os.ReadFile(conventions.DaemonFilePath(r.dataDir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("daemon info: %w", model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not read daemon info: %w", err)
	}

	return unmarshalDaemonInfo(data)
}

// DeleteDaemonInfo removes the published daemon, it's not an error if there is none.
func (r *Repository) DeleteDaemonInfo(ctx context.Context) error {
	err := os.Remove(conventions.DaemonFilePath(r.dataDir))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("could not delete daemon info: %w", err)
	}

	return nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), perm); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), path)
}
