package storage

import (
	"context"

	"github.com/slok/scapd/internal/model"
)

// TaskRepository is the interface for task persistence.
type TaskRepository interface {
	// ListTasks returns all the persisted tasks. Tasks that can't be loaded are skipped.
	ListTasks(ctx context.Context) ([]model.Task, error)
	GetTask(ctx context.Context, id int) (*model.Task, error)
	// SaveTask creates or replaces a task.
	SaveTask(ctx context.Context, t model.Task) error
	DeleteTask(ctx context.Context, id int) error
}

// ResultRepository is the interface for task result persistence.
type ResultRepository interface {
	// ListResultIDs returns the result IDs of a task, newest first.
	ListResultIDs(ctx context.Context, taskID int) ([]int, error)
	// StoreResult moves a finished evaluation directory into the task results
	// and returns the new result ID.
	StoreResult(ctx context.Context, taskID int, evaluationDir string) (int, error)
	GetResult(ctx context.Context, taskID, resultID int) (*model.Result, error)
	// ReadResultFile returns the contents of a file of a stored result.
	ReadResultFile(ctx context.Context, taskID, resultID int, name string) ([]byte, error)
	// ResultPath returns the directory of a stored result.
	ResultPath(ctx context.Context, taskID, resultID int) (string, error)
	DeleteResult(ctx context.Context, taskID, resultID int) error
	DeleteResults(ctx context.Context, taskID int) error
}
