package resultlist

import (
	"context"
	"errors"
	"fmt"

	"github.com/slok/scapd/internal/log"
	"github.com/slok/scapd/internal/model"
)

// ResultGetter knows the task results.
type ResultGetter interface {
	ListTaskResultIDs(ctx context.Context, taskID int) ([]int, error)
	GetTaskResult(ctx context.Context, taskID, resultID int) (*model.Result, error)
}

// ServiceConfig is the configuration for the result list service.
type ServiceConfig struct {
	Results ResultGetter
	Logger  log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Results == nil {
		return fmt.Errorf("result getter is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	return nil
}

// Service lists task results with optional filtering.
type Service struct {
	results ResultGetter
	logger  log.Logger
}

// NewService creates a new result list service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		results: cfg.Results,
		logger:  cfg.Logger,
	}, nil
}

// Request represents the result list request parameters.
type Request struct {
	TaskID int
	// OnlyFailed drops the compliant results.
	OnlyFailed bool
	// Limit is the maximum number of results, newest first. 0 means all.
	Limit int
}

// Run lists the task results, newest first.
func (s *Service) Run(ctx context.Context, req Request) ([]model.Result, error) {
	ids, err := s.results.ListTaskResultIDs(ctx, req.TaskID)
	if err != nil {
		return nil, fmt.Errorf("could not list results: %w", err)
	}

	results := make([]model.Result, 0, len(ids))
	for _, id := range ids {
		if req.Limit > 0 && len(results) >= req.Limit {
			break
		}

		r, err := s.results.GetTaskResult(ctx, req.TaskID, id)
		if err != nil {
			// Removed while listing.
			if errors.Is(err, model.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("could not get result %d: %w", id, err)
		}

		if req.OnlyFailed && r.ExitCode == model.ExitCodeCompliant {
			continue
		}
		results = append(results, *r)
	}

	s.logger.Debugf("found %d results of task %d", len(results), req.TaskID)
	return results, nil
}
