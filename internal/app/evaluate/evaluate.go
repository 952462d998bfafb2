package evaluate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/slok/scapd/internal/async"
	"github.com/slok/scapd/internal/log"
	"github.com/slok/scapd/internal/model"
)

const defaultPollInterval = 500 * time.Millisecond

// SpecEvaluator evaluates specs in the background.
type SpecEvaluator interface {
	EvaluateSpecAsync(ctx context.Context, spec model.EvaluationSpec) (async.Token, error)
	EvaluateSpecResult(token async.Token) (*model.EvaluationResult, error)
	CancelAction(token async.Token) error
}

// ServiceConfig is the configuration for the evaluate service.
type ServiceConfig struct {
	Evaluator    SpecEvaluator
	PollInterval time.Duration
	Logger       log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Evaluator == nil {
		return fmt.Errorf("evaluator is required")
	}

	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Evaluate"})

	return nil
}

// Service runs a single ad-hoc evaluation and waits for its result.
type Service struct {
	evaluator    SpecEvaluator
	pollInterval time.Duration
	logger       log.Logger
}

// NewService creates a new evaluate service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		evaluator:    cfg.Evaluator,
		pollInterval: cfg.PollInterval,
		logger:       cfg.Logger,
	}, nil
}

// Request represents the evaluate request parameters.
type Request struct {
	Spec model.EvaluationSpec
}

// Run evaluates the spec, the evaluation is cancelled if ctx is done before it finishes.
func (s *Service) Run(ctx context.Context, req Request) (*model.EvaluationResult, error) {
	token, err := s.evaluator.EvaluateSpecAsync(ctx, req.Spec)
	if err != nil {
		return nil, fmt.Errorf("could not start evaluation: %w", err)
	}
	s.logger.Infof("Evaluation %d started on %s", token, req.Spec.Target)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		res, err := s.evaluator.EvaluateSpecResult(token)
		if !errors.Is(err, model.ErrResultsNotAvailable) {
			return res, err
		}

		select {
		case <-ctx.Done():
			if err := s.evaluator.CancelAction(token); err != nil && !errors.Is(err, model.ErrNotFound) {
				s.logger.Warningf("Could not cancel evaluation %d: %s", token, err)
			}
			return nil, fmt.Errorf("evaluation cancelled: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
