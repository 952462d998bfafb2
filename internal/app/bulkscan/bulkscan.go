package bulkscan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/slok/scapd/internal/async"
	"github.com/slok/scapd/internal/log"
	"github.com/slok/scapd/internal/model"
)

const defaultPollInterval = time.Second

// Scanner scans many containers or images in the background.
type Scanner interface {
	BulkScanAsync(ctx context.Context, req model.BulkScanRequest) (async.Token, error)
	BulkScanResult(token async.Token) (*model.BulkScanReport, error)
	CancelAction(token async.Token) error
}

// ServiceConfig is the configuration for the bulk scan service.
type ServiceConfig struct {
	Scanner      Scanner
	PollInterval time.Duration
	Logger       log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Scanner == nil {
		return fmt.Errorf("scanner is required")
	}

	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.BulkScan"})

	return nil
}

// Service runs a bulk CVE scan and waits for its report.
type Service struct {
	scanner      Scanner
	pollInterval time.Duration
	logger       log.Logger
}

// NewService creates a new bulk scan service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		scanner:      cfg.Scanner,
		pollInterval: cfg.PollInterval,
		logger:       cfg.Logger,
	}, nil
}

// Run scans the request targets. The report is returned even when some targets
// failed, those have their error set.
func (s *Service) Run(ctx context.Context, req model.BulkScanRequest) (*model.BulkScanReport, error) {
	token, err := s.scanner.BulkScanAsync(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("could not start bulk scan: %w", err)
	}
	s.logger.Infof("Bulk scan %d of %s started", token, req.Scope)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		report, err := s.scanner.BulkScanResult(token)
		switch {
		case err == nil:
			failed := 0
			for _, r := range report.Results {
				if r.Error != "" {
					failed++
				}
			}
			s.logger.Infof("Bulk scan %d finished, %d targets, %d failed", token, len(report.Results), failed)
			return report, nil
		case !errors.Is(err, model.ErrResultsNotAvailable):
			return nil, err
		}

		select {
		case <-ctx.Done():
			if err := s.scanner.CancelAction(token); err != nil && !errors.Is(err, model.ErrNotFound) {
				s.logger.Warningf("Could not cancel bulk scan %d: %s", token, err)
			}
			return nil, fmt.Errorf("bulk scan cancelled: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
