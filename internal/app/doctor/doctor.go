package doctor

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/slok/scapd/internal/config"
	"github.com/slok/scapd/internal/feed"
	"github.com/slok/scapd/internal/log"
	"github.com/slok/scapd/internal/model"
)

// FeedInspector knows the cached CVE feeds.
type FeedInspector interface {
	Feeds() []feed.Feed
	LastUpdated(ctx context.Context, cpeIDs []string) (time.Time, error)
}

// ServiceConfig is the configuration for the doctor service.
type ServiceConfig struct {
	Config        config.Config
	DataDir       string
	FeedInspector FeedInspector
	// Exists checks a path, used to check the configured tools.
	Exists  func(path string) bool
	TimeNow func() time.Time
	Logger  log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.DataDir == "" {
		return fmt.Errorf("data dir is required")
	}

	if c.FeedInspector == nil {
		return fmt.Errorf("feed inspector is required")
	}

	if c.Exists == nil {
		c.Exists = func(path string) bool {
			_, err := os.Stat(path)
			return err == nil
		}
	}

	if c.TimeNow == nil {
		c.TimeNow = time.Now
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Doctor"})

	return nil
}

// Service checks the daemon can do its job on this host.
type Service struct {
	cfg    config.Config
	feeds  FeedInspector
	data   string
	exists func(path string) bool
	now    func() time.Time
	logger log.Logger
}

// NewService creates a new doctor service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		cfg:    cfg.Config,
		feeds:  cfg.FeedInspector,
		data:   cfg.DataDir,
		exists: cfg.Exists,
		now:    cfg.TimeNow,
		logger: cfg.Logger,
	}, nil
}

// Run runs every check, the order is stable.
func (s *Service) Run(ctx context.Context) []model.CheckResult {
	results := []model.CheckResult{s.checkTool("oscap", s.cfg.Tools.OSCAP, true, "evaluations")}
	results = append(results,
		s.checkTool("oscap-ssh", s.cfg.Tools.OSCAPSSH, false, "ssh targets"),
		s.checkTool("oscap-docker", s.cfg.Tools.OSCAPDocker, false, "docker targets and bulk scans"),
		s.checkTool("oscap-vm", s.cfg.Tools.OSCAPVM, false, "vm targets"),
		s.checkTool("oscap-chroot", s.cfg.Tools.OSCAPChroot, false, "chroot targets"),
		s.checkContent(),
		s.checkStandardScanInput(),
		s.checkDataDir(),
	)
	results = append(results, s.checkFeeds(ctx)...)

	s.logger.Debugf("%d checks done", len(results))
	return results
}

func (s *Service) checkTool(id, path string, required bool, usedFor string) model.CheckResult {
	status := model.CheckStatusWarning
	if required {
		status = model.CheckStatusError
	}

	switch {
	case path == "":
		return model.CheckResult{ID: id, Status: status, Message: fmt.Sprintf("not found, %s are not available", usedFor)}
	case !s.exists(path):
		return model.CheckResult{ID: id, Status: status, Message: fmt.Sprintf("%s does not exist, %s are not available", path, usedFor)}
	}

	return model.CheckResult{ID: id, Status: model.CheckStatusOK, Message: path}
}

func (s *Service) checkContent() model.CheckResult {
	const id = "ssg-content"
	if s.cfg.SSGDir == "" {
		return model.CheckResult{ID: id, Status: model.CheckStatusWarning, Message: "SCAP Security Guide content not found"}
	}

	dss, err := config.SSGDatastreams(s.cfg.SSGDir)
	if err != nil {
		return model.CheckResult{ID: id, Status: model.CheckStatusWarning, Message: err.Error()}
	}
	if len(dss) == 0 {
		return model.CheckResult{ID: id, Status: model.CheckStatusWarning, Message: fmt.Sprintf("%s has no datastreams", s.cfg.SSGDir)}
	}

	return model.CheckResult{ID: id, Status: model.CheckStatusOK, Message: fmt.Sprintf("%d datastreams in %s", len(dss), s.cfg.SSGDir)}
}

func (s *Service) checkStandardScanInput() model.CheckResult {
	const id = "standard-scan-input"
	switch {
	case s.cfg.StandardScanInput == "":
		return model.CheckResult{ID: id, Status: model.CheckStatusWarning, Message: "not configured, standard scans need an explicit input"}
	case !s.exists(s.cfg.StandardScanInput):
		return model.CheckResult{ID: id, Status: model.CheckStatusWarning, Message: fmt.Sprintf("%s does not exist", s.cfg.StandardScanInput)}
	}

	return model.CheckResult{ID: id, Status: model.CheckStatusOK, Message: s.cfg.StandardScanInput}
}

func (s *Service) checkDataDir() model.CheckResult {
	const id = "data-dir"
	if err := os.MkdirAll(s.data, 0o755); err != nil {
		return model.CheckResult{ID: id, Status: model.CheckStatusError, Message: err.Error()}
	}

	f, err := os.CreateTemp(s.data, ".doctor-*")
	if err != nil {
		return model.CheckResult{ID: id, Status: model.CheckStatusError, Message: fmt.Sprintf("%s is not writable: %s", s.data, err)}
	}
	_ = f.Close()
	_ = os.Remove(f.Name())

	return model.CheckResult{ID: id, Status: model.CheckStatusOK, Message: s.data}
}

func (s *Service) checkFeeds(ctx context.Context) []model.CheckResult {
	results := []model.CheckResult{}
	for _, f := range s.feeds.Feeds() {
		id := "feed-" + f.ID
		updated, err := s.feeds.LastUpdated(ctx, f.CPEs)
		switch {
		case err != nil && !s.cfg.Feeds.FetchEnabled:
			results = append(results, model.CheckResult{ID: id, Status: model.CheckStatusWarning, Message: "not cached and fetching is disabled"})
		case err != nil:
			results = append(results, model.CheckResult{ID: id, Status: model.CheckStatusOK, Message: "not cached yet, fetched on first use"})
		default:
			age := s.now().Sub(updated).Round(time.Hour)
			results = append(results, model.CheckResult{ID: id, Status: model.CheckStatusOK, Message: fmt.Sprintf("updated %s ago", age)})
		}
	}

	return results
}
