package commands

import (
	"context"
	"fmt"

	"github.com/slok/scapd/internal/async"
	"github.com/slok/scapd/internal/config"
	"github.com/slok/scapd/internal/conventions"
	"github.com/slok/scapd/internal/feed"
	"github.com/slok/scapd/internal/metrics"
	"github.com/slok/scapd/internal/oscap"
	"github.com/slok/scapd/internal/storage/file"
	"github.com/slok/scapd/internal/system"
	"github.com/slok/scapd/internal/target/docker"
)

// appOptions customizes the wiring of the commands.
type appOptions struct {
	// Jobs overrides the configured evaluation jobs when positive.
	Jobs int
	// DisableFetch forces the use of the cached feeds.
	DisableFetch bool
	// BulkScans wires the docker target lister.
	BulkScans       bool
	MetricsRecorder metrics.Recorder
}

// app is the wired daemon core shared by the commands.
type app struct {
	cfg       config.Config
	repo      *file.Repository
	feeds     *feed.Manager
	evaluator *oscap.Evaluator
	actions   *async.Manager
	system    *system.System
}

// Close stops the background actions.
func (a *app) Close() {
	a.actions.Stop()
}

func loadConfig(ctx context.Context, root RootCommand) (config.Config, error) {
	cfg, err := config.LoadFile(ctx, root.configFilePath())
	if err != nil {
		return config.Config{}, fmt.Errorf("could not load configuration: %w", err)
	}

	return config.NewAutodetector().Autodetect(cfg), nil
}

func newFeedManager(root RootCommand, cfg config.Config, disableFetch bool, recorder metrics.Recorder) (*feed.Manager, error) {
	feeds, err := feed.NewManager(feed.ManagerConfig{
		Dir:             conventions.FeedsPath(root.DataDir),
		BaseURL:         cfg.Feeds.BaseURL,
		Feeds:           feed.RedHatFeeds(cfg.Feeds.Dists),
		DisableFetch:    disableFetch || !cfg.Feeds.FetchEnabled,
		RecheckInterval: cfg.Feeds.RecheckInterval,
		Logger:          root.Logger,
		MetricsRecorder: recorder,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create feed manager: %w", err)
	}

	return feeds, nil
}

// newApp wires the system with its dependencies and loads the stored tasks.
func newApp(ctx context.Context, root RootCommand, opts appOptions) (*app, error) {
	logger := root.Logger
	if opts.MetricsRecorder == nil {
		opts.MetricsRecorder = metrics.Noop
	}

	cfg, err := loadConfig(ctx, root)
	if err != nil {
		return nil, err
	}
	jobs := cfg.Jobs
	if opts.Jobs > 0 {
		jobs = opts.Jobs
	}

	repo, err := file.NewRepository(file.RepositoryConfig{
		DataDir: root.DataDir,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create repository: %w", err)
	}

	feeds, err := newFeedManager(root, cfg, opts.DisableFetch, opts.MetricsRecorder)
	if err != nil {
		return nil, err
	}

	evaluator, err := oscap.NewEvaluator(oscap.EvaluatorConfig{
		Tools: oscap.Tools{
			OSCAP:       cfg.Tools.OSCAP,
			OSCAPSSH:    cfg.Tools.OSCAPSSH,
			OSCAPDocker: cfg.Tools.OSCAPDocker,
			OSCAPVM:     cfg.Tools.OSCAPVM,
			OSCAPChroot: cfg.Tools.OSCAPChroot,
		},
		WorkInProgressDir: conventions.WorkInProgressPath(root.DataDir),
		StandardScanInput: cfg.StandardScanInput,
		FeedProvider:      feeds,
		Logger:            logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create evaluator: %w", err)
	}

	var lister system.TargetLister
	if opts.BulkScans {
		l, err := docker.NewLister(docker.ListerConfig{Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("could not create docker target lister: %w", err)
		}
		lister = l
	}

	actions, err := async.NewManager(async.ManagerConfig{
		Workers:         jobs,
		Logger:          logger,
		MetricsRecorder: opts.MetricsRecorder,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create action manager: %w", err)
	}

	sys, err := system.NewSystem(system.SystemConfig{
		TaskRepository:    repo,
		ResultRepository:  repo,
		Evaluator:         evaluator,
		ActionManager:     actions,
		TargetLister:      lister,
		WorkInProgressDir: conventions.WorkInProgressPath(root.DataDir),
		Logger:            logger,
		MetricsRecorder:   opts.MetricsRecorder,
	})
	if err != nil {
		actions.Stop()
		return nil, fmt.Errorf("could not create system: %w", err)
	}

	if err := sys.Load(ctx); err != nil {
		actions.Stop()
		return nil, fmt.Errorf("could not load tasks: %w", err)
	}

	return &app{
		cfg:       cfg,
		repo:      repo,
		feeds:     feeds,
		evaluator: evaluator,
		actions:   actions,
		system:    sys,
	}, nil
}
