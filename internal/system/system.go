package system

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/slok/scapd/internal/async"
	"github.com/slok/scapd/internal/log"
	"github.com/slok/scapd/internal/metrics"
	"github.com/slok/scapd/internal/model"
	"github.com/slok/scapd/internal/oscap"
	"github.com/slok/scapd/internal/storage"
)

const (
	// EvaluationPriority is the priority of ad-hoc evaluations, they run before scheduled tasks.
	EvaluationPriority = 0
	// TaskActionPriority is the priority of scheduled task runs.
	TaskActionPriority = 10
	// DefaultMaxWait is the maximum time the scheduler sleeps without checking the tasks.
	DefaultMaxWait = time.Hour
)

// Evaluator evaluates specs with the external tools.
type Evaluator interface {
	// Evaluate runs the evaluation and returns the directory with its results.
	Evaluate(ctx context.Context, spec model.EvaluationSpec) (*oscap.Evaluation, error)
	GenerateReport(ctx context.Context, spec model.EvaluationSpec, resultDir string) ([]byte, error)
	GenerateGuide(ctx context.Context, spec model.EvaluationSpec) ([]byte, error)
}

// ActionManager runs actions in the background.
type ActionManager interface {
	Submit(action async.Action, priority int) async.Token
	Status() []async.ActionStatus
	Lookup(token async.Token) (async.ActionStatus, bool)
	Cancel(token async.Token) error
}

// TargetLister lists the targets of a bulk scan.
type TargetLister interface {
	ListTargets(ctx context.Context, scope model.BulkScanScope, names []string) ([]string, error)
}

// SystemConfig is the configuration of the System.
type SystemConfig struct {
	TaskRepository   storage.TaskRepository
	ResultRepository storage.ResultRepository
	Evaluator        Evaluator
	ActionManager    ActionManager
	// TargetLister is required by bulk scans only.
	TargetLister TargetLister
	// WorkInProgressDir is cleaned before scheduling, anything there is a leftover of a crash.
	WorkInProgressDir string
	MaxWait           time.Duration
	TimeNow           func() time.Time
	Logger            log.Logger
	MetricsRecorder   metrics.Recorder
}

func (c *SystemConfig) defaults() error {
	if c.TaskRepository == nil {
		return fmt.Errorf("task repository is required")
	}

	if c.ResultRepository == nil {
		return fmt.Errorf("result repository is required")
	}

	if c.Evaluator == nil {
		return fmt.Errorf("evaluator is required")
	}

	if c.ActionManager == nil {
		return fmt.Errorf("action manager is required")
	}

	if c.MaxWait <= 0 {
		c.MaxWait = DefaultMaxWait
	}

	if c.TimeNow == nil {
		c.TimeNow = time.Now
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "system.System"})

	if c.MetricsRecorder == nil {
		c.MetricsRecorder = metrics.Noop
	}

	return nil
}

// taskEntry is a registered task.
//
// Lock order is System.tasksMu -> runMu -> mu -> target lock, nobody takes
// System.tasksMu while holding an entry lock.
type taskEntry struct {
	// runMu serializes the executions of the task.
	runMu sync.Mutex
	// mu guards the fields below.
	mu        sync.Mutex
	task      model.Task
	runOnce   bool
	persisted bool
}

// System is the task registry and scheduler.
type System struct {
	taskRepo   storage.TaskRepository
	resultRepo storage.ResultRepository
	evaluator  Evaluator
	actions    ActionManager
	lister     TargetLister
	wipDir     string
	maxWait    time.Duration
	timeNow    func() time.Time
	logger     log.Logger
	recorder   metrics.Recorder

	// tasksMu guards tasks and inFlight.
	tasksMu  sync.Mutex
	tasks    map[int]*taskEntry
	inFlight map[int]struct{}

	targets *keyedMutex
	wakeC   chan struct{}

	// outcomesMu guards the ad-hoc action outcomes.
	outcomesMu  sync.Mutex
	evalResults map[async.Token]evaluationOutcome
	bulkResults map[async.Token]bulkScanOutcome
}

// NewSystem returns a new System without tasks, use Load to load the persisted ones.
func NewSystem(cfg SystemConfig) (*System, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &System{
		taskRepo:    cfg.TaskRepository,
		resultRepo:  cfg.ResultRepository,
		evaluator:   cfg.Evaluator,
		actions:     cfg.ActionManager,
		lister:      cfg.TargetLister,
		wipDir:      cfg.WorkInProgressDir,
		maxWait:     cfg.MaxWait,
		timeNow:     cfg.TimeNow,
		logger:      cfg.Logger,
		recorder:    cfg.MetricsRecorder,
		tasks:       map[int]*taskEntry{},
		inFlight:    map[int]struct{}{},
		targets:     newKeyedMutex(),
		wakeC:       make(chan struct{}, 1),
		evalResults: map[async.Token]evaluationOutcome{},
		bulkResults: map[async.Token]bulkScanOutcome{},
	}, nil
}

// Load loads the persisted tasks. Loaded tasks replace the registered ones,
// registered persisted tasks that are gone are dropped unless they are running.
func (s *System) Load(ctx context.Context) error {
	tasks, err := s.taskRepo.ListTasks(ctx)
	if err != nil {
		return fmt.Errorf("could not list tasks: %w", err)
	}

	loaded := map[int]struct{}{}
	s.tasksMu.Lock()
	for _, t := range tasks {
		loaded[t.ID] = struct{}{}
		e, ok := s.tasks[t.ID]
		if !ok {
			s.tasks[t.ID] = &taskEntry{task: t.Copy(), persisted: true}
			continue
		}

		e.mu.Lock()
		e.task = t.Copy()
		e.persisted = true
		e.mu.Unlock()
	}

	for id, e := range s.tasks {
		if _, ok := loaded[id]; ok {
			continue
		}
		if _, ok := s.inFlight[id]; ok {
			continue
		}
		e.mu.Lock()
		persisted := e.persisted
		e.mu.Unlock()
		if persisted {
			delete(s.tasks, id)
			s.logger.Infof("Task %d is gone, unregistered", id)
		}
	}
	total := len(s.tasks)
	s.tasksMu.Unlock()

	s.logger.Infof("Loaded %d tasks, %d registered", len(tasks), total)
	s.wake()

	return nil
}

// Run runs the scheduling loop until the context is cancelled.
func (s *System) Run(ctx context.Context) error {
	if err := s.cleanWorkInProgress(); err != nil {
		return err
	}

	s.logger.Infof("Scheduler started")
	for {
		now := s.timeNow()
		s.ScheduleDue(ctx, now)

		wait := s.maxWait
		if next, ok := s.nextDue(); ok {
			if d := next.Sub(now); d < wait {
				wait = d
			}
		}
		if wait < 0 {
			wait = 0
		}
		s.logger.Debugf("Scheduler sleeping %s", wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Infof("Scheduler stopped")
			return nil
		case <-s.wakeC:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// ScheduleDue submits a run of every enabled task due at now that is not running already.
// It returns the IDs of the submitted tasks.
func (s *System) ScheduleDue(ctx context.Context, now time.Time) []int {
	s.tasksMu.Lock()
	due := []int{}
	for id, e := range s.tasks {
		if _, ok := s.inFlight[id]; ok {
			continue
		}

		e.mu.Lock()
		at, ok := e.task.DueAt(now, e.runOnce)
		e.mu.Unlock()
		if !ok || at.After(now) {
			continue
		}

		s.inFlight[id] = struct{}{}
		due = append(due, id)
	}
	inFlight := len(s.inFlight)
	s.tasksMu.Unlock()

	sort.Ints(due)
	for _, id := range due {
		token := s.actions.Submit(taskAction{s: s, id: id}, TaskActionPriority)
		s.logger.Debugf("Task %d is due, submitted with token %d", id, token)
	}
	s.recorder.TasksInFlight(ctx, inFlight)

	return due
}

// nextDue returns the earliest due time of the enabled tasks that are not running.
func (s *System) nextDue() (time.Time, bool) {
	s.tasksMu.Lock()
	defer s.tasksMu.Unlock()

	now := s.timeNow()
	var next time.Time
	found := false
	for id, e := range s.tasks {
		if _, ok := s.inFlight[id]; ok {
			continue
		}

		e.mu.Lock()
		at, ok := e.task.DueAt(now, e.runOnce)
		e.mu.Unlock()
		if ok && (!found || at.Before(next)) {
			next = at
			found = true
		}
	}

	return next, found
}

// IsTaskInFlight returns true if the task is running or waiting to run.
func (s *System) IsTaskInFlight(id int) bool {
	s.tasksMu.Lock()
	defer s.tasksMu.Unlock()

	_, ok := s.inFlight[id]
	return ok
}

// ActionsStatus returns the status of the live background actions.
func (s *System) ActionsStatus() []async.ActionStatus {
	return s.actions.Status()
}

// CancelAction cancels a background action.
func (s *System) CancelAction(token async.Token) error {
	return s.actions.Cancel(token)
}

func (s *System) wake() {
	select {
	case s.wakeC <- struct{}{}:
	default:
	}
}

func (s *System) finishTask(ctx context.Context, id int) {
	s.tasksMu.Lock()
	delete(s.inFlight, id)
	inFlight := len(s.inFlight)
	s.tasksMu.Unlock()

	s.recorder.TasksInFlight(ctx, inFlight)
	s.wake()
}

func (s *System) entry(id int) (*taskEntry, error) {
	s.tasksMu.Lock()
	defer s.tasksMu.Unlock()

	e, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %d: %w", id, model.ErrNotFound)
	}
	return e, nil
}

// cleanWorkInProgress removes the evaluations that were running when the process died.
func (s *System) cleanWorkInProgress() error {
	if s.wipDir == "" {
		return nil
	}

	entries, err := os.ReadDir(s.wipDir)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("could not read work in progress directory: %w", err)
	}
	for _, e := range entries {
		p := filepath.Join(s.wipDir, e.Name())
		if err := os.RemoveAll(p); err != nil {
			return fmt.Errorf("could not remove leftover %q: %w", p, err)
		}
		s.logger.Warningf("Removed leftover work in progress %q", p)
	}

	if err := os.MkdirAll(s.wipDir, 0o755); err != nil {
		return fmt.Errorf("could not create work in progress directory: %w", err)
	}

	return nil
}
