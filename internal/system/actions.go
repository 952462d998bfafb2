package system

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/slok/scapd/internal/async"
	"github.com/slok/scapd/internal/log"
	"github.com/slok/scapd/internal/model"
	"github.com/slok/scapd/internal/oscap"
)

// taskAction runs a task and advances its schedule.
type taskAction struct {
	s  *System
	id int
}

func (a taskAction) Run(ctx context.Context) error { return a.s.runTask(ctx, a.id) }
func (a taskAction) String() string { return fmt.Sprintf("update task %d", a.id) }

func (s *System) runTask(ctx context.Context, id int) error {
	defer s.finishTask(ctx, id)

	e, err := s.entry(id)
	if err != nil {
		return err
	}

	e.runMu.Lock()
	defer e.runMu.Unlock()

	e.mu.Lock()
	snapshot := e.task.Copy()
	runOnce := e.runOnce
	e.mu.Unlock()

	logger := s.logger.WithValues(log.Kv{"task": id})
	ref := s.timeNow()
	scheduled := snapshot.Schedule.NotBefore != nil && !snapshot.Schedule.NotBefore.After(ref)

	if !snapshot.Enabled {
		logger.Debugf("Task disabled, skipping")
		s.advanceTask(ctx, logger, e, snapshot, runOnce, false, ref)
		return nil
	}

	var runErr error
	if err := snapshot.Spec.Validate(); err != nil {
		runErr = fmt.Errorf("task %d has an invalid spec: %w", id, err)
	} else {
		start := s.timeNow()
		ev, err := s.evaluate(ctx, snapshot.Spec)
		switch {
		case err != nil && errors.Is(context.Cause(ctx), async.ErrStopped):
			logger.Infof("Task run interrupted by shutdown, it will run again")
			return nil
		case err != nil:
			runErr = fmt.Errorf("task %d evaluation failed: %w", id, err)
		default:
			resultID, err := s.resultRepo.StoreResult(ctx, id, ev.Dir)
			if err != nil {
				_ = os.RemoveAll(ev.Dir)
				runErr = fmt.Errorf("could not store task %d result: %w", id, err)
				break
			}
			s.recorder.TaskEvaluated(ctx, id, ev.ExitCode, s.timeNow().Sub(start))
			logger.WithValues(log.Kv{"result": resultID, "exit-code": ev.ExitCode}).Infof("Task evaluated: %s", model.StatusFromExitCode(ev.ExitCode))
		}
	}

	s.advanceTask(ctx, logger, e, snapshot, runOnce, scheduled, ref)

	return runErr
}

// advanceTask moves the schedule of a scheduled run forward and clears the
// one-shot request. Schedules changed during the run are kept as they are.
func (s *System) advanceTask(ctx context.Context, logger log.Logger, e *taskEntry, snapshot model.Task, runOnce, scheduled bool, ref time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if runOnce {
		e.runOnce = false
	}

	if !scheduled || !e.task.Schedule.IsEquivalentTo(snapshot.Schedule) {
		return
	}

	next, err := snapshot.Schedule.NextNotBefore(ref)
	if err != nil {
		logger.Errorf("Could not compute next run, scheduling stopped: %s", err)
		next = nil
	}
	if next != nil {
		t := next.UTC().Truncate(time.Minute)
		next = &t
	}

	t := e.task.Copy()
	t.Schedule.NotBefore = next
	e.task = t
	if next != nil {
		logger.Infof("Task next run at %s", next.Format(model.ScheduleTimeLayout))
	} else {
		logger.Infof("Task will not run again")
	}

	// The registry keeps the new schedule even if it can't be stored, otherwise the task would run in a loop.
	if err := s.taskRepo.SaveTask(ctx, t); err != nil {
		logger.Errorf("Could not persist task schedule: %s", err)
		return
	}
	e.persisted = true
}

// evaluate evaluates a spec holding the lock of its target.
func (s *System) evaluate(ctx context.Context, spec model.EvaluationSpec) (*oscap.Evaluation, error) {
	key := spec.Target
	if tg, err := model.ParseTarget(spec.Target); err == nil {
		key = tg.String()
	}

	unlock := s.targets.Lock(key)
	defer unlock()

	return s.evaluator.Evaluate(ctx, spec)
}

type evaluationOutcome struct {
	result *model.EvaluationResult
	err    error
}

// EvaluateSpecAsync evaluates a spec in the background, the outcome is
// retrieved with EvaluateSpecResult and the returned token.
func (s *System) EvaluateSpecAsync(ctx context.Context, spec model.EvaluationSpec) (async.Token, error) {
	if err := spec.Validate(); err != nil {
		return 0, err
	}
	spec = spec.Copy()

	action := async.ActionFunc(fmt.Sprintf("evaluate %s on %s", spec.EffectiveMode(), spec.Target), func(ctx context.Context) error {
		token, _ := async.TokenFromContext(ctx)
		res, err := s.evaluateSpec(ctx, spec)

		s.outcomesMu.Lock()
		s.evalResults[token] = evaluationOutcome{result: res, err: err}
		s.outcomesMu.Unlock()

		return err
	})

	return s.actions.Submit(action, EvaluationPriority), nil
}

func (s *System) evaluateSpec(ctx context.Context, spec model.EvaluationSpec) (*model.EvaluationResult, error) {
	ev, err := s.evaluate(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrEvaluationFailed, err)
	}
	defer os.RemoveAll(ev.Dir)

	res, err := oscap.ReadEvaluationResult(ev.Dir)
	if err != nil {
		return nil, fmt.Errorf("could not read evaluation result: %w", err)
	}

	return res, nil
}

// EvaluateSpecResult returns, only once, the outcome of an ad-hoc evaluation.
func (s *System) EvaluateSpecResult(token async.Token) (*model.EvaluationResult, error) {
	s.outcomesMu.Lock()
	out, ok := s.evalResults[token]
	if ok {
		delete(s.evalResults, token)
	}
	s.outcomesMu.Unlock()

	if !ok {
		return nil, s.missingOutcome(token)
	}

	return out.result, out.err
}

type bulkScanOutcome struct {
	report *model.BulkScanReport
	err    error
}

// BulkScanAsync CVE scans every container or image of the request in the background,
// the report is retrieved with BulkScanResult and the returned token.
func (s *System) BulkScanAsync(ctx context.Context, req model.BulkScanRequest) (async.Token, error) {
	if s.lister == nil {
		return 0, fmt.Errorf("bulk scans are not available: %w", model.ErrNotValid)
	}

	if err := req.Validate(); err != nil {
		return 0, err
	}
	req.Targets = append([]string{}, req.Targets...)
	req.CPEIDs = append([]string{}, req.CPEIDs...)

	action := async.ActionFunc(fmt.Sprintf("bulk scan %s", req.Scope), func(ctx context.Context) error {
		token, _ := async.TokenFromContext(ctx)
		report, err := s.bulkScan(ctx, req)

		s.outcomesMu.Lock()
		s.bulkResults[token] = bulkScanOutcome{report: report, err: err}
		s.outcomesMu.Unlock()

		return err
	})

	return s.actions.Submit(action, EvaluationPriority), nil
}

func (s *System) bulkScan(ctx context.Context, req model.BulkScanRequest) (*model.BulkScanReport, error) {
	targets, err := s.lister.ListTargets(ctx, req.Scope, req.Targets)
	if err != nil {
		return nil, err
	}

	report := &model.BulkScanReport{
		ID:        ulid.Make().String(),
		Scope:     req.Scope,
		StartedAt: s.timeNow(),
	}
	logger := s.logger.WithValues(log.Kv{"bulk-scan": report.ID})
	logger.Infof("Scanning %d targets", len(targets))

	for _, target := range targets {
		if err := context.Cause(ctx); err != nil {
			return nil, fmt.Errorf("bulk scan interrupted: %w", err)
		}

		spec := model.EvaluationSpec{
			Mode:   model.EvaluationModeCVEScan,
			Target: target,
			CPEIDs: req.CPEIDs,
		}
		res := model.BulkScanTargetResult{Target: target}
		ev, err := s.evaluate(ctx, spec)
		if err != nil {
			res.ExitCode = model.ExitCodeError
			res.Error = err.Error()
			logger.Warningf("Could not scan %s: %s", target, err)
		} else {
			res.ExitCode = ev.ExitCode
			_ = os.RemoveAll(ev.Dir)
		}
		report.Results = append(report.Results, res)
	}
	report.FinishedAt = s.timeNow()

	return report, nil
}

// BulkScanResult returns, only once, the report of a bulk scan.
func (s *System) BulkScanResult(token async.Token) (*model.BulkScanReport, error) {
	s.outcomesMu.Lock()
	out, ok := s.bulkResults[token]
	if ok {
		delete(s.bulkResults, token)
	}
	s.outcomesMu.Unlock()

	if !ok {
		return nil, s.missingOutcome(token)
	}

	return out.report, out.err
}

func (s *System) missingOutcome(token async.Token) error {
	if _, ok := s.actions.Lookup(token); ok {
		return fmt.Errorf("action %d has not finished: %w", token, model.ErrResultsNotAvailable)
	}
	return fmt.Errorf("action %d: %w", token, model.ErrNotFound)
}

func isNotFound(err error) bool {
	return errors.Is(err, model.ErrNotFound)
}
