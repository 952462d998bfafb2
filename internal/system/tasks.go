package system

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/slok/scapd/internal/model"
)

// CreateTask registers a new disabled task with the smallest free ID.
// The task is persisted on its first modification.
func (s *System) CreateTask() int {
	s.tasksMu.Lock()
	defer s.tasksMu.Unlock()

	id := s.freeTaskID()
	s.tasks[id] = &taskEntry{task: model.NewTask(id)}
	s.logger.Infof("Task %d created", id)

	return id
}

// ListTaskIDs returns the registered task IDs in ascending order.
func (s *System) ListTaskIDs() []int {
	s.tasksMu.Lock()
	defer s.tasksMu.Unlock()

	ids := make([]int, 0, len(s.tasks))
	for id := range s.tasks {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	return ids
}

// ListTasks returns a copy of the registered tasks in ascending ID order.
func (s *System) ListTasks() []model.Task {
	ids := s.ListTaskIDs()
	tasks := make([]model.Task, 0, len(ids))
	for _, id := range ids {
		t, err := s.GetTask(id)
		if err != nil {
			// Removed meanwhile.
			continue
		}
		tasks = append(tasks, *t)
	}

	return tasks
}

// GetTask returns a copy of the task.
func (s *System) GetTask(id int) (*model.Task, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	t := e.task.Copy()
	return &t, nil
}

// AddTask registers a new task with the smallest free ID and the update
// applied. The task is persisted before it's registered.
func (s *System) AddTask(ctx context.Context, upd model.TaskUpdate) (int, error) {
	s.tasksMu.Lock()
	defer s.tasksMu.Unlock()

	id := s.freeTaskID()
	t := model.NewTask(id)
	if err := applyTaskUpdate(&t, upd); err != nil {
		return 0, err
	}

	if err := s.taskRepo.SaveTask(ctx, t); err != nil {
		return 0, fmt.Errorf("could not persist task %d: %w", id, err)
	}
	s.tasks[id] = &taskEntry{task: t, persisted: true}
	s.logger.Infof("Task %d created", id)

	if upd.ChangesSchedule() {
		s.wake()
	}

	return id, nil
}

// UpdateTask applies all the update fields at once, nothing changes if any of them is not valid.
func (s *System) UpdateTask(ctx context.Context, id int, upd model.TaskUpdate) error {
	return s.updateTask(ctx, id, upd.ChangesSchedule(), func(t *model.Task) error {
		return applyTaskUpdate(t, upd)
	})
}

// SetTaskEnabled enables or disables a task, enabled tasks need a valid spec.
func (s *System) SetTaskEnabled(ctx context.Context, id int, enabled bool) error {
	return s.UpdateTask(ctx, id, model.TaskUpdate{Enabled: &enabled})
}

// SetTaskTitle sets the task title.
func (s *System) SetTaskTitle(ctx context.Context, id int, title string) error {
	return s.UpdateTask(ctx, id, model.TaskUpdate{Title: &title})
}

// SetTaskTarget sets the target the task is evaluated on.
func (s *System) SetTaskTarget(ctx context.Context, id int, target string) error {
	return s.UpdateTask(ctx, id, model.TaskUpdate{Target: &target})
}

// SetTaskMode sets the evaluation mode of the task.
func (s *System) SetTaskMode(ctx context.Context, id int, mode string) error {
	return s.UpdateTask(ctx, id, model.TaskUpdate{Mode: &mode})
}

// SetTaskInput sets the task input, an absolute path references a file and
// anything else is inline content. An empty value clears it.
func (s *System) SetTaskInput(ctx context.Context, id int, value string) error {
	return s.UpdateTask(ctx, id, model.TaskUpdate{Input: &value})
}

// SetTaskDatastreamID sets the datastream of the task input.
func (s *System) SetTaskDatastreamID(ctx context.Context, id int, datastreamID string) error {
	return s.UpdateTask(ctx, id, model.TaskUpdate{DatastreamID: &datastreamID})
}

// SetTaskXCCDFID sets the XCCDF component of the task input.
func (s *System) SetTaskXCCDFID(ctx context.Context, id int, xccdfID string) error {
	return s.UpdateTask(ctx, id, model.TaskUpdate{XCCDFID: &xccdfID})
}

// SetTaskTailoring sets the task tailoring the same way SetTaskInput sets the input.
func (s *System) SetTaskTailoring(ctx context.Context, id int, value string) error {
	return s.UpdateTask(ctx, id, model.TaskUpdate{Tailoring: &value})
}

// SetTaskProfileID sets the profile the task is evaluated with.
func (s *System) SetTaskProfileID(ctx context.Context, id int, profileID string) error {
	return s.UpdateTask(ctx, id, model.TaskUpdate{ProfileID: &profileID})
}

// SetTaskOnlineRemediation sets if the failed rules are remediated during the evaluation.
func (s *System) SetTaskOnlineRemediation(ctx context.Context, id int, remediate bool) error {
	return s.UpdateTask(ctx, id, model.TaskUpdate{OnlineRemediation: &remediate})
}

// SetTaskCPEIDs sets the CPEs that select the CVE feed of cve_scan tasks.
func (s *System) SetTaskCPEIDs(ctx context.Context, id int, cpeIDs []string) error {
	return s.UpdateTask(ctx, id, model.TaskUpdate{CPEIDs: &cpeIDs})
}

// SetTaskScheduleNotBefore sets the next time the task runs, nil stops the scheduling.
// The time is truncated to the minute.
func (s *System) SetTaskScheduleNotBefore(ctx context.Context, id int, notBefore *time.Time) error {
	return s.UpdateTask(ctx, id, model.TaskUpdate{NotBefore: notBefore, ClearNotBefore: notBefore == nil})
}

// SetTaskScheduleRepeatAfter sets the task period in hours, 0 runs it once.
func (s *System) SetTaskScheduleRepeatAfter(ctx context.Context, id int, hours int) error {
	return s.UpdateTask(ctx, id, model.TaskUpdate{RepeatAfterHours: &hours})
}

// SetTaskScheduleSlipMode sets how the task reschedules after a run.
func (s *System) SetTaskScheduleSlipMode(ctx context.Context, id int, mode string) error {
	return s.UpdateTask(ctx, id, model.TaskUpdate{SlipMode: &mode})
}

// TaskRunState returns if the task has a requested or running run.
func (s *System) TaskRunState(id int) (model.TaskRunState, error) {
	s.tasksMu.Lock()
	defer s.tasksMu.Unlock()

	e, ok := s.tasks[id]
	if !ok {
		return model.TaskRunState{}, fmt.Errorf("task %d: %w", id, model.ErrNotFound)
	}
	_, inFlight := s.inFlight[id]

	e.mu.Lock()
	defer e.mu.Unlock()

	return model.TaskRunState{RunRequested: e.runOnce, InFlight: inFlight}, nil
}

// RunTaskOutsideSchedule requests a single run of an enabled task as soon as possible.
// The request is not persisted.
func (s *System) RunTaskOutsideSchedule(id int) error {
	e, err := s.entry(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	switch {
	case !e.task.Enabled:
		e.mu.Unlock()
		return fmt.Errorf("task %d is disabled: %w", id, model.ErrNotValid)
	case e.runOnce:
		e.mu.Unlock()
		return fmt.Errorf("task %d run already requested: %w", id, model.ErrAlreadyExists)
	}
	e.runOnce = true
	e.mu.Unlock()

	s.logger.Infof("Task %d run requested", id)
	s.wake()

	return nil
}

// RemoveTask unregisters and deletes a task. Enabled, running or tasks with
// results can't be removed, unless removeResults is set for the latter.
func (s *System) RemoveTask(ctx context.Context, id int, removeResults bool) error {
	s.tasksMu.Lock()
	defer s.tasksMu.Unlock()

	e, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("task %d: %w", id, model.ErrNotFound)
	}

	if _, ok := s.inFlight[id]; ok {
		return fmt.Errorf("task %d is running: %w", id, model.ErrNotValid)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.task.Enabled {
		return fmt.Errorf("task %d is enabled, disable it first: %w", id, model.ErrNotValid)
	}

	resultIDs, err := s.resultRepo.ListResultIDs(ctx, id)
	if err != nil {
		return fmt.Errorf("could not list task results: %w", err)
	}
	if len(resultIDs) > 0 {
		if !removeResults {
			return fmt.Errorf("task %d has %d results: %w", id, len(resultIDs), model.ErrNotValid)
		}
		if err := s.resultRepo.DeleteResults(ctx, id); err != nil {
			return fmt.Errorf("could not remove task results: %w", err)
		}
	}

	if e.persisted {
		err := s.taskRepo.DeleteTask(ctx, id)
		if err != nil && !isNotFound(err) {
			return fmt.Errorf("could not delete task: %w", err)
		}
	}
	delete(s.tasks, id)
	s.logger.Infof("Task %d removed", id)

	return nil
}

// updateTask applies the mutation to a copy of the task, persists the copy and,
// only then, replaces the registered task.
func (s *System) updateTask(ctx context.Context, id int, scheduleChange bool, mutate func(t *model.Task) error) error {
	e, err := s.entry(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	t := e.task.Copy()
	if err := mutate(&t); err != nil {
		return err
	}

	if err := s.taskRepo.SaveTask(ctx, t); err != nil {
		return fmt.Errorf("could not persist task %d: %w", id, err)
	}
	e.task = t
	e.persisted = true
	if !t.Enabled {
		// Disabled tasks are never selected, a pending request would never be consumed.
		e.runOnce = false
	}

	if scheduleChange {
		s.wake()
	}

	return nil
}

// freeTaskID returns the smallest unused task ID, tasksMu must be held.
func (s *System) freeTaskID() int {
	id := 1
	for {
		if _, ok := s.tasks[id]; !ok {
			return id
		}
		id++
	}
}

// applyTaskUpdate applies the update on the task. Enabled goes last so it's
// checked against the updated spec.
func applyTaskUpdate(t *model.Task, upd model.TaskUpdate) error {
	if upd.Title != nil {
		t.Title = *upd.Title
	}

	if upd.Target != nil {
		tg, err := model.ParseTarget(*upd.Target)
		if err != nil {
			return err
		}
		t.Spec.Target = tg.String()
	}

	if upd.Mode != nil {
		m, err := model.ParseEvaluationMode(*upd.Mode)
		if err != nil {
			return err
		}
		t.Spec.Mode = m
	}

	if upd.Input != nil {
		t.Spec.Input.Content = model.ContentFromValue(*upd.Input)
	}
	if upd.DatastreamID != nil {
		t.Spec.Input.DatastreamID = *upd.DatastreamID
	}
	if upd.XCCDFID != nil {
		t.Spec.Input.XCCDFID = *upd.XCCDFID
	}
	if upd.Tailoring != nil {
		t.Spec.Tailoring = model.ContentFromValue(*upd.Tailoring)
	}
	if upd.ProfileID != nil {
		t.Spec.ProfileID = *upd.ProfileID
	}
	if upd.OnlineRemediation != nil {
		t.Spec.OnlineRemediation = *upd.OnlineRemediation
	}
	if upd.CPEIDs != nil {
		t.Spec.CPEIDs = append([]string{}, (*upd.CPEIDs)...)
	}

	switch {
	case upd.ClearNotBefore:
		t.Schedule.NotBefore = nil
	case upd.NotBefore != nil:
		nb := upd.NotBefore.UTC().Truncate(time.Minute)
		t.Schedule.NotBefore = &nb
	}

	if upd.RepeatAfterHours != nil {
		if err := model.ValidateRepeatAfterHours(*upd.RepeatAfterHours); err != nil {
			return err
		}
		t.Schedule.RepeatAfterHours = *upd.RepeatAfterHours
	}

	if upd.SlipMode != nil {
		m, err := model.ParseSlipMode(*upd.SlipMode)
		if err != nil {
			return err
		}
		t.Schedule.SlipMode = m
	}

	if upd.Enabled != nil {
		if *upd.Enabled {
			if err := t.Spec.Validate(); err != nil {
				return fmt.Errorf("task can't be enabled: %w", err)
			}
		}
		t.Enabled = *upd.Enabled
	}

	return nil
}
