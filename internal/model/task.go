package model

import (
	"fmt"
	"time"
)

// Task is a persisted, optionally recurring, evaluation job.
type Task struct {
	ID       int
	Enabled  bool
	Title    string
	Spec     EvaluationSpec
	Schedule Schedule
}

// NewTask returns an empty disabled task with the defaults set.
func NewTask(id int) Task {
	return Task{
		ID:       id,
		Spec:     NewEvaluationSpec(),
		Schedule: Schedule{SlipMode: DefaultSlipMode},
	}
}

// Validate validates the task.
func (t Task) Validate() error {
	if t.ID <= 0 {
		return fmt.Errorf("task id must be positive: %w", ErrNotValid)
	}

	if err := t.Spec.Validate(); err != nil {
		return fmt.Errorf("invalid evaluation spec: %w", err)
	}

	if err := t.Schedule.Validate(); err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}

	return nil
}

// IsEquivalentTo compares everything except the ID.
func (t Task) IsEquivalentTo(o Task) bool {
	return t.Enabled == o.Enabled &&
		t.Title == o.Title &&
		t.Spec.IsEquivalentTo(o.Spec) &&
		t.Schedule.IsEquivalentTo(o.Schedule)
}

// Copy returns a deep copy of the task.
func (t Task) Copy() Task {
	t.Spec = t.Spec.Copy()
	t.Schedule = t.Schedule.Copy()
	return t
}

// DueAt returns when the task should run next and if it should run at all.
// A one-shot run request makes the task due at now.
func (t Task) DueAt(now time.Time, runOnce bool) (time.Time, bool) {
	if !t.Enabled {
		return time.Time{}, false
	}
	if runOnce {
		return now, true
	}
	if t.Schedule.NotBefore == nil {
		return time.Time{}, false
	}

	return t.Schedule.NotBefore.UTC(), true
}

// TaskUpdate holds the task fields to change, nil fields are kept.
type TaskUpdate struct {
	Enabled           *bool
	Title             *string
	Target            *string
	Mode              *string
	Input             *string
	DatastreamID      *string
	XCCDFID           *string
	Tailoring         *string
	ProfileID         *string
	OnlineRemediation *bool
	CPEIDs            *[]string
	NotBefore         *time.Time
	// ClearNotBefore stops the scheduling, it wins over NotBefore.
	ClearNotBefore   bool
	RepeatAfterHours *int
	SlipMode         *string
}

// ChangesSchedule returns true if the update can change when the task runs.
func (u TaskUpdate) ChangesSchedule() bool {
	return u.Enabled != nil ||
		u.NotBefore != nil ||
		u.ClearNotBefore ||
		u.RepeatAfterHours != nil ||
		u.SlipMode != nil
}

// TaskRunState tells if a task run is pending.
type TaskRunState struct {
	// RunRequested is a one-shot run that has not finished yet.
	RunRequested bool
	InFlight     bool
}

// Pending returns true while a run is requested or running.
func (s TaskRunState) Pending() bool {
	return s.RunRequested || s.InFlight
}

// DaemonInfo is what a running daemon publishes in its data dir so the
// other processes manage the tasks through it.
type DaemonInfo struct {
	// Address is the API base URL.
	Address   string
	PID       int
	StartedAt time.Time
}
