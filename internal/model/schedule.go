package model

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// ScheduleTimeLayout is the layout used to persist and parse schedule times (UTC, minute precision).
const ScheduleTimeLayout = "2006-01-02T15:04"

// SlipMode decides how a recurring schedule behaves when runs were missed.
//
// Example: a task scheduled at 01:00 every hour, the daemon was down until 03:05.
//   - no_slip: runs for 01:00, 02:00 and 03:00 happen back to back, next is 04:00.
//   - drop_missed: one run at 03:05, next is 04:05.
//   - drop_missed_aligned: one run at 03:05, next is 04:00.
type SlipMode string

const (
	// SlipModeNoSlip never skips a scheduled run, missed runs are caught up one by one.
	SlipModeNoSlip SlipMode = "no_slip"
	// SlipModeDropMissed schedules the next run relative to when the last run happened.
	SlipModeDropMissed SlipMode = "drop_missed"
	// SlipModeDropMissedAligned drops missed runs but keeps the original timetable.
	SlipModeDropMissedAligned SlipMode = "drop_missed_aligned"
)

// MaxRepeatAfterHours is the biggest recurrence period a time.Duration can hold.
const MaxRepeatAfterHours = int(math.MaxInt64 / int64(time.Hour))

// DefaultSlipMode is the slip mode used when none is set.
const DefaultSlipMode = SlipModeDropMissedAligned

// ParseSlipMode parses a slip mode name.
func ParseSlipMode(s string) (SlipMode, error) {
	switch m := SlipMode(strings.TrimSpace(s)); m {
	case SlipModeNoSlip, SlipModeDropMissed, SlipModeDropMissedAligned:
		return m, nil
	case "":
		return DefaultSlipMode, nil
	}

	return "", fmt.Errorf("unknown slip mode %q: %w", s, ErrNotValid)
}

// ParseScheduleTime parses a schedule time in ScheduleTimeLayout, always as UTC.
func ParseScheduleTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(ScheduleTimeLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid schedule time %q (expected %s): %w", s, ScheduleTimeLayout, ErrNotValid)
	}

	return t, nil
}

// Schedule decides when a task runs.
type Schedule struct {
	// NotBefore is the earliest time the task may run, nil means it never runs automatically.
	NotBefore *time.Time
	// RepeatAfterHours is the recurrence period, 0 means the task runs once.
	RepeatAfterHours int
	SlipMode         SlipMode
}

// ValidateRepeatAfterHours checks a recurrence period in hours.
func ValidateRepeatAfterHours(hours int) error {
	if hours < 0 {
		return fmt.Errorf("repeat after hours can't be negative: %w", ErrNotValid)
	}
	if hours > MaxRepeatAfterHours {
		return fmt.Errorf("repeat after hours can't be greater than %d: %w", MaxRepeatAfterHours, ErrNotValid)
	}

	return nil
}

// Validate validates the schedule.
func (s Schedule) Validate() error {
	if err := ValidateRepeatAfterHours(s.RepeatAfterHours); err != nil {
		return err
	}

	if _, err := ParseSlipMode(string(s.SlipMode)); err != nil {
		return err
	}

	return nil
}

// IsEquivalentTo returns true if both schedules would trigger the same runs.
func (s Schedule) IsEquivalentTo(o Schedule) bool {
	if (s.NotBefore == nil) != (o.NotBefore == nil) {
		return false
	}
	if s.NotBefore != nil && !s.NotBefore.Equal(*o.NotBefore) {
		return false
	}

	return s.RepeatAfterHours == o.RepeatAfterHours && s.slipMode() == o.slipMode()
}

// Copy returns a deep copy of the schedule.
func (s Schedule) Copy() Schedule {
	if s.NotBefore != nil {
		nb := *s.NotBefore
		s.NotBefore = &nb
	}
	return s
}

func (s Schedule) slipMode() SlipMode {
	if s.SlipMode == "" {
		return DefaultSlipMode
	}
	return s.SlipMode
}

// NextNotBefore calculates the next NotBefore after a run that happened at reference.
// Returns nil when the task should not run again.
func (s Schedule) NextNotBefore(reference time.Time) (*time.Time, error) {
	if s.NotBefore == nil || s.RepeatAfterHours <= 0 {
		return nil, nil
	}
	if err := ValidateRepeatAfterHours(s.RepeatAfterHours); err != nil {
		return nil, err
	}

	notBefore := s.NotBefore.UTC()
	reference = reference.UTC()
	period := time.Duration(s.RepeatAfterHours) * time.Hour

	var next time.Time
	switch s.slipMode() {
	case SlipModeNoSlip:
		next = notBefore.Add(period)

	case SlipModeDropMissed:
		next = reference.Add(period)

	case SlipModeDropMissedAligned:
		// Smallest N + k*R (k >= 1) strictly after the reference.
		k := int64(1)
		if elapsed := reference.Sub(notBefore); elapsed >= 0 {
			k = int64(elapsed/period) + 1
		}
		next = notBefore.Add(time.Duration(k) * period)

	default:
		return nil, fmt.Errorf("unknown slip mode %q: %w", s.SlipMode, ErrNotValid)
	}

	return &next, nil
}
