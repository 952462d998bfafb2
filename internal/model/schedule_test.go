package model_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/scapd/internal/model"
)

func tp(t time.Time) *time.Time { return &t }

func utc(s string) time.Time {
	t, err := time.Parse(model.ScheduleTimeLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestScheduleNextNotBefore(t *testing.T) {
	tests := map[string]struct {
		schedule model.Schedule
		ref      time.Time
		expNext  *time.Time
		expErr   bool
	}{
		"Without not before there is no next run.": {
			schedule: model.Schedule{RepeatAfterHours: 1, SlipMode: model.SlipModeNoSlip},
			ref:      utc("2024-01-01T10:00"),
			expNext:  nil,
		},

		"Without repeat there is no next run.": {
			schedule: model.Schedule{NotBefore: tp(utc("2024-01-01T00:00")), SlipMode: model.SlipModeNoSlip},
			ref:      utc("2024-01-01T10:00"),
			expNext:  nil,
		},

		"No slip should add exactly one period to not before.": {
			schedule: model.Schedule{NotBefore: tp(utc("2024-01-01T01:00")), RepeatAfterHours: 1, SlipMode: model.SlipModeNoSlip},
			ref:      utc("2024-01-01T03:05"),
			expNext:  tp(utc("2024-01-01T02:00")),
		},

		"Drop missed should add one period to the reference.": {
			schedule: model.Schedule{NotBefore: tp(utc("2024-01-01T01:00")), RepeatAfterHours: 1, SlipMode: model.SlipModeDropMissed},
			ref:      utc("2024-01-01T03:05"),
			expNext:  tp(utc("2024-01-01T04:05")),
		},

		"Drop missed aligned should keep the timetable after misses.": {
			schedule: model.Schedule{NotBefore: tp(utc("2024-01-01T01:00")), RepeatAfterHours: 1, SlipMode: model.SlipModeDropMissedAligned},
			ref:      utc("2024-01-01T03:05"),
			expNext:  tp(utc("2024-01-01T04:00")),
		},

		"Drop missed aligned should be strictly after the reference when it's on the timetable.": {
			schedule: model.Schedule{NotBefore: tp(utc("2024-01-01T00:00")), RepeatAfterHours: 24, SlipMode: model.SlipModeDropMissedAligned},
			ref:      utc("2024-01-03T00:00"),
			expNext:  tp(utc("2024-01-04T00:00")),
		},

		"Drop missed aligned should skip days missed while the daemon was down.": {
			schedule: model.Schedule{NotBefore: tp(utc("2024-01-01T00:00")), RepeatAfterHours: 24, SlipMode: model.SlipModeDropMissedAligned},
			ref:      utc("2024-01-04T09:00"),
			expNext:  tp(utc("2024-01-05T00:00")),
		},

		"Drop missed aligned with a reference before not before should add a single period.": {
			schedule: model.Schedule{NotBefore: tp(utc("2024-01-02T00:00")), RepeatAfterHours: 24, SlipMode: model.SlipModeDropMissedAligned},
			ref:      utc("2024-01-01T12:00"),
			expNext:  tp(utc("2024-01-03T00:00")),
		},

		"Empty slip mode should behave as drop missed aligned.": {
			schedule: model.Schedule{NotBefore: tp(utc("2024-01-01T01:00")), RepeatAfterHours: 1},
			ref:      utc("2024-01-01T03:05"),
			expNext:  tp(utc("2024-01-01T04:00")),
		},

		"A period too big for a duration should fail instead of going back in time.": {
			schedule: model.Schedule{NotBefore: tp(utc("2024-01-01T00:00")), RepeatAfterHours: 3_000_000, SlipMode: model.SlipModeDropMissedAligned},
			ref:      utc("2024-01-04T09:00"),
			expErr:   true,
		},

		"The biggest valid period should be in the future.": {
			schedule: model.Schedule{NotBefore: tp(utc("2024-01-01T00:00")), RepeatAfterHours: model.MaxRepeatAfterHours, SlipMode: model.SlipModeNoSlip},
			ref:      utc("2024-01-04T09:00"),
			expNext:  tp(utc("2024-01-01T00:00").Add(time.Duration(model.MaxRepeatAfterHours) * time.Hour)),
		},

		"Unknown slip mode should fail.": {
			schedule: model.Schedule{NotBefore: tp(utc("2024-01-01T01:00")), RepeatAfterHours: 1, SlipMode: "wrong"},
			ref:      utc("2024-01-01T03:05"),
			expErr:   true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			gotNext, err := test.schedule.NextNotBefore(test.ref)

			if test.expErr {
				assert.ErrorIs(err, model.ErrNotValid)
				return
			}
			assert.NoError(err)
			if test.expNext == nil {
				assert.Nil(gotNext)
				return
			}
			if assert.NotNil(gotNext) {
				assert.True(test.expNext.Equal(*gotNext), "expected %s, got %s", test.expNext, gotNext)
			}
		})
	}
}

func TestScheduleNextNotBeforeAlignedCongruence(t *testing.T) {
	require := require.New(t)

	notBefore := utc("2024-03-10T07:00")
	periods := []int{1, 5, 24, 168}
	for _, period := range periods {
		s := model.Schedule{NotBefore: tp(notBefore), RepeatAfterHours: period, SlipMode: model.SlipModeDropMissedAligned}
		pd := time.Duration(period) * time.Hour

		for offset := -48 * time.Hour; offset < 400*time.Hour; offset += 37 * time.Minute {
			ref := notBefore.Add(offset)
			next, err := s.NextNotBefore(ref)
			require.NoError(err)
			require.NotNil(next)

			require.True(next.After(ref), "next %s should be after %s", next, ref)
			require.True(next.After(notBefore))
			require.Zero(next.Sub(notBefore)%pd, "next %s should be aligned to %s every %s", next, notBefore, pd)
			require.False(next.Add(-pd).After(ref) && next.Add(-pd).After(notBefore), "next %s should be the smallest candidate", next)
		}
	}
}

func TestScheduleValidate(t *testing.T) {
	tests := map[string]struct {
		schedule model.Schedule
		expErr   bool
	}{
		"A one shot schedule is valid.": {
			schedule: model.Schedule{NotBefore: tp(utc("2024-01-01T00:00"))},
		},

		"The biggest period is valid.": {
			schedule: model.Schedule{RepeatAfterHours: model.MaxRepeatAfterHours},
		},

		"A negative period is not valid.": {
			schedule: model.Schedule{RepeatAfterHours: -1},
			expErr:   true,
		},

		"A period that overflows a duration is not valid.": {
			schedule: model.Schedule{RepeatAfterHours: 3_000_000},
			expErr:   true,
		},

		"An unknown slip mode is not valid.": {
			schedule: model.Schedule{SlipMode: "wrong"},
			expErr:   true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			err := test.schedule.Validate()

			if test.expErr {
				assert.ErrorIs(err, model.ErrNotValid)
			} else {
				assert.NoError(err)
			}
		})
	}
}

func TestParseSlipMode(t *testing.T) {
	tests := map[string]struct {
		value   string
		expMode model.SlipMode
		expErr  bool
	}{
		"No slip.":             {value: "no_slip", expMode: model.SlipModeNoSlip},
		"Drop missed.":         {value: "drop_missed", expMode: model.SlipModeDropMissed},
		"Drop missed aligned.": {value: "drop_missed_aligned", expMode: model.SlipModeDropMissedAligned},
		"Empty uses default.":  {value: "", expMode: model.SlipModeDropMissedAligned},
		"Unknown fails.":       {value: "slip", expErr: true},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			gotMode, err := model.ParseSlipMode(test.value)

			if test.expErr {
				assert.ErrorIs(err, model.ErrNotValid)
			} else if assert.NoError(err) {
				assert.Equal(test.expMode, gotMode)
			}
		})
	}
}

func TestParseScheduleTime(t *testing.T) {
	assert := assert.New(t)

	got, err := model.ParseScheduleTime("2024-01-01T15:04")
	assert.NoError(err)
	assert.Equal(time.UTC, got.Location())
	assert.Equal(time.Date(2024, 1, 1, 15, 4, 0, 0, time.UTC), got)

	_, err = model.ParseScheduleTime("2024-01-01 15:04:05")
	assert.ErrorIs(err, model.ErrNotValid)
}
