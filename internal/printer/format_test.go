package printer_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/slok/scapd/internal/model"
	"github.com/slok/scapd/internal/printer"
)

func TestRelativeTime(t *testing.T) {
	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

	tests := map[string]struct {
		time     time.Time
		expected string
	}{
		"1 second ago":   {time: now.Add(-time.Second), expected: "1 second ago"},
		"45 minutes ago": {time: now.Add(-45 * time.Minute), expected: "45 minutes ago"},
		"1 hour ago":     {time: now.Add(-time.Hour), expected: "1 hour ago"},
		"3 days ago":     {time: now.Add(-72 * time.Hour), expected: "3 days ago"},
		"now":            {time: now, expected: "0 seconds ago"},
		"in 2 hours":     {time: now.Add(2 * time.Hour), expected: "in 2 hours"},
		"in 1 day":       {time: now.Add(30 * time.Hour), expected: "in 1 day"},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.expected, printer.RelativeTime(test.time, now))
		})
	}
}

func TestFormatNextRun(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	later := now.Add(3 * time.Hour)

	tests := map[string]struct {
		task     func() model.Task
		expected string
	}{
		"Disabled tasks don't run.": {
			task:     func() model.Task { return model.NewTask(1) },
			expected: "disabled",
		},
		"Tasks without not before are not scheduled.": {
			task: func() model.Task {
				t := model.NewTask(1)
				t.Enabled = true
				return t
			},
			expected: "not scheduled",
		},
		"Future runs show the remaining time.": {
			task: func() model.Task {
				t := model.NewTask(1)
				t.Enabled = true
				t.Schedule.NotBefore = &later
				return t
			},
			expected: "2024-01-01T03:00 (in 3 hours)",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.expected, printer.FormatNextRun(test.task(), now))
		})
	}
}

func TestFormatBytes(t *testing.T) {
	tests := map[string]struct {
		bytes    int64
		expected string
	}{
		"negative":  {bytes: -1, expected: "0 B"},
		"bytes":     {bytes: 512, expected: "512 B"},
		"kilobytes": {bytes: 1536, expected: "1.5 KB"},
		"megabytes": {bytes: 700 * 1024 * 1024, expected: "700.0 MB"},
		"gigabytes": {bytes: 10 * 1024 * 1024 * 1024, expected: "10.0 GB"},
		"terabytes": {bytes: 2 * 1024 * 1024 * 1024 * 1024, expected: "2.0 TB"},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.expected, printer.FormatBytes(test.bytes))
		})
	}
}
