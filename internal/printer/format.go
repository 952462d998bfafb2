package printer

import (
	"fmt"
	"time"

	"github.com/slok/scapd/internal/model"
)

// RelativeTime returns a human-readable time relative to now.
// Examples: "5 seconds ago", "in 3 hours", "2 days ago".
func RelativeTime(t, now time.Time) string {
	diff := now.Sub(t)
	format := "%s ago"
	if diff < 0 {
		diff = -diff
		format = "in %s"
	}

	var n int
	var unit string
	switch {
	case diff < time.Minute:
		n, unit = int(diff.Seconds()), "second"
	case diff < time.Hour:
		n, unit = int(diff.Minutes()), "minute"
	case diff < 24*time.Hour:
		n, unit = int(diff.Hours()), "hour"
	default:
		n, unit = int(diff.Hours()/24), "day"
	}
	if n != 1 {
		unit += "s"
	}

	return fmt.Sprintf(format, fmt.Sprintf("%d %s", n, unit))
}

// FormatTimestamp returns a formatted timestamp string in UTC.
// Format: "2006-01-02 15:04:05 UTC".
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05 UTC")
}

// FormatNextRun returns when a task runs next.
func FormatNextRun(t model.Task, now time.Time) string {
	switch {
	case !t.Enabled:
		return "disabled"
	case t.Schedule.NotBefore == nil:
		return "not scheduled"
	}

	nb := t.Schedule.NotBefore.UTC()
	if !nb.After(now) {
		return nb.Format(model.ScheduleTimeLayout) + " (due)"
	}
	return nb.Format(model.ScheduleTimeLayout) + " (" + RelativeTime(nb, now) + ")"
}

// FormatRepeat returns the task recurrence.
func FormatRepeat(s model.Schedule) string {
	if s.RepeatAfterHours <= 0 {
		return "once"
	}
	return fmt.Sprintf("%dh", s.RepeatAfterHours)
}

// FormatBytes returns a human-readable byte size string.
// Examples: "0 B", "512 B", "1.5 KB", "700.0 MB".
func FormatBytes(bytes int64) string {
	if bytes < 1024 {
		if bytes < 0 {
			bytes = 0
		}
		return fmt.Sprintf("%d B", bytes)
	}

	size := float64(bytes)
	for _, unit := range []string{"KB", "MB", "GB"} {
		size /= 1024
		if size < 1024 {
			return fmt.Sprintf("%.1f %s", size, unit)
		}
	}

	return fmt.Sprintf("%.1f TB", size/1024)
}
