package metrics

import (
	"context"
	"time"
)

// Recorder knows how to record the daemon metrics.
type Recorder interface {
	ActionSubmitted(ctx context.Context, priority int)
	ActionFinished(ctx context.Context, success bool, duration time.Duration)
	ActionsQueued(ctx context.Context, count int)
	TaskEvaluated(ctx context.Context, taskID int, exitCode int, duration time.Duration)
	TasksInFlight(ctx context.Context, count int)
	FeedChecked(ctx context.Context, feed string, outcome FeedOutcome)
}

// FeedOutcome is the outcome of a feed freshness check.
type FeedOutcome string

const (
	FeedOutcomeDisabled   FeedOutcome = "disabled"
	FeedOutcomeFresh      FeedOutcome = "fresh"
	FeedOutcomeDownloaded FeedOutcome = "downloaded"
	FeedOutcomeCheckError FeedOutcome = "check_error"
	FeedOutcomeError      FeedOutcome = "error"
)

// Noop recorder doesn't record anything.
var Noop Recorder = noop(0)

type noop int

func (noop) ActionSubmitted(context.Context, int) {}
func (noop) ActionFinished(context.Context, bool, time.Duration) {}
func (noop) ActionsQueued(context.Context, int) {}
func (noop) TaskEvaluated(context.Context, int, int, time.Duration) {}
func (noop) TasksInFlight(context.Context, int) {}
func (noop) FeedChecked(context.Context, string, FeedOutcome) {}
