package prometheus

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/slok/scapd/internal/metrics"
)

const namespace = "scapd"

// Recorder is a Prometheus metrics recorder.
type Recorder struct {
	reg prometheus.Gatherer

	actionsSubmitted *prometheus.CounterVec
	actionDuration   *prometheus.HistogramVec
	actionsQueued    prometheus.Gauge
	taskEvaluations  *prometheus.HistogramVec
	tasksInFlight    prometheus.Gauge
	feedChecks       *prometheus.CounterVec
}

// NewRecorder returns a new Prometheus recorder registered on reg.
// If reg is nil a new registry is created.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	r := &Recorder{
		reg: reg,
		actionsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "async",
			Name:      "actions_submitted_total",
			Help:      "Total number of actions submitted to the worker pool.",
		}, []string{"priority"}),
		actionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "async",
			Name:      "action_duration_seconds",
			Help:      "Duration of the actions run by the worker pool.",
			Buckets:   []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"success"}),
		actionsQueued: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "async",
			Name:      "actions_queued",
			Help:      "Number of actions waiting for a worker.",
		}),
		taskEvaluations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "task_evaluation_duration_seconds",
			Help:      "Duration of the scheduled task evaluations.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"task", "exit_code"}),
		tasksInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "tasks_in_flight",
			Help:      "Number of tasks being evaluated or waiting to be.",
		}),
		feedChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "checks_total",
			Help:      "Total number of CVE feed freshness checks by outcome.",
		}, []string{"feed", "outcome"}),
	}

	reg.MustRegister(
		r.actionsSubmitted,
		r.actionDuration,
		r.actionsQueued,
		r.taskEvaluations,
		r.tasksInFlight,
		r.feedChecks,
	)

	return r
}

var _ metrics.Recorder = &Recorder{}

// Handler returns the HTTP handler that exposes the recorded metrics.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (r *Recorder) ActionSubmitted(_ context.Context, priority int) {
	r.actionsSubmitted.WithLabelValues(strconv.Itoa(priority)).Inc()
}

func (r *Recorder) ActionFinished(_ context.Context, success bool, duration time.Duration) {
	r.actionDuration.WithLabelValues(strconv.FormatBool(success)).Observe(duration.Seconds())
}

func (r *Recorder) ActionsQueued(_ context.Context, count int) {
	r.actionsQueued.Set(float64(count))
}

func (r *Recorder) TaskEvaluated(_ context.Context, taskID int, exitCode int, duration time.Duration) {
	r.taskEvaluations.WithLabelValues(strconv.Itoa(taskID), strconv.Itoa(exitCode)).Observe(duration.Seconds())
}

func (r *Recorder) TasksInFlight(_ context.Context, count int) {
	r.tasksInFlight.Set(float64(count))
}

func (r *Recorder) FeedChecked(_ context.Context, feed string, outcome metrics.FeedOutcome) {
	r.feedChecks.WithLabelValues(feed, string(outcome)).Inc()
}
