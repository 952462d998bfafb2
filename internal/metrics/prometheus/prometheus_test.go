package prometheus_test

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/scapd/internal/metrics"
	"github.com/slok/scapd/internal/metrics/prometheus"
)

func TestRecorderExposesMetrics(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)
	ctx := context.Background()

	rec := prometheus.NewRecorder(nil)
	rec.ActionSubmitted(ctx, 10)
	rec.ActionSubmitted(ctx, 10)
	rec.ActionFinished(ctx, true, 2*time.Second)
	rec.ActionsQueued(ctx, 3)
	rec.TaskEvaluated(ctx, 4, 2, time.Minute)
	rec.TasksInFlight(ctx, 1)
	rec.FeedChecked(ctx, "RHEL7", metrics.FeedOutcomeDownloaded)

	srv := httptest.NewServer(rec.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(err)

	got := string(body)
	assert.Contains(got, `scapd_async_actions_submitted_total{priority="10"} 2`)
	assert.Contains(got, `scapd_async_actions_queued 3`)
	assert.Contains(got, `scapd_system_tasks_in_flight 1`)
	assert.Contains(got, `scapd_system_task_evaluation_duration_seconds_count{exit_code="2",task="4"} 1`)
	assert.Contains(got, `scapd_feed_checks_total{feed="RHEL7",outcome="downloaded"} 1`)
}
