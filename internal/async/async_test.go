package async_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/scapd/internal/async"
	"github.com/slok/scapd/internal/model"
)

const waitTimeout = 5 * time.Second

func newManager(t *testing.T, workers int) *async.Manager {
	t.Helper()

	m, err := async.NewManager(async.ManagerConfig{Workers: workers})
	require.NoError(t, err)
	t.Cleanup(m.Stop)

	return m
}

// blockingAction blocks until released or its context is cancelled.
type blockingAction struct {
	started  chan struct{}
	release  chan struct{}
	cause    chan error
	startOne sync.Once
}

func newBlockingAction() *blockingAction {
	return &blockingAction{
		started: make(chan struct{}),
		release: make(chan struct{}),
		cause:   make(chan error, 1),
	}
}

func (b *blockingAction) Run(ctx context.Context) error {
	b.startOne.Do(func() { close(b.started) })
	select {
	case <-b.release:
		return nil
	case <-ctx.Done():
		b.cause <- context.Cause(ctx)
		return ctx.Err()
	}
}

func (b *blockingAction) String() string { return "blocking" }

func waitClosed(t *testing.T, c <-chan struct{}) {
	t.Helper()
	select {
	case <-c:
	case <-time.After(waitTimeout):
		t.Fatal("timeout waiting")
	}
}

func TestManagerTokensAreUniqueUnderConcurrency(t *testing.T) {
	require := require.New(t)

	m := newManager(t, 4)

	const submitters, perSubmitter = 16, 50
	var mu sync.Mutex
	tokens := map[async.Token]struct{}{}
	var wg sync.WaitGroup
	wg.Add(submitters)
	for i := 0; i < submitters; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perSubmitter; j++ {
				token := m.Submit(async.ActionFunc("noop", func(context.Context) error { return nil }), j%3)
				mu.Lock()
				tokens[token] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(tokens, submitters*perSubmitter)
}

func TestManagerRunsInPriorityOrder(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	m := newManager(t, 1)

	// Keep the only worker busy while we fill the queue.
	gate := newBlockingAction()
	m.Submit(gate, 0)
	waitClosed(t, gate.started)

	var mu sync.Mutex
	got := []string{}
	done := make(chan struct{})
	record := func(name string) async.Action {
		return async.ActionFunc(name, func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, name)
			if len(got) == 5 {
				close(done)
			}
			return nil
		})
	}
	m.Submit(record("task-a"), 10)
	m.Submit(record("eval-a"), 0)
	m.Submit(record("task-b"), 10)
	m.Submit(record("eval-b"), 0)
	m.Submit(record("low"), 20)

	close(gate.release)
	waitClosed(t, done)

	mu.Lock()
	defer mu.Unlock()
	require.Len(got, 5)
	assert.Equal([]string{"eval-a", "eval-b", "task-a", "task-b", "low"}, got)
}

func TestManagerStatus(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	m := newManager(t, 1)

	running := newBlockingAction()
	t1 := m.Submit(running, 10)
	waitClosed(t, running.started)
	t2 := m.Submit(async.ActionFunc("queued", func(context.Context) error { return nil }), 0)

	statuses := m.Status()
	require.Len(statuses, 2)
	assert.Equal(t1, statuses[0].Token)
	assert.Equal(async.StatusProcessing, statuses[0].Status)
	assert.Equal("blocking", statuses[0].Description)
	assert.Equal(t2, statuses[1].Token)
	assert.Equal(async.StatusPending, statuses[1].Status)
	assert.Equal("queued", statuses[1].Description)

	close(running.release)
	require.Eventually(func() bool { return len(m.Status()) == 0 }, waitTimeout, 10*time.Millisecond)

	_, ok := m.Lookup(t1)
	assert.False(ok)
}

func TestManagerCancelPending(t *testing.T) {
	require := require.New(t)

	m := newManager(t, 1)

	running := newBlockingAction()
	m.Submit(running, 0)
	waitClosed(t, running.started)

	ran := make(chan struct{})
	token := m.Submit(async.ActionFunc("cancelled", func(context.Context) error {
		close(ran)
		return nil
	}), 0)

	require.NoError(m.Cancel(token))
	_, ok := m.Lookup(token)
	require.False(ok)

	close(running.release)
	// Submit a sentinel action and wait for it, the cancelled one would have run before.
	after := make(chan struct{})
	m.Submit(async.ActionFunc("after", func(context.Context) error {
		close(after)
		return nil
	}), 0)
	waitClosed(t, after)

	select {
	case <-ran:
		t.Fatal("cancelled action should not run")
	default:
	}
}

func TestManagerCancelProcessing(t *testing.T) {
	require := require.New(t)

	m := newManager(t, 1)

	running := newBlockingAction()
	token := m.Submit(running, 0)
	waitClosed(t, running.started)

	require.NoError(m.Cancel(token))

	select {
	case cause := <-running.cause:
		require.ErrorIs(cause, async.ErrCancelled)
	case <-time.After(waitTimeout):
		t.Fatal("running action should be cancelled")
	}
}

func TestManagerCancelUnknown(t *testing.T) {
	m := newManager(t, 1)

	err := m.Cancel(42)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestManagerRecoversFromPanics(t *testing.T) {
	m := newManager(t, 1)

	m.Submit(async.ActionFunc("panic", func(context.Context) error { panic("boom") }), 0)
	m.Submit(async.ActionFunc("fail", func(context.Context) error { return errors.New("whatever") }), 0)

	done := make(chan struct{})
	m.Submit(async.ActionFunc("ok", func(context.Context) error {
		close(done)
		return nil
	}), 0)

	waitClosed(t, done)
}

func TestManagerActionKnowsItsToken(t *testing.T) {
	m := newManager(t, 2)

	gotToken := make(chan async.Token, 1)
	token := m.Submit(async.ActionFunc("token", func(ctx context.Context) error {
		tk, _ := async.TokenFromContext(ctx)
		gotToken <- tk
		return nil
	}), 0)

	select {
	case tk := <-gotToken:
		assert.Equal(t, token, tk)
	case <-time.After(waitTimeout):
		t.Fatal("timeout waiting")
	}
}

func TestManagerStopCancelsRunningActions(t *testing.T) {
	require := require.New(t)

	m, err := async.NewManager(async.ManagerConfig{Workers: 1})
	require.NoError(err)

	running := newBlockingAction()
	m.Submit(running, 0)
	waitClosed(t, running.started)
	pending := m.Submit(async.ActionFunc("pending", func(context.Context) error { return nil }), 0)

	m.Stop()

	select {
	case cause := <-running.cause:
		require.ErrorIs(cause, async.ErrStopped)
	default:
		t.Fatal("running action should be cancelled on stop")
	}
	_, ok := m.Lookup(pending)
	require.False(ok)
	require.Empty(m.Status())
}

func TestNewManagerInvalidConfig(t *testing.T) {
	_, err := async.NewManager(async.ManagerConfig{Workers: -1})
	assert.Error(t, err)
}
