package async

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/slok/scapd/internal/log"
	"github.com/slok/scapd/internal/metrics"
	"github.com/slok/scapd/internal/model"
)

var (
	// ErrCancelled is the context cause of an action cancelled by the user.
	ErrCancelled = errors.New("action cancelled")
	// ErrStopped is the context cause of the actions running when the manager stops.
	ErrStopped = errors.New("manager stopped")
)

// Action is a unit of work run by the manager workers.
type Action interface {
	// Run runs the action, ctx is cancelled when the action is cancelled or the manager stops.
	Run(ctx context.Context) error
	// String returns the action description.
	String() string
}

// ActionFunc is a helper to create actions from functions.
func ActionFunc(description string, f func(ctx context.Context) error) Action {
	return actionFunc{desc: description, f: f}
}

type actionFunc struct {
	desc string
	f    func(ctx context.Context) error
}

func (a actionFunc) Run(ctx context.Context) error { return a.f(ctx) }
func (a actionFunc) String() string { return a.desc }

// Token identifies a submitted action. Tokens are never reused during the manager lifetime.
type Token uint64

// Status is the status of a live action.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
)

// ActionStatus is the public view of a live action.
type ActionStatus struct {
	Token       Token
	Description string
	Status      Status
	Priority    int
	SubmittedAt time.Time
}

type entry struct {
	token       Token
	action      Action
	priority    int
	seq         uint64
	status      Status
	submittedAt time.Time
	index       int
	cancel      context.CancelCauseFunc
}

// ManagerConfig is the configuration of the Manager.
type ManagerConfig struct {
	// Workers is the number of actions that can run at the same time.
	Workers         int
	Logger          log.Logger
	MetricsRecorder metrics.Recorder
	TimeNow         func() time.Time
}

func (c *ManagerConfig) defaults() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers can't be negative")
	}

	if c.Workers == 0 {
		c.Workers = runtime.NumCPU()
		if c.Workers <= 0 {
			c.Workers = 4
		}
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "async.Manager"})

	if c.MetricsRecorder == nil {
		c.MetricsRecorder = metrics.Noop
	}

	if c.TimeNow == nil {
		c.TimeNow = time.Now
	}

	return nil
}

// Manager runs actions on a fixed set of workers in priority order.
type Manager struct {
	logger   log.Logger
	recorder metrics.Recorder
	timeNow  func() time.Time

	mu        sync.Mutex
	cond      *sync.Cond
	queue     actionQueue
	actions   map[Token]*entry
	lastToken Token
	seq       uint64
	stopped   bool

	ctx      context.Context
	cancel   context.CancelCauseFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewManager returns a new Manager with its workers already running.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	m := &Manager{
		logger:   cfg.Logger,
		recorder: cfg.MetricsRecorder,
		timeNow:  cfg.TimeNow,
		actions:  map[Token]*entry{},
		ctx:      ctx,
		cancel:   cancel,
	}
	m.cond = sync.NewCond(&m.mu)

	m.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go m.worker(i)
	}
	m.logger.Debugf("Started %d workers", cfg.Workers)

	return m, nil
}

// Submit enqueues an action and returns its token. Lower priorities run first.
// Actions submitted after Stop are discarded.
func (m *Manager) Submit(action Action, priority int) Token {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastToken++
	m.seq++
	token := m.lastToken

	if m.stopped {
		m.logger.Warningf("Manager stopped, discarding action %q with token %d", action, token)
		return token
	}

	e := &entry{
		token:       token,
		action:      action,
		priority:    priority,
		seq:         m.seq,
		status:      StatusPending,
		submittedAt: m.timeNow(),
	}
	m.actions[token] = e
	heap.Push(&m.queue, e)
	m.cond.Signal()

	m.recorder.ActionSubmitted(context.Background(), priority)
	m.recorder.ActionsQueued(context.Background(), m.queue.Len())
	m.logger.Debugf("Action %q submitted with token %d and priority %d", action, token, priority)

	return token
}

// Status returns the status of the live actions sorted by token.
func (m *Manager) Status() []ActionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	statuses := make([]ActionStatus, 0, len(m.actions))
	for _, e := range m.actions {
		statuses = append(statuses, e.toStatus())
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Token < statuses[j].Token })

	return statuses
}

// Lookup returns the status of a live action.
func (m *Manager) Lookup(token Token) (ActionStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.actions[token]
	if !ok {
		return ActionStatus{}, false
	}
	return e.toStatus(), true
}

// Cancel cancels a live action. Pending actions are dropped and never run,
// processing actions have their context cancelled with ErrCancelled.
func (m *Manager) Cancel(token Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.actions[token]
	if !ok {
		return fmt.Errorf("action %d: %w", token, model.ErrNotFound)
	}

	switch e.status {
	case StatusPending:
		heap.Remove(&m.queue, e.index)
		delete(m.actions, token)
		m.recorder.ActionsQueued(context.Background(), m.queue.Len())
		m.logger.Infof("Pending action %q with token %d cancelled", e.action, token)
	case StatusProcessing:
		e.cancel(ErrCancelled)
		m.logger.Infof("Running action %q with token %d cancelled", e.action, token)
	}

	return nil
}

// Stop stops the workers. Pending actions are discarded and running actions have
// their context cancelled with ErrStopped. It waits until all workers finished.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		m.stopped = true
		discarded := m.queue.Len()
		for _, e := range m.queue {
			delete(m.actions, e.token)
		}
		m.queue = nil
		m.cond.Broadcast()
		m.mu.Unlock()

		if discarded > 0 {
			m.logger.Warningf("Discarded %d pending actions", discarded)
		}

		m.cancel(ErrStopped)
		m.wg.Wait()
		m.logger.Debugf("Workers stopped")
	})
}

func (m *Manager) worker(id int) {
	defer m.wg.Done()

	logger := m.logger.WithValues(log.Kv{"worker": id})
	for {
		m.mu.Lock()
		for m.queue.Len() == 0 && !m.stopped {
			m.cond.Wait()
		}
		if m.stopped {
			m.mu.Unlock()
			return
		}

		e := heap.Pop(&m.queue).(*entry)
		e.status = StatusProcessing
		ctx, cancel := context.WithCancelCause(m.ctx)
		e.cancel = cancel
		m.recorder.ActionsQueued(context.Background(), m.queue.Len())
		m.mu.Unlock()

		ctx = withToken(ctx, e.token)
		ctx = logger.SetValuesOnCtx(ctx, log.Kv{"token": e.token})
		m.run(ctx, logger.WithCtxValues(ctx), e)
		cancel(nil)

		m.mu.Lock()
		delete(m.actions, e.token)
		m.mu.Unlock()
	}
}

func (m *Manager) run(ctx context.Context, logger log.Logger, e *entry) {
	start := m.timeNow()
	success := false
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Bug: action %q panicked: %v\n%s", e.action, r, debug.Stack())
		}
		m.recorder.ActionFinished(ctx, success, m.timeNow().Sub(start))
	}()

	logger.Debugf("Running action %q", e.action)
	if err := e.action.Run(ctx); err != nil {
		if cause := context.Cause(ctx); cause != nil {
			logger.Warningf("Action %q interrupted (%v): %v", e.action, cause, err)
			return
		}
		logger.Errorf("Action %q failed: %v", e.action, err)
		return
	}
	success = true
	logger.Debugf("Action %q finished", e.action)
}

func (e *entry) toStatus() ActionStatus {
	return ActionStatus{
		Token:       e.token,
		Description: e.action.String(),
		Status:      e.status,
		Priority:    e.priority,
		SubmittedAt: e.submittedAt,
	}
}

type contextKey string

const contextTokenKey = contextKey("async-token")

func withToken(ctx context.Context, t Token) context.Context {
	return context.WithValue(ctx, contextTokenKey, t)
}

// TokenFromContext returns the token of the action running with ctx.
func TokenFromContext(ctx context.Context) (Token, bool) {
	t, ok := ctx.Value(contextTokenKey).(Token)
	return t, ok
}
