package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/slok/scapd/internal/api"
	"github.com/slok/scapd/internal/model"
	"github.com/slok/scapd/internal/system"
)

const daemonHealthTimeout = 3 * time.Second

// taskRegistry changes the tasks. While a daemon runs on the data dir it owns
// the tasks, so the changes go through its API.
type taskRegistry interface {
	AddTask(ctx context.Context, upd model.TaskUpdate) (int, error)
	UpdateTask(ctx context.Context, id int, upd model.TaskUpdate) error
	RemoveTask(ctx context.Context, id int, removeResults bool) error
	RunTaskOutsideSchedule(ctx context.Context, id int) error
	TaskRunState(ctx context.Context, id int) (model.TaskRunState, error)
	RemoveTaskResult(ctx context.Context, taskID, resultID int) error
	RemoveTaskResults(ctx context.Context, taskID int) error
}

var (
	_ taskRegistry = &api.Client{}
	_ taskRegistry = localRegistry{}
)

// localRegistry manages the tasks in process, runs are evaluated by this process.
type localRegistry struct {
	sys *system.System
}

func (l localRegistry) AddTask(ctx context.Context, upd model.TaskUpdate) (int, error) {
	return l.sys.AddTask(ctx, upd)
}

func (l localRegistry) UpdateTask(ctx context.Context, id int, upd model.TaskUpdate) error {
	return l.sys.UpdateTask(ctx, id, upd)
}

func (l localRegistry) RemoveTask(ctx context.Context, id int, removeResults bool) error {
	return l.sys.RemoveTask(ctx, id, removeResults)
}

func (l localRegistry) RunTaskOutsideSchedule(ctx context.Context, id int) error {
	if err := l.sys.RunTaskOutsideSchedule(id); err != nil {
		return err
	}
	l.sys.ScheduleDue(ctx, time.Now())

	return nil
}

func (l localRegistry) TaskRunState(ctx context.Context, id int) (model.TaskRunState, error) {
	return l.sys.TaskRunState(id)
}

func (l localRegistry) RemoveTaskResult(ctx context.Context, taskID, resultID int) error {
	return l.sys.RemoveTaskResult(ctx, taskID, resultID)
}

func (l localRegistry) RemoveTaskResults(ctx context.Context, taskID int) error {
	return l.sys.RemoveTaskResults(ctx, taskID)
}

// newTaskApp wires the app and the registry the task changes go through.
func newTaskApp(ctx context.Context, root RootCommand) (*app, taskRegistry, error) {
	a, err := newApp(ctx, root, appOptions{})
	if err != nil {
		return nil, nil, err
	}

	reg, err := newTaskRegistry(ctx, root, a)
	if err != nil {
		a.Close()
		return nil, nil, err
	}

	return a, reg, nil
}

// newTaskRegistry returns the client of the daemon running on the data dir, or
// the app system when there is none.
func newTaskRegistry(ctx context.Context, root RootCommand, a *app) (taskRegistry, error) {
	logger := root.Logger

	if root.DaemonAddress != "" {
		c, err := reachDaemon(ctx, root.DaemonAddress)
		if err != nil {
			return nil, err
		}
		logger.Debugf("Managing tasks through the daemon at %s", c.Address())
		return c, nil
	}

	info, err := a.repo.GetDaemonInfo(ctx)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			logger.Warningf("Ignoring the daemon file: %s", err)
		}
		return localRegistry{sys: a.system}, nil
	}

	c, err := reachDaemon(ctx, info.Address)
	if err != nil {
		logger.Warningf("Daemon (pid %d) is not reachable, managing tasks in process: %s", info.PID, err)
		return localRegistry{sys: a.system}, nil
	}
	logger.Debugf("Managing tasks through the daemon at %s", c.Address())

	return c, nil
}

// reachDaemon returns a client of the daemon if it answers.
func reachDaemon(ctx context.Context, address string) (*api.Client, error) {
	c, err := api.NewClient(api.ClientConfig{Address: address})
	if err != nil {
		return nil, fmt.Errorf("could not create daemon client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, daemonHealthTimeout)
	defer cancel()
	if err := c.Health(ctx); err != nil {
		return nil, fmt.Errorf("daemon at %s is not reachable: %w", c.Address(), err)
	}

	return c, nil
}
