package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/slok/scapd/internal/async"
	"github.com/slok/scapd/internal/log"
	"github.com/slok/scapd/internal/model"
	"github.com/slok/scapd/internal/printer"
)

// System is the daemon state the API exposes.
type System interface {
	ListTasks() []model.Task
	AddTask(ctx context.Context, upd model.TaskUpdate) (int, error)
	UpdateTask(ctx context.Context, id int, upd model.TaskUpdate) error
	RemoveTask(ctx context.Context, id int, removeResults bool) error
	RunTaskOutsideSchedule(id int) error
	TaskRunState(id int) (model.TaskRunState, error)
	RemoveTaskResult(ctx context.Context, taskID, resultID int) error
	RemoveTaskResults(ctx context.Context, taskID int) error
	ActionsStatus() []async.ActionStatus
	CancelAction(token async.Token) error
}

// ServerConfig is the configuration of the API server.
type ServerConfig struct {
	System System
	// MetricsHandler serves the metrics, optional.
	MetricsHandler http.Handler
	Logger         log.Logger
}

func (c *ServerConfig) defaults() error {
	if c.System == nil {
		return fmt.Errorf("system is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "api.Server"})

	return nil
}

// Server is the daemon HTTP API.
type Server struct {
	system  System
	metrics http.Handler
	logger  log.Logger
}

// NewServer returns a new API server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Server{
		system:  cfg.System,
		metrics: cfg.MetricsHandler,
		logger:  cfg.Logger,
	}, nil
}

// NewEcho returns an echo instance with the server routes.
func (s *Server) NewEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	s.RegisterRoutes(e)

	return e
}

// RegisterRoutes registers the API endpoints, versioned under /api/v1.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", s.Health)
	if s.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.metrics))
	}

	v1 := e.Group("/api/v1")
	v1.GET("/tasks", s.ListTasks)
	v1.POST("/tasks", s.CreateTask)
	v1.PATCH("/tasks/:id", s.UpdateTask)
	v1.DELETE("/tasks/:id", s.RemoveTask)
	v1.POST("/tasks/:id/run", s.RunTask)
	v1.GET("/tasks/:id/state", s.TaskState)
	v1.DELETE("/tasks/:id/results", s.RemoveTaskResults)
	v1.DELETE("/tasks/:id/results/:result", s.RemoveTaskResult)
	v1.GET("/actions", s.ListActions)
	v1.DELETE("/actions/:token", s.CancelAction)
}

// Health handles GET /health.
func (s *Server) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// ListTasks handles GET /api/v1/tasks.
func (s *Server) ListTasks(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c.Response().WriteHeader(http.StatusOK)
	return printer.NewJSONPrinter(c.Response()).PrintTaskList(s.system.ListTasks())
}

// CreateTask handles POST /api/v1/tasks, the body is a TaskUpdateRequest.
func (s *Server) CreateTask(c echo.Context) error {
	upd, err := bindTaskUpdate(c)
	if err != nil {
		return s.errorJSON(c, err)
	}

	id, err := s.system.AddTask(c.Request().Context(), upd)
	if err != nil {
		return s.errorJSON(c, err)
	}

	return c.JSON(http.StatusCreated, CreateTaskResponse{ID: id})
}

// UpdateTask handles PATCH /api/v1/tasks/:id, the body is a TaskUpdateRequest.
func (s *Server) UpdateTask(c echo.Context) error {
	id, err := paramInt(c, "id")
	if err != nil {
		return s.errorJSON(c, err)
	}

	upd, err := bindTaskUpdate(c)
	if err != nil {
		return s.errorJSON(c, err)
	}

	if err := s.system.UpdateTask(c.Request().Context(), id, upd); err != nil {
		return s.errorJSON(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}

// RemoveTask handles DELETE /api/v1/tasks/:id, remove_results=true removes the results too.
func (s *Server) RemoveTask(c echo.Context) error {
	id, err := paramInt(c, "id")
	if err != nil {
		return s.errorJSON(c, err)
	}

	removeResults := false
	if v := c.QueryParam("remove_results"); v != "" {
		removeResults, err = strconv.ParseBool(v)
		if err != nil {
			return s.errorJSON(c, fmt.Errorf("invalid remove_results %q: %w", v, model.ErrNotValid))
		}
	}

	if err := s.system.RemoveTask(c.Request().Context(), id, removeResults); err != nil {
		return s.errorJSON(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}

// TaskState handles GET /api/v1/tasks/:id/state.
func (s *Server) TaskState(c echo.Context) error {
	id, err := paramInt(c, "id")
	if err != nil {
		return s.errorJSON(c, err)
	}

	state, err := s.system.TaskRunState(id)
	if err != nil {
		return s.errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, TaskStateResponse{RunRequested: state.RunRequested, InFlight: state.InFlight})
}

// RemoveTaskResults handles DELETE /api/v1/tasks/:id/results.
func (s *Server) RemoveTaskResults(c echo.Context) error {
	id, err := paramInt(c, "id")
	if err != nil {
		return s.errorJSON(c, err)
	}

	if err := s.system.RemoveTaskResults(c.Request().Context(), id); err != nil {
		return s.errorJSON(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}

// RemoveTaskResult handles DELETE /api/v1/tasks/:id/results/:result.
func (s *Server) RemoveTaskResult(c echo.Context) error {
	id, err := paramInt(c, "id")
	if err != nil {
		return s.errorJSON(c, err)
	}
	resultID, err := paramInt(c, "result")
	if err != nil {
		return s.errorJSON(c, err)
	}

	if err := s.system.RemoveTaskResult(c.Request().Context(), id, resultID); err != nil {
		return s.errorJSON(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}

// RunTask handles POST /api/v1/tasks/:id/run, the task runs as soon as possible.
func (s *Server) RunTask(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid task id"})
	}

	if err := s.system.RunTaskOutsideSchedule(id); err != nil {
		return s.errorJSON(c, err)
	}

	return c.JSON(http.StatusAccepted, map[string]string{"status": "requested"})
}

// ListActions handles GET /api/v1/actions.
func (s *Server) ListActions(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c.Response().WriteHeader(http.StatusOK)
	return printer.NewJSONPrinter(c.Response()).PrintActions(s.system.ActionsStatus())
}

// CancelAction handles DELETE /api/v1/actions/:token.
func (s *Server) CancelAction(c echo.Context) error {
	token, err := strconv.ParseUint(c.Param("token"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid token"})
	}

	if err := s.system.CancelAction(async.Token(token)); err != nil {
		return s.errorJSON(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (s *Server) errorJSON(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrAlreadyExists):
		status = http.StatusConflict
	case errors.Is(err, model.ErrNotValid):
		status = http.StatusBadRequest
	default:
		s.logger.Errorf("Request %s %s failed: %s", c.Request().Method, c.Path(), err)
	}

	return c.JSON(status, ErrorResponse{Error: err.Error()})
}

func paramInt(c echo.Context, name string) (int, error) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, c.Param(name), model.ErrNotValid)
	}
	return v, nil
}

func bindTaskUpdate(c echo.Context) (model.TaskUpdate, error) {
	var req TaskUpdateRequest
	if err := c.Bind(&req); err != nil {
		return model.TaskUpdate{}, fmt.Errorf("invalid task update: %w", model.ErrNotValid)
	}

	return req.ToModel()
}
