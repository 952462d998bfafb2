package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/slok/scapd/internal/model"
)

const defaultClientTimeout = 30 * time.Second

// ClientConfig is the configuration of the Client.
type ClientConfig struct {
	// Address is the daemon base URL, e.g. http://127.0.0.1:8081.
	Address    string
	HTTPClient *http.Client
}

func (c *ClientConfig) defaults() error {
	c.Address = strings.TrimRight(strings.TrimSpace(c.Address), "/")
	if c.Address == "" {
		return fmt.Errorf("address is required")
	}
	if !strings.HasPrefix(c.Address, "http://") && !strings.HasPrefix(c.Address, "https://") {
		c.Address = "http://" + c.Address
	}

	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: defaultClientTimeout}
	}

	return nil
}

// Client manages the tasks of a running daemon through its API.
// Failed requests return errors wrapping the model errors the daemon returned.
type Client struct {
	address string
	cli     *http.Client
}

// NewClient returns a new daemon API client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Client{
		address: cfg.Address,
		cli:     cfg.HTTPClient,
	}, nil
}

// Address returns the daemon base URL.
func (c *Client) Address() string { return c.address }

// Health checks the daemon is serving.
func (c *Client) Health(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodGet, "/health", nil, nil)
}

// AddTask creates a task with the update applied and returns its ID.
func (c *Client) AddTask(ctx context.Context, upd model.TaskUpdate) (int, error) {
	var out CreateTaskResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/tasks", NewTaskUpdateRequest(upd), &out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

// UpdateTask updates a task.
func (c *Client) UpdateTask(ctx context.Context, id int, upd model.TaskUpdate) error {
	return c.doJSON(ctx, http.MethodPatch, taskPath(id), NewTaskUpdateRequest(upd), nil)
}

// RemoveTask removes a task.
func (c *Client) RemoveTask(ctx context.Context, id int, removeResults bool) error {
	path := taskPath(id)
	if removeResults {
		path += "?remove_results=true"
	}
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

// RunTaskOutsideSchedule requests a single run of the task.
func (c *Client) RunTaskOutsideSchedule(ctx context.Context, id int) error {
	return c.doJSON(ctx, http.MethodPost, taskPath(id)+"/run", nil, nil)
}

// TaskRunState returns if the task has a requested or running run.
func (c *Client) TaskRunState(ctx context.Context, id int) (model.TaskRunState, error) {
	var out TaskStateResponse
	if err := c.doJSON(ctx, http.MethodGet, taskPath(id)+"/state", nil, &out); err != nil {
		return model.TaskRunState{}, err
	}
	return model.TaskRunState{RunRequested: out.RunRequested, InFlight: out.InFlight}, nil
}

// RemoveTaskResult removes a single task result.
func (c *Client) RemoveTaskResult(ctx context.Context, taskID, resultID int) error {
	return c.doJSON(ctx, http.MethodDelete, taskPath(taskID)+"/results/"+strconv.Itoa(resultID), nil, nil)
}

// RemoveTaskResults removes every result of a task.
func (c *Client) RemoveTaskResults(ctx context.Context, taskID int) error {
	return c.doJSON(ctx, http.MethodDelete, taskPath(taskID)+"/results", nil, nil)
}

func taskPath(id int) string { return "/api/v1/tasks/" + strconv.Itoa(id) }

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("could not marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.address+path, bodyReader)
	if err != nil {
		return fmt.Errorf("could not create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.cli.Do(req)
	if err != nil {
		return fmt.Errorf("daemon request %s %s failed: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newResponseError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("could not decode daemon response: %w", err)
		}
		return nil
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	return nil
}

// responseError is a failed daemon request, it unwraps to the model error of its status.
type responseError struct {
	status int
	msg    string
	kind   error
}

func newResponseError(resp *http.Response) error {
	var body ErrorResponse
	_ = json.NewDecoder(resp.Body).Decode(&body)
	msg := body.Error
	if msg == "" {
		msg = fmt.Sprintf("daemon returned status %d", resp.StatusCode)
	}

	e := responseError{status: resp.StatusCode, msg: msg}
	switch resp.StatusCode {
	case http.StatusNotFound:
		e.kind = model.ErrNotFound
	case http.StatusConflict:
		e.kind = model.ErrAlreadyExists
	case http.StatusBadRequest:
		e.kind = model.ErrNotValid
	}

	return e
}

func (e responseError) Error() string { return e.msg }
func (e responseError) Unwrap() error { return e.kind }
