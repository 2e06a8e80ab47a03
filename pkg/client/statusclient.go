package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/maumercado/task-queue-go/internal/events"
	"github.com/maumercado/task-queue-go/internal/store"
	"github.com/maumercado/task-queue-go/internal/task"
)

// ErrorResponse mirrors the status API's JSON error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// QueueDepth reports how many tasks sit pending versus processing.
type QueueDepth struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
}

// StatusClient is a thin, typed wrapper over THE CORE's status API.
type StatusClient struct {
	baseURL string
	opts    *options
	ws      *WebSocketClient
}

// NewStatusClient creates a client against baseURL, THE CORE's status API
// address (e.g. "http://127.0.0.1:8081"). It reads live state over HTTP and
// websocket; it never mutates THE CORE's ledger. For submission/cancellation/
// DLQ-retry operations, use the direct file-based Client instead, since THE
// CORE has no network admission service.
func NewStatusClient(baseURL string, opts ...Option) (*StatusClient, error) {
	baseURL = strings.TrimSuffix(baseURL, "/")
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	return &StatusClient{baseURL: baseURL, opts: o}, nil
}

// ConnectWebSocket opens the live /events stream.
func (c *StatusClient) ConnectWebSocket(ctx context.Context) error {
	if c.ws != nil && c.ws.IsConnected() {
		return nil
	}
	c.ws = newWebSocketClient(c.baseURL, c.opts.apiKey)
	return c.ws.Connect(ctx)
}

// Events returns the channel of events read from the websocket connection.
// ConnectWebSocket must be called first.
func (c *StatusClient) Events() <-chan *events.Event {
	if c.ws == nil {
		ch := make(chan *events.Event)
		close(ch)
		return ch
	}
	return c.ws.Events()
}

// CloseWebSocket disconnects the /events stream.
func (c *StatusClient) CloseWebSocket() error {
	if c.ws == nil {
		return nil
	}
	return c.ws.Close()
}

// ListTasks lists tasks, optionally narrowed to a single task.State.
func (c *StatusClient) ListTasks(ctx context.Context, state task.State) ([]*task.Task, error) {
	path := "/api/v1/tasks"
	if state != "" {
		path += "?state=" + url.QueryEscape(string(state))
	}

	var out []*task.Task
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetTask fetches a single task by ID.
func (c *StatusClient) GetTask(ctx context.Context, taskID string) (*task.Task, error) {
	var out task.Task
	if err := c.getJSON(ctx, "/api/v1/tasks/"+url.PathEscape(taskID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListWorkers lists every worker the store has recently heard from.
func (c *StatusClient) ListWorkers(ctx context.Context) ([]*store.WorkerStatus, error) {
	var out []*store.WorkerStatus
	if err := c.getJSON(ctx, "/api/v1/workers", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetWorker fetches a single worker's status by ID.
func (c *StatusClient) GetWorker(ctx context.Context, workerID string) (*store.WorkerStatus, error) {
	var out store.WorkerStatus
	if err := c.getJSON(ctx, "/api/v1/workers/"+url.PathEscape(workerID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListAlerts returns every unresolved alert the recovery loop has raised.
func (c *StatusClient) ListAlerts(ctx context.Context) ([]*store.Alert, error) {
	var out []*store.Alert
	if err := c.getJSON(ctx, "/api/v1/alerts", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetQueueDepth reports how many tasks are pending versus processing.
func (c *StatusClient) GetQueueDepth(ctx context.Context) (*QueueDepth, error) {
	var out QueueDepth
	if err := c.getJSON(ctx, "/api/v1/queue", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CheckHealth hits the status API's load-balancer heartbeat endpoint.
func (c *StatusClient) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	c.opts.applyHeaders(req)

	resp, err := c.opts.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func (c *StatusClient) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	c.opts.applyHeaders(req)

	resp, err := c.opts.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response for %s: %w", path, err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp ErrorResponse
		if jsonErr := json.Unmarshal(body, &errResp); jsonErr == nil && errResp.Message != "" {
			return fmt.Errorf("%s: %s (status %d)", path, errResp.Message, resp.StatusCode)
		}
		return fmt.Errorf("%s: unexpected status %d", path, resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response for %s: %w", path, err)
	}
	return nil
}
