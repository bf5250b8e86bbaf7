// Package client is an embeddable HTTP client for the botkeeper daemon API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/inkyu/botkeeper/internal/worker"
)

// Client provides HTTP client functionality to communicate with the botkeeper daemon
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger // Optional logger for client operations
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8080/api",
		Timeout: 10 * time.Second,
	}
}

// New creates a new botkeeper API client
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:8080/api"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: config.BaseURL,
		logger:  config.Logger,
		client: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// IsReachable checks if the daemon is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/workers", nil)
	if err != nil {
		c.logger.Debug("failed to create request for reachability check", "error", err)
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("daemon unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode != http.StatusNotFound
}

// StartWorker starts a supervised worker for owner with the given config
func (c *Client) StartWorker(ctx context.Context, owner int64, cfg worker.Config) error {
	c.logger.Debug("starting worker", "owner", owner)

	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := c.do(ctx, http.MethodPost, c.workerURL(owner, "start"), data, nil); err != nil {
		return err
	}

	c.logger.Debug("worker started", "owner", owner)
	return nil
}

// StopWorker stops an owner's supervised worker
func (c *Client) StopWorker(ctx context.Context, owner int64) error {
	c.logger.Debug("stopping worker", "owner", owner)

	if err := c.do(ctx, http.MethodPost, c.workerURL(owner, "stop"), nil, nil); err != nil {
		return err
	}

	c.logger.Debug("worker stopped", "owner", owner)
	return nil
}

// WorkerStatus fetches one owner's worker status
func (c *Client) WorkerStatus(ctx context.Context, owner int64) (WorkerStatus, error) {
	var st WorkerStatus
	if err := c.do(ctx, http.MethodGet, c.workerURL(owner, "status"), nil, &st); err != nil {
		return WorkerStatus{}, err
	}
	return st, nil
}

// ListWorkers fetches the statuses of all known workers
func (c *Client) ListWorkers(ctx context.Context) ([]WorkerStatus, error) {
	var list []WorkerStatus
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/workers", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *Client) workerURL(owner int64, action string) string {
	return c.baseURL + "/workers/" + strconv.FormatInt(owner, 10) + "/" + action
}

// do performs an HTTP request with common error handling, decoding the
// response into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, url string, body []byte, out interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("HTTP request failed", "error", err, "url", url)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		var errorResp ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil {
			c.logger.Error("failed to decode error response", "status", resp.StatusCode)
			return fmt.Errorf("HTTP %d", resp.StatusCode)
		}
		c.logger.Error("API request failed", "error", errorResp.Error, "status", resp.StatusCode)
		return fmt.Errorf("API error: %s", errorResp.Error)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
