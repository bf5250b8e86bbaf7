package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/inkyu/botkeeper"
)

// APIClient provides HTTP client functionality to communicate with the botkeeper daemon
type APIClient struct {
	baseURL string
	client  *http.Client
}

// NewAPIClient creates a new API client
func NewAPIClient(baseURL string, timeout time.Duration) *APIClient {
	if baseURL == "" {
		baseURL = "http://localhost:8080/api"
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &APIClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// WorkerStatus holds one worker's daemon-side view as returned by the API.
type WorkerStatus struct {
	Owner      int64     `json:"owner"`
	Status     string    `json:"status"`
	Message    string    `json:"message,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
	Supervised bool      `json:"supervised"`
	Attempts   int       `json:"attempts"`
}

func (c *APIClient) workerURL(owner int64, action string) string {
	return c.baseURL + "/workers/" + strconv.FormatInt(owner, 10) + "/" + action
}

// StartWorker starts a supervised worker for owner via API
func (c *APIClient) StartWorker(owner int64, cfg botkeeper.WorkerConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	resp, err := c.client.Post(c.workerURL(owner, "start"), "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	return checkOK(resp)
}

// StopWorker stops an owner's supervised worker via API
func (c *APIClient) StopWorker(owner int64) error {
	resp, err := c.client.Post(c.workerURL(owner, "stop"), "application/json", nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	return checkOK(resp)
}

// WorkerStatus fetches one owner's worker status via API
func (c *APIClient) WorkerStatus(owner int64) (WorkerStatus, error) {
	resp, err := c.client.Get(c.workerURL(owner, "status"))
	if err != nil {
		return WorkerStatus{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if err := checkOK(resp); err != nil {
		return WorkerStatus{}, err
	}
	var st WorkerStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return WorkerStatus{}, err
	}
	return st, nil
}

// ListWorkers fetches all known workers' statuses via API
func (c *APIClient) ListWorkers() ([]WorkerStatus, error) {
	resp, err := c.client.Get(c.baseURL + "/workers")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if err := checkOK(resp); err != nil {
		return nil, err
	}
	var list []WorkerStatus
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, err
	}
	return list, nil
}

func checkOK(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	var errorResp struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}
	return fmt.Errorf("API error: %s", errorResp.Error)
}
