package client

import "time"

// WorkerStatus represents the daemon's view of one owner's worker
type WorkerStatus struct {
	Owner      int64     `json:"owner"`
	Status     string    `json:"status"`
	Message    string    `json:"message,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
	Supervised bool      `json:"supervised"`
	Attempts   int       `json:"attempts"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
