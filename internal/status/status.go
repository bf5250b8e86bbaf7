// Package status owns the persisted worker status: the only supervisor
// state visible outside the process boundary. The supervisor writes one
// row per owner synchronously with each state transition; the product UI
// polls it. The same store keeps the owner's worker configuration so a
// crashed worker can be relaunched from persisted config.
package status

import (
	"context"
	"errors"
	"time"

	"github.com/inkyu/botkeeper/internal/worker"
)

// Status is the externally visible worker state.
type Status string

const (
	Running    Status = "running"
	Restarting Status = "restarting"
	Error      Status = "error"
	Stopped    Status = "stopped"
)

// ErrNotFound is returned when no row exists for the owner.
var ErrNotFound = errors.New("status: owner not found")

// Record is one owner's persisted status row.
type Record struct {
	Owner     int64     `json:"owner"`
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists worker status and configuration per owner.
// Implementations must be safe for concurrent use.
type Store interface {
	EnsureSchema(ctx context.Context) error
	SetStatus(ctx context.Context, owner int64, st Status, message string) error
	GetStatus(ctx context.Context, owner int64) (Record, error)
	List(ctx context.Context) ([]Record, error)
	SaveConfig(ctx context.Context, owner int64, cfg worker.Config) error
	GetConfig(ctx context.Context, owner int64) (worker.Config, error)
	DeleteConfig(ctx context.Context, owner int64) error
	Close() error
}
