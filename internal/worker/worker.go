// Package worker defines the worker lifecycle collaborator: the factory
// that launches one background worker per owner and the handle the
// supervisor observes and stops. The supervisor never touches the
// underlying instance except through a Handle.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/inkyu/botkeeper/internal/logger"
)

// ErrNoCommand is returned by factories when the owner's config does not
// describe a launchable worker.
var ErrNoCommand = errors.New("worker: config has no command")

// Config is the persisted per-owner worker configuration. For the media
// service this describes a bot session process: the credential it signs in
// with, where it drops completed downloads, and how to launch it.
type Config struct {
	Token       string        `json:"token" toml:"token" mapstructure:"token"`
	DownloadDir string        `json:"download_dir" toml:"download_dir" mapstructure:"download_dir"`
	Command     string        `json:"command" toml:"command" mapstructure:"command"`
	WorkDir     string        `json:"work_dir,omitempty" toml:"work_dir" mapstructure:"work_dir"`
	Env         []string      `json:"env,omitempty" toml:"env" mapstructure:"env"`
	StopWait    time.Duration `json:"stop_wait,omitempty" toml:"stop_wait" mapstructure:"stop_wait"`
	Log         logger.Config `json:"log,omitempty" toml:"log" mapstructure:"log"`
}

// Handle is an owned reference to one running worker instance.
// IsRunning reads liveness from the instance itself, never from a cache.
// Stop is idempotent; stopping an already-dead worker releases its
// resources and returns nil.
type Handle interface {
	IsRunning() bool
	Stop(wait time.Duration) error
	// RunID identifies this launch; a relaunch gets a fresh id.
	RunID() string
	// PID is the OS pid when the worker is process-backed, 0 otherwise.
	PID() int
}

// Factory creates worker instances. Create must either return a live
// Handle or an error; a Handle that is already dead on return is treated
// by the caller as a crash.
type Factory interface {
	Create(ctx context.Context, owner int64, cfg Config) (Handle, error)
}
