// Package supervisor owns the per-owner worker lifecycle: it launches
// workers, watches them with one monitor goroutine each, restarts crashed
// workers with bounded exponential backoff, and records every state
// transition in the status store before moving on.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/inkyu/botkeeper/internal/history"
	"github.com/inkyu/botkeeper/internal/ledger"
	"github.com/inkyu/botkeeper/internal/metrics"
	"github.com/inkyu/botkeeper/internal/policy"
	"github.com/inkyu/botkeeper/internal/registry"
	"github.com/inkyu/botkeeper/internal/status"
	"github.com/inkyu/botkeeper/internal/worker"
)

const (
	// DefaultPollInterval is how often a monitor task reads worker liveness.
	DefaultPollInterval = 30 * time.Second
	// DefaultStopWait bounds the graceful-stop window before a kill.
	DefaultStopWait = 5 * time.Second
)

// ErrAlreadySupervised is returned by Start when the owner already has a
// supervised worker. This is a caller contract violation: stop first.
var ErrAlreadySupervised = errors.New("supervisor: owner already supervised")

// Options tune a Supervisor. Zero values fall back to defaults.
type Options struct {
	PollInterval time.Duration
	StopWait     time.Duration
	Policy       policy.Policy
	Logger       *slog.Logger
	Sinks        []history.Sink
}

// Supervisor supervises at most one worker per owner id.
type Supervisor struct {
	store   status.Store
	factory worker.Factory

	reg *registry.Registry
	led *ledger.Ledger
	pol policy.Policy

	pollInterval time.Duration
	stopWait     time.Duration
	logger       *slog.Logger
	sinks        []history.Sink

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup
}

func New(store status.Store, factory worker.Factory, opts Options) *Supervisor {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.StopWait <= 0 {
		opts.StopWait = DefaultStopWait
	}
	if len(opts.Policy.Backoff) == 0 {
		opts.Policy = policy.Default()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		store:        store,
		factory:      factory,
		reg:          registry.New(),
		led:          ledger.New(),
		pol:          opts.Policy,
		pollInterval: opts.PollInterval,
		stopWait:     opts.StopWait,
		logger:       opts.Logger,
		sinks:        opts.Sinks,
		baseCtx:      ctx,
		baseCancel:   cancel,
	}
}

// Start launches a supervised worker for owner from cfg. It persists the
// config, resets the owner's attempt count to zero regardless of any prior
// value, writes status running, and spawns a monitor task. Starting an
// already-supervised owner fails with ErrAlreadySupervised.
func (s *Supervisor) Start(ctx context.Context, owner int64, cfg worker.Config) error {
	if s.reg.Contains(owner) {
		s.logger.Error("start rejected: owner already supervised", "owner", owner)
		return fmt.Errorf("owner %d: %w", owner, ErrAlreadySupervised)
	}
	if err := s.store.SaveConfig(ctx, owner, cfg); err != nil {
		return fmt.Errorf("persist config for owner %d: %w", owner, err)
	}
	h, err := s.factory.Create(ctx, owner, cfg)
	if err != nil {
		return fmt.Errorf("create worker for owner %d: %w", owner, err)
	}
	sctx, cancel := context.WithCancel(s.baseCtx)
	if err := s.reg.Register(owner, &registry.Entry{Handle: h, Cancel: cancel}); err != nil {
		// lost the race to a concurrent Start; tear down our instance
		cancel()
		_ = h.Stop(s.stopWait)
		s.logger.Error("start rejected: owner already supervised", "owner", owner)
		return fmt.Errorf("owner %d: %w", owner, ErrAlreadySupervised)
	}
	s.led.Reset(owner)
	s.setStatus(owner, status.Running, "")
	metrics.SetSupervisedWorkers(s.reg.Len())
	s.emit(history.Event{Type: history.EventStart, Owner: owner, RunID: h.RunID()})
	s.logger.Info("worker started", "owner", owner, "run_id", h.RunID(), "pid", h.PID())

	s.wg.Add(1)
	go s.monitor(sctx, owner, h)
	return nil
}

// Stop halts supervision for owner: it removes the registry entry, cancels
// the owner's session context (waking the monitor poll or any in-flight
// restart backoff), stops the worker, and clears the attempt ledger. It is
// idempotent; stopping an unsupervised owner is a no-op. When Stop returns
// the owner is no longer supervised.
func (s *Supervisor) Stop(ctx context.Context, owner int64) error {
	e, ok := s.reg.Deregister(owner)
	if !ok {
		return nil
	}
	e.Cancel()
	if e.Handle != nil {
		_ = e.Handle.Stop(s.stopWait)
	}
	s.led.Delete(owner)
	s.setStatus(owner, status.Stopped, "stopped by user")
	metrics.SetSupervisedWorkers(s.reg.Len())
	var runID string
	if e.Handle != nil {
		runID = e.Handle.RunID()
	}
	s.emit(history.Event{Type: history.EventStop, Owner: owner, RunID: runID})
	s.logger.Info("worker stopped", "owner", owner)
	return nil
}

// Supervised reports whether owner currently has a supervised worker.
func (s *Supervisor) Supervised(owner int64) bool { return s.reg.Contains(owner) }

// Attempts returns the owner's current consecutive auto-restart count.
func (s *Supervisor) Attempts(owner int64) int { return s.led.Get(owner) }

// Status reads the owner's persisted status row.
func (s *Supervisor) Status(ctx context.Context, owner int64) (status.Record, error) {
	return s.store.GetStatus(ctx, owner)
}

// List reads all persisted status rows.
func (s *Supervisor) List(ctx context.Context) ([]status.Record, error) {
	return s.store.List(ctx)
}

// Shutdown stops all supervised workers and waits for their monitor tasks
// to exit, bounded by ctx. Statuses are left as stopped so a restarted
// daemon can tell deliberate shutdown from crashed state.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.baseCancel()
	for _, owner := range s.reg.Owners() {
		e, ok := s.reg.Deregister(owner)
		if !ok {
			continue
		}
		e.Cancel()
		if e.Handle != nil {
			_ = e.Handle.Stop(s.stopWait)
		}
		s.led.Delete(owner)
		s.setStatus(owner, status.Stopped, "daemon shutdown")
	}
	metrics.SetSupervisedWorkers(0)
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// setStatus writes the status row synchronously with the transition that
// caused it. Store failures are logged, not propagated: the supervisor
// must keep going even when the status backend hiccups.
func (s *Supervisor) setStatus(owner int64, st status.Status, message string) {
	if err := s.store.SetStatus(context.Background(), owner, st, message); err != nil {
		s.logger.Error("status write failed", "owner", owner, "status", string(st), "error", err)
	}
}

// emit fans an event out to all sinks, best-effort.
func (s *Supervisor) emit(e history.Event) {
	if len(s.sinks) == 0 {
		return
	}
	e.OccurredAt = time.Now().UTC()
	for _, sink := range s.sinks {
		if err := sink.Send(context.Background(), e); err != nil {
			s.logger.Warn("history sink send failed", "owner", e.Owner, "type", string(e.Type), "error", err)
		}
	}
}
