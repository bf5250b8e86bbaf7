package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/inkyu/botkeeper/internal/history"
	"github.com/inkyu/botkeeper/internal/metrics"
	"github.com/inkyu/botkeeper/internal/status"
	"github.com/inkyu/botkeeper/internal/worker"
)

// handleCrash runs the stop-wait-restart cycle for one detected crash.
// It is invoked exactly once per detection, from the monitor task that
// observed the death, and runs on that goroutine. A creation failure
// re-enters the loop with the incremented ledger, so the attempt cap
// bounds the whole cycle.
func (s *Supervisor) handleCrash(ctx context.Context, owner int64, dead worker.Handle) {
	metrics.IncCrash(owner)
	var runID string
	if dead != nil {
		runID = dead.RunID()
	}
	s.emit(history.Event{Type: history.EventCrash, Owner: owner, RunID: runID, Attempt: s.led.Get(owner)})
	s.logger.Warn("worker crash detected", "owner", owner, "run_id", runID)

	h := dead
	for {
		if ctx.Err() != nil {
			return
		}
		if !s.reg.Contains(owner) {
			return
		}
		n := s.led.Get(owner)
		if !s.pol.ShouldRetry(n) {
			s.giveUp(owner, n)
			return
		}

		s.setStatus(owner, status.Restarting,
			fmt.Sprintf("restart attempt %d/%d", n+1, s.pol.MaxAttempts))
		if h != nil {
			// already dead, but tear down to release pipes and log writers
			_ = h.Stop(s.stopWait)
			h = nil
		}

		wait := s.pol.Wait(n)
		metrics.ObserveBackoff(wait.Seconds())
		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return
		}
		// a manual stop issued during the backoff must win
		if !s.reg.Contains(owner) {
			return
		}

		attempt := s.led.Inc(owner)
		nh, err := s.relaunch(ctx, owner)
		if err != nil {
			s.logger.Warn("restart attempt failed", "owner", owner, "attempt", attempt, "error", err)
			continue
		}
		if !s.reg.SwapHandle(owner, nh) {
			// stop won the race after creation; do not resurrect
			_ = nh.Stop(s.stopWait)
			return
		}
		s.setStatus(owner, status.Running, "")
		metrics.IncRestart(owner)
		s.emit(history.Event{Type: history.EventRestart, Owner: owner, RunID: nh.RunID(), Attempt: attempt})
		s.logger.Info("worker restarted", "owner", owner, "run_id", nh.RunID(), "attempt", attempt)

		s.wg.Add(1)
		go s.monitor(ctx, owner, nh)
		return
	}
}

// relaunch creates a fresh handle from the owner's persisted configuration.
// A missing or invalid config is reported the same as a creation failure;
// both are solved by eventually hitting the attempt cap.
func (s *Supervisor) relaunch(ctx context.Context, owner int64) (worker.Handle, error) {
	cfg, err := s.store.GetConfig(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return s.factory.Create(ctx, owner, cfg)
}

// giveUp finalizes the owner to error after n failed attempts and removes
// it from supervision. Only a manual start recovers from this state.
func (s *Supervisor) giveUp(owner int64, n int) {
	msg := fmt.Sprintf("auto-restart attempts exhausted (%d); worker disabled until manually started", s.pol.MaxAttempts)
	s.setStatus(owner, status.Error, msg)
	if e, ok := s.reg.Deregister(owner); ok {
		e.Cancel()
	}
	s.led.Delete(owner)
	metrics.IncGiveup(owner)
	metrics.SetSupervisedWorkers(s.reg.Len())
	s.emit(history.Event{Type: history.EventGiveup, Owner: owner, Attempt: n})
	s.logger.Error("worker permanently failed", "owner", owner, "attempts", n)
}
