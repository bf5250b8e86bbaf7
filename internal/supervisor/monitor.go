package supervisor

import (
	"context"
	"time"

	"github.com/inkyu/botkeeper/internal/worker"
)

// monitor is the per-worker monitor task. It polls liveness on a fixed
// interval until cancelled. On unexpected death it hands off to the crash
// handler and exits; the crash handler owns spawning any replacement
// monitor. Cancellation during the poll sleep exits without side effects.
func (s *Supervisor) monitor(ctx context.Context, owner int64, h worker.Handle) {
	defer s.wg.Done()
	t := time.NewTimer(s.pollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		// A concurrent manual stop deregisters before it cancels; the
		// membership check closes that window.
		if !s.reg.Contains(owner) {
			return
		}
		if !pollLiveness(h) {
			s.handleCrash(ctx, owner, h)
			return
		}
		t.Reset(s.pollInterval)
	}
}

// pollLiveness reads the handle's liveness predicate. Inability to observe
// the worker counts as a failure: a panicking probe reads as dead.
func pollLiveness(h worker.Handle) (alive bool) {
	defer func() {
		if r := recover(); r != nil {
			alive = false
		}
	}()
	return h.IsRunning()
}
