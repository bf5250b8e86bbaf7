package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/inkyu/botkeeper/internal/policy"
	"github.com/inkyu/botkeeper/internal/status"
	"github.com/inkyu/botkeeper/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHandle is a controllable worker.Handle for supervisor tests.
type fakeHandle struct {
	id string

	mu      sync.Mutex
	running bool
	stops   int
}

func newFakeHandle(id string, running bool) *fakeHandle {
	return &fakeHandle{id: id, running: running}
}

func (h *fakeHandle) IsRunning() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

func (h *fakeHandle) Stop(time.Duration) error {
	h.mu.Lock()
	h.running = false
	h.stops++
	h.mu.Unlock()
	return nil
}

func (h *fakeHandle) RunID() string { return h.id }
func (h *fakeHandle) PID() int      { return 0 }

func (h *fakeHandle) kill() {
	h.mu.Lock()
	h.running = false
	h.mu.Unlock()
}

func (h *fakeHandle) stopCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stops
}

// fakeFactory scripts worker creation per call (1-based call index).
type fakeFactory struct {
	mu    sync.Mutex
	calls int
	times []time.Time
	plan  func(call int) (*fakeHandle, error)

	handles []*fakeHandle
}

func (f *fakeFactory) Create(_ context.Context, _ int64, _ worker.Config) (worker.Handle, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.times = append(f.times, time.Now())
	f.mu.Unlock()

	h, err := f.plan(call)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.handles = append(f.handles, h)
	f.mu.Unlock()
	return h, nil
}

func (f *fakeFactory) createCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeFactory) createTimes() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.times...)
}

func (f *fakeFactory) handle(i int) *fakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.handles) {
		return nil
	}
	return f.handles[i]
}

// recordingStore wraps the memory store and keeps the ordered sequence of
// status writes per owner.
type recordingStore struct {
	*status.Memory
	mu     sync.Mutex
	writes map[int64][]status.Record
}

func newRecordingStore() *recordingStore {
	return &recordingStore{Memory: status.NewMemory(), writes: make(map[int64][]status.Record)}
}

func (r *recordingStore) SetStatus(ctx context.Context, owner int64, st status.Status, message string) error {
	r.mu.Lock()
	r.writes[owner] = append(r.writes[owner], status.Record{Owner: owner, Status: st, Message: message})
	r.mu.Unlock()
	return r.Memory.SetStatus(ctx, owner, st, message)
}

func (r *recordingStore) sequence(owner int64) []status.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]status.Status, 0, len(r.writes[owner]))
	for _, rec := range r.writes[owner] {
		out = append(out, rec.Status)
	}
	return out
}

func (r *recordingStore) records(owner int64) []status.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]status.Record(nil), r.writes[owner]...)
}

func fastPolicy(waits ...time.Duration) policy.Policy {
	if len(waits) == 0 {
		waits = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond, time.Millisecond, time.Millisecond}
	}
	return policy.Policy{Backoff: waits, MaxAttempts: policy.MaxAttempts}
}

func newTestSupervisor(st status.Store, f worker.Factory, pol policy.Policy) *Supervisor {
	return New(st, f, Options{
		PollInterval: 5 * time.Millisecond,
		StopWait:     50 * time.Millisecond,
		Policy:       pol,
		Logger:       slog.New(slog.DiscardHandler),
	})
}

func alwaysRunning(call int) (*fakeHandle, error) {
	return newFakeHandle(fmt.Sprintf("run-%d", call), true), nil
}

func TestStartRejectsAlreadySupervised(t *testing.T) {
	st := newRecordingStore()
	f := &fakeFactory{plan: alwaysRunning}
	s := newTestSupervisor(st, f, fastPolicy())
	defer func() { _ = s.Shutdown(context.Background()) }()

	ctx := context.Background()
	require.NoError(t, s.Start(ctx, 42, worker.Config{Command: "botworker"}))
	err := s.Start(ctx, 42, worker.Config{Command: "botworker"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlreadySupervised)
	assert.Equal(t, 1, f.createCount(), "rejected start must not launch a second worker")
}

func TestStopIsIdempotentAndClearsState(t *testing.T) {
	st := newRecordingStore()
	f := &fakeFactory{plan: alwaysRunning}
	s := newTestSupervisor(st, f, fastPolicy())
	defer func() { _ = s.Shutdown(context.Background()) }()

	ctx := context.Background()
	require.NoError(t, s.Start(ctx, 42, worker.Config{Command: "botworker"}))
	require.NoError(t, s.Stop(ctx, 42))
	assert.False(t, s.Supervised(42))
	assert.Equal(t, 1, f.handle(0).stopCount())

	// stopping again is a no-op
	require.NoError(t, s.Stop(ctx, 42))

	rec, err := s.Status(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, status.Stopped, rec.Status)
}

func TestStartThenImmediateStopNeverInvokesCrashHandler(t *testing.T) {
	st := newRecordingStore()
	f := &fakeFactory{plan: alwaysRunning}
	// poll interval far beyond test runtime: the monitor must exit via
	// cancellation, not via a liveness poll
	s := New(st, f, Options{
		PollInterval: time.Hour,
		StopWait:     50 * time.Millisecond,
		Policy:       fastPolicy(),
		Logger:       slog.New(slog.DiscardHandler),
	})
	defer func() { _ = s.Shutdown(context.Background()) }()

	ctx := context.Background()
	require.NoError(t, s.Start(ctx, 7, worker.Config{Command: "botworker"}))
	require.NoError(t, s.Stop(ctx, 7))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, f.createCount(), "no restart may happen")
	assert.Equal(t, []status.Status{status.Running, status.Stopped}, st.sequence(7))
	assert.Equal(t, 0, s.Attempts(7), "ledger entry must be absent")
}

func TestCrashRelaunchSuccess(t *testing.T) {
	st := newRecordingStore()
	f := &fakeFactory{plan: alwaysRunning}
	s := newTestSupervisor(st, f, fastPolicy())
	defer func() { _ = s.Shutdown(context.Background()) }()

	ctx := context.Background()
	require.NoError(t, s.Start(ctx, 42, worker.Config{Command: "botworker"}))

	// worker dies after the first poll
	f.handle(0).kill()

	require.Eventually(t, func() bool {
		return f.createCount() == 2 && f.handle(1) != nil && f.handle(1).IsRunning()
	}, 2*time.Second, 5*time.Millisecond, "worker should be relaunched")

	require.Eventually(t, func() bool {
		rec, err := s.Status(ctx, 42)
		return err == nil && rec.Status == status.Running
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, []status.Status{status.Running, status.Restarting, status.Running}, st.sequence(42))
	recs := st.records(42)
	assert.Equal(t, "restart attempt 1/5", recs[1].Message)
	assert.Equal(t, 1, s.Attempts(42), "exactly one ledger increment")
	assert.GreaterOrEqual(t, f.handle(0).stopCount(), 1, "dead handle torn down defensively")
	assert.True(t, s.Supervised(42))
}

func TestGiveUpAfterMaxAttempts(t *testing.T) {
	st := newRecordingStore()
	// first worker lives until killed; every relaunch is born dead
	f := &fakeFactory{plan: func(call int) (*fakeHandle, error) {
		return newFakeHandle(fmt.Sprintf("run-%d", call), call == 1), nil
	}}
	s := newTestSupervisor(st, f, fastPolicy())
	defer func() { _ = s.Shutdown(context.Background()) }()

	ctx := context.Background()
	require.NoError(t, s.Start(ctx, 42, worker.Config{Command: "botworker"}))
	f.handle(0).kill()

	require.Eventually(t, func() bool {
		rec, err := s.Status(ctx, 42)
		return err == nil && rec.Status == status.Error
	}, 5*time.Second, 5*time.Millisecond, "worker should be finalized to error")

	rec, err := s.Status(ctx, 42)
	require.NoError(t, err)
	assert.Contains(t, rec.Message, "exhausted (5)")
	assert.False(t, s.Supervised(42))
	assert.Equal(t, 0, s.Attempts(42), "ledger entry removed on give-up")

	// exactly one manual launch plus five counted restart attempts; no sixth
	calls := f.createCount()
	assert.Equal(t, 6, calls)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, calls, f.createCount(), "no further restart attempt after error")
}

func TestCreationFailureCountsAsAttempt(t *testing.T) {
	st := newRecordingStore()
	f := &fakeFactory{plan: func(call int) (*fakeHandle, error) {
		if call == 1 {
			return newFakeHandle("run-1", true), nil
		}
		return nil, fmt.Errorf("session backend unavailable")
	}}
	s := newTestSupervisor(st, f, fastPolicy())
	defer func() { _ = s.Shutdown(context.Background()) }()

	ctx := context.Background()
	require.NoError(t, s.Start(ctx, 42, worker.Config{Command: "botworker"}))
	f.handle(0).kill()

	require.Eventually(t, func() bool {
		rec, err := s.Status(ctx, 42)
		return err == nil && rec.Status == status.Error
	}, 5*time.Second, 5*time.Millisecond)

	// one manual launch plus five failed creations
	assert.Equal(t, 6, f.createCount())
	seq := st.sequence(42)
	// running, then five restarting writes, then error
	require.Len(t, seq, 7)
	assert.Equal(t, status.Running, seq[0])
	for i := 1; i <= 5; i++ {
		assert.Equal(t, status.Restarting, seq[i], "write %d", i)
	}
	assert.Equal(t, status.Error, seq[6])
}

func TestLedgerResetOnManualRestart(t *testing.T) {
	st := newRecordingStore()
	f := &fakeFactory{plan: alwaysRunning}
	s := newTestSupervisor(st, f, fastPolicy())
	defer func() { _ = s.Shutdown(context.Background()) }()

	ctx := context.Background()
	require.NoError(t, s.Start(ctx, 42, worker.Config{Command: "botworker"}))
	f.handle(0).kill()
	require.Eventually(t, func() bool { return s.Attempts(42) == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop(ctx, 42))
	require.NoError(t, s.Start(ctx, 42, worker.Config{Command: "botworker"}))
	assert.Equal(t, 0, s.Attempts(42), "manual start resets the ledger to zero")
}

func TestBackoffWaits(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}
	st := newRecordingStore()
	f := &fakeFactory{plan: func(call int) (*fakeHandle, error) {
		if call == 1 {
			return newFakeHandle("run-1", true), nil
		}
		return nil, fmt.Errorf("create refused")
	}}
	waits := []time.Duration{20 * time.Millisecond, 40 * time.Millisecond, 60 * time.Millisecond, 80 * time.Millisecond, 100 * time.Millisecond}
	s := newTestSupervisor(st, f, policy.Policy{Backoff: waits, MaxAttempts: policy.MaxAttempts})
	defer func() { _ = s.Shutdown(context.Background()) }()

	ctx := context.Background()
	require.NoError(t, s.Start(ctx, 42, worker.Config{Command: "botworker"}))
	f.handle(0).kill()

	require.Eventually(t, func() bool { return f.createCount() == 6 }, 5*time.Second, 5*time.Millisecond)

	times := f.createTimes()
	require.Len(t, times, 6)
	// gap between consecutive creation attempts must cover the table entry
	for i := 1; i < len(times); i++ {
		gap := times[i].Sub(times[i-1])
		assert.GreaterOrEqual(t, gap, waits[i-1], "attempt %d waited too little", i)
		assert.Less(t, gap, waits[i-1]+150*time.Millisecond, "attempt %d waited too long", i)
	}
}

func TestStopDuringBackoffPreventsRestart(t *testing.T) {
	st := newRecordingStore()
	f := &fakeFactory{plan: func(call int) (*fakeHandle, error) {
		// manual start lives until killed; the first relaunch is born dead
		// so the cycle reaches attempt 2's long backoff
		return newFakeHandle(fmt.Sprintf("run-%d", call), call == 1), nil
	}}
	pol := policy.Policy{
		Backoff:     []time.Duration{5 * time.Millisecond, 10 * time.Second, 10 * time.Second, 10 * time.Second, 10 * time.Second},
		MaxAttempts: policy.MaxAttempts,
	}
	s := newTestSupervisor(st, f, pol)
	defer func() { _ = s.Shutdown(context.Background()) }()

	ctx := context.Background()
	require.NoError(t, s.Start(ctx, 42, worker.Config{Command: "botworker"}))
	f.handle(0).kill()

	// wait until the crash handler is inside attempt 2's backoff sleep
	require.Eventually(t, func() bool {
		recs := st.records(42)
		return len(recs) > 0 && recs[len(recs)-1].Message == "restart attempt 2/5"
	}, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop(ctx, 42))
	assert.False(t, s.Supervised(42))

	writesAfterStop := len(st.records(42))
	time.Sleep(200 * time.Millisecond)
	recs := st.records(42)
	assert.Len(t, recs, writesAfterStop, "no status write may follow a manual stop")
	assert.Equal(t, status.Stopped, recs[len(recs)-1].Status)
	assert.Equal(t, 2, f.createCount(), "the pending restart must not complete")
}

func TestShutdownStopsEverything(t *testing.T) {
	st := newRecordingStore()
	f := &fakeFactory{plan: alwaysRunning}
	s := newTestSupervisor(st, f, fastPolicy())

	ctx := context.Background()
	require.NoError(t, s.Start(ctx, 1, worker.Config{Command: "botworker"}))
	require.NoError(t, s.Start(ctx, 2, worker.Config{Command: "botworker"}))

	sctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(sctx))

	assert.False(t, s.Supervised(1))
	assert.False(t, s.Supervised(2))
	for _, owner := range []int64{1, 2} {
		rec, err := s.Status(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, status.Stopped, rec.Status)
		assert.Equal(t, "daemon shutdown", rec.Message)
	}
}

func TestPanickingLivenessProbeReadsAsCrash(t *testing.T) {
	h := panicHandle{}
	assert.False(t, pollLiveness(h))
}

type panicHandle struct{}

func (panicHandle) IsRunning() bool          { panic("probe failed") }
func (panicHandle) Stop(time.Duration) error { return nil }
func (panicHandle) RunID() string            { return "" }
func (panicHandle) PID() int                 { return 0 }
