package worker

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ProcFactory launches one OS process per owner from the owner's Config.
// The process runs in its own process group so a stop signal reaches any
// children the bot session forks (downloaders, converters).
type ProcFactory struct{}

func NewProcFactory() *ProcFactory { return &ProcFactory{} }

func (f *ProcFactory) Create(_ context.Context, owner int64, cfg Config) (Handle, error) {
	if strings.TrimSpace(cfg.Command) == "" {
		return nil, ErrNoCommand
	}
	cmd := buildCommand(cfg.Command)
	if cfg.WorkDir != "" {
		cmd.Dir = cfg.WorkDir
	}
	cmd.Env = workerEnv(cfg)
	configureSysProcAttr(cmd)

	h := &procHandle{owner: owner, runID: uuid.NewString(), waitDone: make(chan struct{})}
	if cfg.Log.Dir != "" || cfg.Log.StdoutPath != "" || cfg.Log.StderrPath != "" {
		if cfg.Log.Dir != "" {
			_ = os.MkdirAll(cfg.Log.Dir, 0o750)
		}
		outW, errW, _ := cfg.Log.Writers(owner)
		h.outCloser, h.errCloser = outW, errW
	}
	if h.outCloser != nil {
		cmd.Stdout = h.outCloser
	} else {
		cmd.Stdout, _ = os.OpenFile(os.DevNull, os.O_RDWR, 0)
	}
	if h.errCloser != nil {
		cmd.Stderr = h.errCloser
	} else {
		cmd.Stderr, _ = os.OpenFile(os.DevNull, os.O_RDWR, 0)
	}

	if err := cmd.Start(); err != nil {
		h.closeWriters()
		return nil, fmt.Errorf("start worker for owner %d: %w", owner, err)
	}
	h.cmd = cmd
	go h.reap()
	return h, nil
}

// workerEnv merges the parent environment, the config env list, and the
// bot session variables the worker binary reads at startup.
func workerEnv(cfg Config) []string {
	env := append(os.Environ(), cfg.Env...)
	if cfg.Token != "" {
		env = append(env, "BOT_TOKEN="+cfg.Token)
	}
	if cfg.DownloadDir != "" {
		env = append(env, "DOWNLOAD_DIR="+cfg.DownloadDir)
	}
	return env
}

// buildCommand constructs an *exec.Cmd for the command string. It avoids
// invoking a shell when not necessary; shell metacharacters fall back to
// /bin/sh -c.
func buildCommand(cmdStr string) *exec.Cmd {
	cmdStr = strings.TrimSpace(cmdStr)
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		// #nosec G204
		return exec.Command(shellPath, shellArg, cmdStr)
	}
	parts := strings.Fields(cmdStr)
	name := parts[0]
	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}
	// #nosec G204
	return exec.Command(name, args...)
}

// procHandle owns one launched worker process.
type procHandle struct {
	owner int64
	runID string
	cmd   *exec.Cmd

	mu        sync.Mutex
	exited    bool
	exitErr   error
	stopping  bool
	outCloser io.WriteCloser
	errCloser io.WriteCloser

	waitDone chan struct{} // closed by reap once cmd.Wait returns
}

// reap is the single waiter on cmd.Wait for this run.
func (h *procHandle) reap() {
	err := h.cmd.Wait()
	h.mu.Lock()
	h.exited = true
	h.exitErr = err
	h.mu.Unlock()
	h.closeWriters()
	close(h.waitDone)
}

func (h *procHandle) RunID() string { return h.runID }

func (h *procHandle) PID() int {
	if h.cmd != nil && h.cmd.Process != nil {
		return h.cmd.Process.Pid
	}
	return 0
}

// IsRunning probes the process itself; it never reports a cached value.
// A quickly-exiting child can linger as a zombie until reaped, so the
// probe treats zombies as not alive.
func (h *procHandle) IsRunning() bool {
	h.mu.Lock()
	exited := h.exited
	h.mu.Unlock()
	if exited {
		return false
	}
	pid := h.PID()
	if pid == 0 {
		return false
	}
	return probeAlive(pid)
}

// Stop terminates the process group: graceful signal first, then a kill
// once wait elapses. Safe to call on an already-dead handle.
func (h *procHandle) Stop(wait time.Duration) error {
	h.mu.Lock()
	if h.stopping {
		h.mu.Unlock()
		<-h.waitDone
		return nil
	}
	h.stopping = true
	exited := h.exited
	h.mu.Unlock()
	if exited {
		return nil
	}
	pid := h.PID()
	if pid == 0 {
		return nil
	}
	if wait <= 0 {
		wait = 3 * time.Second
	}
	terminateGroup(pid)
	select {
	case <-h.waitDone:
	case <-time.After(wait):
		killGroup(pid)
		select {
		case <-h.waitDone:
		case <-time.After(200 * time.Millisecond):
			// best-effort
		}
	}
	return nil
}

func (h *procHandle) closeWriters() {
	h.mu.Lock()
	if h.outCloser != nil {
		_ = h.outCloser.Close()
		h.outCloser = nil
	}
	if h.errCloser != nil {
		_ = h.errCloser.Close()
		h.errCloser = nil
	}
	h.mu.Unlock()
}

// ExitErr returns the error recorded by reap, if the process has exited.
func (h *procHandle) ExitErr() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.exited {
		return nil
	}
	return h.exitErr
}
