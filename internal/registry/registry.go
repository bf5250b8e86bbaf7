// Package registry is the authoritative map of which owners currently have
// a supervised worker. Start/stop and the crash handler coordinate solely
// through its atomic per-owner operations; nothing else may mutate entries.
package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/inkyu/botkeeper/internal/worker"
)

// ErrDuplicate is returned by Register when the owner already has a
// supervised worker. Callers must stop first; hitting this is a
// programming-contract violation, not a recoverable runtime condition.
var ErrDuplicate = errors.New("registry: owner already registered")

// Entry holds the supervised state for one owner: the live worker handle
// and the cancel func of the owner's supervision session context. The
// session context covers every monitor task and backoff sleep for this
// owner until manual stop or give-up.
type Entry struct {
	Handle worker.Handle
	Cancel func()
}

type Registry struct {
	mu      sync.RWMutex
	entries map[int64]*Entry
}

func New() *Registry {
	return &Registry{entries: make(map[int64]*Entry)}
}

// Register installs an entry for owner. It fails if one already exists.
func (r *Registry) Register(owner int64, e *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[owner]; ok {
		return fmt.Errorf("owner %d: %w", owner, ErrDuplicate)
	}
	r.entries[owner] = e
	return nil
}

// Lookup returns the current entry for owner. Absence is a normal outcome.
func (r *Registry) Lookup(owner int64) (*Entry, bool) {
	r.mu.RLock()
	e, ok := r.entries[owner]
	r.mu.RUnlock()
	return e, ok
}

// Contains reports whether the owner is currently supervised.
func (r *Registry) Contains(owner int64) bool {
	r.mu.RLock()
	_, ok := r.entries[owner]
	r.mu.RUnlock()
	return ok
}

// SwapHandle atomically replaces the owner's handle after a relaunch.
// It reports false when the owner was deregistered meanwhile, in which
// case the caller must not treat the relaunch as supervised.
func (r *Registry) SwapHandle(owner int64, h worker.Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[owner]
	if !ok {
		return false
	}
	e.Handle = h
	return true
}

// Deregister removes and returns the owner's entry. Removing an absent
// owner is a no-op.
func (r *Registry) Deregister(owner int64) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[owner]
	if !ok {
		return nil, false
	}
	delete(r.entries, owner)
	return e, true
}

// Owners returns a snapshot of all supervised owner ids.
func (r *Registry) Owners() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]int64, 0, len(r.entries))
	for o := range r.entries {
		out = append(out, o)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
