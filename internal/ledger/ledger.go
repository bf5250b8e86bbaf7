// Package ledger tracks consecutive auto-restart attempts per owner.
// Entries exist only while a worker is supervised: a manual start resets
// the count to zero, a manual stop (or a give-up) deletes the entry.
package ledger

import "sync"

// Ledger is a process-wide attempt counter keyed by owner id.
// All methods are safe for concurrent use.
type Ledger struct {
	mu       sync.Mutex
	attempts map[int64]int
}

func New() *Ledger {
	return &Ledger{attempts: make(map[int64]int)}
}

// Reset sets the owner's attempt count to zero, creating the entry if absent.
func (l *Ledger) Reset(owner int64) {
	l.mu.Lock()
	l.attempts[owner] = 0
	l.mu.Unlock()
}

// Get returns the owner's current attempt count; absent owners read as zero.
func (l *Ledger) Get(owner int64) int {
	l.mu.Lock()
	n := l.attempts[owner]
	l.mu.Unlock()
	return n
}

// Inc increments the owner's attempt count and returns the new value.
func (l *Ledger) Inc(owner int64) int {
	l.mu.Lock()
	l.attempts[owner]++
	n := l.attempts[owner]
	l.mu.Unlock()
	return n
}

// Delete removes the owner's entry. Deleting an absent owner is a no-op.
func (l *Ledger) Delete(owner int64) {
	l.mu.Lock()
	delete(l.attempts, owner)
	l.mu.Unlock()
}

// Has reports whether an entry exists for the owner.
func (l *Ledger) Has(owner int64) bool {
	l.mu.Lock()
	_, ok := l.attempts[owner]
	l.mu.Unlock()
	return ok
}
