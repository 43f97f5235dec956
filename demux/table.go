package demux

import (
	"sync"
	"time"

	"github.com/arunvijayshankar/trust/flow"
	"github.com/arunvijayshankar/trust/tcb"
)

// Table is the connection table (design §3): a Quad-keyed map guarded
// by a mutex so the demultiplexer goroutine (which inserts, looks up and
// removes entries) and the TIME_WAIT sweep goroutine (which evicts
// expired entries) can safely use it concurrently.
type Table struct {
	mu    sync.RWMutex
	conns map[flow.Quad]*tcb.Connection
}

// NewTable returns an empty connection table.
func NewTable() *Table {
	return &Table{conns: make(map[flow.Quad]*tcb.Connection)}
}

// Lookup returns the connection for q, if any.
func (t *Table) Lookup(q flow.Quad) (*tcb.Connection, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.conns[q]
	return c, ok
}

// Insert adds a newly accepted connection. Callers must already have
// confirmed no entry exists for its Quad (design invariant 1).
func (t *Table) Insert(c *tcb.Connection) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conns[c.Quad] = c
}

// Remove deletes the entry for q, if present.
func (t *Table) Remove(q flow.Quad) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.conns, q)
}

// Len returns the number of live connections.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.conns)
}

// EvictExpiredTimeWait removes every TIME_WAIT connection whose idle
// time exceeds timeout, returning how many were evicted. This is the
// supplemented TIME_WAIT expiry design §9/§12 calls for, absent from
// the distilled core.
func (t *Table) EvictExpiredTimeWait(now time.Time, timeout time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	evicted := 0
	for q, c := range t.conns {
		if c.State() == tcb.StateTimeWait && c.IdleSince(now) > timeout {
			delete(t.conns, q)
			evicted++
		}
	}
	return evicted
}
