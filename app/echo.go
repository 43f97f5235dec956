// Package app provides a trivial application-layer consumer used to
// exercise the tcb.Consumer hook (design §12); it is not a sockets API.
package app

import "sync"

// Echo queues delivered bytes, which Pending returns, and never closes
// on its own; nothing in tcb sends the queued bytes back out. It exists
// purely so tests can attach something to
// tcb.Connection.SetConsumer and observe the Deliver/Closed contract
// being driven correctly.
type Echo struct {
	mu     sync.Mutex
	queued []byte
	closed bool
}

// Deliver appends buf to the pending output queue.
func (e *Echo) Deliver(buf []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queued = append(e.queued, buf...)
}

// Closed reports whether Close has been called.
func (e *Echo) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Close marks the consumer done, allowing the owning connection to
// begin its active close on the next handling pass.
func (e *Echo) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
}

// Pending returns and clears the queued bytes.
func (e *Echo) Pending() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.queued
	e.queued = nil
	return out
}
