// Package identity implements the process-wide Ident Registry, the IPv6
// Allocator, and the Identity Generator that a Bridged Client consults
// exactly once per successful connect.
package identity

import "sync"

// Registry is the process-wide mapping from local TCP source port to
// username, consulted by an optional (out-of-scope) ident responder. It is
// write-mostly: one Store per successful TCP connection, one Delete per
// close. Keyed by local port alone rather than a full address pair.
type Registry struct {
	mu     sync.RWMutex
	byPort map[uint16]string
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{byPort: make(map[uint16]string)}
}

// Store records that localPort should identify as username. Overwrites any
// existing mapping for the same port (ports are reused once a socket
// closes, so a later Store for a reused port is expected and correct).
func (r *Registry) Store(localPort uint16, username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byPort[localPort] = username
}

// Lookup returns the username registered for localPort, if any.
func (r *Registry) Lookup(localPort uint16) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byPort[localPort]
	return u, ok
}

// Delete removes any mapping for localPort. Safe to call even if no mapping
// exists (e.g. a connect that failed before a socket-level "connect" event
// ever fired).
func (r *Registry) Delete(localPort uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byPort, localPort)
}
