// Package runtime owns the live state of the engine: the session registry,
// the presence store and the call coordinator. It orchestrates propagation
// without containing wire-level concerns.
package runtime

import (
	"sync"

	"github.com/samber/lo"

	"call-lab/contract"
	"call-lab/domain"
)

// Registry maps each identity to its ordered set of open connections and
// each connection to its delivery sink. An identity is online iff it has at
// least one registered connection; the 0->1 and 1->0 edges are reported to
// the caller so the presence store can react.
type Registry struct {
	mu          sync.RWMutex
	connections map[domain.ConnectionID]domain.Connection
	sinks       map[domain.ConnectionID]contract.EventSink
	byIdentity  map[domain.IdentityID][]domain.ConnectionID // registration order
}

func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[domain.ConnectionID]domain.Connection),
		sinks:       make(map[domain.ConnectionID]contract.EventSink),
		byIdentity:  make(map[domain.IdentityID][]domain.ConnectionID),
	}
}

// AddConnection registers a connection under its identity.
// Returns true when the identity's connection count transitions 0->1.
func (r *Registry) AddConnection(conn domain.Connection, sink contract.EventSink) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connections[conn.ID]; exists {
		// Connection ids are never reused; a duplicate add is a no-op.
		return false
	}

	identity := conn.Identity.ID
	wasOffline := len(r.byIdentity[identity]) == 0

	r.connections[conn.ID] = conn
	r.sinks[conn.ID] = sink
	r.byIdentity[identity] = append(r.byIdentity[identity], conn.ID)

	return wasOffline
}

// RemoveConnection deregisters a connection. It is a no-op if the connection
// was never registered or already removed (duplicate close signals).
// becameOffline is true when the identity's count transitions to 0.
func (r *Registry) RemoveConnection(identity domain.IdentityID, connID domain.ConnectionID) (removed, becameOffline bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connections[connID]; !exists {
		return false, false
	}

	delete(r.connections, connID)
	delete(r.sinks, connID)

	conns := r.byIdentity[identity]
	for i, id := range conns {
		if id == connID {
			conns = append(conns[:i], conns[i+1:]...)
			break
		}
	}

	// No empty slices left behind, to prevent the map growing forever.
	if len(conns) == 0 {
		delete(r.byIdentity, identity)
		return true, true
	}
	r.byIdentity[identity] = conns
	return true, false
}

// ConnectionsFor returns the identity's open connection ids in registration
// order. These are the fan-out targets for call notifications.
func (r *Registry) ConnectionsFor(identity domain.IdentityID) []domain.ConnectionID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.byIdentity[identity]
	out := make([]domain.ConnectionID, len(conns))
	copy(out, conns)
	return out
}

// ActiveIdentities returns every identity with at least one connection.
func (r *Registry) ActiveIdentities() []domain.IdentityID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.byIdentity)
}

func (r *Registry) SinkFor(connID domain.ConnectionID) (contract.EventSink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sink, ok := r.sinks[connID]
	return sink, ok
}

func (r *Registry) SinksFor(identity domain.IdentityID) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []contract.EventSink
	for _, connID := range r.byIdentity[identity] {
		if sink, ok := r.sinks[connID]; ok {
			out = append(out, sink)
		}
	}
	return out
}

// AllSinks returns the sinks of every open connection, the presence
// broadcast targets.
func (r *Registry) AllSinks() []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]contract.EventSink, 0, len(r.sinks))
	for _, sink := range r.sinks {
		out = append(out, sink)
	}
	return out
}

// ActiveConnectionCount is exposed for the observability gauges.
func (r *Registry) ActiveConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// OnlineIdentityCount is exposed for the observability gauges.
func (r *Registry) OnlineIdentityCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byIdentity)
}
