package websocket

import (
	"sync"

	"github.com/google/uuid"

	"nanorelay/pkg/interfaces"
	"nanorelay/pkg/types"
)

// Registry is the single shared structure mapping live connections to their
// outbound queues and identities to their currently-bound connection.
// ARCHITECTURAL DISCOVERY: One mutex guards both maps together. Every value in
// bindings is a key in connections at all times observable by readers; the
// displacement rule updates both maps and closes the superseded queue inside
// one critical section, so a lookup can never return a connection whose entry
// was already removed.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	bindings    map[uuid.UUID]string
	recorder    interfaces.EventRecorder // optional, fire-and-forget
}

// NewRegistry creates an empty registry. The recorder may be nil.
func NewRegistry(recorder interfaces.EventRecorder) *Registry {
	return &Registry{
		connections: make(map[string]*Connection),
		bindings:    make(map[uuid.UUID]string),
		recorder:    recorder,
	}
}

// Register inserts a new connection entry.
// FUNCTIONAL DISCOVERY: A duplicate handle is a session-management contract
// violation, not a runtime condition; the caller aborts that session.
func (r *Registry) Register(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	handle := conn.Handle()

	r.mu.Lock()
	if _, exists := r.connections[handle]; exists {
		r.mu.Unlock()
		return ErrHandleAlreadyRegistered
	}
	r.connections[handle] = conn
	r.mu.Unlock()

	r.record(types.EventConnected, handle, nil)
	return nil
}

// Bind points identity at conn, displacing any different connection currently
// bound to it: the old connection's queue is closed and its entries removed
// before the new binding is recorded, all in one critical section. Rebinding
// the same connection is a no-op. A connection announcing a different identity
// than it previously held releases its old binding in the same section.
func (r *Registry) Bind(identity uuid.UUID, conn *Connection) {
	if conn == nil {
		return
	}

	handle := conn.Handle()

	r.mu.Lock()

	// Only live connections may take bindings. A displaced connection's
	// read pump can still deliver a buffered announcement after its
	// entries were removed; acting on it would close the successor's
	// queue and leave a binding pointing at an absent connection.
	if registered, live := r.connections[handle]; !live || registered != conn {
		r.mu.Unlock()
		return
	}

	var displacedHandle string
	if oldHandle, exists := r.bindings[identity]; exists {
		if oldHandle == handle {
			r.mu.Unlock()
			return
		}
		if old, live := r.connections[oldHandle]; live {
			delete(r.connections, oldHandle)
			old.CloseQueue()
		}
		delete(r.bindings, identity)
		displacedHandle = oldHandle
	}

	// Re-announcement under a new identity must not leave the previous
	// binding dangling; bindings may only ever point at live connections.
	if prev, bound := conn.Identity(); bound && prev != identity {
		if r.bindings[prev] == handle {
			delete(r.bindings, prev)
		}
	}

	r.bindings[identity] = handle
	conn.setIdentity(identity)

	r.mu.Unlock()

	if displacedHandle != "" {
		r.record(types.EventDisplaced, displacedHandle, &identity)
	}
	r.record(types.EventBound, handle, &identity)
}

// Lookup returns the connection currently bound to identity.
func (r *Registry) Lookup(identity uuid.UUID) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handle, exists := r.bindings[identity]
	if !exists {
		return nil, false
	}
	conn, exists := r.connections[handle]
	return conn, exists
}

// Unregister removes conn's entries on session termination.
// FUNCTIONAL DISCOVERY: Instance comparison makes cleanup idempotent with
// respect to displacement. A superseded connection's deferred cleanup finds a
// different (or no) connection registered and must not delete the newer
// binding for the same identity.
func (r *Registry) Unregister(conn *Connection) {
	if conn == nil {
		return
	}

	handle := conn.Handle()

	r.mu.Lock()

	registered, exists := r.connections[handle]
	if !exists || registered != conn {
		r.mu.Unlock()
		return
	}

	delete(r.connections, handle)

	var identity *uuid.UUID
	if id, bound := conn.Identity(); bound {
		if r.bindings[id] == handle {
			delete(r.bindings, id)
		}
		identity = &id
	}

	conn.CloseQueue()

	r.mu.Unlock()

	r.record(types.EventDisconnected, handle, identity)
}

// Stats returns registry counters for the health endpoint.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"connections": len(r.connections),
		"bindings":    len(r.bindings),
	}
}

func (r *Registry) record(kind, handle string, identity *uuid.UUID) {
	if r.recorder != nil {
		r.recorder.Record(kind, handle, identity)
	}
}
