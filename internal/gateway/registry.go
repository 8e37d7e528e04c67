package gateway

import (
	"sync"

	"github.com/rs/zerolog/log"

	"signalhub/pkg/interfaces"
)

// Registry maps user IDs to their live connection. At most one
// connection per user: registering a second connection for the same
// user replaces and closes the first.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]interfaces.Conn
}

func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]interfaces.Conn),
	}
}

// Register adds a connection, evicting any previous connection for the
// same user. The evicted connection is closed asynchronously so its own
// teardown path cannot deadlock against this registration.
func (r *Registry) Register(conn interfaces.Conn) error {
	if conn == nil {
		return ErrNilConnection
	}

	userID := conn.UserID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.connections[userID]; ok {
		go func() {
			if err := existing.Close(); err != nil {
				log.Debug().Err(err).Str("user_id", userID).Msg("failed to close replaced connection")
			}
		}()
	}

	r.connections[userID] = conn
	return nil
}

// Unregister removes a connection, but only if it is still the one
// registered for its user. A stale connection unregistering after its
// replacement arrived is a no-op. Idempotent.
func (r *Registry) Unregister(conn interfaces.Conn) {
	if conn == nil {
		return
	}

	userID := conn.UserID()

	r.mu.Lock()
	defer r.mu.Unlock()

	registered, ok := r.connections[userID]
	if !ok {
		return
	}
	if registered.ConnID() != conn.ConnID() {
		return
	}

	delete(r.connections, userID)
}

// Get returns the current connection for a user.
func (r *Registry) Get(userID string) (interfaces.Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.connections[userID]
	return conn, ok
}

// Broadcast sends v to every registered connection. The connection set
// is snapshotted first so slow writes do not hold the lock.
func (r *Registry) Broadcast(v interface{}) {
	r.mu.RLock()
	conns := make([]interfaces.Conn, 0, len(r.connections))
	for _, conn := range r.connections {
		conns = append(conns, conn)
	}
	r.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.WriteJSON(v); err != nil {
			log.Debug().Err(err).Str("user_id", conn.UserID()).Msg("broadcast write failed")
		}
	}
}

// Stats returns registry counters for the stats endpoint.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"connections": len(r.connections),
	}
}
