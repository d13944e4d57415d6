package ws

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Registry is the concurrency-safe bookkeeping of which connections listen
// on which routing keys. Every connection is indexed by its owner's user ID;
// workspace- and session-scoped connections are additionally indexed by their
// scope key, so a workspace member still receives personal notifications on a
// workspace connection.
//
// Registries are constructed explicitly and injected; Close shuts down every
// registered connection. All mutations are short in-memory critical sections,
// never held across a network write.
type Registry struct {
	mu      sync.RWMutex
	conns   map[uuid.UUID]*Conn
	byUser  map[uuid.UUID]map[uuid.UUID]*Conn
	byScope map[string]map[uuid.UUID]*Conn
	closed  bool

	maxPerUser int
	logger     *slog.Logger
}

// NewRegistry creates an empty registry.
// maxPerUser bounds simultaneous connections per user; zero or negative
// means unlimited.
func NewRegistry(maxPerUser int, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		conns:      make(map[uuid.UUID]*Conn),
		byUser:     make(map[uuid.UUID]map[uuid.UUID]*Conn),
		byScope:    make(map[string]map[uuid.UUID]*Conn),
		maxPerUser: maxPerUser,
		logger:     logger.With(slog.String("component", "ws_registry")),
	}
}

// Register adds the connection under its owner's user key and, for
// workspace- and session-scoped connections, under the scope key.
// Returns ErrDuplicateConnection for an already-registered ID,
// ErrTooManyConnections when the per-user limit is hit, and
// ErrRegistryClosed after Close.
func (r *Registry) Register(c *Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}
	if _, exists := r.conns[c.id]; exists {
		return ErrDuplicateConnection
	}
	if r.maxPerUser > 0 && len(r.byUser[c.userID]) >= r.maxPerUser {
		return ErrTooManyConnections
	}

	r.conns[c.id] = c

	if r.byUser[c.userID] == nil {
		r.byUser[c.userID] = make(map[uuid.UUID]*Conn)
	}
	r.byUser[c.userID][c.id] = c

	if key := c.scope.Key(); key != "" {
		if r.byScope[key] == nil {
			r.byScope[key] = make(map[uuid.UUID]*Conn)
		}
		r.byScope[key][c.id] = c
	}

	r.logger.Debug("connection registered",
		slog.String("connection_id", c.id.String()),
		slog.String("user_id", c.userID.String()),
		slog.String("scope", string(c.scope.Kind)))
	return nil
}

// Unregister removes the connection from every key it was registered under.
// It is idempotent: unknown IDs and repeated calls are no-ops, so teardown
// paths and eviction can race safely.
func (r *Registry) Unregister(connID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(connID)
}

// removeLocked deletes the connection from all indexes. Caller holds mu.
func (r *Registry) removeLocked(connID uuid.UUID) {
	c, ok := r.conns[connID]
	if !ok {
		return
	}
	delete(r.conns, connID)

	if userConns, ok := r.byUser[c.userID]; ok {
		delete(userConns, connID)
		if len(userConns) == 0 {
			delete(r.byUser, c.userID)
		}
	}

	if key := c.scope.Key(); key != "" {
		if scopeConns, ok := r.byScope[key]; ok {
			delete(scopeConns, connID)
			if len(scopeConns) == 0 {
				delete(r.byScope, key)
			}
		}
	}

	r.logger.Debug("connection unregistered",
		slog.String("connection_id", connID.String()),
		slog.String("user_id", c.userID.String()))
}

// DeliverToUser pushes the payload to every connection owned by the user and
// returns the number of successful handoffs. Zero is not an error: the user
// may simply be offline.
func (r *Registry) DeliverToUser(userID uuid.UUID, payload []byte) int {
	return r.deliver(r.snapshotUser(userID), payload)
}

// DeliverToScope pushes the payload to every connection registered under the
// scope key, skipping connections owned by a user in excludeUsers.
func (r *Registry) DeliverToScope(key string, excludeUsers map[uuid.UUID]struct{}, payload []byte) int {
	conns := r.snapshotScope(key)
	if len(excludeUsers) > 0 {
		filtered := conns[:0]
		for _, c := range conns {
			if _, skip := excludeUsers[c.userID]; !skip {
				filtered = append(filtered, c)
			}
		}
		conns = filtered
	}
	return r.deliver(conns, payload)
}

// DeliverToUsersExcluding pushes the payload to every connection owned by a
// user in userIDs minus the excluded set. Used by workspace fan-out, where
// the actor never receives a live echo of their own action.
func (r *Registry) DeliverToUsersExcluding(
	userIDs []uuid.UUID,
	excludeUsers map[uuid.UUID]struct{},
	payload []byte,
) int {
	delivered := 0
	for _, userID := range userIDs {
		if _, skip := excludeUsers[userID]; skip {
			continue
		}
		delivered += r.deliver(r.snapshotUser(userID), payload)
	}
	return delivered
}

// ConnectionCount returns the number of open connections owned by the user.
func (r *Registry) ConnectionCount(userID uuid.UUID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID])
}

// Len returns the total number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Close evicts every connection with a going-away close frame and rejects
// future registrations. Used on server shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	conns := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.conns = make(map[uuid.UUID]*Conn)
	r.byUser = make(map[uuid.UUID]map[uuid.UUID]*Conn)
	r.byScope = make(map[string]map[uuid.UUID]*Conn)
	r.mu.Unlock()

	for _, c := range conns {
		c.close(websocket.CloseGoingAway, "server shutting down")
	}

	r.logger.Info("registry closed", slog.Int("evicted", len(conns)))
}

// snapshotUser copies the user's current connections so delivery happens
// outside the lock.
func (r *Registry) snapshotUser(userID uuid.UUID) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]*Conn, 0, len(r.byUser[userID]))
	for _, c := range r.byUser[userID] {
		conns = append(conns, c)
	}
	return conns
}

// snapshotScope copies the scope key's current connections.
func (r *Registry) snapshotScope(key string) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]*Conn, 0, len(r.byScope[key]))
	for _, c := range r.byScope[key] {
		conns = append(conns, c)
	}
	return conns
}

// deliver hands the payload to each connection. A connection that cannot
// accept the payload (closing, or send buffer full behind a stalled client)
// is evicted and closed; the fault never aborts delivery to the rest of the
// fan-out and is never surfaced to the publisher.
func (r *Registry) deliver(conns []*Conn, payload []byte) int {
	delivered := 0
	for _, c := range conns {
		if c.enqueue(payload) {
			delivered++
			continue
		}
		r.logger.Warn("evicting unresponsive connection",
			slog.String("connection_id", c.id.String()),
			slog.String("user_id", c.userID.String()))
		r.Unregister(c.id)
		c.close(websocket.CloseGoingAway, "send buffer overflow")
	}
	return delivered
}
