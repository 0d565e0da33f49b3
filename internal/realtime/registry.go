package realtime

import (
	"sync"
)

// Registry is the connection directory: it tracks every live session
// and answers sessionsFor(userID) for the event broadcaster. A user may
// hold several sessions (one per device).
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Connection            // sessionID -> connection
	byUser   map[string]map[string]*Connection // userID -> sessionID -> connection
}

// NewRegistry constructs an initialized Registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Connection),
		byUser:   make(map[string]map[string]*Connection),
	}
}

// Attach registers a connection.
func (r *Registry) Attach(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[conn.ID] = conn
	userConns := r.byUser[conn.UserID]
	if userConns == nil {
		userConns = make(map[string]*Connection)
		r.byUser[conn.UserID] = userConns
	}
	userConns[conn.ID] = conn
}

// Detach removes a connection and reports whether it was the user's
// last live session.
func (r *Registry) Detach(sessionID string) (last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.sessions[sessionID]
	if !ok {
		return false
	}
	delete(r.sessions, sessionID)

	userConns := r.byUser[conn.UserID]
	delete(userConns, sessionID)
	if len(userConns) == 0 {
		delete(r.byUser, conn.UserID)
		return true
	}
	return false
}

// SessionsFor returns the live connections of one user.
func (r *Registry) SessionsFor(userID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	userConns := r.byUser[userID]
	if len(userConns) == 0 {
		return nil
	}
	out := make([]*Connection, 0, len(userConns))
	for _, conn := range userConns {
		out = append(out, conn)
	}
	return out
}

// IsConnected reports whether the user has at least one live session.
func (r *Registry) IsConnected(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// SessionCount returns the number of live sessions.
func (r *Registry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
