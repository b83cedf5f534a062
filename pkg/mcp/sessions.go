package mcp

import "sync"

// SessionRegistry maps tree UIDs to MCP session IDs.
// Populated automatically when a session loads a tree, so run completions
// can be pushed back to whoever loaded it.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]string // treeUID → sessionID
}

// NewSessionRegistry creates a new empty SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]string)}
}

// Register associates a tree UID with a session ID.
// If the tree already has a session, it is overwritten (reconnect).
func (r *SessionRegistry) Register(treeUID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[treeUID] = sessionID
}

// SessionFor returns the session ID watching the given tree, if any.
func (r *SessionRegistry) SessionFor(treeUID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sid, ok := r.sessions[treeUID]
	return sid, ok
}

// Remove deletes all tree mappings for the given session ID.
// Called when a session disconnects.
func (r *SessionRegistry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for uid, sid := range r.sessions {
		if sid == sessionID {
			delete(r.sessions, uid)
		}
	}
}
