package jules

import "sync"

// SessionRegistry maps conversation keys to remote session ids so later turns
// of the same conversation reuse the session instead of creating a new one.
// Entries live for the lifetime of the process; there is no eviction.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]string
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]string)}
}

// Get returns the stored session id for key, if any.
func (r *SessionRegistry) Get(key string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.sessions[key]
	return id, ok
}

// Set stores or overwrites the session id for key.
func (r *SessionRegistry) Set(key, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[key] = sessionID
}
