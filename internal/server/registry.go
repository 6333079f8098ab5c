package server

import (
	"sync"

	relay "github.com/copilothq/copilot-core/core"
)

// sessionRegistry tracks the active sessions so shutdown can close them.
// Membership updates are guarded; no cross-session state lives here.
type sessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*relay.Session
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[string]*relay.Session)}
}

func (r *sessionRegistry) Add(session *relay.Session) {
	r.mu.Lock()
	r.sessions[session.ID()] = session
	r.mu.Unlock()
}

func (r *sessionRegistry) Remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

func (r *sessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.sessions)
}

// CloseAll closes every registered session. The snapshot is taken under the
// lock so sessions removing themselves concurrently cannot race the sweep.
func (r *sessionRegistry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*relay.Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		sessions = append(sessions, session)
	}
	r.mu.Unlock()

	for _, session := range sessions {
		session.Close()
	}
}
