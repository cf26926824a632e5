package camera

import (
	"sync"

	"github.com/adityasharma0903/CCTVattendance/internal/engine"
)

// Hub indexes live sessions for the status API.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{sessions: make(map[string]*Session)}
}

// Add registers a session under its camera ID.
func (h *Hub) Add(s *Session) {
	h.mu.Lock()
	h.sessions[s.CameraID()] = s
	h.mu.Unlock()
}

// LatestDecisions snapshots the newest decision of every camera that
// completed at least one cycle.
func (h *Hub) LatestDecisions() map[string]engine.Decision {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]engine.Decision, len(h.sessions))
	for id, s := range h.sessions {
		if d := s.Latest(); d != nil {
			out[id] = *d
		}
	}
	return out
}
