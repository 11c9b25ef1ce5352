// Package mcp implements the server side of the MCP SSE transport:
// long-lived per-session channels that autonomous tools connect to, with
// message delivery over a paired POST endpoint.
package mcp

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrSessionNotFound is returned for unknown session ids.
	ErrSessionNotFound = errors.New("mcp session not found")

	// ErrForbidden is returned when a message crosses tenants.
	ErrForbidden = errors.New("mcp session belongs to another team")

	// ErrSessionBusy is returned when a session's delivery buffer is full.
	ErrSessionBusy = errors.New("mcp session buffer full")
)

// sessionBuffer bounds undelivered messages per session.
const sessionBuffer = 32

// Session is one open SSE channel.
type Session struct {
	ID        string
	TeamID    string
	CreatedAt time.Time

	msgCh chan []byte
	done  chan struct{}
	once  sync.Once
}

// Messages is the stream the SSE handler drains.
func (s *Session) Messages() <-chan []byte {
	return s.msgCh
}

// Done is closed when the session is torn down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) close() {
	s.once.Do(func() { close(s.done) })
}

// SessionInfo is the admin view of a session.
type SessionInfo struct {
	ID        string    `json:"session_id"`
	TeamID    string    `json:"team_id"`
	CreatedAt time.Time `json:"created_at"`
	Pending   int       `json:"pending"`
}

// Transport owns all open MCP sessions in this process.
type Transport struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   *slog.Logger
}

// NewTransport creates an empty transport.
func NewTransport() *Transport {
	return &Transport{
		sessions: make(map[string]*Session),
		logger:   slog.Default().With("component", "mcp-transport"),
	}
}

// Open creates a session for a team. The server generates the id.
func (t *Transport) Open(teamID string) *Session {
	s := &Session{
		ID:        uuid.New().String(),
		TeamID:    teamID,
		CreatedAt: time.Now().UTC(),
		msgCh:     make(chan []byte, sessionBuffer),
		done:      make(chan struct{}),
	}
	t.mu.Lock()
	t.sessions[s.ID] = s
	t.mu.Unlock()

	t.logger.Info("MCP session opened", "session_id", s.ID, "team_id", teamID)
	return s
}

// Deliver hands a raw client body to a session. Cross-tenant delivery is
// rejected with ErrForbidden.
func (t *Transport) Deliver(sessionID, teamID string, body []byte) error {
	t.mu.RLock()
	s, ok := t.sessions[sessionID]
	t.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}
	if s.TeamID != teamID {
		return ErrForbidden
	}

	select {
	case s.msgCh <- body:
		return nil
	case <-s.done:
		return ErrSessionNotFound
	default:
		return ErrSessionBusy
	}
}

// Close tears a session down. Closing the SSE side and the admin DELETE
// both land here; double closes are no-ops.
func (t *Transport) Close(sessionID string) bool {
	t.mu.Lock()
	s, ok := t.sessions[sessionID]
	delete(t.sessions, sessionID)
	t.mu.Unlock()

	if !ok {
		return false
	}
	s.close()
	t.logger.Info("MCP session closed", "session_id", sessionID)
	return true
}

// Get returns a session by id.
func (t *Transport) Get(sessionID string) (*Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sessions[sessionID]
	return s, ok
}

// List returns the sessions belonging to a team.
func (t *Transport) List(teamID string) []SessionInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]SessionInfo, 0)
	for _, s := range t.sessions {
		if s.TeamID != teamID {
			continue
		}
		out = append(out, SessionInfo{
			ID:        s.ID,
			TeamID:    s.TeamID,
			CreatedAt: s.CreatedAt,
			Pending:   len(s.msgCh),
		})
	}
	return out
}

// Count returns the number of open sessions across all teams.
func (t *Transport) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}
