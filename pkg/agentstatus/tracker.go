// Package agentstatus keeps a heartbeat-driven registry of connected SDK
// instances and serves fleet status queries.
package agentstatus

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hiveobs/hive/pkg/models"
)

// healthyWithin is the heartbeat age below which an instance is healthy.
const healthyWithin = 60 * time.Second

// gcInterval is how often stale sessions are evicted.
const gcInterval = time.Minute

// key identifies one instance of one tenant.
type key struct {
	teamID     string
	instanceID string
}

// Tracker is the in-memory fleet registry. Entries are created by the first
// WebSocket or HTTP heartbeat for an instance and evicted once stale; a
// WebSocket connection that sends no heartbeat creates no entry.
type Tracker struct {
	staleAfter time.Duration
	logger     *slog.Logger

	mu       sync.RWMutex
	sessions map[key]*models.AgentSession

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewTracker creates a tracker evicting sessions idle past staleAfter.
func NewTracker(staleAfter time.Duration) *Tracker {
	if staleAfter <= 0 {
		staleAfter = 5 * time.Minute
	}
	t := &Tracker{
		staleAfter: staleAfter,
		logger:     slog.Default().With("component", "agent-status"),
		sessions:   make(map[key]*models.AgentSession),
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
	go t.gcLoop()
	return t
}

// HeartbeatWS records a heartbeat received over a WebSocket session.
// Implements events.AgentRegistry.
func (t *Tracker) HeartbeatWS(teamID, instanceID, agentName, policyID, status string) {
	t.heartbeat(teamID, instanceID, agentName, policyID, status, models.ConnectionWebSocket)
}

// HeartbeatHTTP records a heartbeat received over the HTTP endpoint.
func (t *Tracker) HeartbeatHTTP(teamID, instanceID, agentName, policyID, status string) {
	t.heartbeat(teamID, instanceID, agentName, policyID, status, models.ConnectionHTTP)
}

func (t *Tracker) heartbeat(teamID, instanceID, agentName, policyID, status string, conn models.ConnectionType) {
	if teamID == "" || instanceID == "" {
		return
	}
	now := time.Now().UTC()
	k := key{teamID, instanceID}

	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[k]
	if !ok {
		s = &models.AgentSession{
			InstanceID:     instanceID,
			TeamID:         teamID,
			ConnectedAt:    now,
			ConnectionType: conn,
		}
		t.sessions[k] = s
	}
	s.LastHeartbeat = now
	s.ConnectionType = conn
	if agentName != "" {
		s.AgentName = agentName
	}
	if policyID != "" {
		s.PolicyID = policyID
	}
	if status != "" {
		s.Status = status
	}
}

// DisconnectWS removes a session when its WebSocket closes.
// Implements events.AgentRegistry.
func (t *Tracker) DisconnectWS(teamID, instanceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, key{teamID, instanceID})
}

// CountConnected returns the number of live instances for a team.
func (t *Tracker) CountConnected(teamID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for k := range t.sessions {
		if k.teamID == teamID {
			n++
		}
	}
	return n
}

// CountTotal returns the number of live instances across all teams.
func (t *Tracker) CountTotal() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

// ListInstances returns a team's sessions, most recent heartbeat first.
func (t *Tracker) ListInstances(teamID string) []models.AgentSession {
	t.mu.RLock()
	out := make([]models.AgentSession, 0)
	for k, s := range t.sessions {
		if k.teamID == teamID {
			out = append(out, *s)
		}
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].LastHeartbeat.After(out[j].LastHeartbeat)
	})
	return out
}

// Status builds the SSE fleet frame for a team.
func (t *Tracker) Status(teamID string) models.AgentStatus {
	instances := t.ListInstances(teamID)
	return models.AgentStatus{
		Active:    len(instances) > 0,
		Count:     len(instances),
		Instances: instances,
		Timestamp: time.Now().UTC(),
	}
}

// Healthy reports whether a session's heartbeat is fresh.
func Healthy(s *models.AgentSession, now time.Time) bool {
	return now.Sub(s.LastHeartbeat) < healthyWithin
}

func (t *Tracker) gcLoop() {
	defer close(t.done)
	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			t.evictStale()
		}
	}
}

func (t *Tracker) evictStale() {
	cutoff := time.Now().UTC().Add(-t.staleAfter)
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, s := range t.sessions {
		if s.LastHeartbeat.Before(cutoff) {
			delete(t.sessions, k)
			t.logger.Debug("Evicted stale agent session",
				"team_id", k.teamID, "instance_id", k.instanceID)
		}
	}
}

// Stop terminates the eviction loop.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })
	<-t.done
}
