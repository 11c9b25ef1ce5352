package agentstatus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiveobs/hive/pkg/models"
)

func newTestTracker(t *testing.T) *Tracker {
	tr := NewTracker(5 * time.Minute)
	t.Cleanup(tr.Stop)
	return tr
}

func TestTrackerHeartbeatCreatesSession(t *testing.T) {
	tr := newTestTracker(t)

	tr.HeartbeatWS("team-1", "inst-1", "crawler", "default", "running")

	require.Equal(t, 1, tr.CountConnected("team-1"))
	assert.Equal(t, 1, tr.CountTotal())

	sessions := tr.ListInstances("team-1")
	require.Len(t, sessions, 1)
	s := sessions[0]
	assert.Equal(t, "inst-1", s.InstanceID)
	assert.Equal(t, "crawler", s.AgentName)
	assert.Equal(t, models.ConnectionWebSocket, s.ConnectionType)
	assert.False(t, s.ConnectedAt.IsZero())
}

func TestTrackerHeartbeatUpdatesExisting(t *testing.T) {
	tr := newTestTracker(t)

	tr.HeartbeatHTTP("team-1", "inst-1", "", "", "")
	first := tr.ListInstances("team-1")[0]

	tr.HeartbeatHTTP("team-1", "inst-1", "crawler", "p1", "idle")
	require.Equal(t, 1, tr.CountConnected("team-1"))

	updated := tr.ListInstances("team-1")[0]
	assert.Equal(t, first.ConnectedAt, updated.ConnectedAt, "connect time is stable")
	assert.Equal(t, "crawler", updated.AgentName)
	assert.Equal(t, "p1", updated.PolicyID)
	assert.Equal(t, "idle", updated.Status)
	assert.False(t, updated.LastHeartbeat.Before(first.LastHeartbeat))
}

func TestTrackerDisconnect(t *testing.T) {
	tr := newTestTracker(t)

	tr.HeartbeatWS("team-1", "inst-1", "", "", "")
	tr.DisconnectWS("team-1", "inst-1")

	assert.Zero(t, tr.CountConnected("team-1"))
	assert.Zero(t, tr.CountTotal())
}

func TestTrackerTenantIsolation(t *testing.T) {
	tr := newTestTracker(t)

	tr.HeartbeatWS("team-1", "inst-1", "", "", "")
	tr.HeartbeatWS("team-2", "inst-2", "", "", "")

	assert.Equal(t, 1, tr.CountConnected("team-1"))
	assert.Equal(t, 1, tr.CountConnected("team-2"))
	assert.Equal(t, 2, tr.CountTotal())
	assert.Empty(t, tr.ListInstances("team-3"))
}

func TestTrackerIgnoresBlankIdentity(t *testing.T) {
	tr := newTestTracker(t)
	tr.HeartbeatWS("", "inst-1", "", "", "")
	tr.HeartbeatWS("team-1", "", "", "", "")
	assert.Zero(t, tr.CountTotal())
}

func TestTrackerStatusFrame(t *testing.T) {
	tr := newTestTracker(t)

	status := tr.Status("team-1")
	assert.False(t, status.Active)
	assert.Zero(t, status.Count)

	tr.HeartbeatWS("team-1", "inst-1", "", "", "")
	status = tr.Status("team-1")
	assert.True(t, status.Active)
	assert.Equal(t, 1, status.Count)
	require.Len(t, status.Instances, 1)
}

func TestHealthyThreshold(t *testing.T) {
	now := time.Now().UTC()
	fresh := &models.AgentSession{LastHeartbeat: now.Add(-30 * time.Second)}
	stale := &models.AgentSession{LastHeartbeat: now.Add(-61 * time.Second)}
	assert.True(t, Healthy(fresh, now))
	assert.False(t, Healthy(stale, now))
}

func TestEvictStale(t *testing.T) {
	tr := newTestTracker(t)
	tr.HeartbeatWS("team-1", "inst-1", "", "", "")

	// Backdate the heartbeat past the staleness threshold.
	tr.mu.Lock()
	for _, s := range tr.sessions {
		s.LastHeartbeat = time.Now().UTC().Add(-time.Hour)
	}
	tr.mu.Unlock()

	tr.evictStale()
	assert.Zero(t, tr.CountTotal())
}

func TestMergeHistoricalAndConnected(t *testing.T) {
	now := time.Now().UTC()
	earlier := now.Add(-24 * time.Hour)

	historical := []models.DistinctAgent{
		{Agent: "inst-1", AgentName: "crawler", FirstSeen: earlier, LastSeen: now, TotalRequests: 10, TotalCost: 1.5},
		{Agent: "old-agent", FirstSeen: earlier, LastSeen: earlier, TotalRequests: 3, TotalCost: 0.2},
	}
	connected := []models.AgentSession{
		{InstanceID: "inst-1", TeamID: "t", AgentName: "crawler", LastHeartbeat: now},
		{InstanceID: "inst-9", TeamID: "t", AgentName: "fresh", LastHeartbeat: now},
	}

	merged := Merge(historical, connected, now)
	require.Len(t, merged, 3)

	byAgent := make(map[string]models.AgentInfo)
	for _, m := range merged {
		byAgent[m.Agent] = m
	}

	// Matched by instance id: connected + healthy, history preserved.
	matched := byAgent["inst-1"]
	assert.True(t, matched.Connected)
	assert.Equal(t, "healthy", matched.Status)
	assert.Equal(t, int64(10), matched.TotalRequests)

	// Historical only: disconnected.
	old := byAgent["old-agent"]
	assert.False(t, old.Connected)
	assert.Equal(t, "disconnected", old.Status)

	// Connected only: appended with no history.
	fresh := byAgent["fresh"]
	assert.True(t, fresh.Connected)
	assert.Equal(t, "inst-9", fresh.InstanceID)
	assert.Zero(t, fresh.TotalRequests)
}

func TestMergeMatchesByAgentName(t *testing.T) {
	now := time.Now().UTC()
	historical := []models.DistinctAgent{
		{Agent: "crawler", AgentName: "crawler", FirstSeen: now, LastSeen: now},
	}
	connected := []models.AgentSession{
		{InstanceID: "uuid-1", AgentName: "crawler", LastHeartbeat: now.Add(-2 * time.Minute)},
	}

	merged := Merge(historical, connected, now)
	require.Len(t, merged, 1)
	assert.True(t, merged[0].Connected)
	assert.Equal(t, "uuid-1", merged[0].InstanceID)
	assert.Equal(t, "stale", merged[0].Status, "old heartbeat reports stale")
}
