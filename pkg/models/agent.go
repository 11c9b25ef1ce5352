package models

import "time"

// ConnectionType is how an SDK instance reports liveness.
type ConnectionType string

const (
	ConnectionWebSocket ConnectionType = "websocket"
	ConnectionHTTP      ConnectionType = "http"
)

// AgentSession is one connected SDK instance. Entries are created by the
// first heartbeat carrying an sdk_instance_id, over WebSocket or HTTP, and
// evicted after a staleness threshold. Opening a WebSocket connection alone
// creates no entry.
type AgentSession struct {
	InstanceID     string         `json:"instance_id"`
	TeamID         string         `json:"team_id"`
	PolicyID       string         `json:"policy_id,omitempty"`
	AgentName      string         `json:"agent_name,omitempty"`
	ConnectedAt    time.Time      `json:"connected_at"`
	LastHeartbeat  time.Time      `json:"last_heartbeat"`
	ConnectionType ConnectionType `json:"connection_type"`
	Status         string         `json:"status,omitempty"`
}

// AgentStatus is a point-in-time fleet summary for one tenant, streamed over
// SSE to dashboards.
type AgentStatus struct {
	Active    bool           `json:"active"`
	Count     int            `json:"count"`
	Instances []AgentSession `json:"instances"`
	Timestamp time.Time      `json:"timestamp"`
}

// AgentInfo merges historical agents from the event store with the live
// session registry for the discovery view.
type AgentInfo struct {
	Agent         string     `json:"agent"`
	AgentName     string     `json:"agent_name,omitempty"`
	Connected     bool       `json:"connected"`
	Status        string     `json:"status"`
	InstanceID    string     `json:"instance_id,omitempty"`
	FirstSeen     *time.Time `json:"first_seen,omitempty"`
	LastSeen      *time.Time `json:"last_seen,omitempty"`
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty"`
	TotalRequests int64      `json:"total_requests"`
	TotalCost     float64    `json:"total_cost"`
}
