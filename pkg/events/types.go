// Package events provides the real-time fan-out fabric: per-tenant
// WebSocket rooms, the event batching buffer, and an optional pub/sub bus
// for cross-process distribution.
package events

import (
	"time"

	"github.com/hiveobs/hive/pkg/models"
)

// Server → client message types.
const (
	TypeConnectionEstablished = "connection.established"
	TypeSubscribed            = "subscribed"
	TypeEventBatch            = "llm-events-batch"
	TypePolicyUpdate          = "policy-update"
	TypeAlert                 = "alert"
	TypeCommand               = "command"
	TypePong                  = "pong"
	TypeError                 = "error"
)

// Client → server message types.
const (
	TypeSubscribeLLMEvents = "subscribe-llm-events"
	TypeHeartbeat          = "heartbeat"
	TypePing               = "ping"
)

// TeamRoom is the base room every tenant session joins.
func TeamRoom(teamID string) string {
	return "team:" + teamID
}

// LLMEventsRoom carries batched event summaries.
func LLMEventsRoom(teamID string) string {
	return "team:" + teamID + ":llm-events"
}

// AlertsRoom carries in-app budget alerts.
func AlertsRoom(teamID string) string {
	return "team:" + teamID + ":alerts"
}

// PolicyRoom carries policy-update broadcasts.
func PolicyRoom(teamID string) string {
	return "team:" + teamID + ":policy"
}

// InstanceRoom targets one connected SDK instance.
func InstanceRoom(teamID, instanceID string) string {
	return "team:" + teamID + ":instance:" + instanceID
}

// ClientMessage is the JSON structure for client → server WebSocket
// messages. Heartbeats carry the SDK instance identity.
type ClientMessage struct {
	Type       string `json:"type"`
	InstanceID string `json:"sdk_instance_id,omitempty"`
	AgentName  string `json:"agent_name,omitempty"`
	PolicyID   string `json:"policy_id,omitempty"`
	Status     string `json:"status,omitempty"`
}

// Flush reasons reported in batch envelopes.
const (
	FlushTimer      = "timer"
	FlushBufferFull = "buffer_full"
	FlushManual     = "manual"
)

// BatchMeta describes one flushed batch.
type BatchMeta struct {
	BatchSize    int       `json:"batchSize"`
	DroppedCount int       `json:"droppedCount"`
	WindowStart  time.Time `json:"windowStart"`
	WindowEnd    time.Time `json:"windowEnd"`
	FlushReason  string    `json:"flushReason"`
}

// BatchEnvelope is the llm-events-batch frame sent to dashboards.
type BatchEnvelope struct {
	Type   string                `json:"type"`
	TeamID string                `json:"team_id"`
	Events []models.EventSummary `json:"events"`
	Meta   BatchMeta             `json:"meta"`
}

// PolicyUpdateEnvelope is the policy-update frame.
type PolicyUpdateEnvelope struct {
	Type     string `json:"type"`
	TeamID   string `json:"team_id"`
	PolicyID string `json:"policy_id"`
	Policy   any    `json:"policy"`
}

// AlertEnvelope is the alert frame.
type AlertEnvelope struct {
	Type      string    `json:"type"`
	TeamID    string    `json:"team_id"`
	PolicyID  string    `json:"policy_id,omitempty"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}
