// Package models defines the domain types shared across Hive services.
package models

import "time"

// ContentType identifies which part of an LLM call a content blob captures.
type ContentType string

const (
	ContentSystemPrompt ContentType = "system_prompt"
	ContentMessages     ContentType = "messages"
	ContentResponse     ContentType = "response"
	ContentTools        ContentType = "tools"
	ContentParams       ContentType = "params"
)

// Usage holds token counts for a single LLM call. Counts the SDK did not
// report stay at zero.
type Usage struct {
	Input              int64 `json:"input"`
	Output             int64 `json:"output"`
	Total              int64 `json:"total"`
	Cached             int64 `json:"cached"`
	Reasoning          int64 `json:"reasoning"`
	AcceptedPrediction int64 `json:"accepted_prediction"`
	RejectedPrediction int64 `json:"rejected_prediction"`
}

// LLMEvent is a normalized LLM call metric row. Primary key is
// (timestamp, trace_id, call_sequence); (trace_id, call_sequence) is the
// dedup key within a batch.
type LLMEvent struct {
	Timestamp    time.Time `json:"timestamp"`
	TeamID       string    `json:"team_id"`
	TraceID      string    `json:"trace_id"`
	CallSequence int       `json:"call_sequence"`

	SpanID       string `json:"span_id,omitempty"`
	ParentSpanID string `json:"parent_span_id,omitempty"`
	RequestID    string `json:"request_id,omitempty"`

	Provider string `json:"provider,omitempty"`
	Model    string `json:"model"`
	Stream   bool   `json:"stream"`

	Agent      string   `json:"agent,omitempty"`
	AgentName  string   `json:"agent_name,omitempty"`
	AgentStack []string `json:"agent_stack,omitempty"`
	UserID     string   `json:"user_id,omitempty"`

	LatencyMS *float64 `json:"latency_ms,omitempty"`
	Usage     Usage    `json:"usage"`
	CostTotal float64  `json:"cost_total"`

	Metadata map[string]any `json:"metadata,omitempty"`
	CallSite map[string]any `json:"call_site,omitempty"`

	HasContent    bool   `json:"has_content"`
	FinishReason  string `json:"finish_reason,omitempty"`
	ToolCallCount int    `json:"tool_call_count"`
}

// EffectiveAgent applies the precedence rule: metadata.agent overrides the
// top-level agent field.
func (e *LLMEvent) EffectiveAgent() string {
	if e.Metadata != nil {
		if a, ok := e.Metadata["agent"].(string); ok && a != "" {
			return a
		}
	}
	return e.Agent
}

// ContentReference is a warm-tier row pointing at a deduplicated blob.
type ContentReference struct {
	Timestamp    time.Time   `json:"timestamp"`
	TraceID      string      `json:"trace_id"`
	CallSequence int         `json:"call_sequence"`
	TeamID       string      `json:"team_id"`
	ContentType  ContentType `json:"content_type"`
	ContentHash  string      `json:"content_hash"`
	ByteSize     int         `json:"byte_size"`
	MessageCount *int        `json:"message_count,omitempty"`
	Preview      string      `json:"truncated_preview"`
}

// ContentBlob is a cold-tier content-addressable row. Content is immutable;
// duplicate inserts only bump ref_count and last_seen_at.
type ContentBlob struct {
	ContentHash string    `json:"content_hash"`
	TeamID      string    `json:"team_id"`
	Content     string    `json:"content"`
	ByteSize    int       `json:"byte_size"`
	RefCount    int       `json:"ref_count"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// EventContent is a warm reference joined with its cold blob, as returned by
// the per-event content endpoint.
type EventContent struct {
	ContentType  ContentType `json:"content_type"`
	ContentHash  string      `json:"content_hash"`
	ByteSize     int         `json:"byte_size"`
	MessageCount *int        `json:"message_count,omitempty"`
	Preview      string      `json:"truncated_preview"`
	Content      string      `json:"content"`
}

// UpsertResult summarizes one TieredStore batch write.
type UpsertResult struct {
	RowsWritten         int `json:"rowsWritten"`
	ContentStored       int `json:"contentStored"`
	ContentDeduplicated int `json:"contentDeduplicated"`
}

// EventSummary is the light projection fanned out to dashboards in batches.
type EventSummary struct {
	Timestamp    time.Time `json:"timestamp"`
	TraceID      string    `json:"trace_id"`
	Model        string    `json:"model"`
	Provider     string    `json:"provider,omitempty"`
	Agent        string    `json:"agent,omitempty"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	Cost         float64   `json:"cost"`
	LatencyMS    *float64  `json:"latency_ms,omitempty"`
}

// Summarize projects a normalized event into its fan-out summary.
func (e *LLMEvent) Summarize() EventSummary {
	return EventSummary{
		Timestamp:    e.Timestamp,
		TraceID:      e.TraceID,
		Model:        e.Model,
		Provider:     e.Provider,
		Agent:        e.EffectiveAgent(),
		InputTokens:  e.Usage.Input,
		OutputTokens: e.Usage.Output,
		Cost:         e.CostTotal,
		LatencyMS:    e.LatencyMS,
	}
}

// DistinctAgent is one row of the historical agent aggregation over the hot
// table.
type DistinctAgent struct {
	Agent         string    `json:"agent"`
	AgentName     string    `json:"agent_name,omitempty"`
	FirstSeen     time.Time `json:"first_seen"`
	LastSeen      time.Time `json:"last_seen"`
	TotalRequests int64     `json:"total_requests"`
	TotalCost     float64   `json:"total_cost"`
}
