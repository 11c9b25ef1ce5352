// Package ingest validates and normalizes raw SDK event batches into the
// typed rows the tiered store persists.
package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/hiveobs/hive/pkg/models"
	"github.com/hiveobs/hive/pkg/pricing"
	"github.com/hiveobs/hive/pkg/telemetry"
)

// Batch is the result of normalizing one raw SDK batch: deduplicated
// events, their warm content references, and the unique cold blobs.
type Batch struct {
	Events  []models.LLMEvent
	Refs    []models.ContentReference
	Blobs   []models.ContentBlob
	Skipped int
}

// Normalizer turns raw event maps into normalized rows.
type Normalizer struct {
	pricing *pricing.Service
	logger  *slog.Logger
}

// NewNormalizer creates a normalizer pricing costs with the given service.
func NewNormalizer(p *pricing.Service) *Normalizer {
	return &Normalizer{
		pricing: p,
		logger:  slog.Default().With("component", "ingest"),
	}
}

// Normalize validates, prices, extracts content from, and deduplicates a
// raw batch. Invalid events are skipped and counted, never fatal.
func (n *Normalizer) Normalize(ctx context.Context, teamID string, raw []map[string]any) Batch {
	// Dedup within the batch by (trace_id, call_sequence): the entry with
	// the later timestamp wins.
	type entry struct {
		event models.LLMEvent
		refs  []models.ContentReference
		blobs []models.ContentBlob
	}
	byKey := make(map[string]entry, len(raw))
	order := make([]string, 0, len(raw))
	skipped := 0

	for _, r := range raw {
		ev, ok := n.normalizeOne(ctx, teamID, r)
		if !ok {
			skipped++
			telemetry.EventsRejectedTotal.Inc()
			continue
		}

		refs, blobs := extractContent(teamID, ev, r)
		ev.HasContent = len(refs) > 0

		key := ev.TraceID + "\x00" + strconv.Itoa(ev.CallSequence)
		if prev, exists := byKey[key]; exists {
			if !ev.Timestamp.After(prev.event.Timestamp) {
				continue
			}
		} else {
			order = append(order, key)
		}
		byKey[key] = entry{event: ev, refs: refs, blobs: blobs}
	}

	out := Batch{Skipped: skipped}
	seenHashes := make(map[string]bool)
	for _, key := range order {
		e := byKey[key]
		out.Events = append(out.Events, e.event)
		out.Refs = append(out.Refs, e.refs...)
		for _, b := range e.blobs {
			if seenHashes[b.ContentHash] {
				continue
			}
			seenHashes[b.ContentHash] = true
			out.Blobs = append(out.Blobs, b)
		}
	}
	return out
}

// normalizeOne validates and converts a single raw event. Returns false
// when the event is missing its identity fields or timestamp.
func (n *Normalizer) normalizeOne(ctx context.Context, teamID string, raw map[string]any) (models.LLMEvent, bool) {
	ts, ok := parseTimestamp(raw["timestamp"])
	if !ok {
		n.logger.Debug("Skipping event without valid timestamp", "team_id", teamID)
		return models.LLMEvent{}, false
	}
	traceID := stringField(raw, "trace_id")
	seq, seqOK := intField(raw, "call_sequence")
	if teamID == "" || traceID == "" || !seqOK || seq < 0 {
		n.logger.Debug("Skipping event without identity fields",
			"team_id", teamID, "trace_id", traceID)
		return models.LLMEvent{}, false
	}

	ev := models.LLMEvent{
		Timestamp:    ts,
		TeamID:       teamID,
		TraceID:      traceID,
		CallSequence: seq,
		SpanID:       stringField(raw, "span_id"),
		ParentSpanID: stringField(raw, "parent_span_id"),
		RequestID:    stringField(raw, "request_id"),
		Provider:     stringField(raw, "provider"),
		Model:        stringField(raw, "model"),
		Stream:       boolField(raw, "stream"),
		Agent:        stringField(raw, "agent"),
		AgentName:    stringField(raw, "agent_name"),
		AgentStack:   stringSlice(raw["agent_stack"]),
		UserID:       stringField(raw, "user_id"),
		Metadata:     mapField(raw, "metadata"),
		CallSite:     mapField(raw, "call_site"),
		FinishReason: stringField(raw, "finish_reason"),
	}

	if v, ok := floatField(raw, "latency_ms"); ok {
		ev.LatencyMS = &v
	}

	ev.Usage = parseUsage(raw)
	if ev.Usage.Total == 0 {
		ev.Usage.Total = ev.Usage.Input + ev.Usage.Output
	}

	// metadata.agent overrides agent; the effective value leads the stack.
	if effective := ev.EffectiveAgent(); effective != "" {
		ev.Agent = effective
		if len(ev.AgentStack) == 0 || ev.AgentStack[0] != effective {
			if !containsString(ev.AgentStack, effective) {
				ev.AgentStack = append([]string{effective}, ev.AgentStack...)
			}
		}
	}

	ev.ToolCallCount = countToolCalls(raw)

	cost := n.pricing.Cost(ctx, pricing.CostInput{
		Model:  ev.Model,
		Input:  ev.Usage.Input,
		Output: ev.Usage.Output,
		Cached: ev.Usage.Cached,
	})
	ev.CostTotal = cost.Total

	return ev, true
}

// parseUsage accepts usage either nested under "usage" or flat on the
// event. String values never leak into the numeric fields.
func parseUsage(raw map[string]any) models.Usage {
	src := raw
	if nested, ok := raw["usage"].(map[string]any); ok {
		src = nested
	}

	pick := func(keys ...string) int64 {
		for _, k := range keys {
			if v, ok := int64Field(src, k); ok {
				return v
			}
		}
		return 0
	}

	return models.Usage{
		Input:              pick("input", "input_tokens", "prompt_tokens"),
		Output:             pick("output", "output_tokens", "completion_tokens"),
		Total:              pick("total", "total_tokens"),
		Cached:             pick("cached", "cached_tokens"),
		Reasoning:          pick("reasoning", "reasoning_tokens"),
		AcceptedPrediction: pick("accepted_prediction", "accepted_prediction_tokens"),
		RejectedPrediction: pick("rejected_prediction", "rejected_prediction_tokens"),
	}
}

// countToolCalls sums tool_calls[] lengths across the messages array.
func countToolCalls(raw map[string]any) int {
	msgs, ok := raw["messages"].([]any)
	if !ok {
		return 0
	}
	count := 0
	for _, m := range msgs {
		msg, ok := m.(map[string]any)
		if !ok {
			continue
		}
		if calls, ok := msg["tool_calls"].([]any); ok {
			count += len(calls)
		}
	}
	return count
}

// parseTimestamp accepts epoch milliseconds (number) or RFC3339 strings.
func parseTimestamp(v any) (time.Time, bool) {
	switch t := v.(type) {
	case float64:
		if t <= 0 || math.IsNaN(t) || math.IsInf(t, 0) {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(t)).UTC(), true
	case int64:
		if t <= 0 {
			return time.Time{}, false
		}
		return time.UnixMilli(t).UTC(), true
	case json.Number:
		ms, err := t.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return parseTimestamp(ms)
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
			if ts, err := time.Parse(layout, t); err == nil {
				return ts.UTC(), true
			}
		}
		// Some SDKs stringify the epoch.
		if ms, err := strconv.ParseFloat(t, 64); err == nil {
			return parseTimestamp(ms)
		}
		return time.Time{}, false
	case time.Time:
		return t.UTC(), true
	default:
		return time.Time{}, false
	}
}

func stringField(raw map[string]any, key string) string {
	s, _ := raw[key].(string)
	return s
}

func boolField(raw map[string]any, key string) bool {
	b, _ := raw[key].(bool)
	return b
}

func mapField(raw map[string]any, key string) map[string]any {
	m, _ := raw[key].(map[string]any)
	return m
}

func stringSlice(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, e := range s {
			if str, ok := e.(string); ok {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}

func containsString(s []string, v string) bool {
	for _, e := range s {
		if e == v {
			return true
		}
	}
	return false
}

// floatField coerces a numeric field; strings and other types yield false.
func floatField(raw map[string]any, key string) (float64, bool) {
	switch v := raw[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func int64Field(raw map[string]any, key string) (int64, bool) {
	f, ok := floatField(raw, key)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

func intField(raw map[string]any, key string) (int, bool) {
	f, ok := floatField(raw, key)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}
