// Package eventstore persists normalized LLM events into the three-tier
// per-tenant time-series schema: hot metric rows, warm content references,
// and deduplicated cold blobs.
package eventstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hiveobs/hive/pkg/models"
	"github.com/hiveobs/hive/pkg/telemetry"
	"github.com/hiveobs/hive/pkg/tenant"
)

// ErrNotFound is returned when a content lookup matches nothing.
var ErrNotFound = errors.New("content not found")

// Store is the tiered event store for all tenants.
type Store struct {
	router *tenant.Router
	logger *slog.Logger
}

// NewStore creates a tiered store routing through the given tenant router.
func NewStore(router *tenant.Router) *Store {
	return &Store{
		router: router,
		logger: slog.Default().With("component", "eventstore"),
	}
}

// insertEventSQL writes one hot row with last-write-wins semantics on
// (trace_id, call_sequence) by event timestamp:
//   - rows older than the incoming timestamp are deleted,
//   - the insert is skipped when a newer row already exists,
//   - an exact timestamp tie keeps the incoming row (DO UPDATE).
const insertEventSQL = `
WITH stale AS (
    DELETE FROM llm_events
     WHERE trace_id = $3 AND call_sequence = $4 AND timestamp < $1
)
INSERT INTO llm_events (
    timestamp, team_id, trace_id, call_sequence,
    span_id, parent_span_id, request_id,
    provider, model, stream,
    agent, agent_name, agent_stack, user_id,
    latency_ms,
    input_tokens, output_tokens, total_tokens, cached_tokens,
    reasoning_tokens, accepted_prediction_tokens, rejected_prediction_tokens,
    cost_total, metadata, call_site,
    has_content, finish_reason, tool_call_count
)
SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
       $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28
 WHERE NOT EXISTS (
    SELECT 1 FROM llm_events
     WHERE trace_id = $3 AND call_sequence = $4 AND timestamp > $1
)
ON CONFLICT (timestamp, trace_id, call_sequence) DO UPDATE SET
    team_id = EXCLUDED.team_id,
    span_id = EXCLUDED.span_id,
    parent_span_id = EXCLUDED.parent_span_id,
    request_id = EXCLUDED.request_id,
    provider = EXCLUDED.provider,
    model = EXCLUDED.model,
    stream = EXCLUDED.stream,
    agent = EXCLUDED.agent,
    agent_name = EXCLUDED.agent_name,
    agent_stack = EXCLUDED.agent_stack,
    user_id = EXCLUDED.user_id,
    latency_ms = EXCLUDED.latency_ms,
    input_tokens = EXCLUDED.input_tokens,
    output_tokens = EXCLUDED.output_tokens,
    total_tokens = EXCLUDED.total_tokens,
    cached_tokens = EXCLUDED.cached_tokens,
    reasoning_tokens = EXCLUDED.reasoning_tokens,
    accepted_prediction_tokens = EXCLUDED.accepted_prediction_tokens,
    rejected_prediction_tokens = EXCLUDED.rejected_prediction_tokens,
    cost_total = EXCLUDED.cost_total,
    metadata = EXCLUDED.metadata,
    call_site = EXCLUDED.call_site,
    has_content = EXCLUDED.has_content,
    finish_reason = EXCLUDED.finish_reason,
    tool_call_count = EXCLUDED.tool_call_count`

// insertBlobSQL upserts a cold blob. Content is immutable; duplicates bump
// ref_count and last_seen_at. xmax = 0 distinguishes a fresh insert from a
// dedup hit.
const insertBlobSQL = `
INSERT INTO llm_content_store (content_hash, team_id, content, byte_size, ref_count, first_seen_at, last_seen_at)
VALUES ($1, $2, $3, $4, 1, $5, $5)
ON CONFLICT (content_hash, team_id) DO UPDATE SET
    ref_count = llm_content_store.ref_count + 1,
    last_seen_at = GREATEST(llm_content_store.last_seen_at, EXCLUDED.last_seen_at)
RETURNING (xmax = 0) AS inserted`

// insertRefSQL appends one warm reference. References are append-only.
const insertRefSQL = `
INSERT INTO llm_event_content (timestamp, trace_id, call_sequence, team_id, content_type, content_hash, byte_size, message_count, truncated_preview)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

// Upsert persists one normalized batch inside a single transaction: hot
// rows, cold blobs, then warm references. On failure the whole batch rolls
// back; SDKs retry.
func (s *Store) Upsert(ctx context.Context, teamID string, events []models.LLMEvent, refs []models.ContentReference, blobs []models.ContentBlob) (models.UpsertResult, error) {
	start := time.Now()
	var result models.UpsertResult
	if len(events) == 0 && len(blobs) == 0 && len(refs) == 0 {
		return result, nil
	}

	pool, err := s.router.Pool(ctx, teamID)
	if err != nil {
		return result, fmt.Errorf("acquiring tenant pool: %w", err)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		// A pool that cannot hand out connections is rebuilt on the next
		// request.
		s.router.Evict(teamID)
		return result, fmt.Errorf("beginning upsert transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, ev := range events {
		tag, err := tx.Exec(ctx, insertEventSQL, eventArgs(&ev)...)
		if err != nil {
			return models.UpsertResult{}, fmt.Errorf("inserting event %s/%d: %w", ev.TraceID, ev.CallSequence, err)
		}
		result.RowsWritten += int(tag.RowsAffected())
	}

	for _, b := range blobs {
		var inserted bool
		err := tx.QueryRow(ctx, insertBlobSQL,
			b.ContentHash, teamID, b.Content, b.ByteSize, b.LastSeenAt).Scan(&inserted)
		if err != nil {
			return models.UpsertResult{}, fmt.Errorf("upserting content blob %s: %w", b.ContentHash, err)
		}
		if inserted {
			result.ContentStored++
		} else {
			result.ContentDeduplicated++
			telemetry.ContentDeduplicatedTotal.Inc()
		}
	}

	for _, r := range refs {
		_, err := tx.Exec(ctx, insertRefSQL,
			r.Timestamp, r.TraceID, r.CallSequence, teamID,
			string(r.ContentType), r.ContentHash, r.ByteSize, r.MessageCount, r.Preview)
		if err != nil {
			return models.UpsertResult{}, fmt.Errorf("inserting content reference: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return models.UpsertResult{}, fmt.Errorf("committing upsert: %w", err)
	}

	telemetry.EventsIngestedTotal.WithLabelValues(teamID).Add(float64(len(events)))
	telemetry.IngestDuration.Observe(time.Since(start).Seconds())
	return result, nil
}

// eventArgs flattens an event into the insertEventSQL parameter list.
func eventArgs(ev *models.LLMEvent) []any {
	metadata := ev.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	callSite := ev.CallSite
	if callSite == nil {
		callSite = map[string]any{}
	}
	stack := ev.AgentStack
	if stack == nil {
		stack = []string{}
	}
	return []any{
		ev.Timestamp, ev.TeamID, ev.TraceID, ev.CallSequence,
		nullable(ev.SpanID), nullable(ev.ParentSpanID), nullable(ev.RequestID),
		nullable(ev.Provider), ev.Model, ev.Stream,
		nullable(ev.Agent), nullable(ev.AgentName), stack, nullable(ev.UserID),
		ev.LatencyMS,
		ev.Usage.Input, ev.Usage.Output, ev.Usage.Total, ev.Usage.Cached,
		ev.Usage.Reasoning, ev.Usage.AcceptedPrediction, ev.Usage.RejectedPrediction,
		ev.CostTotal, metadata, callSite,
		ev.HasContent, nullable(ev.FinishReason), ev.ToolCallCount,
	}
}

// nullable maps empty strings to SQL NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// collectRows is a small helper for read queries.
func collectRows[T any](rows pgx.Rows, scan func(pgx.Rows) (T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
