package eventstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hiveobs/hive/pkg/models"
)

// FetchEventContent returns all content captured for one event, joining
// warm references with their cold blobs by hash.
func (s *Store) FetchEventContent(ctx context.Context, teamID, traceID string, callSeq int) ([]models.EventContent, error) {
	pool, err := s.router.Pool(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("acquiring tenant pool: %w", err)
	}

	rows, err := pool.Query(ctx, `
		SELECT r.content_type, r.content_hash, r.byte_size, r.message_count, r.truncated_preview,
		       COALESCE(c.content, '')
		  FROM llm_event_content r
		  LEFT JOIN llm_content_store c
		    ON c.content_hash = r.content_hash AND c.team_id = r.team_id
		 WHERE r.trace_id = $1 AND r.call_sequence = $2
		 ORDER BY r.content_type`,
		traceID, callSeq)
	if err != nil {
		return nil, fmt.Errorf("querying event content: %w", err)
	}

	contents, err := collectRows(rows, func(rows pgx.Rows) (models.EventContent, error) {
		var c models.EventContent
		var ct string
		err := rows.Scan(&ct, &c.ContentHash, &c.ByteSize, &c.MessageCount, &c.Preview, &c.Content)
		c.ContentType = models.ContentType(ct)
		return c, err
	})
	if err != nil {
		return nil, err
	}
	if len(contents) == 0 {
		return nil, ErrNotFound
	}
	return contents, nil
}

// FetchContentByHash reads one cold blob directly.
func (s *Store) FetchContentByHash(ctx context.Context, teamID, hash string) (*models.ContentBlob, error) {
	pool, err := s.router.Pool(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("acquiring tenant pool: %w", err)
	}

	var b models.ContentBlob
	err = pool.QueryRow(ctx, `
		SELECT content_hash, team_id, content, byte_size, ref_count, first_seen_at, last_seen_at
		  FROM llm_content_store
		 WHERE content_hash = $1 AND team_id = $2`,
		hash, teamID).Scan(
		&b.ContentHash, &b.TeamID, &b.Content, &b.ByteSize, &b.RefCount, &b.FirstSeenAt, &b.LastSeenAt)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying content blob: %w", err)
	}
	return &b, nil
}

// ListDistinctAgents aggregates the hot table into one row per agent,
// ordered by last activity descending.
func (s *Store) ListDistinctAgents(ctx context.Context, teamID string, since *time.Time, limit int) ([]models.DistinctAgent, error) {
	pool, err := s.router.Pool(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("acquiring tenant pool: %w", err)
	}
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT agent,
		       COALESCE(max(agent_name), '') AS agent_name,
		       min(timestamp) AS first_seen,
		       max(timestamp) AS last_seen,
		       count(*)       AS total_requests,
		       COALESCE(sum(cost_total), 0) AS total_cost
		  FROM llm_events
		 WHERE agent IS NOT NULL AND agent <> ''`
	args := []any{}
	if since != nil {
		query += fmt.Sprintf(" AND timestamp >= $%d", len(args)+1)
		args = append(args, *since)
	}
	query += fmt.Sprintf(" GROUP BY agent ORDER BY last_seen DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying distinct agents: %w", err)
	}

	return collectRows(rows, func(rows pgx.Rows) (models.DistinctAgent, error) {
		var a models.DistinctAgent
		err := rows.Scan(&a.Agent, &a.AgentName, &a.FirstSeen, &a.LastSeen, &a.TotalRequests, &a.TotalCost)
		return a, err
	})
}

// ListEvents returns recent hot rows for the dashboard event log.
func (s *Store) ListEvents(ctx context.Context, teamID string, start, end *time.Time, limit, offset int) ([]models.LLMEvent, error) {
	pool, err := s.router.Pool(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("acquiring tenant pool: %w", err)
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := `
		SELECT timestamp, team_id, trace_id, call_sequence,
		       COALESCE(span_id, ''), COALESCE(parent_span_id, ''), COALESCE(request_id, ''),
		       COALESCE(provider, ''), model, stream,
		       COALESCE(agent, ''), COALESCE(agent_name, ''), agent_stack, COALESCE(user_id, ''),
		       latency_ms,
		       input_tokens, output_tokens, total_tokens, cached_tokens,
		       reasoning_tokens, accepted_prediction_tokens, rejected_prediction_tokens,
		       cost_total, metadata, call_site,
		       has_content, COALESCE(finish_reason, ''), tool_call_count
		  FROM llm_events`
	args := []any{}
	where := ""
	if start != nil {
		where = fmt.Sprintf(" WHERE timestamp >= $%d", len(args)+1)
		args = append(args, *start)
	}
	if end != nil {
		if where == "" {
			where = fmt.Sprintf(" WHERE timestamp < $%d", len(args)+1)
		} else {
			where += fmt.Sprintf(" AND timestamp < $%d", len(args)+1)
		}
		args = append(args, *end)
	}
	query += where + fmt.Sprintf(" ORDER BY timestamp DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}

	return collectRows(rows, func(rows pgx.Rows) (models.LLMEvent, error) {
		var e models.LLMEvent
		err := rows.Scan(
			&e.Timestamp, &e.TeamID, &e.TraceID, &e.CallSequence,
			&e.SpanID, &e.ParentSpanID, &e.RequestID,
			&e.Provider, &e.Model, &e.Stream,
			&e.Agent, &e.AgentName, &e.AgentStack, &e.UserID,
			&e.LatencyMS,
			&e.Usage.Input, &e.Usage.Output, &e.Usage.Total, &e.Usage.Cached,
			&e.Usage.Reasoning, &e.Usage.AcceptedPrediction, &e.Usage.RejectedPrediction,
			&e.CostTotal, &e.Metadata, &e.CallSite,
			&e.HasContent, &e.FinishReason, &e.ToolCallCount)
		return e, err
	})
}
