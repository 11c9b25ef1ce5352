package tenant

// schemaDDL creates the three event storage tiers inside the tenant schema.
// All statements are idempotent; the search path set when each pool
// connection is established scopes them to the team schema.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS llm_events (
    timestamp       TIMESTAMPTZ      NOT NULL,
    team_id         TEXT             NOT NULL,
    trace_id        TEXT             NOT NULL,
    call_sequence   INTEGER          NOT NULL,
    span_id         TEXT,
    parent_span_id  TEXT,
    request_id      TEXT,
    provider        TEXT,
    model           TEXT             NOT NULL,
    stream          BOOLEAN          NOT NULL DEFAULT false,
    agent           TEXT,
    agent_name      TEXT,
    agent_stack     JSONB            NOT NULL DEFAULT '[]'::jsonb,
    user_id         TEXT,
    latency_ms      DOUBLE PRECISION,
    input_tokens    BIGINT           NOT NULL DEFAULT 0,
    output_tokens   BIGINT           NOT NULL DEFAULT 0,
    total_tokens    BIGINT           NOT NULL DEFAULT 0,
    cached_tokens   BIGINT           NOT NULL DEFAULT 0,
    reasoning_tokens BIGINT          NOT NULL DEFAULT 0,
    accepted_prediction_tokens BIGINT NOT NULL DEFAULT 0,
    rejected_prediction_tokens BIGINT NOT NULL DEFAULT 0,
    cost_total      DOUBLE PRECISION NOT NULL DEFAULT 0,
    metadata        JSONB            NOT NULL DEFAULT '{}'::jsonb,
    call_site       JSONB            NOT NULL DEFAULT '{}'::jsonb,
    has_content     BOOLEAN          NOT NULL DEFAULT false,
    finish_reason   TEXT,
    tool_call_count INTEGER          NOT NULL DEFAULT 0,
    PRIMARY KEY (timestamp, trace_id, call_sequence)
);

CREATE INDEX IF NOT EXISTS llm_events_ts_idx ON llm_events (timestamp DESC);
CREATE INDEX IF NOT EXISTS llm_events_model_idx ON llm_events (model, timestamp DESC);
CREATE INDEX IF NOT EXISTS llm_events_agent_idx ON llm_events (agent, timestamp DESC);
CREATE INDEX IF NOT EXISTS llm_events_metadata_idx ON llm_events USING GIN (metadata);

CREATE TABLE IF NOT EXISTS llm_event_content (
    timestamp     TIMESTAMPTZ NOT NULL,
    trace_id      TEXT        NOT NULL,
    call_sequence INTEGER     NOT NULL,
    team_id       TEXT        NOT NULL,
    content_type  TEXT        NOT NULL,
    content_hash  TEXT        NOT NULL,
    byte_size     BIGINT      NOT NULL,
    message_count INTEGER,
    truncated_preview TEXT    NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS llm_event_content_key_idx
    ON llm_event_content (trace_id, call_sequence);
CREATE INDEX IF NOT EXISTS llm_event_content_hash_idx
    ON llm_event_content (content_hash);

CREATE TABLE IF NOT EXISTS llm_content_store (
    content_hash  TEXT        NOT NULL,
    team_id       TEXT        NOT NULL,
    content       TEXT        NOT NULL,
    byte_size     BIGINT      NOT NULL,
    ref_count     INTEGER     NOT NULL DEFAULT 1,
    first_seen_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    last_seen_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (content_hash, team_id)
);
`

// timescaleDDL sets up the hypertable and the daily continuous aggregates,
// refreshed every 15 minutes over the previous 30 days. Executed
// best-effort: on plain PostgreSQL the first statement fails and analytics
// fall back to the base table.
var timescaleDDL = []string{
	`SELECT create_hypertable('llm_events', 'timestamp', if_not_exists => TRUE)`,

	`CREATE MATERIALIZED VIEW IF NOT EXISTS llm_events_daily_ca
	 WITH (timescaledb.continuous) AS
	 SELECT time_bucket('1 day', timestamp) AS bucket,
	        count(*)            AS requests,
	        sum(cost_total)     AS cost,
	        sum(total_tokens)   AS tokens,
	        sum(cached_tokens)  AS cached_tokens,
	        avg(latency_ms)     AS avg_latency_ms
	   FROM llm_events
	  GROUP BY bucket
	 WITH NO DATA`,

	`CREATE MATERIALIZED VIEW IF NOT EXISTS llm_events_daily_by_model_ca
	 WITH (timescaledb.continuous) AS
	 SELECT time_bucket('1 day', timestamp) AS bucket,
	        model,
	        count(*)           AS requests,
	        sum(cost_total)    AS cost,
	        sum(total_tokens)  AS tokens,
	        sum(cached_tokens) AS cached_tokens
	   FROM llm_events
	  GROUP BY bucket, model
	 WITH NO DATA`,

	`CREATE MATERIALIZED VIEW IF NOT EXISTS llm_events_daily_by_agent_ca
	 WITH (timescaledb.continuous) AS
	 SELECT time_bucket('1 day', timestamp) AS bucket,
	        agent,
	        count(*)          AS requests,
	        sum(cost_total)   AS cost,
	        sum(total_tokens) AS tokens
	   FROM llm_events
	  GROUP BY bucket, agent
	 WITH NO DATA`,

	`SELECT add_continuous_aggregate_policy('llm_events_daily_ca',
	        start_offset => INTERVAL '30 days',
	        end_offset => INTERVAL '15 minutes',
	        schedule_interval => INTERVAL '15 minutes',
	        if_not_exists => TRUE)`,

	`SELECT add_continuous_aggregate_policy('llm_events_daily_by_model_ca',
	        start_offset => INTERVAL '30 days',
	        end_offset => INTERVAL '15 minutes',
	        schedule_interval => INTERVAL '15 minutes',
	        if_not_exists => TRUE)`,

	`SELECT add_continuous_aggregate_policy('llm_events_daily_by_agent_ca',
	        start_offset => INTERVAL '30 days',
	        end_offset => INTERVAL '15 minutes',
	        schedule_interval => INTERVAL '15 minutes',
	        if_not_exists => TRUE)`,
}
