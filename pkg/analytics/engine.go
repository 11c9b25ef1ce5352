package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hiveobs/hive/pkg/pricing"
	"github.com/hiveobs/hive/pkg/tenant"
)

// Engine runs windowed aggregations against per-tenant schemas.
type Engine struct {
	router  *tenant.Router
	pricing *pricing.Service
	logger  *slog.Logger
}

// NewEngine creates an analytics engine.
func NewEngine(router *tenant.Router, p *pricing.Service) *Engine {
	return &Engine{
		router:  router,
		pricing: p,
		logger:  slog.Default().With("component", "analytics"),
	}
}

// Summary is the headline aggregate for a window.
type Summary struct {
	TotalCost     float64 `json:"total_cost"`
	TotalRequests int64   `json:"total_requests"`
	TotalTokens   int64   `json:"total_tokens"`
	AvgLatencyMS  float64 `json:"avg_latency_ms"`
	CacheSavings  float64 `json:"cache_savings"`
}

// TimelinePoint is one bucket of the cost/request/token timeline.
type TimelinePoint struct {
	Bucket     time.Time `json:"bucket"`
	Cost       float64   `json:"cost"`
	Requests   int64     `json:"requests"`
	Tokens     int64     `json:"tokens"`
	LatencyP50 float64   `json:"latency_p50"`
	LatencyP95 float64   `json:"latency_p95"`
	LatencyP99 float64   `json:"latency_p99"`
}

// Timeline is the bucketed series at the requested resolution.
type Timeline struct {
	Resolution string          `json:"resolution"`
	Points     []TimelinePoint `json:"points"`
}

// CostShare is one model/agent slice of the cost breakdown.
type CostShare struct {
	Key       string  `json:"key"`
	CostTotal float64 `json:"cost_total"`
	Share     float64 `json:"share"`
}

// CostBreakdown groups cost by one dimension.
type CostBreakdown struct {
	TotalCost float64     `json:"total_cost"`
	Items     []CostShare `json:"items"`
}

// LatencyBucket is one slice of the latency distribution.
type LatencyBucket struct {
	Bucket string  `json:"bucket"`
	Count  int64   `json:"count"`
	Share  float64 `json:"share"`
}

// LatencyDistribution groups request latency into fixed buckets.
type LatencyDistribution struct {
	Total   int64           `json:"total"`
	Buckets []LatencyBucket `json:"buckets"`
}

// Report is the full analytics response for a window.
type Report struct {
	Window              Window              `json:"window"`
	Summary             Summary             `json:"summary"`
	Timeline            Timeline            `json:"timeline"`
	CostByModel         CostBreakdown       `json:"cost_by_model"`
	CostByAgent         CostBreakdown       `json:"cost_by_agent"`
	LatencyDistribution LatencyDistribution `json:"latency_distribution"`
}

// latencyBucketSQL maps latency_ms into the fixed distribution buckets.
const latencyBucketSQL = `CASE
	WHEN latency_ms < 1000 THEN '0-1s'
	WHEN latency_ms < 2000 THEN '1-2s'
	WHEN latency_ms < 5000 THEN '2-5s'
	WHEN latency_ms < 10000 THEN '5-10s'
	WHEN latency_ms < 20000 THEN '10-20s'
	ELSE '20s+'
END`

// latencyBucketOrder fixes the rendering order of the distribution.
var latencyBucketOrder = []string{"0-1s", "1-2s", "2-5s", "5-10s", "10-20s", "20s+"}

// Analytics builds the full dashboard report for a window at day or hour
// resolution.
func (e *Engine) Analytics(ctx context.Context, teamID, windowName, resolution string) (*Report, error) {
	if resolution != "hour" {
		resolution = "day"
	}
	window, err := ParseWindow(windowName, time.Now())
	if err != nil {
		return nil, err
	}

	pool, err := e.router.Pool(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("acquiring tenant pool: %w", err)
	}

	report := &Report{Window: window}

	if report.Summary, err = e.summary(ctx, pool, window); err != nil {
		return nil, err
	}
	if report.Timeline, err = e.timeline(ctx, pool, window, resolution); err != nil {
		return nil, err
	}
	if report.CostByModel, err = e.costBreakdown(ctx, pool, window, "model"); err != nil {
		return nil, err
	}
	if report.CostByAgent, err = e.costBreakdown(ctx, pool, window, "agent"); err != nil {
		return nil, err
	}
	if report.LatencyDistribution, err = e.latencyDistribution(ctx, pool, window); err != nil {
		return nil, err
	}
	return report, nil
}

// windowClause renders the window bounds as a WHERE fragment.
func windowClause(w Window, args *[]any) string {
	clauses := []string{}
	if !w.Start.IsZero() {
		*args = append(*args, w.Start)
		clauses = append(clauses, fmt.Sprintf("timestamp >= $%d", len(*args)))
	}
	*args = append(*args, w.End)
	clauses = append(clauses, fmt.Sprintf("timestamp < $%d", len(*args)))
	return strings.Join(clauses, " AND ")
}

func (e *Engine) summary(ctx context.Context, pool *pgxpool.Pool, w Window) (Summary, error) {
	var s Summary
	args := []any{}
	where := windowClause(w, &args)

	err := pool.QueryRow(ctx, `
		SELECT COALESCE(sum(cost_total), 0),
		       count(*),
		       COALESCE(sum(total_tokens), 0),
		       COALESCE(avg(latency_ms), 0)
		  FROM llm_events WHERE `+where, args...).Scan(
		&s.TotalCost, &s.TotalRequests, &s.TotalTokens, &s.AvgLatencyMS)
	if err != nil {
		return s, fmt.Errorf("summary query: %w", err)
	}

	savings, err := e.cacheSavings(ctx, pool, w)
	if err != nil {
		return s, err
	}
	s.CacheSavings = savings
	return s, nil
}

// cacheSavings prices each model's cached tokens at its input rate.
func (e *Engine) cacheSavings(ctx context.Context, pool *pgxpool.Pool, w Window) (float64, error) {
	args := []any{}
	where := windowClause(w, &args)

	rows, err := pool.Query(ctx, `
		SELECT model, COALESCE(sum(cached_tokens), 0)
		  FROM llm_events WHERE `+where+` GROUP BY model`, args...)
	if err != nil {
		return 0, fmt.Errorf("cache savings query: %w", err)
	}
	defer rows.Close()

	total := 0.0
	for rows.Next() {
		var model string
		var cached int64
		if err := rows.Scan(&model, &cached); err != nil {
			return 0, err
		}
		quote := e.pricing.Quote(ctx, model, "")
		total += float64(cached) / 1e6 * quote.InputPer1M
	}
	return total, rows.Err()
}

// timeline buckets the window. For day resolution the continuous
// aggregates serve [start, today_midnight) and the base table serves
// today; on plain PostgreSQL everything falls back to the base table.
func (e *Engine) timeline(ctx context.Context, pool *pgxpool.Pool, w Window, resolution string) (Timeline, error) {
	tl := Timeline{Resolution: resolution}

	if resolution == "day" {
		midnight := Midnight(time.Now())
		if w.Start.Before(midnight) || w.Start.IsZero() {
			historical := Window{Start: w.Start, End: midnight}
			points, err := e.timelineFromAggregate(ctx, pool, historical)
			if err != nil {
				e.logger.Debug("Continuous aggregate unavailable, using base table", "error", err)
				points, err = e.timelineFromBase(ctx, pool, historical, "1 day")
				if err != nil {
					return tl, err
				}
			}
			tl.Points = points
		}
		if w.End.After(Midnight(time.Now())) {
			today := Window{Start: Midnight(time.Now()), End: w.End}
			points, err := e.timelineFromBase(ctx, pool, today, "1 day")
			if err != nil {
				return tl, err
			}
			tl.Points = append(tl.Points, points...)
		}
		return tl, nil
	}

	points, err := e.timelineFromBase(ctx, pool, w, "1 hour")
	if err != nil {
		return tl, err
	}
	tl.Points = points
	return tl, nil
}

func (e *Engine) timelineFromAggregate(ctx context.Context, pool *pgxpool.Pool, w Window) ([]TimelinePoint, error) {
	args := []any{}
	clauses := []string{}
	if !w.Start.IsZero() {
		args = append(args, w.Start)
		clauses = append(clauses, fmt.Sprintf("bucket >= $%d", len(args)))
	}
	args = append(args, w.End)
	clauses = append(clauses, fmt.Sprintf("bucket < $%d", len(args)))

	rows, err := pool.Query(ctx, `
		SELECT bucket, cost, requests, tokens, COALESCE(avg_latency_ms, 0)
		  FROM llm_events_daily_ca
		 WHERE `+strings.Join(clauses, " AND ")+`
		 ORDER BY bucket`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []TimelinePoint
	for rows.Next() {
		var p TimelinePoint
		var avgLatency float64
		if err := rows.Scan(&p.Bucket, &p.Cost, &p.Requests, &p.Tokens, &avgLatency); err != nil {
			return nil, err
		}
		// The aggregate keeps only the mean latency, reported here as
		// LatencyP50; P95 and P99 stay zero on this path.
		p.LatencyP50 = avgLatency
		points = append(points, p)
	}
	return points, rows.Err()
}

func (e *Engine) timelineFromBase(ctx context.Context, pool *pgxpool.Pool, w Window, bucket string) ([]TimelinePoint, error) {
	args := []any{}
	where := windowClause(w, &args)

	rows, err := pool.Query(ctx, fmt.Sprintf(`
		SELECT date_trunc('%s', timestamp) AS bucket,
		       COALESCE(sum(cost_total), 0),
		       count(*),
		       COALESCE(sum(total_tokens), 0),
		       COALESCE(percentile_cont(0.5) WITHIN GROUP (ORDER BY latency_ms), 0),
		       COALESCE(percentile_cont(0.95) WITHIN GROUP (ORDER BY latency_ms), 0),
		       COALESCE(percentile_cont(0.99) WITHIN GROUP (ORDER BY latency_ms), 0)
		  FROM llm_events
		 WHERE %s
		 GROUP BY bucket ORDER BY bucket`,
		map[string]string{"1 day": "day", "1 hour": "hour"}[bucket], where), args...)
	if err != nil {
		return nil, fmt.Errorf("timeline query: %w", err)
	}
	defer rows.Close()

	var points []TimelinePoint
	for rows.Next() {
		var p TimelinePoint
		if err := rows.Scan(&p.Bucket, &p.Cost, &p.Requests, &p.Tokens,
			&p.LatencyP50, &p.LatencyP95, &p.LatencyP99); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func (e *Engine) costBreakdown(ctx context.Context, pool *pgxpool.Pool, w Window, dimension string) (CostBreakdown, error) {
	var out CostBreakdown
	args := []any{}
	where := windowClause(w, &args)

	rows, err := pool.Query(ctx, fmt.Sprintf(`
		SELECT COALESCE(%s, 'unknown'), COALESCE(sum(cost_total), 0)
		  FROM llm_events
		 WHERE %s
		 GROUP BY 1 ORDER BY 2 DESC`, dimension, where), args...)
	if err != nil {
		return out, fmt.Errorf("cost breakdown query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item CostShare
		if err := rows.Scan(&item.Key, &item.CostTotal); err != nil {
			return out, err
		}
		out.TotalCost += item.CostTotal
		out.Items = append(out.Items, item)
	}
	if err := rows.Err(); err != nil {
		return out, err
	}
	if out.TotalCost > 0 {
		for i := range out.Items {
			out.Items[i].Share = out.Items[i].CostTotal / out.TotalCost * 100
		}
	}
	return out, nil
}

func (e *Engine) latencyDistribution(ctx context.Context, pool *pgxpool.Pool, w Window) (LatencyDistribution, error) {
	var out LatencyDistribution
	args := []any{}
	where := windowClause(w, &args)

	rows, err := pool.Query(ctx, `
		SELECT `+latencyBucketSQL+` AS bucket, count(*)
		  FROM llm_events
		 WHERE latency_ms IS NOT NULL AND `+where+`
		 GROUP BY 1`, args...)
	if err != nil {
		return out, fmt.Errorf("latency distribution query: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var bucket string
		var count int64
		if err := rows.Scan(&bucket, &count); err != nil {
			return out, err
		}
		counts[bucket] = count
		out.Total += count
	}
	if err := rows.Err(); err != nil {
		return out, err
	}

	for _, b := range latencyBucketOrder {
		item := LatencyBucket{Bucket: b, Count: counts[b]}
		if out.Total > 0 {
			item.Share = float64(item.Count) / float64(out.Total) * 100
		}
		out.Buckets = append(out.Buckets, item)
	}
	return out, nil
}

// bind rewrites the @N markers of a Filter into positional placeholders
// starting after the existing args, appending the filter args.
func bind(f Filter, args *[]any) string {
	if f.Empty() {
		return ""
	}
	clause := f.Clause
	for i, a := range f.Args {
		*args = append(*args, a)
		clause = strings.ReplaceAll(clause,
			fmt.Sprintf("@%d", i+1),
			fmt.Sprintf("$%d", len(*args)))
	}
	return clause
}

// SpendInRange sums cost over [start, end) under a filter. Used by the
// policy store to enrich budgets with live spend.
func (e *Engine) SpendInRange(ctx context.Context, teamID string, f Filter, start, end time.Time) (float64, error) {
	pool, err := e.router.Pool(ctx, teamID)
	if err != nil {
		return 0, fmt.Errorf("acquiring tenant pool: %w", err)
	}

	args := []any{start, end}
	query := `SELECT COALESCE(sum(cost_total), 0) FROM llm_events WHERE timestamp >= $1 AND timestamp < $2`
	if clause := bind(f, &args); clause != "" {
		query += " AND " + clause
	}

	var spend float64
	if err := pool.QueryRow(ctx, query, args...).Scan(&spend); err != nil {
		return 0, fmt.Errorf("spend query: %w", err)
	}
	return spend, nil
}

// DailySpend is one day of a usage breakdown.
type DailySpend struct {
	Day      time.Time `json:"day"`
	Cost     float64   `json:"cost"`
	Requests int64     `json:"requests"`
	Tokens   int64     `json:"tokens"`
}

// UsageShare is one slice of a usage breakdown dimension.
type UsageShare struct {
	Key      string  `json:"key"`
	Cost     float64 `json:"cost"`
	Requests int64   `json:"requests"`
	Share    float64 `json:"share"`
}

// UsageBreakdown is daily plus by-model and by-feature spend for a filter.
type UsageBreakdown struct {
	Daily     []DailySpend `json:"daily"`
	ByModel   []UsageShare `json:"by_model"`
	ByFeature []UsageShare `json:"by_feature"`
}

// Usage computes the breakdown over the last days under a filter.
func (e *Engine) Usage(ctx context.Context, teamID string, days int, f Filter) (*UsageBreakdown, error) {
	pool, err := e.router.Pool(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("acquiring tenant pool: %w", err)
	}
	if days <= 0 {
		days = 30
	}
	start := Midnight(time.Now()).AddDate(0, 0, -days)

	out := &UsageBreakdown{}

	args := []any{start}
	where := "timestamp >= $1"
	if clause := bind(f, &args); clause != "" {
		where += " AND " + clause
	}

	rows, err := pool.Query(ctx, `
		SELECT date_trunc('day', timestamp) AS day,
		       COALESCE(sum(cost_total), 0), count(*), COALESCE(sum(total_tokens), 0)
		  FROM llm_events WHERE `+where+`
		 GROUP BY day ORDER BY day`, args...)
	if err != nil {
		return nil, fmt.Errorf("daily usage query: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var d DailySpend
		if err := rows.Scan(&d.Day, &d.Cost, &d.Requests, &d.Tokens); err != nil {
			return nil, err
		}
		out.Daily = append(out.Daily, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if out.ByModel, err = e.usageShares(ctx, pool, where, args, "model"); err != nil {
		return nil, err
	}
	if out.ByFeature, err = e.usageShares(ctx, pool, where, args, "COALESCE(metadata->>'feature', agent)"); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) usageShares(ctx context.Context, pool *pgxpool.Pool, where string, args []any, dimension string) ([]UsageShare, error) {
	rows, err := pool.Query(ctx, fmt.Sprintf(`
		SELECT COALESCE(%s, 'unknown'), COALESCE(sum(cost_total), 0), count(*)
		  FROM llm_events WHERE %s
		 GROUP BY 1 ORDER BY 2 DESC`, dimension, where), args...)
	if err != nil {
		return nil, fmt.Errorf("usage share query: %w", err)
	}
	defer rows.Close()

	var shares []UsageShare
	total := 0.0
	for rows.Next() {
		var s UsageShare
		if err := rows.Scan(&s.Key, &s.Cost, &s.Requests); err != nil {
			return nil, err
		}
		total += s.Cost
		shares = append(shares, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if total > 0 {
		for i := range shares {
			shares[i].Share = shares[i].Cost / total * 100
		}
	}
	return shares, nil
}

// RateMetrics summarizes request-rate behaviour over the last days.
type RateMetrics struct {
	PeakRate float64 `json:"peak_rate"`
	P95Rate  float64 `json:"p95_rate"`
	AvgRate  float64 `json:"avg_rate"`
	MinRate  float64 `json:"min_rate"`
	MaxBurst float64 `json:"max_burst"`
}

// Rates aggregates into one-minute buckets for rate percentiles and
// five-second buckets for burst detection.
func (e *Engine) Rates(ctx context.Context, teamID string, days int, f Filter) (*RateMetrics, error) {
	pool, err := e.router.Pool(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("acquiring tenant pool: %w", err)
	}
	if days <= 0 {
		days = 7
	}
	start := time.Now().UTC().AddDate(0, 0, -days)

	args := []any{start}
	where := "timestamp >= $1"
	if clause := bind(f, &args); clause != "" {
		where += " AND " + clause
	}

	out := &RateMetrics{}
	err = pool.QueryRow(ctx, `
		WITH minutes AS (
			SELECT date_trunc('minute', timestamp) AS minute, count(*) AS requests
			  FROM llm_events WHERE `+where+`
			 GROUP BY minute
		)
		SELECT COALESCE(max(requests), 0) / 60.0,
		       COALESCE(percentile_cont(0.95) WITHIN GROUP (ORDER BY requests), 0) / 60.0,
		       COALESCE(avg(requests), 0) / 60.0,
		       COALESCE(min(requests), 0) / 60.0
		  FROM minutes`, args...).Scan(
		&out.PeakRate, &out.P95Rate, &out.AvgRate, &out.MinRate)
	if err != nil {
		return nil, fmt.Errorf("rate query: %w", err)
	}

	err = pool.QueryRow(ctx, `
		WITH bursts AS (
			SELECT to_timestamp(floor(extract(epoch FROM timestamp) / 5) * 5) AS bucket,
			       count(*) AS requests
			  FROM llm_events WHERE `+where+`
			 GROUP BY bucket
		)
		SELECT COALESCE(max(requests), 0) / 5.0 FROM bursts`, args...).Scan(&out.MaxBurst)
	if err != nil {
		return nil, fmt.Errorf("burst query: %w", err)
	}
	return out, nil
}

// LogGroup is one row of a grouped log aggregation.
type LogGroup struct {
	Keys         map[string]string `json:"keys"`
	Requests     int64             `json:"requests"`
	Cost         float64           `json:"cost"`
	Tokens       int64             `json:"tokens"`
	AvgLatencyMS float64           `json:"avg_latency_ms"`
}

// validLogGroups whitelists groupBy dimensions.
var validLogGroups = map[string][]string{
	"model":          {"model"},
	"agent":          {"agent"},
	"provider":       {"provider"},
	"model,agent":    {"model", "agent"},
	"model,provider": {"model", "provider"},
}

// GroupedLogs aggregates the hot table over whitelisted dimensions.
func (e *Engine) GroupedLogs(ctx context.Context, teamID, groupBy string, start, end *time.Time, limit, offset int) ([]LogGroup, error) {
	cols, ok := validLogGroups[groupBy]
	if !ok {
		return nil, fmt.Errorf("invalid groupBy %q", groupBy)
	}
	pool, err := e.router.Pool(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("acquiring tenant pool: %w", err)
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	selectCols := make([]string, len(cols))
	for i, c := range cols {
		selectCols[i] = fmt.Sprintf("COALESCE(%s, 'unknown')", c)
	}

	args := []any{}
	where := "TRUE"
	if start != nil {
		args = append(args, *start)
		where += fmt.Sprintf(" AND timestamp >= $%d", len(args))
	}
	if end != nil {
		args = append(args, *end)
		where += fmt.Sprintf(" AND timestamp < $%d", len(args))
	}
	args = append(args, limit, offset)

	rows, err := pool.Query(ctx, fmt.Sprintf(`
		SELECT %s, count(*), COALESCE(sum(cost_total), 0), COALESCE(sum(total_tokens), 0), COALESCE(avg(latency_ms), 0)
		  FROM llm_events WHERE %s
		 GROUP BY %s ORDER BY 3 DESC
		 LIMIT $%d OFFSET $%d`,
		strings.Join(selectCols, ", "), where,
		strings.Join(cols, ", "), len(args)-1, len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("grouped logs query: %w", err)
	}
	defer rows.Close()

	var groups []LogGroup
	for rows.Next() {
		g := LogGroup{Keys: make(map[string]string, len(cols))}
		dest := make([]any, 0, len(cols)+4)
		keyVals := make([]string, len(cols))
		for i := range cols {
			dest = append(dest, &keyVals[i])
		}
		dest = append(dest, &g.Requests, &g.Cost, &g.Tokens, &g.AvgLatencyMS)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		for i, c := range cols {
			g.Keys[c] = keyVals[i]
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// PeriodDelta compares a metric across the current and previous period.
type PeriodDelta struct {
	Current       float64 `json:"current"`
	Previous      float64 `json:"previous"`
	ChangePercent float64 `json:"change_percent"`
}

// Metrics holds period-over-period deltas for the summary cards.
type Metrics struct {
	Days     int         `json:"days"`
	Cost     PeriodDelta `json:"cost"`
	Requests PeriodDelta `json:"requests"`
	Tokens   PeriodDelta `json:"tokens"`
	Latency  PeriodDelta `json:"latency"`
}

// PeriodMetrics computes deltas between [now-days, now) and the preceding
// period of the same length.
func (e *Engine) PeriodMetrics(ctx context.Context, teamID string, days int) (*Metrics, error) {
	pool, err := e.router.Pool(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("acquiring tenant pool: %w", err)
	}
	if days <= 0 {
		days = 30
	}
	now := time.Now().UTC()
	currentStart := now.AddDate(0, 0, -days)
	previousStart := currentStart.AddDate(0, 0, -days)

	type periodRow struct {
		cost, latency     float64
		requests, tokens  int64
	}
	query := `
		SELECT COALESCE(sum(cost_total), 0), count(*),
		       COALESCE(sum(total_tokens), 0), COALESCE(avg(latency_ms), 0)
		  FROM llm_events WHERE timestamp >= $1 AND timestamp < $2`

	var cur, prev periodRow
	if err := pool.QueryRow(ctx, query, currentStart, now).Scan(
		&cur.cost, &cur.requests, &cur.tokens, &cur.latency); err != nil {
		return nil, fmt.Errorf("current period query: %w", err)
	}
	if err := pool.QueryRow(ctx, query, previousStart, currentStart).Scan(
		&prev.cost, &prev.requests, &prev.tokens, &prev.latency); err != nil {
		return nil, fmt.Errorf("previous period query: %w", err)
	}

	delta := func(current, previous float64) PeriodDelta {
		d := PeriodDelta{Current: current, Previous: previous}
		if previous != 0 {
			d.ChangePercent = (current - previous) / previous * 100
		}
		return d
	}

	return &Metrics{
		Days:     days,
		Cost:     delta(cur.cost, prev.cost),
		Requests: delta(float64(cur.requests), float64(prev.requests)),
		Tokens:   delta(float64(cur.tokens), float64(prev.tokens)),
		Latency:  delta(cur.latency, prev.latency),
	}, nil
}

// Insight is one summary card.
type Insight struct {
	Kind  string  `json:"kind"`
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// Insights derives headline cards from the recent window: top model and
// agent by cost, cache savings, and average cost per request.
func (e *Engine) Insights(ctx context.Context, teamID string, days int) ([]Insight, error) {
	if days <= 0 {
		days = 30
	}
	pool, err := e.router.Pool(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("acquiring tenant pool: %w", err)
	}
	now := time.Now().UTC()
	w := Window{Start: now.AddDate(0, 0, -days), End: now}

	var insights []Insight

	byModel, err := e.costBreakdown(ctx, pool, w, "model")
	if err != nil {
		return nil, err
	}
	if len(byModel.Items) > 0 {
		insights = append(insights, Insight{
			Kind: "top_model", Label: byModel.Items[0].Key, Value: byModel.Items[0].CostTotal,
		})
	}

	byAgent, err := e.costBreakdown(ctx, pool, w, "agent")
	if err != nil {
		return nil, err
	}
	// Skip the 'unknown' bucket so the card names a real agent.
	for _, item := range byAgent.Items {
		if item.Key != "unknown" {
			insights = append(insights, Insight{Kind: "top_agent", Label: item.Key, Value: item.CostTotal})
			break
		}
	}

	summary, err := e.summary(ctx, pool, w)
	if err != nil {
		return nil, err
	}
	insights = append(insights, Insight{Kind: "cache_savings", Label: "cache savings", Value: summary.CacheSavings})
	if summary.TotalRequests > 0 {
		insights = append(insights, Insight{
			Kind: "avg_cost_per_request", Label: "avg cost per request",
			Value: summary.TotalCost / float64(summary.TotalRequests),
		})
	}

	sort.SliceStable(insights, func(i, j int) bool { return insights[i].Kind < insights[j].Kind })
	return insights, nil
}
