// Package tenant routes storage operations to per-team schemas in the
// time-series store. Each team owns an isolated schema with its own
// connection pool; schema objects are created lazily on first use.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// initFuture memoizes one in-flight schema initialization. Concurrent
// callers for the same schema wait on done and share err.
type initFuture struct {
	done chan struct{}
	err  error
}

// Router maps team ids to schema-scoped connection pools.
type Router struct {
	url      string
	poolSize int32
	logger   *slog.Logger

	mu    sync.Mutex
	pools map[string]*pgxpool.Pool

	initMu sync.Mutex
	inits  map[string]*initFuture
}

// NewRouter creates a tenant router for the given time-series store URL.
func NewRouter(url string, poolSize int) *Router {
	if poolSize <= 0 {
		poolSize = 10
	}
	return &Router{
		url:      url,
		poolSize: int32(poolSize),
		logger:   slog.Default().With("component", "tenant-router"),
		pools:    make(map[string]*pgxpool.Pool),
		inits:    make(map[string]*initFuture),
	}
}

// SchemaName derives the schema for a team id: a sanitized, bounded prefix
// so arbitrary external ids cannot produce hostile identifiers.
func SchemaName(teamID string) string {
	var b strings.Builder
	b.WriteString("team_")
	for _, r := range strings.ToLower(teamID) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
		if b.Len() >= 48 {
			break
		}
	}
	return b.String()
}

// Pool returns the team's schema-scoped pool, creating the pool and
// initializing the schema on first use.
func (r *Router) Pool(ctx context.Context, teamID string) (*pgxpool.Pool, error) {
	if teamID == "" {
		return nil, fmt.Errorf("team id is required")
	}
	schema := SchemaName(teamID)

	pool, err := r.pool(ctx, schema)
	if err != nil {
		return nil, err
	}

	if err := r.ensureSchema(ctx, schema, pool); err != nil {
		return nil, err
	}
	return pool, nil
}

// pool returns the cached pool for a schema or builds a new one. Every
// connection the pool hands out has its search path pinned to
// {team_schema, public}.
func (r *Router) pool(ctx context.Context, schema string) (*pgxpool.Pool, error) {
	r.mu.Lock()
	if p, ok := r.pools[schema]; ok {
		r.mu.Unlock()
		return p, nil
	}
	r.mu.Unlock()

	cfg, err := pgxpool.ParseConfig(r.url)
	if err != nil {
		return nil, fmt.Errorf("parsing time-series store URL: %w", err)
	}
	cfg.MaxConns = r.poolSize
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		// Schema creation is idempotent; racing CREATEs are absorbed below.
		if _, err := conn.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{schema}.Sanitize()); err != nil && !isDuplicateObject(err) {
			return fmt.Errorf("ensuring schema %s: %w", schema, err)
		}
		_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s, public", pgx.Identifier{schema}.Sanitize()))
		return err
	}

	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating pool for schema %s: %w", schema, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.pools[schema]; ok {
		// Lost the race — another caller built the pool first.
		p.Close()
		return existing, nil
	}
	r.pools[schema] = p
	return p, nil
}

// ensureSchema runs the tenant DDL exactly once per schema. The memo is
// inserted before the DDL runs so duplicate callers await the same future;
// on failure the memo is removed before the error propagates so the next
// caller retries.
func (r *Router) ensureSchema(ctx context.Context, schema string, pool *pgxpool.Pool) error {
	r.initMu.Lock()
	if f, ok := r.inits[schema]; ok {
		r.initMu.Unlock()
		select {
		case <-f.done:
			return f.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f := &initFuture{done: make(chan struct{})}
	r.inits[schema] = f
	r.initMu.Unlock()

	err := r.runDDL(ctx, schema, pool)
	if err != nil && isDuplicateObject(err) {
		// Another actor initialized the schema concurrently.
		err = nil
	}
	if err != nil {
		r.initMu.Lock()
		delete(r.inits, schema)
		r.initMu.Unlock()
		f.err = err
		close(f.done)
		return err
	}

	f.err = nil
	close(f.done)
	return nil
}

// runDDL applies the tenant schema objects, then opportunistically sets up
// the TimescaleDB extras. Hypertable and continuous-aggregate creation is
// best-effort: plain PostgreSQL deployments run on the base tables alone.
func (r *Router) runDDL(ctx context.Context, schema string, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("initializing schema %s: %w", schema, err)
	}

	for _, stmt := range timescaleDDL {
		if _, err := pool.Exec(ctx, stmt); err != nil && !isDuplicateObject(err) {
			r.logger.Debug("Timescale object creation skipped",
				"schema", schema, "error", err)
			break
		}
	}
	return nil
}

// Evict closes and forgets a team's pool and its init memo. Called when
// pool errors indicate the pool is no longer usable; the next request
// builds a fresh one.
func (r *Router) Evict(teamID string) {
	schema := SchemaName(teamID)

	r.mu.Lock()
	p, ok := r.pools[schema]
	delete(r.pools, schema)
	r.mu.Unlock()

	r.initMu.Lock()
	delete(r.inits, schema)
	r.initMu.Unlock()

	if ok {
		p.Close()
		r.logger.Info("Evicted tenant pool", "schema", schema)
	}
}

// Close closes all tenant pools.
func (r *Router) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for schema, p := range r.pools {
		p.Close()
		delete(r.pools, schema)
	}
}

// isDuplicateObject reports whether err is a "duplicate object / already
// exists / unique violation" class error, which schema initialization
// treats as success.
func isDuplicateObject(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "23505", // unique_violation
		"42P04", // duplicate_database
		"42P06", // duplicate_schema
		"42P07", // duplicate_table
		"42710", // duplicate_object
		"42712": // duplicate_alias
		return true
	}
	return false
}
