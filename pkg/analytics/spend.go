package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hiveobs/hive/pkg/models"
)

// MonthToDateSpendForBudget computes a budget's month-to-date spend. The
// interval is split at today's midnight: the historical part is served from
// a continuous aggregate when the budget type maps to one (global, agent),
// today's part always comes from the base table. Missing aggregates fall
// back to the base table silently.
func (e *Engine) MonthToDateSpendForBudget(ctx context.Context, teamID string, b *models.Budget) (float64, error) {
	pool, err := e.router.Pool(ctx, teamID)
	if err != nil {
		return 0, fmt.Errorf("acquiring tenant pool: %w", err)
	}

	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	midnight := Midnight(now)
	f := FilterForBudget(b)

	historical := 0.0
	if midnight.After(monthStart) {
		historical, err = e.aggregateSpend(ctx, pool, b, monthStart, midnight)
		if err != nil {
			e.logger.Debug("Aggregate spend unavailable, using base table",
				"budget", b.ID, "error", err)
			historical, err = e.baseSpend(ctx, pool, f, monthStart, midnight)
			if err != nil {
				return 0, err
			}
		}
	}

	today, err := e.baseSpend(ctx, pool, f, midnight, now)
	if err != nil {
		return 0, err
	}
	return historical + today, nil
}

// aggregateSpend serves spend from the daily continuous aggregates for
// budget types that map onto one.
func (e *Engine) aggregateSpend(ctx context.Context, pool *pgxpool.Pool, b *models.Budget, start, end time.Time) (float64, error) {
	var spend float64
	switch b.Type {
	case models.BudgetGlobal:
		err := pool.QueryRow(ctx, `
			SELECT COALESCE(sum(cost), 0) FROM llm_events_daily_ca
			 WHERE bucket >= $1 AND bucket < $2`, start, end).Scan(&spend)
		return spend, err
	case models.BudgetAgent:
		err := pool.QueryRow(ctx, `
			SELECT COALESCE(sum(cost), 0) FROM llm_events_daily_by_agent_ca
			 WHERE bucket >= $1 AND bucket < $2 AND agent = $3`, start, end, b.Name).Scan(&spend)
		return spend, err
	default:
		// Metadata-scoped budgets cannot be answered by the rollups.
		return 0, fmt.Errorf("budget type %s has no aggregate", b.Type)
	}
}

func (e *Engine) baseSpend(ctx context.Context, pool *pgxpool.Pool, f Filter, start, end time.Time) (float64, error) {
	args := []any{start, end}
	query := `SELECT COALESCE(sum(cost_total), 0) FROM llm_events WHERE timestamp >= $1 AND timestamp < $2`
	if clause := bind(f, &args); clause != "" {
		query += " AND " + clause
	}
	var spend float64
	if err := pool.QueryRow(ctx, query, args...).Scan(&spend); err != nil {
		return 0, fmt.Errorf("base spend query: %w", err)
	}
	return spend, nil
}
