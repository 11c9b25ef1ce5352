package policy

import (
	"time"

	"github.com/hiveobs/hive/pkg/models"
)

// budgetAnalytics derives burn-rate projections for a budget from its
// month-to-date spend.
//
// Status thresholds:
//
//	usage ≥ 100                                      → exceeded
//	projected ≥ 100 or daysUntilLimit ≤ daysRemaining → at_risk
//	usage ≥ 80 or projected ≥ 80                      → warning
//	otherwise                                         → healthy
func budgetAnalytics(b *models.Budget, now time.Time) *models.BudgetAnalytics {
	now = now.UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, 0)
	daysInMonth := monthEnd.Sub(monthStart).Hours() / 24
	daysElapsed := now.Sub(monthStart).Hours() / 24
	if daysElapsed < 1 {
		daysElapsed = 1
	}
	daysRemaining := daysInMonth - daysElapsed

	a := &models.BudgetAnalytics{Period: "monthly"}
	a.BurnRate = b.Spent / daysElapsed
	a.ProjectedSpend = a.BurnRate * daysInMonth

	if b.Limit > 0 {
		a.UsagePercent = b.Spent / b.Limit * 100
		a.ProjectedPercent = a.ProjectedSpend / b.Limit * 100
	}

	if a.BurnRate > 0 {
		remaining := b.Limit - b.Spent
		if remaining < 0 {
			remaining = 0
		}
		days := remaining / a.BurnRate
		a.DaysUntilLimit = &days
	}

	switch {
	case a.UsagePercent >= 100:
		a.Status = models.BudgetStatusExceeded
	case a.ProjectedPercent >= 100 ||
		(a.DaysUntilLimit != nil && *a.DaysUntilLimit <= daysRemaining):
		a.Status = models.BudgetStatusAtRisk
	case a.UsagePercent >= 80 || a.ProjectedPercent >= 80:
		a.Status = models.BudgetStatusWarning
	default:
		a.Status = models.BudgetStatusHealthy
	}
	return a
}
