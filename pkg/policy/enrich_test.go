package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiveobs/hive/pkg/models"
)

// Mid-month reference point: June 15th, half the month elapsed.
var midMonth = time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)

func TestBudgetAnalyticsHealthy(t *testing.T) {
	b := &models.Budget{Limit: 1000, Spent: 100}

	a := budgetAnalytics(b, midMonth)

	assert.Equal(t, models.BudgetStatusHealthy, a.Status)
	assert.InDelta(t, 100.0/14, a.BurnRate, 1e-9)
	assert.InDelta(t, 100.0/14*30, a.ProjectedSpend, 1e-9)
	assert.InDelta(t, 10, a.UsagePercent, 1e-9)
	require.NotNil(t, a.DaysUntilLimit)
	assert.Equal(t, "monthly", a.Period)
}

func TestBudgetAnalyticsExceeded(t *testing.T) {
	b := &models.Budget{Limit: 100, Spent: 120}
	a := budgetAnalytics(b, midMonth)
	assert.Equal(t, models.BudgetStatusExceeded, a.Status)
	assert.InDelta(t, 120, a.UsagePercent, 1e-9)
}

func TestBudgetAnalyticsAtRiskByProjection(t *testing.T) {
	// Half the month elapsed with 60% spent projects to 120%+.
	b := &models.Budget{Limit: 100, Spent: 60}
	a := budgetAnalytics(b, midMonth)
	assert.Equal(t, models.BudgetStatusAtRisk, a.Status)
	assert.Greater(t, a.ProjectedPercent, 100.0)
}

func TestBudgetAnalyticsWarning(t *testing.T) {
	// 82% used with a burn rate slow enough to outlast the month.
	lateMonth := time.Date(2025, 6, 29, 0, 0, 0, 0, time.UTC)
	b := &models.Budget{Limit: 100, Spent: 82}
	a := budgetAnalytics(b, lateMonth)
	assert.Equal(t, models.BudgetStatusWarning, a.Status)
}

func TestBudgetAnalyticsZeroSpend(t *testing.T) {
	b := &models.Budget{Limit: 100, Spent: 0}
	a := budgetAnalytics(b, midMonth)
	assert.Equal(t, models.BudgetStatusHealthy, a.Status)
	assert.Zero(t, a.BurnRate)
	assert.Nil(t, a.DaysUntilLimit, "zero burn rate has no limit horizon")
}
