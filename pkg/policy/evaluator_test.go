package policy

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiveobs/hive/pkg/models"
)

func globalBudget(id string, limit, spent float64, action models.LimitAction) models.Budget {
	return models.Budget{
		ID:          id,
		Name:        id,
		Type:        models.BudgetGlobal,
		Limit:       limit,
		Spent:       spent,
		LimitAction: action,
	}
}

func TestValidateEmptyBudgets(t *testing.T) {
	for _, cost := range []float64{0, 1, 1e9} {
		result := Validate(nil, cost, nil)
		assert.True(t, result.Allowed)
		assert.Equal(t, models.ActionAllow, result.Action)
		assert.Equal(t, "No budgets to validate", result.Reason)
	}
}

func TestValidateSingleKillBudgetUnderLimit(t *testing.T) {
	b := globalBudget("b1", 100, 20, models.LimitKill)

	result := Validate([]models.Budget{b}, 1, nil)

	assert.True(t, result.Allowed)
	assert.Equal(t, models.ActionAllow, result.Action)
	assert.InDelta(t, 20, result.UsagePercent, 1e-9)
	assert.InDelta(t, 21, result.ProjectedPercent, 1e-9)
	assert.Equal(t, "b1", result.RestrictingBudgetID)
	require.Len(t, result.BudgetsChecked, 1)
}

func TestValidateKillBudgetExceeded(t *testing.T) {
	b := globalBudget("b1", 100, 99.5, models.LimitKill)

	result := Validate([]models.Budget{b}, 1, nil)

	assert.False(t, result.Allowed)
	assert.Equal(t, models.ActionBlock, result.Action)
	assert.InDelta(t, 100.5, result.ProjectedPercent, 1e-9)
	assert.True(t, strings.HasPrefix(result.Reason, `Budget "b1" exceeded`), "reason: %s", result.Reason)
}

func TestValidateDegradePreemptive(t *testing.T) {
	b := globalBudget("b1", 100, 92, models.LimitDegrade)
	b.DegradeToModel = "gpt-4o-mini"
	b.DegradeToProvider = "openai"

	result := Validate([]models.Budget{b}, 1, nil)

	assert.True(t, result.Allowed)
	assert.Equal(t, models.ActionDegrade, result.Action)
	assert.Equal(t, "gpt-4o-mini", result.DegradeToModel)
	assert.Equal(t, "openai", result.DegradeToProvider)
	assert.InDelta(t, 93, result.ProjectedPercent, 1e-9)
}

func TestValidateMostRestrictiveWins(t *testing.T) {
	throttle := globalBudget("g", 100, 100, models.LimitThrottle)
	degrade := models.Budget{
		ID: "a", Name: "worker", Type: models.BudgetAgent,
		Limit: 100, Spent: 109, LimitAction: models.LimitDegrade,
		DegradeToModel: "gpt-4o-mini", DegradeToProvider: "openai",
	}

	result := Validate([]models.Budget{throttle, degrade}, 1, nil)

	// degrade > throttle in the priority lattice.
	assert.Equal(t, models.ActionDegrade, result.Action)
	assert.Equal(t, "a", result.RestrictingBudgetID)
	assert.Equal(t, "worker", result.RestrictingBudget)
	require.Len(t, result.BudgetsChecked, 2)
}

func TestValidateActionIsLatticeMaximum(t *testing.T) {
	cases := []struct {
		name    string
		budgets []models.Budget
		want    models.EnforcementAction
	}{
		{
			name: "allow only",
			budgets: []models.Budget{
				globalBudget("a", 100, 10, models.LimitKill),
				globalBudget("b", 100, 20, models.LimitThrottle),
			},
			want: models.ActionAllow,
		},
		{
			name: "throttle beats allow",
			budgets: []models.Budget{
				globalBudget("a", 100, 10, models.LimitKill),
				globalBudget("b", 100, 100, models.LimitThrottle),
			},
			want: models.ActionThrottle,
		},
		{
			name: "block beats everything",
			budgets: []models.Budget{
				globalBudget("a", 100, 100, models.LimitThrottle),
				globalBudget("b", 100, 100, models.LimitKill),
			},
			want: models.ActionBlock,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := Validate(tc.budgets, 1, nil)
			assert.Equal(t, tc.want, result.Action)

			// The combined action is the maximum over individual checks.
			maxPriority := 0
			for _, check := range result.BudgetsChecked {
				if check.Action.Priority() > maxPriority {
					maxPriority = check.Action.Priority()
				}
			}
			assert.Equal(t, maxPriority, result.Action.Priority())
		})
	}
}

func TestValidateAuthoritativeSpendUsesStricterView(t *testing.T) {
	b := globalBudget("b1", 100, 50, models.LimitKill)

	local := 99.5
	result := Validate([]models.Budget{b}, 1, &local)
	assert.False(t, result.Allowed, "local spend above server spend must win")
	assert.InDelta(t, 99.5, result.AuthoritativeSpend, 1e-9)

	lower := 10.0
	result = Validate([]models.Budget{b}, 1, &lower)
	assert.True(t, result.Allowed, "lower local spend must not relax the server view")
	assert.InDelta(t, 50, result.AuthoritativeSpend, 1e-9)
}

func TestMatchByContextPerType(t *testing.T) {
	matching := map[models.BudgetType]models.BudgetContext{
		models.BudgetGlobal:   {},
		models.BudgetAgent:    {Agent: "scope"},
		models.BudgetTenant:   {TenantID: "scope"},
		models.BudgetCustomer: {CustomerID: "scope"},
		models.BudgetFeature:  {Feature: "scope"},
		models.BudgetTag:      {Tags: []string{"other", "scope"}},
	}
	nonMatching := map[models.BudgetType]models.BudgetContext{
		models.BudgetAgent:    {Agent: "someone-else"},
		models.BudgetTenant:   {TenantID: "someone-else"},
		models.BudgetCustomer: {CustomerID: "someone-else"},
		models.BudgetFeature:  {Feature: "someone-else"},
		models.BudgetTag:      {Tags: []string{"unrelated"}},
	}

	for typ, ctx := range matching {
		t.Run(fmt.Sprintf("%s matches", typ), func(t *testing.T) {
			b := models.Budget{ID: "b", Name: "scope", Type: typ, Tags: []string{"scope"}}
			matched := MatchByContext([]models.Budget{b}, &ctx)
			require.Len(t, matched, 1)
			assert.Equal(t, "b", matched[0].ID)
		})
	}
	for typ, ctx := range nonMatching {
		t.Run(fmt.Sprintf("%s does not match", typ), func(t *testing.T) {
			b := models.Budget{ID: "b", Name: "scope", Type: typ, Tags: []string{"scope"}}
			assert.Empty(t, MatchByContext([]models.Budget{b}, &ctx))
		})
	}
}

func TestMatchByContextMetadataAgentOverride(t *testing.T) {
	b := models.Budget{ID: "b", Name: "override", Type: models.BudgetAgent}
	ctx := models.BudgetContext{
		Agent:    "top-level",
		Metadata: map[string]any{"agent": "override"},
	}
	require.Len(t, MatchByContext([]models.Budget{b}, &ctx), 1)
}

func TestMatchEvent(t *testing.T) {
	b := models.Budget{ID: "b", Name: "billing", Type: models.BudgetTenant}
	ev := models.LLMEvent{
		Agent:    "worker",
		Metadata: map[string]any{"tenant_id": "billing"},
	}
	assert.True(t, MatchEvent(&b, &ev))

	ev.Metadata["tenant_id"] = "other"
	assert.False(t, MatchEvent(&b, &ev))
}

func TestValidateInContextNoMatches(t *testing.T) {
	b := models.Budget{ID: "b", Name: "worker", Type: models.BudgetAgent, Limit: 10, LimitAction: models.LimitKill}
	ctx := models.BudgetContext{Agent: "someone-else"}

	result := ValidateInContext([]models.Budget{b}, &ctx, 1, nil)
	assert.True(t, result.Allowed)
	assert.Equal(t, "No budgets match the provided context", result.Reason)
}

func TestValidateExactLimitBoundary(t *testing.T) {
	b := globalBudget("b1", 100, 99, models.LimitKill)

	// Projected exactly 100% blocks.
	result := Validate([]models.Budget{b}, 1, nil)
	assert.Equal(t, models.ActionBlock, result.Action)

	// Just under stays allowed.
	result = Validate([]models.Budget{b}, 0.5, nil)
	assert.Equal(t, models.ActionAllow, result.Action)
}
