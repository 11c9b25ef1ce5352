// Package policy stores tenant policies and evaluates budgets against
// proposed LLM calls.
package policy

import (
	"fmt"

	"github.com/hiveobs/hive/pkg/models"
	"github.com/hiveobs/hive/pkg/telemetry"
)

// preemptiveDegradeAt is the projected-usage percentage at which degrade
// budgets start degrading before the limit is actually hit.
const preemptiveDegradeAt = 90

// MatchByContext returns the budgets whose scope covers the call context.
func MatchByContext(budgets []models.Budget, ctx *models.BudgetContext) []models.Budget {
	var matched []models.Budget
	for _, b := range budgets {
		if matchesContext(&b, ctx) {
			matched = append(matched, b)
		}
	}
	return matched
}

func matchesContext(b *models.Budget, ctx *models.BudgetContext) bool {
	switch b.Type {
	case models.BudgetGlobal:
		return true
	case models.BudgetAgent:
		return ctx.EffectiveAgent() == b.Name
	case models.BudgetTenant:
		return ctx.TenantID != "" && ctx.TenantID == b.Name
	case models.BudgetCustomer:
		return ctx.CustomerID != "" && ctx.CustomerID == b.Name
	case models.BudgetFeature:
		return ctx.Feature != "" && ctx.Feature == b.Name
	case models.BudgetTag:
		for _, tag := range b.Tags {
			for _, t := range ctx.Tags {
				if t == tag {
					return true
				}
			}
		}
		return false
	default:
		return false
	}
}

// MatchEvent applies the same scope logic to a stored event's fields.
func MatchEvent(b *models.Budget, ev *models.LLMEvent) bool {
	ctx := models.BudgetContext{
		Agent:    ev.Agent,
		Metadata: ev.Metadata,
	}
	if ev.Metadata != nil {
		if v, ok := ev.Metadata["tenant_id"].(string); ok {
			ctx.TenantID = v
		}
		if v, ok := ev.Metadata["customer_id"].(string); ok {
			ctx.CustomerID = v
		}
		if v, ok := ev.Metadata["feature"].(string); ok {
			ctx.Feature = v
		}
		if tags, ok := ev.Metadata["tags"].([]any); ok {
			for _, t := range tags {
				if s, ok := t.(string); ok {
					ctx.Tags = append(ctx.Tags, s)
				}
			}
		}
	}
	return matchesContext(b, &ctx)
}

// Validate computes the most restrictive enforcement decision across the
// given budgets for a call of the estimated cost. localSpend is the
// SDK-reported spend; the authoritative spend is the stricter of the two
// views. Validation never errors: an empty budget set allows the call.
func Validate(budgets []models.Budget, estimatedCost float64, localSpend *float64) models.ValidationResult {
	if len(budgets) == 0 {
		return models.ValidationResult{
			Allowed:        true,
			Action:         models.ActionAllow,
			Reason:         "No budgets to validate",
			BudgetsChecked: []models.BudgetCheck{},
		}
	}

	checks := make([]models.BudgetCheck, 0, len(budgets))
	winner := -1
	for i := range budgets {
		check := validateOne(&budgets[i], estimatedCost, localSpend)
		checks = append(checks, check)
		if winner == -1 ||
			check.Action.Priority() > checks[winner].Action.Priority() ||
			(check.Action.Priority() == checks[winner].Action.Priority() &&
				check.ProjectedPercent > checks[winner].ProjectedPercent) {
			winner = i
		}
	}

	w := checks[winner]
	result := models.ValidationResult{
		Allowed:             w.Allowed,
		Action:              w.Action,
		Reason:              w.Reason,
		AuthoritativeSpend:  w.Spend,
		BudgetLimit:         w.Limit,
		UsagePercent:        w.UsagePercent,
		ProjectedPercent:    w.ProjectedPercent,
		RestrictingBudgetID: w.BudgetID,
		RestrictingBudget:   w.BudgetName,
		BudgetsChecked:      checks,
	}
	if w.Action == models.ActionDegrade {
		result.DegradeToModel = budgets[winner].DegradeToModel
		result.DegradeToProvider = budgets[winner].DegradeToProvider
	}
	telemetry.BudgetValidationsTotal.WithLabelValues(string(result.Action)).Inc()
	return result
}

// validateOne computes the decision a single budget would make on its own.
func validateOne(b *models.Budget, estimatedCost float64, localSpend *float64) models.BudgetCheck {
	spend := b.Spent
	if localSpend != nil && *localSpend > spend {
		spend = *localSpend
	}
	projected := spend + estimatedCost

	check := models.BudgetCheck{
		BudgetID:   b.ID,
		BudgetName: b.Name,
		BudgetType: b.Type,
		Spend:      spend,
		Limit:      b.Limit,
	}
	if b.Limit > 0 {
		check.UsagePercent = spend / b.Limit * 100
		check.ProjectedPercent = projected / b.Limit * 100
	}

	switch {
	case b.Limit > 0 && check.ProjectedPercent >= 100:
		switch b.LimitAction {
		case models.LimitDegrade:
			check.Action = models.ActionDegrade
			check.Allowed = true
			check.Reason = fmt.Sprintf("Budget %q exceeded; degrading to %s", b.Name, b.DegradeToModel)
		case models.LimitThrottle:
			check.Action = models.ActionThrottle
			check.Allowed = true
			check.Reason = fmt.Sprintf("Budget %q exceeded; throttling", b.Name)
		default:
			// kill and anything unrecognized block the call.
			check.Action = models.ActionBlock
			check.Allowed = false
			check.Reason = fmt.Sprintf("Budget %q exceeded", b.Name)
		}
	case b.Limit > 0 && check.ProjectedPercent >= preemptiveDegradeAt &&
		b.LimitAction == models.LimitDegrade && b.DegradeToModel != "":
		check.Action = models.ActionDegrade
		check.Allowed = true
		check.Reason = fmt.Sprintf("Budget %q approaching limit; degrading to %s", b.Name, b.DegradeToModel)
	default:
		check.Action = models.ActionAllow
		check.Allowed = true
	}
	return check
}

// ValidateInContext filters budgets by context before validating. A context
// that matches nothing allows the call with an explanatory reason.
func ValidateInContext(budgets []models.Budget, ctx *models.BudgetContext, estimatedCost float64, localSpend *float64) models.ValidationResult {
	if len(budgets) == 0 {
		return Validate(nil, estimatedCost, localSpend)
	}
	matched := MatchByContext(budgets, ctx)
	if len(matched) == 0 {
		return models.ValidationResult{
			Allowed:        true,
			Action:         models.ActionAllow,
			Reason:         "No budgets match the provided context",
			BudgetsChecked: []models.BudgetCheck{},
		}
	}
	return Validate(matched, estimatedCost, localSpend)
}
