package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/hiveobs/hive/pkg/models"
	"github.com/hiveobs/hive/pkg/policy"
)

// validateBudgetHandler handles POST /v1/control/budget/validate. The
// policy is rehydrated first so every budget carries authoritative spend.
// Validation itself never errors on ambiguity: unknown budgets and
// unmatched contexts allow the call with an explanatory reason.
func (s *Server) validateBudgetHandler(c *echo.Context) error {
	var req validateBudgetRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.EstimatedCost == nil || *req.EstimatedCost < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "estimated_cost must be a non-negative number")
	}

	p, err := s.policyStore.Get(c.Request().Context(), teamID(c), c.Request().Header.Get("X-Policy-ID"))
	if err != nil {
		return s.mapServiceError(err)
	}

	var result models.ValidationResult
	switch {
	case req.BudgetID != "":
		if b := p.FindBudget(req.BudgetID); b != nil {
			result = policy.Validate([]models.Budget{*b}, *req.EstimatedCost, req.LocalSpend)
		} else {
			result = models.ValidationResult{
				Allowed:        true,
				Action:         models.ActionAllow,
				Reason:         "No budgets to validate",
				BudgetsChecked: []models.BudgetCheck{},
			}
		}
	case req.Context != nil:
		result = policy.ValidateInContext(p.Budgets, req.Context, *req.EstimatedCost, req.LocalSpend)
	default:
		result = policy.Validate(p.Budgets, *req.EstimatedCost, req.LocalSpend)
	}

	// Enforcement decisions feed the control-action alert channel.
	if result.Action != models.ActionAllow && result.RestrictingBudgetID != "" {
		if b := p.FindBudget(result.RestrictingBudgetID); b != nil {
			s.alerts.FireLimitAction(c.Request().Context(), p.TeamID, p.ID, b, result.Action)
		}
	}

	return c.JSON(http.StatusOK, result)
}

// degradationTargetsHandler handles GET /v1/control/degradation-targets.
func (s *Server) degradationTargetsHandler(c *echo.Context) error {
	targets := s.pricing.DegradationTargets(c.Request().Context(), c.QueryParam("provider"))
	return c.JSON(http.StatusOK, targets)
}
