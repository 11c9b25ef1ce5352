package api

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/hiveobs/hive/pkg/analytics"
)

// analyticsHandler handles GET /v1/control/metrics: the full windowed
// report, plus period deltas and insight cards when days is supplied.
func (s *Server) analyticsHandler(c *echo.Context) error {
	report, err := s.analytics.Analytics(c.Request().Context(), teamID(c),
		c.QueryParam("window"), c.QueryParam("resolution"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	response := map[string]any{
		"window":               report.Window,
		"summary":              report.Summary,
		"timeline":             report.Timeline,
		"cost_by_model":        report.CostByModel,
		"cost_by_agent":        report.CostByAgent,
		"latency_distribution": report.LatencyDistribution,
	}

	if v := c.QueryParam("days"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "days must be a positive integer")
		}
		deltas, err := s.analytics.PeriodMetrics(c.Request().Context(), teamID(c), days)
		if err != nil {
			return s.mapServiceError(err)
		}
		insights, err := s.analytics.Insights(c.Request().Context(), teamID(c), days)
		if err != nil {
			return s.mapServiceError(err)
		}
		response["period_metrics"] = deltas
		response["insights"] = insights
	}

	return c.JSON(http.StatusOK, response)
}

// usageHandler handles GET /v1/control/metrics/usage. The filter is either
// a budget (budget_id against the active policy) or a raw context id.
func (s *Server) usageHandler(c *echo.Context) error {
	days, _ := strconv.Atoi(c.QueryParam("days"))

	filter, err := s.resolveFilter(c)
	if err != nil {
		return err
	}

	usage, err := s.analytics.Usage(c.Request().Context(), teamID(c), days, filter)
	if err != nil {
		return s.mapServiceError(err)
	}
	return c.JSON(http.StatusOK, usage)
}

// ratesHandler handles GET /v1/control/metrics/rates.
func (s *Server) ratesHandler(c *echo.Context) error {
	days, _ := strconv.Atoi(c.QueryParam("days"))

	filter, err := s.resolveFilter(c)
	if err != nil {
		return err
	}

	rates, err := s.analytics.Rates(c.Request().Context(), teamID(c), days, filter)
	if err != nil {
		return s.mapServiceError(err)
	}
	return c.JSON(http.StatusOK, rates)
}

// resolveFilter builds the hot-table predicate from the budget_id or
// context query parameters.
func (s *Server) resolveFilter(c *echo.Context) (analytics.Filter, error) {
	if budgetID := c.QueryParam("budget_id"); budgetID != "" {
		p, err := s.policyStore.Get(c.Request().Context(), teamID(c), c.Request().Header.Get("X-Policy-ID"))
		if err != nil {
			return analytics.Filter{}, s.mapServiceError(err)
		}
		b := p.FindBudget(budgetID)
		if b == nil {
			return analytics.Filter{}, echo.NewHTTPError(http.StatusNotFound, "budget not found")
		}
		return analytics.FilterForBudget(b), nil
	}
	return analytics.FilterForContext(c.QueryParam("context")), nil
}
