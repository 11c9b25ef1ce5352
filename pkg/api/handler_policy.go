package api

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"

	"github.com/hiveobs/hive/pkg/models"
	"github.com/hiveobs/hive/pkg/policy"
)

// getActivePolicyHandler handles GET /v1/control/policy. SDKs pass an
// optional X-Policy-ID header; absent means the tenant default.
func (s *Server) getActivePolicyHandler(c *echo.Context) error {
	p, err := s.policyStore.Get(c.Request().Context(), teamID(c), c.Request().Header.Get("X-Policy-ID"))
	if err != nil {
		return s.mapServiceError(err)
	}
	return c.JSON(http.StatusOK, p)
}

// listPoliciesHandler handles GET /v1/control/policies.
func (s *Server) listPoliciesHandler(c *echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	policies, err := s.policyStore.List(c.Request().Context(), teamID(c), limit, offset)
	if err != nil {
		return s.mapServiceError(err)
	}
	if policies == nil {
		policies = []*models.Policy{}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"policies": policies,
		"limit":    limit,
		"offset":   offset,
	})
}

// createPolicyHandler handles POST /v1/control/policies.
func (s *Server) createPolicyHandler(c *echo.Context) error {
	var req policyWriteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	return s.writePolicy(c, req.ID, req)
}

// getPolicyHandler handles GET /v1/control/policies/:id.
func (s *Server) getPolicyHandler(c *echo.Context) error {
	p, err := s.policyStore.Get(c.Request().Context(), teamID(c), c.Param("id"))
	if err != nil {
		return s.mapServiceError(err)
	}
	return c.JSON(http.StatusOK, p)
}

// updatePolicyHandler handles PUT /v1/control/policies/:id.
func (s *Server) updatePolicyHandler(c *echo.Context) error {
	var req policyWriteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return s.writePolicy(c, c.Param("id"), req)
}

// writePolicy applies a policy patch and broadcasts the new version.
func (s *Server) writePolicy(c *echo.Context, policyID string, req policyWriteRequest) error {
	patch := policy.Patch{
		Name:         req.Name,
		Budgets:      req.Budgets,
		Throttles:    req.Throttles,
		Blocks:       req.Blocks,
		Degradations: req.Degradations,
		Alerts:       req.Alerts,
		UpdatedBy:    userID(c),
	}

	p, err := s.policyStore.Update(c.Request().Context(), teamID(c), policyID, patch)
	if err != nil {
		return s.mapServiceError(err)
	}

	s.hub.EmitPolicyUpdate(c.Request().Context(), p.TeamID, p.ID, p)
	return c.JSON(http.StatusOK, p)
}

// deletePolicyHandler handles DELETE /v1/control/policies/:id.
func (s *Server) deletePolicyHandler(c *echo.Context) error {
	if err := s.policyStore.Delete(c.Request().Context(), teamID(c), c.Param("id")); err != nil {
		return s.mapServiceError(err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"deleted": true})
}

// clearPolicyRulesHandler handles DELETE /v1/control/policies/:id/rules.
func (s *Server) clearPolicyRulesHandler(c *echo.Context) error {
	p, err := s.policyStore.Clear(c.Request().Context(), teamID(c), c.Param("id"), userID(c))
	if err != nil {
		return s.mapServiceError(err)
	}

	s.hub.EmitPolicyUpdate(c.Request().Context(), p.TeamID, p.ID, p)
	return c.JSON(http.StatusOK, p)
}

// appendRuleHandler handles POST /v1/control/policies/:id/{budgets,…}.
func (s *Server) appendRuleHandler(kind string) echo.HandlerFunc {
	return func(c *echo.Context) error {
		var rule map[string]any
		if err := c.Bind(&rule); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid rule body")
		}

		p, err := s.policyStore.AppendRule(c.Request().Context(), kind, teamID(c), c.Param("id"), rule, userID(c))
		if err != nil {
			return s.mapServiceError(err)
		}

		s.hub.EmitPolicyUpdate(c.Request().Context(), p.TeamID, p.ID, p)
		return c.JSON(http.StatusOK, p)
	}
}
