package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/hiveobs/hive/pkg/agentstatus"
	"github.com/hiveobs/hive/pkg/models"
)

// statusStreamInterval is the SSE frame cadence for agent status.
const statusStreamInterval = 2 * time.Second

// agentStatusHandler handles GET /v1/control/agent-status.
func (s *Server) agentStatusHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.tracker.Status(teamID(c)))
}

// agentStatusStreamHandler handles GET /v1/control/agent-status/stream:
// an SSE stream sending a status frame immediately, then every 2 seconds,
// until the client disconnects.
func (s *Server) agentStatusStreamHandler(c *echo.Context) error {
	team := teamID(c)

	h := c.Response().Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	if err := writeStatusFrame(c, s.tracker.Status(team)); err != nil {
		return nil
	}

	ticker := time.NewTicker(statusStreamInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.Request().Context().Done():
			return nil
		case <-ticker.C:
			if err := writeStatusFrame(c, s.tracker.Status(team)); err != nil {
				return nil
			}
		}
	}
}

// writeStatusFrame writes one SSE data frame and flushes it.
func writeStatusFrame(c *echo.Context, status models.AgentStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(c.Response(), "data: %s\n\n", data); err != nil {
		return err
	}
	flushResponse(c.Response())
	return nil
}

// agentsHandler handles GET /v1/control/agents: historical agents from the
// event store merged with the live session registry.
func (s *Server) agentsHandler(c *echo.Context) error {
	var since *time.Time
	if v := c.QueryParam("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "since must be RFC3339")
		}
		since = &t
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	team := teamID(c)
	historical, err := s.eventStore.ListDistinctAgents(c.Request().Context(), team, since, limit)
	if err != nil {
		return s.mapServiceError(err)
	}

	agents := agentstatus.Merge(historical, s.tracker.ListInstances(team), time.Now().UTC())
	return c.JSON(http.StatusOK, map[string]any{
		"agents":    agents,
		"connected": s.tracker.CountConnected(team),
	})
}

// heartbeatHandler handles POST /v1/control/heartbeat for SDKs that keep
// liveness over plain HTTP instead of a WebSocket.
func (s *Server) heartbeatHandler(c *echo.Context) error {
	var req heartbeatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.InstanceID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "sdk_instance_id is required")
	}

	s.tracker.HeartbeatHTTP(teamID(c), req.InstanceID, req.AgentName, req.PolicyID, req.Status)
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}
