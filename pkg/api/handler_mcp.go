package api

import (
	"fmt"
	"io"
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// mcpBodyLimit bounds one MCP message.
const mcpBodyLimit = 1 << 20

// mcpOpenHandler handles GET /mcp: opens an SSE session and streams
// messages delivered through the POST endpoint until the client
// disconnects.
func (s *Server) mcpOpenHandler(c *echo.Context) error {
	session := s.transport.Open(teamID(c))
	defer s.transport.Close(session.ID)

	h := c.Response().Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	// The first frame hands the client its session id for the POST side.
	if _, err := fmt.Fprintf(c.Response(),
		"event: endpoint\ndata: /mcp/message?session_id=%s\n\n", session.ID); err != nil {
		return nil
	}
	flushResponse(c.Response())

	for {
		select {
		case <-c.Request().Context().Done():
			return nil
		case <-session.Done():
			return nil
		case msg := <-session.Messages():
			if _, err := fmt.Fprintf(c.Response(), "data: %s\n\n", msg); err != nil {
				return nil
			}
			flushResponse(c.Response())
		}
	}
}

// mcpMessageHandler handles POST /mcp/message?session_id=…: delivers the
// raw body to the session's SSE channel.
func (s *Server) mcpMessageHandler(c *echo.Context) error {
	sessionID := c.QueryParam("session_id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id is required")
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, mcpBodyLimit))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable request body")
	}
	if len(body) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "request body is required")
	}

	if err := s.transport.Deliver(sessionID, teamID(c), body); err != nil {
		return s.mapServiceError(err)
	}
	return c.JSON(http.StatusAccepted, map[string]bool{"delivered": true})
}

// mcpSessionsHandler handles GET /mcp/sessions.
func (s *Server) mcpSessionsHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"sessions": s.transport.List(teamID(c)),
	})
}

// mcpDeleteSessionHandler handles DELETE /mcp/sessions/:id.
func (s *Server) mcpDeleteSessionHandler(c *echo.Context) error {
	session, ok := s.transport.Get(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	if session.TeamID != teamID(c) {
		return echo.NewHTTPError(http.StatusForbidden, "session belongs to another team")
	}
	s.transport.Close(session.ID)
	return c.JSON(http.StatusOK, map[string]bool{"closed": true})
}

// mcpHealthHandler handles GET /mcp/health.
func (s *Server) mcpHealthHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":   "healthy",
		"sessions": s.transport.Count(),
	})
}
