package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/hiveobs/hive/pkg/contentstore"
	"github.com/hiveobs/hive/pkg/eventstore"
	"github.com/hiveobs/hive/pkg/mcp"
	"github.com/hiveobs/hive/pkg/policy"
)

// mapServiceError maps service-layer errors to HTTP error responses.
func (s *Server) mapServiceError(err error) *echo.HTTPError {
	var validErr *policy.ValidationError
	if errors.As(err, &validErr) {
		return echo.NewHTTPError(http.StatusBadRequest, validErr.Error())
	}
	if errors.Is(err, policy.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "policy not found")
	}
	if errors.Is(err, policy.ErrProtectedPolicy) {
		return echo.NewHTTPError(http.StatusBadRequest, "the default policy cannot be deleted")
	}
	if errors.Is(err, eventstore.ErrNotFound) || errors.Is(err, contentstore.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "content not found")
	}
	if errors.Is(err, mcp.ErrSessionNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	if errors.Is(err, mcp.ErrForbidden) {
		return echo.NewHTTPError(http.StatusForbidden, "session belongs to another team")
	}
	if errors.Is(err, mcp.ErrSessionBusy) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "session buffer full")
	}

	// Transient store failures surface as 5xx; SDKs retry. Development
	// mode exposes the underlying error in the payload.
	slog.Error("Unexpected service error", "error", err)
	if s.cfg.Development() {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
