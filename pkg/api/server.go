// Package api provides Hive's HTTP, WebSocket, SSE, and MCP transport
// surface.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hiveobs/hive/pkg/agentstatus"
	"github.com/hiveobs/hive/pkg/alerts"
	"github.com/hiveobs/hive/pkg/analytics"
	"github.com/hiveobs/hive/pkg/config"
	"github.com/hiveobs/hive/pkg/contentstore"
	"github.com/hiveobs/hive/pkg/database"
	"github.com/hiveobs/hive/pkg/events"
	"github.com/hiveobs/hive/pkg/eventstore"
	"github.com/hiveobs/hive/pkg/ingest"
	"github.com/hiveobs/hive/pkg/mcp"
	"github.com/hiveobs/hive/pkg/policy"
	"github.com/hiveobs/hive/pkg/pricing"
	"github.com/hiveobs/hive/pkg/version"
)

// Server is the HTTP API server.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server
	cfg        *config.Config
	dbClient   *database.Client

	pricing      *pricing.Service
	normalizer   *ingest.Normalizer
	eventStore   *eventstore.Store
	analytics    *analytics.Engine
	policyStore  *policy.Store
	contentStore *contentstore.Store

	hub       *events.Hub
	batcher   *events.Batcher
	tracker   *agentstatus.Tracker
	alerts    *alerts.Pipeline
	transport *mcp.Transport
}

// Deps carries everything the server wires into its handlers.
type Deps struct {
	DBClient    *database.Client
	Pricing     *pricing.Service
	Normalizer  *ingest.Normalizer
	EventStore  *eventstore.Store
	Analytics    *analytics.Engine
	PolicyStore  *policy.Store
	ContentStore *contentstore.Store
	Hub          *events.Hub
	Batcher     *events.Batcher
	Tracker     *agentstatus.Tracker
	Alerts      *alerts.Pipeline
	Transport   *mcp.Transport
}

// NewServer creates the API server with Echo v5.
func NewServer(cfg *config.Config, deps Deps) (*Server, error) {
	if err := validateDeps(deps); err != nil {
		return nil, err
	}

	s := &Server{
		echo:        echo.New(),
		cfg:         cfg,
		dbClient:    deps.DBClient,
		pricing:     deps.Pricing,
		normalizer:  deps.Normalizer,
		eventStore:  deps.EventStore,
		analytics:    deps.Analytics,
		policyStore:  deps.PolicyStore,
		contentStore: deps.ContentStore,
		hub:          deps.Hub,
		batcher:     deps.Batcher,
		tracker:     deps.Tracker,
		alerts:      deps.Alerts,
		transport:   deps.Transport,
	}

	s.setupRoutes()
	return s, nil
}

// validateDeps catches wiring gaps at startup rather than as 500s at
// request time.
func validateDeps(deps Deps) error {
	var errs []error
	if deps.DBClient == nil {
		errs = append(errs, fmt.Errorf("DBClient is required"))
	}
	if deps.Pricing == nil {
		errs = append(errs, fmt.Errorf("Pricing is required"))
	}
	if deps.Normalizer == nil {
		errs = append(errs, fmt.Errorf("Normalizer is required"))
	}
	if deps.EventStore == nil {
		errs = append(errs, fmt.Errorf("EventStore is required"))
	}
	if deps.Analytics == nil {
		errs = append(errs, fmt.Errorf("Analytics is required"))
	}
	if deps.PolicyStore == nil {
		errs = append(errs, fmt.Errorf("PolicyStore is required"))
	}
	if deps.ContentStore == nil {
		errs = append(errs, fmt.Errorf("ContentStore is required"))
	}
	if deps.Hub == nil {
		errs = append(errs, fmt.Errorf("Hub is required"))
	}
	if deps.Batcher == nil {
		errs = append(errs, fmt.Errorf("Batcher is required"))
	}
	if deps.Tracker == nil {
		errs = append(errs, fmt.Errorf("Tracker is required"))
	}
	if deps.Alerts == nil {
		errs = append(errs, fmt.Errorf("Alerts is required"))
	}
	if deps.Transport == nil {
		errs = append(errs, fmt.Errorf("Transport is required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("server wiring incomplete: %w", errors.Join(errs...))
	}
	return nil
}

// setupRoutes registers all API routes.
func (s *Server) setupRoutes() {
	// Body size limit sits above the largest legitimate SDK batch so
	// multi-MB payloads are rejected at the HTTP read level.
	s.echo.Use(middleware.BodyLimit(4 * 1024 * 1024))
	s.echo.Use(securityHeaders())

	s.echo.GET("/health", s.healthHandler)

	promHandler := promhttp.Handler()
	s.echo.GET("/metrics", func(c *echo.Context) error {
		promHandler.ServeHTTP(c.Response(), c.Request())
		return nil
	})

	auth := s.authMiddleware()

	v1 := s.echo.Group("/v1/control", auth)

	// Policy surface.
	v1.GET("/policy", s.getActivePolicyHandler)
	v1.GET("/policies", s.listPoliciesHandler)
	v1.POST("/policies", s.createPolicyHandler)
	v1.GET("/policies/:id", s.getPolicyHandler)
	v1.PUT("/policies/:id", s.updatePolicyHandler)
	v1.DELETE("/policies/:id", s.deletePolicyHandler)
	v1.DELETE("/policies/:id/rules", s.clearPolicyRulesHandler)
	v1.POST("/policies/:id/budgets", s.appendRuleHandler(policy.KindBudgets))
	v1.POST("/policies/:id/throttles", s.appendRuleHandler(policy.KindThrottles))
	v1.POST("/policies/:id/blocks", s.appendRuleHandler(policy.KindBlocks))
	v1.POST("/policies/:id/degradations", s.appendRuleHandler(policy.KindDegradations))
	v1.POST("/policies/:id/alerts", s.appendRuleHandler(policy.KindAlerts))

	// Ingestion and content.
	v1.POST("/events", s.ingestEventsHandler)
	v1.GET("/events", s.listEventsHandler)
	v1.GET("/events/:trace_id/:call_seq/content", s.eventContentHandler)
	v1.POST("/content", s.storeContentHandler)
	v1.GET("/content/:id", s.getContentHandler)
	v1.GET("/content/hash/:sha256", s.getContentByHashHandler)

	// Budget validation and degradation targets.
	v1.POST("/budget/validate", s.validateBudgetHandler)
	v1.GET("/degradation-targets", s.degradationTargetsHandler)

	// Analytics.
	v1.GET("/metrics", s.analyticsHandler)
	v1.GET("/metrics/usage", s.usageHandler)
	v1.GET("/metrics/rates", s.ratesHandler)

	// Fleet.
	v1.GET("/agent-status", s.agentStatusHandler)
	v1.GET("/agent-status/stream", s.agentStatusStreamHandler)
	v1.GET("/agents", s.agentsHandler)
	v1.POST("/heartbeat", s.heartbeatHandler)

	// WebSocket endpoint for dashboards and SDK control channels.
	v1.GET("/ws", s.wsHandler)

	// MCP transport. Auth applied per-route; message delivery checks
	// session tenancy itself.
	s.echo.GET("/mcp", s.mcpOpenHandler, auth)
	s.echo.POST("/mcp/message", s.mcpMessageHandler, auth)
	s.echo.GET("/mcp/sessions", s.mcpSessionsHandler, auth)
	s.echo.DELETE("/mcp/sessions/:id", s.mcpDeleteSessionHandler, auth)
	s.echo.GET("/mcp/health", s.mcpHealthHandler)
}

// Start starts the HTTP server on the given address (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.echo,
	}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener.
// Used by test infrastructure to serve on a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// healthHandler handles GET /health.
func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	dbHealth, err := database.Health(reqCtx, s.dbClient.DB())
	status := http.StatusOK
	state := "healthy"
	if err != nil {
		status = http.StatusServiceUnavailable
		state = "unhealthy"
	}

	return c.JSON(status, map[string]any{
		"status":          state,
		"version":         version.Full(),
		"database":        dbHealth,
		"ws_sessions":     s.hub.SessionCount(""),
		"agent_instances": s.tracker.CountTotal(),
		"mcp_sessions":    s.transport.Count(),
	})
}
