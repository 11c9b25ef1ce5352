// Hive control-plane server - policy engine, event ingestion, and
// real-time fan-out for LLM observability.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hiveobs/hive/pkg/agentstatus"
	"github.com/hiveobs/hive/pkg/alerts"
	"github.com/hiveobs/hive/pkg/analytics"
	"github.com/hiveobs/hive/pkg/api"
	"github.com/hiveobs/hive/pkg/config"
	"github.com/hiveobs/hive/pkg/contentstore"
	"github.com/hiveobs/hive/pkg/database"
	"github.com/hiveobs/hive/pkg/events"
	"github.com/hiveobs/hive/pkg/eventstore"
	"github.com/hiveobs/hive/pkg/ingest"
	"github.com/hiveobs/hive/pkg/mcp"
	"github.com/hiveobs/hive/pkg/policy"
	"github.com/hiveobs/hive/pkg/pricing"
	"github.com/hiveobs/hive/pkg/telemetry"
	"github.com/hiveobs/hive/pkg/tenant"
	"github.com/hiveobs/hive/pkg/version"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	setupLogging(cfg)
	slog.Info("Starting Hive", "version", version.Full(), "port", cfg.Port)

	ctx := context.Background()

	// Control store (policies, content items, pricing catalogue).
	dbClient, err := database.NewClient(ctx, database.DefaultConfig(cfg.ControlURL))
	if err != nil {
		log.Fatalf("Failed to connect to control store: %v", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing control store", "error", err)
		}
	}()
	slog.Info("Connected to control store")

	// Per-tenant time-series routing.
	router := tenant.NewRouter(cfg.TimeseriesURL, cfg.TenantPoolSize)
	defer router.Close()

	// Domain services.
	pricingSvc := pricing.NewService(dbClient.DB(), cfg.PricingTTL)
	normalizer := ingest.NewNormalizer(pricingSvc)
	store := eventstore.NewStore(router)
	engine := analytics.NewEngine(router, pricingSvc)
	policyStore := policy.NewStore(dbClient.DB(), engine, pricingSvc)
	contentStore := contentstore.NewStore(dbClient.DB())

	// Fan-out fabric.
	hub := events.NewHub(5 * time.Second)
	if cfg.RedisURL != "" {
		bus, err := events.NewRedisBus(ctx, cfg.RedisURL, hub)
		if err != nil {
			log.Fatalf("Failed to connect to pub/sub bus: %v", err)
		}
		defer func() { _ = bus.Close() }()
		hub.SetBus(bus)
		slog.Info("Cross-process fan-out enabled")
	} else {
		hub.SetBus(events.NewLocalBus(hub))
		slog.Info("Using in-process fan-out")
	}

	tracker := agentstatus.NewTracker(cfg.AgentStaleAfter)
	defer tracker.Stop()
	hub.SetAgentRegistry(tracker)

	batcher := events.NewBatcher(hub, events.BatcherConfig{
		FlushInterval: cfg.BatchFlushInterval,
		MaxBuffer:     cfg.BatchMaxBuffer,
		MaxPerFlush:   cfg.BatchMaxPerFlush,
	})

	var notifier alerts.Notifier
	if cfg.SlackBotToken != "" && cfg.SlackAlertChannel != "" {
		notifier = alerts.NewSlackNotifier(cfg.SlackBotToken, cfg.SlackAlertChannel)
		slog.Info("Slack notifier enabled", "channel", cfg.SlackAlertChannel)
	}
	pipeline := alerts.NewPipeline(hub, notifier, cfg.AlertCooldown, cfg.WebhookTimeout)

	transport := mcp.NewTransport()

	prometheus.MustRegister(telemetry.All()...)

	server, err := api.NewServer(cfg, api.Deps{
		DBClient:     dbClient,
		Pricing:      pricingSvc,
		Normalizer:   normalizer,
		EventStore:   store,
		Analytics:    engine,
		PolicyStore:  policyStore,
		ContentStore: contentStore,
		Hub:          hub,
		Batcher:      batcher,
		Tracker:      tracker,
		Alerts:       pipeline,
		Transport:    transport,
	})
	if err != nil {
		log.Fatalf("Failed to build server: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", cfg.ListenAddr())
		if err := server.Start(cfg.ListenAddr()); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatalf("HTTP server failed: %v", err)
	case sig := <-sigCh:
		slog.Info("Shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown error", "error", err)
	}

	// Flush remaining fan-out buffers before the hub goes away.
	batcher.Shutdown()
	slog.Info("Shutdown complete")
}

// setupLogging configures the process-wide slog handler.
func setupLogging(cfg *config.Config) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))

	if cfg.Development() {
		slog.Info("Development mode: verbose error payloads enabled")
	}
}
