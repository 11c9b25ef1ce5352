package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hiveobs/hive/pkg/events"
	"github.com/hiveobs/hive/pkg/models"
	"github.com/hiveobs/hive/pkg/telemetry"
)

// Alert types. A control action and a percentage warning must not suppress
// each other, so they cool down independently.
const (
	AlertTypeThreshold   = "threshold"
	AlertTypeLimitAction = "limit_action"
)

// cooldownKey gates re-emission per budget, alert type, and threshold (or
// enforcement action).
type cooldownKey struct {
	budgetID  string
	alertType string
	marker    string
}

// Pipeline evaluates budget alert thresholds after spend updates and emits
// in-app, notifier, and webhook notifications with cooldowns.
type Pipeline struct {
	hub      *events.Hub
	notifier Notifier // nil disables the notifier channel
	webhooks *webhookClient
	cooldown time.Duration
	logger   *slog.Logger

	mu        sync.Mutex
	lastFired map[cooldownKey]time.Time
}

// NewPipeline creates an alert pipeline. notifier may be nil.
func NewPipeline(hub *events.Hub, notifier Notifier, cooldown, webhookTimeout time.Duration) *Pipeline {
	if cooldown <= 0 {
		cooldown = 15 * time.Minute
	}
	return &Pipeline{
		hub:       hub,
		notifier:  notifier,
		webhooks:  newWebhookClient(webhookTimeout),
		cooldown:  cooldown,
		logger:    slog.Default().With("component", "alert-pipeline"),
		lastFired: make(map[cooldownKey]time.Time),
	}
}

// Evaluate walks a policy's budgets after a spend update and fires every
// enabled threshold the current spend has crossed.
func (p *Pipeline) Evaluate(ctx context.Context, teamID string, policy *models.Policy) {
	p.pruneStale()

	for i := range policy.Budgets {
		b := &policy.Budgets[i]
		if b.Limit <= 0 {
			continue
		}
		spentPercent := b.Spent / b.Limit * 100

		for _, alert := range b.Alerts {
			if !alert.Enabled || spentPercent < alert.Threshold {
				continue
			}
			marker := fmt.Sprintf("%.0f", alert.Threshold)
			if !p.claim(cooldownKey{b.ID, AlertTypeThreshold, marker}) {
				continue
			}
			p.fire(ctx, teamID, policy.ID, b, AlertTypeThreshold, map[string]any{
				"threshold":     alert.Threshold,
				"spent":         b.Spent,
				"limit":         b.Limit,
				"spent_percent": spentPercent,
			})
		}
	}
}

// FireLimitAction emits the control-action alert after a validation
// decision enforced a budget.
func (p *Pipeline) FireLimitAction(ctx context.Context, teamID, policyID string, b *models.Budget, action models.EnforcementAction) {
	if !p.claim(cooldownKey{b.ID, AlertTypeLimitAction, string(action)}) {
		return
	}
	p.fire(ctx, teamID, policyID, b, AlertTypeLimitAction, map[string]any{
		"action": string(action),
		"spent":  b.Spent,
		"limit":  b.Limit,
	})
}

// claim reports whether the alert may fire now, recording the emission.
func (p *Pipeline) claim(k cooldownKey) bool {
	now := time.Now().UTC()
	p.mu.Lock()
	defer p.mu.Unlock()
	if last, ok := p.lastFired[k]; ok && now.Sub(last) < p.cooldown {
		return false
	}
	p.lastFired[k] = now
	return true
}

// fire dispatches one alert across the budget's enabled channels. Outbound
// failures are logged and never propagate to the triggering request.
func (p *Pipeline) fire(ctx context.Context, teamID, policyID string, b *models.Budget, alertType string, data map[string]any) {
	now := time.Now().UTC()

	if b.Notifications.InApp && p.hub != nil {
		payload := map[string]any{
			"alert_type":  alertType,
			"budget_id":   b.ID,
			"budget_name": b.Name,
			"budget_type": string(b.Type),
		}
		for k, v := range data {
			payload[k] = v
		}
		p.hub.EmitAlert(ctx, teamID, policyID, payload)
		telemetry.AlertsFiredTotal.WithLabelValues("in_app").Inc()
	}

	if b.Notifications.Email && len(b.Notifications.EmailRecipients) > 0 && p.notifier != nil {
		n := Notification{
			TeamID:     teamID,
			AlertType:  alertType,
			BudgetID:   b.ID,
			BudgetName: b.Name,
			BudgetType: string(b.Type),
			Recipients: b.Notifications.EmailRecipients,
			Data:       data,
			Timestamp:  now,
		}
		if err := p.notifier.Notify(ctx, n); err != nil {
			p.logger.Warn("Notifier dispatch failed",
				"team_id", teamID, "budget_id", b.ID, "error", err)
		} else {
			telemetry.AlertsFiredTotal.WithLabelValues("notifier").Inc()
		}
	}

	if b.Notifications.Webhook && b.Notifications.WebhookURL != "" {
		payload := map[string]any{
			"type":        "budget_alert",
			"alert_type":  alertType,
			"budget_id":   b.ID,
			"budget_name": b.Name,
			"budget_type": string(b.Type),
			"timestamp":   now.Format(time.RFC3339),
		}
		for k, v := range data {
			payload[k] = v
		}
		if err := p.webhooks.post(ctx, b.Notifications.WebhookURL, payload); err != nil {
			p.logger.Warn("Webhook dispatch failed",
				"team_id", teamID, "budget_id", b.ID,
				"url", b.Notifications.WebhookURL, "error", err)
		} else {
			telemetry.AlertsFiredTotal.WithLabelValues("webhook").Inc()
		}
	}
}

// pruneStale drops cooldown entries old enough to be irrelevant, keeping
// the map bounded across long uptimes.
func (p *Pipeline) pruneStale() {
	cutoff := time.Now().UTC().Add(-10 * p.cooldown)
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, t := range p.lastFired {
		if t.Before(cutoff) {
			delete(p.lastFired, k)
		}
	}
}
