package alerts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiveobs/hive/pkg/events"
	"github.com/hiveobs/hive/pkg/models"
)

// recordingBus captures fan-out payloads published by the hub.
type recordingBus struct {
	mu    sync.Mutex
	rooms []string
	raw   [][]byte
}

func (b *recordingBus) Publish(_ context.Context, room string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rooms = append(b.rooms, room)
	b.raw = append(b.raw, payload)
	return nil
}

func (b *recordingBus) Close() error { return nil }

func (b *recordingBus) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.raw)
}

// recordingNotifier captures notifier dispatches.
type recordingNotifier struct {
	mu            sync.Mutex
	notifications []Notification
}

func (n *recordingNotifier) Notify(_ context.Context, notification Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notifications = append(n.notifications, notification)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notifications)
}

func testPolicy(budgets ...models.Budget) *models.Policy {
	return &models.Policy{ID: "default", TeamID: "team-1", Budgets: budgets}
}

func alertingBudget(spent float64, thresholds ...float64) models.Budget {
	b := models.Budget{
		ID:          "b1",
		Name:        "cap",
		Type:        models.BudgetGlobal,
		Limit:       100,
		Spent:       spent,
		LimitAction: models.LimitKill,
		Notifications: models.BudgetNotifications{
			InApp: true,
		},
	}
	for _, t := range thresholds {
		b.Alerts = append(b.Alerts, models.BudgetAlert{Threshold: t, Enabled: true})
	}
	return b
}

func newTestPipeline(bus *recordingBus, notifier Notifier) *Pipeline {
	hub := events.NewHub(time.Second)
	hub.SetBus(bus)
	return NewPipeline(hub, notifier, 15*time.Minute, time.Second)
}

func TestEvaluateFiresCrossedThresholds(t *testing.T) {
	bus := &recordingBus{}
	p := newTestPipeline(bus, nil)

	// 92% spent crosses 80 and 90 but not 100.
	p.Evaluate(context.Background(), "team-1", testPolicy(alertingBudget(92, 80, 90, 100)))

	require.Equal(t, 2, bus.count())
	bus.mu.Lock()
	defer bus.mu.Unlock()
	for _, room := range bus.rooms {
		assert.Equal(t, "team:team-1:alerts", room)
	}

	var env events.AlertEnvelope
	require.NoError(t, json.Unmarshal(bus.raw[0], &env))
	assert.Equal(t, events.TypeAlert, env.Type)
}

func TestEvaluateDisabledThresholdSilent(t *testing.T) {
	bus := &recordingBus{}
	p := newTestPipeline(bus, nil)

	b := alertingBudget(92, 80)
	b.Alerts[0].Enabled = false
	p.Evaluate(context.Background(), "team-1", testPolicy(b))

	assert.Zero(t, bus.count())
}

func TestCooldownSuppressesRefiring(t *testing.T) {
	bus := &recordingBus{}
	p := newTestPipeline(bus, nil)
	policy := testPolicy(alertingBudget(92, 90))

	p.Evaluate(context.Background(), "team-1", policy)
	p.Evaluate(context.Background(), "team-1", policy)

	assert.Equal(t, 1, bus.count(), "second evaluation inside the cooldown is silent")
}

func TestThresholdAndLimitActionCooldownsIndependent(t *testing.T) {
	bus := &recordingBus{}
	p := newTestPipeline(bus, nil)
	b := alertingBudget(96, 95)

	p.Evaluate(context.Background(), "team-1", testPolicy(b))
	require.Equal(t, 1, bus.count())

	// The control action fires even though the 95% warning just did.
	p.FireLimitAction(context.Background(), "team-1", "default", &b, models.ActionBlock)
	assert.Equal(t, 2, bus.count())

	// But the same control action is then gated.
	p.FireLimitAction(context.Background(), "team-1", "default", &b, models.ActionBlock)
	assert.Equal(t, 2, bus.count())
}

func TestNotifierReceivesEmailAlerts(t *testing.T) {
	bus := &recordingBus{}
	notifier := &recordingNotifier{}
	p := newTestPipeline(bus, notifier)

	b := alertingBudget(92, 90)
	b.Notifications.Email = true
	b.Notifications.EmailRecipients = []string{"ops@example.com"}
	p.Evaluate(context.Background(), "team-1", testPolicy(b))

	require.Equal(t, 1, notifier.count())
	n := notifier.notifications[0]
	assert.Equal(t, AlertTypeThreshold, n.AlertType)
	assert.Equal(t, []string{"ops@example.com"}, n.Recipients)
	assert.Equal(t, "b1", n.BudgetID)
}

func TestNotifierSkippedWithoutRecipients(t *testing.T) {
	bus := &recordingBus{}
	notifier := &recordingNotifier{}
	p := newTestPipeline(bus, notifier)

	b := alertingBudget(92, 90)
	b.Notifications.Email = true // enabled but no recipients
	p.Evaluate(context.Background(), "team-1", testPolicy(b))

	assert.Zero(t, notifier.count())
}

func TestWebhookDispatch(t *testing.T) {
	var got map[string]any
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	bus := &recordingBus{}
	p := newTestPipeline(bus, nil)

	b := alertingBudget(92, 90)
	b.Notifications.InApp = false
	b.Notifications.Webhook = true
	b.Notifications.WebhookURL = srv.URL
	p.Evaluate(context.Background(), "team-1", testPolicy(b))

	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, got)
	assert.Equal(t, "budget_alert", got["type"])
	assert.Equal(t, AlertTypeThreshold, got["alert_type"])
	assert.Equal(t, "b1", got["budget_id"])
	assert.Equal(t, "cap", got["budget_name"])
	assert.NotEmpty(t, got["timestamp"])
}

func TestWebhookFailureDoesNotPropagate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	bus := &recordingBus{}
	p := newTestPipeline(bus, nil)

	b := alertingBudget(92, 90)
	b.Notifications.Webhook = true
	b.Notifications.WebhookURL = srv.URL

	// Must not panic or error out of Evaluate.
	p.Evaluate(context.Background(), "team-1", testPolicy(b))
	assert.Equal(t, 1, bus.count(), "in-app still fires when the webhook fails")
}

func TestZeroLimitBudgetSkipped(t *testing.T) {
	bus := &recordingBus{}
	p := newTestPipeline(bus, nil)

	b := alertingBudget(92, 90)
	b.Limit = 0
	p.Evaluate(context.Background(), "team-1", testPolicy(b))
	assert.Zero(t, bus.count())
}
