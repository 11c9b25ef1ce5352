package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	goslack "github.com/slack-go/slack"
)

// SlackNotifier posts budget notifications to an ops channel. It is the
// notifier implementation Hive ships; email delivery stays behind the
// Notifier interface for deployments that bring their own.
type SlackNotifier struct {
	api       *goslack.Client
	channelID string
	timeout   time.Duration
	logger    *slog.Logger
}

// NewSlackNotifier creates a Slack-backed notifier.
func NewSlackNotifier(token, channelID string) *SlackNotifier {
	return &SlackNotifier{
		api:       goslack.New(token),
		channelID: channelID,
		timeout:   10 * time.Second,
		logger:    slog.Default().With("component", "slack-notifier"),
	}
}

// NewSlackNotifierWithAPIURL targets a custom API URL. Useful for testing
// with a mock server.
func NewSlackNotifierWithAPIURL(token, channelID, apiURL string) *SlackNotifier {
	n := NewSlackNotifier(token, channelID)
	n.api = goslack.New(token, goslack.OptionAPIURL(apiURL))
	return n
}

// Notify posts the notification as a block message.
func (s *SlackNotifier) Notify(ctx context.Context, n Notification) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	header := fmt.Sprintf(":rotating_light: Budget alert — %s", n.BudgetName)
	if n.AlertType == AlertTypeLimitAction {
		header = fmt.Sprintf(":no_entry: Budget enforcement — %s", n.BudgetName)
	}

	lines := []string{
		fmt.Sprintf("*Team:* %s", n.TeamID),
		fmt.Sprintf("*Budget:* %s (%s)", n.BudgetName, n.BudgetType),
	}
	if v, ok := n.Data["spent_percent"].(float64); ok {
		lines = append(lines, fmt.Sprintf("*Spend:* %.1f%% of limit", v))
	}
	if v, ok := n.Data["action"].(string); ok {
		lines = append(lines, fmt.Sprintf("*Action:* %s", v))
	}
	if len(n.Recipients) > 0 {
		lines = append(lines, fmt.Sprintf("*Recipients:* %s", strings.Join(n.Recipients, ", ")))
	}

	blocks := []goslack.Block{
		goslack.NewHeaderBlock(goslack.NewTextBlockObject(goslack.PlainTextType, header, false, false)),
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, strings.Join(lines, "\n"), false, false),
			nil, nil),
	}

	_, _, err := s.api.PostMessageContext(ctx, s.channelID, goslack.MsgOptionBlocks(blocks...))
	if err != nil {
		return fmt.Errorf("chat.postMessage failed: %w", err)
	}
	return nil
}
