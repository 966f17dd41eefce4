package slack

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	slackapi "github.com/slack-go/slack"

	"github.com/asanalytics/go-asana-reporter/internal/model"
)

// Notifier posts run summaries to a Slack channel. A nil Notifier is valid
// and does nothing, so callers never have to branch on configuration.
type Notifier struct {
	client  *slackapi.Client
	channel string
	log     *logrus.Logger
}

// NewNotifier returns nil when token or channel is unset.
func NewNotifier(token, channel string, log *logrus.Logger) *Notifier {
	if token == "" || channel == "" {
		return nil
	}
	return &Notifier{
		client:  slackapi.New(token),
		channel: channel,
		log:     log,
	}
}

// NotifyRun posts a one-line summary. Delivery failures are logged and
// swallowed: notification must never fail a run.
func (n *Notifier) NotifyRun(ctx context.Context, summary model.RunSummary) {
	if n == nil {
		return
	}

	text := fmt.Sprintf("[%s] %s finished with status=%s processed=%d skipped=%d failed=%d in %s",
		summary.RunID, summary.Job, summary.Status,
		summary.Processed, summary.Skipped, summary.Failed,
		summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond))
	if summary.Error != "" {
		text += " error=" + summary.Error
	}

	_, _, err := n.client.PostMessageContext(ctx, n.channel, slackapi.MsgOptionText(text, false))
	if err != nil {
		n.log.WithError(err).Warn("slack notification failed")
	}
}
