package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-telegram/bot"

	"pagerduty-analytics/internal/config"
	"pagerduty-analytics/internal/logging"
	"pagerduty-analytics/internal/models"
	"pagerduty-analytics/pkg/email"
)

// Notifier announces finished sync runs over the configured channels.
// Channels with no configuration are skipped silently.
type Notifier struct {
	telegram *bot.Bot
	chatIDs  []int64
	email    config.EmailConfig
	logger   *logging.Logger
}

func New(telegramCfg config.TelegramConfig, emailCfg config.EmailConfig, logger *logging.Logger) (*Notifier, error) {
	n := &Notifier{chatIDs: telegramCfg.ChatIDs, email: emailCfg, logger: logger}
	if telegramCfg.BotToken != "" {
		b, err := bot.New(telegramCfg.BotToken)
		if err != nil {
			return nil, fmt.Errorf("failed to create telegram bot: %w", err)
		}
		n.telegram = b
	}
	return n, nil
}

// RunFinished formats and sends the run summary. Intended as the sync
// service's OnFinished callback.
func (n *Notifier) RunFinished(run models.RunSummary) {
	subject := fmt.Sprintf("Sync run %s: %s", run.ID, run.State)
	body := formatRun(run)

	if n.telegram != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, chatID := range n.chatIDs {
			_, err := n.telegram.SendMessage(ctx, &bot.SendMessageParams{
				ChatID: chatID,
				Text:   subject + "\n" + body,
			})
			if err != nil {
				n.logger.Errorf("Failed to send telegram notification to chat %d: %v", chatID, err)
			}
		}
	}

	if n.email.SMTPServer != "" && n.email.Recipient != "" {
		err := email.Send(n.email.SMTPServer, n.email.SMTPPort, n.email.Username, n.email.Password,
			n.email.Recipient, subject, body)
		if err != nil {
			n.logger.Errorf("Failed to send email notification: %v", err)
		}
	}
}

func formatRun(run models.RunSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Started: %s\n", run.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Finished: %s\n", run.FinishedAt.Format(time.RFC3339))

	resources := make([]string, 0, len(run.Stages))
	for resource := range run.Stages {
		resources = append(resources, resource)
	}
	sort.Strings(resources)
	for _, resource := range resources {
		st := run.Stages[resource]
		fmt.Fprintf(&b, "%s: %s (fetched %d, upserted %d, skipped %d, failed %d)\n",
			resource, st.Status, st.Fetched, st.Upserted, st.Skipped, st.Failed)
	}
	if run.DroppedLinks > 0 {
		fmt.Fprintf(&b, "Dropped links: %d\n", run.DroppedLinks)
	}
	if run.LinkFailures > 0 {
		fmt.Fprintf(&b, "Link failures: %d\n", run.LinkFailures)
	}
	return b.String()
}
