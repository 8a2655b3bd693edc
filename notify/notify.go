package notify

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"eventsync/scanner"
)

// Notifier posts a scan summary to a Telegram chat. Optional: a nil
// Notifier is a valid no-op.
type Notifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// New creates a Notifier, or nil when no token is configured.
func New(token string, chatID int64) (*Notifier, error) {
	if token == "" || chatID == 0 {
		return nil, nil
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	return &Notifier{bot: bot, chatID: chatID}, nil
}

// NotifyScan sends the per-outcome counts of one scan. Only scans that
// touched the calendar produce a message; all-quiet scans stay silent.
func (n *Notifier) NotifyScan(summary *scanner.Summary) error {
	if n == nil {
		return nil
	}
	registered := summary.Counts[scanner.OutcomeRegistered]
	updated := summary.Counts[scanner.OutcomeUpdated]
	if registered == 0 && updated == 0 {
		return nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Event scan: %d fetched\n", summary.Fetched)
	fmt.Fprintf(&sb, "registered: %d, updated: %d\n", registered, updated)
	for _, r := range summary.Results {
		if r.Outcome == scanner.OutcomeRegistered || r.Outcome == scanner.OutcomeUpdated {
			fmt.Fprintf(&sb, "- %s\n", r.Title)
		}
	}

	msg := tgbotapi.NewMessage(n.chatID, sb.String())
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("send summary: %w", err)
	}
	return nil
}
