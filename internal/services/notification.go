package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/stockcast-go/internal/config"
	"github.com/irfndi/stockcast-go/internal/models"
)

// maxNotifiedItems caps the high-priority rows included in a run summary.
const maxNotifiedItems = 5

// TelegramNotifier posts a short run summary to one Telegram chat. It is a
// PredictionSink so it runs with the other exporters.
type TelegramNotifier struct {
	bot    *bot.Bot
	chatID int64
	logger *logrus.Logger
}

// NewTelegramNotifier creates a notifier. An empty token or chat ID yields a
// disabled notifier whose Write is a no-op.
func NewTelegramNotifier(cfg config.TelegramConfig, logger *logrus.Logger, opts ...bot.Option) (*TelegramNotifier, error) {
	n := &TelegramNotifier{chatID: cfg.ChatID, logger: logger}
	if cfg.BotToken == "" || cfg.ChatID == 0 {
		return n, nil
	}

	b, err := bot.New(cfg.BotToken, append([]bot.Option{bot.WithSkipGetMe()}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	n.bot = b
	return n, nil
}

// Enabled reports whether a bot is configured.
func (n *TelegramNotifier) Enabled() bool {
	return n.bot != nil
}

func (n *TelegramNotifier) Name() string { return "telegram" }

// Write sends the run summary.
func (n *TelegramNotifier) Write(ctx context.Context, report models.ForecastReport) error {
	if !n.Enabled() {
		return nil
	}

	_, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    n.chatID,
		Text:      formatRunSummary(report),
		ParseMode: tgmodels.ParseModeHTML,
	})
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}

	n.logger.WithFields(logrus.Fields{
		"run_id":  report.Summary.RunID,
		"chat_id": n.chatID,
	}).Info("Sent forecast summary notification")
	return nil
}

// formatRunSummary renders the executive summary and the top high-priority
// items as Telegram HTML.
func formatRunSummary(report models.ForecastReport) string {
	s := report.Summary
	var b strings.Builder

	fmt.Fprintf(&b, "📦 <b>Forecast ready: %s</b>\n", html.EscapeString(s.TargetPeriod))
	fmt.Fprintf(&b, "Run <code>%s</code>\n\n", html.EscapeString(s.RunID))
	fmt.Fprintf(&b, "Items: <b>%d</b>\n", s.TotalItems)
	fmt.Fprintf(&b, "Total quantity: <b>%d</b>\n", s.TotalPredictedQuantity)
	fmt.Fprintf(&b, "Estimated value: <b>%s</b>\n", s.TotalEstimatedValue.StringFixed(2))
	fmt.Fprintf(&b, "Average confidence: <b>%.1f%%</b>\n", s.AverageConfidence)
	fmt.Fprintf(&b, "Risk: %d high, %d medium, %d low\n",
		s.RiskDistribution[models.RiskHigh], s.RiskDistribution[models.RiskMedium], s.RiskDistribution[models.RiskLow])

	if len(report.HighPriorityItems) == 0 {
		b.WriteString("\nNo high-priority items.")
		return b.String()
	}

	b.WriteString("\n⚠️ <b>High priority</b>\n")
	top := report.HighPriorityItems
	if len(top) > maxNotifiedItems {
		top = top[:maxNotifiedItems]
	}
	for i, p := range top {
		fmt.Fprintf(&b, "%d. %s: %d %s (%s risk)\n",
			i+1, html.EscapeString(p.ItemName), p.FinalMonthlyQuantity, html.EscapeString(p.UOM), p.RiskLevel)
	}
	if extra := len(report.HighPriorityItems) - len(top); extra > 0 {
		fmt.Fprintf(&b, "...and %d more\n", extra)
	}
	return strings.TrimRight(b.String(), "\n")
}

// ErrNotifierDisabled is returned by Ping when no bot is configured.
var ErrNotifierDisabled = errors.New("telegram notifier disabled")

// Ping checks the bot credentials against the Telegram API.
func (n *TelegramNotifier) Ping(ctx context.Context) error {
	if !n.Enabled() {
		return ErrNotifierDisabled
	}
	if _, err := n.bot.GetMe(ctx); err != nil {
		return fmt.Errorf("telegram getMe failed: %w", err)
	}
	return nil
}
