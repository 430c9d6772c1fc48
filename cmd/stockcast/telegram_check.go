package main

import (
	"context"
	"fmt"
	"io"

	"github.com/go-telegram/bot"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/stockcast-go/internal/config"
	"github.com/irfndi/stockcast-go/internal/services"
)

// checkTelegram validates the notifier configuration against the Bot API
// and reports each step to w.
func checkTelegram(ctx context.Context, cfg config.TelegramConfig, logger *logrus.Logger, w io.Writer, opts ...bot.Option) error {
	fmt.Fprintln(w, "🔧 Validating Telegram notifier configuration...")

	if cfg.BotToken == "" {
		fmt.Fprintln(w, "❌ telegram.bot_token is not configured")
		return services.ErrNotifierDisabled
	}
	fmt.Fprintf(w, "✅ telegram.bot_token is configured (length: %d)\n", len(cfg.BotToken))

	if cfg.ChatID == 0 {
		fmt.Fprintln(w, "❌ telegram.chat_id is not configured")
		return services.ErrNotifierDisabled
	}
	fmt.Fprintf(w, "✅ telegram.chat_id is configured: %d\n", cfg.ChatID)

	notifier, err := services.NewTelegramNotifier(cfg, logger, opts...)
	if err != nil {
		fmt.Fprintf(w, "❌ %v\n", err)
		return err
	}

	fmt.Fprintln(w, "🔍 Testing bot API connection...")
	if err := notifier.Ping(ctx); err != nil {
		fmt.Fprintf(w, "❌ %v\n", err)
		return err
	}
	fmt.Fprintln(w, "✅ Bot API connection successful")
	return nil
}
