package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/stockcast-go/internal/config"
	"github.com/irfndi/stockcast-go/internal/logging"
	"github.com/irfndi/stockcast-go/internal/models"
)

const testBotToken = "123456:TEST-token"

// fakeTelegram records sendMessage calls and answers like the Bot API.
type fakeTelegram struct {
	mu       sync.Mutex
	texts    []string
	chatIDs  []string
	failWith string
}

func (f *fakeTelegram) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			require.NoError(t, r.ParseMultipartForm(1<<20))
			f.mu.Lock()
			f.texts = append(f.texts, r.FormValue("text"))
			f.chatIDs = append(f.chatIDs, r.FormValue("chat_id"))
			fail := f.failWith
			f.mu.Unlock()
			if fail != "" {
				w.WriteHeader(http.StatusBadRequest)
				fmt.Fprintf(w, `{"ok":false,"error_code":400,"description":%q}`, fail)
				return
			}
			fmt.Fprint(w, `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`)
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			fmt.Fprint(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"stockcast"}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"ok":false,"error_code":404,"description":"Not Found"}`)
		}
	}
}

func newTestNotifier(t *testing.T, fake *fakeTelegram) *TelegramNotifier {
	t.Helper()
	server := httptest.NewServer(fake.handler(t))
	t.Cleanup(server.Close)

	n, err := NewTelegramNotifier(config.TelegramConfig{BotToken: testBotToken, ChatID: 42},
		logging.NewDiscardLogger(), bot.WithServerURL(server.URL))
	require.NoError(t, err)
	return n
}

func notifiedReport(highPriority int) models.ForecastReport {
	report := models.ForecastReport{
		Summary: models.ExecutiveSummary{
			RunID:                  "run-7",
			TargetPeriod:           "Jun",
			TotalItems:             12,
			TotalPredictedQuantity: 840,
			AverageConfidence:      61.3,
			RiskDistribution:       map[models.RiskLevel]int{models.RiskHigh: 3, models.RiskMedium: 4, models.RiskLow: 5},
			TotalEstimatedValue:    decimal.RequireFromString("1234.5"),
		},
	}
	for i := 0; i < highPriority; i++ {
		report.HighPriorityItems = append(report.HighPriorityItems, models.Prediction{
			ItemName:             fmt.Sprintf("Item <%d>", i),
			UOM:                  "PCS",
			FinalMonthlyQuantity: 100 - i,
			RiskLevel:            models.RiskHigh,
		})
	}
	return report
}

func TestNewTelegramNotifier_Disabled(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.TelegramConfig
	}{
		{"no token", config.TelegramConfig{ChatID: 42}},
		{"no chat", config.TelegramConfig{BotToken: testBotToken}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := NewTelegramNotifier(tt.cfg, logging.NewDiscardLogger())
			require.NoError(t, err)
			assert.False(t, n.Enabled())
			assert.Equal(t, "telegram", n.Name())
			assert.NoError(t, n.Write(context.Background(), notifiedReport(1)))
			assert.ErrorIs(t, n.Ping(context.Background()), ErrNotifierDisabled)
		})
	}
}

func TestTelegramNotifier_Write(t *testing.T) {
	fake := &fakeTelegram{}
	n := newTestNotifier(t, fake)
	require.True(t, n.Enabled())

	require.NoError(t, n.Write(context.Background(), notifiedReport(2)))

	require.Len(t, fake.texts, 1)
	assert.Equal(t, "42", fake.chatIDs[0])
	text := fake.texts[0]
	assert.Contains(t, text, "Forecast ready: Jun")
	assert.Contains(t, text, "Estimated value: <b>1234.50</b>")
	assert.Contains(t, text, "Risk: 3 high, 4 medium, 5 low")
	assert.Contains(t, text, "1. Item &lt;0&gt;: 100 PCS (High risk)")
	assert.NotContains(t, text, "more")
}

func TestTelegramNotifier_WriteError(t *testing.T) {
	fake := &fakeTelegram{failWith: "Bad Request: chat not found"}
	n := newTestNotifier(t, fake)

	err := n.Write(context.Background(), notifiedReport(0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to send telegram message")
}

func TestTelegramNotifier_Ping(t *testing.T) {
	n := newTestNotifier(t, &fakeTelegram{})
	assert.NoError(t, n.Ping(context.Background()))
}

func TestFormatRunSummary(t *testing.T) {
	t.Run("no priority items", func(t *testing.T) {
		msg := formatRunSummary(notifiedReport(0))
		assert.Contains(t, msg, "Run <code>run-7</code>")
		assert.Contains(t, msg, "Average confidence: <b>61.3%</b>")
		assert.True(t, strings.HasSuffix(msg, "No high-priority items."))
	})

	t.Run("truncated list", func(t *testing.T) {
		msg := formatRunSummary(notifiedReport(8))
		assert.Contains(t, msg, "5. Item &lt;4&gt;: 96 PCS")
		assert.NotContains(t, msg, "Item &lt;5&gt;")
		assert.True(t, strings.HasSuffix(msg, "...and 3 more"))
	})
}
