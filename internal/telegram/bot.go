package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/web3-frozen/yield-guardian/internal/agent"
	"github.com/web3-frozen/yield-guardian/internal/alert"
)

const telegramAPI = "https://api.telegram.org/bot"

// StatusSource reports the guard runner state.
type StatusSource interface {
	Status() agent.Status
}

// AlertLog exposes recent alerts.
type AlertLog interface {
	ActiveAlerts(maxAge time.Duration) []alert.Alert
}

type Bot struct {
	token   string
	chatIDs []int64
	apiBase string
	status  StatusSource
	alerts  AlertLog
	logger  *slog.Logger
	client  *http.Client
	offset  int64
}

// NewBot creates a bot that delivers alerts to chatIDs. status and alerts
// back the /status and /alerts commands and may be nil.
func NewBot(token string, chatIDs []int64, status StatusSource, alerts AlertLog, logger *slog.Logger) *Bot {
	return &Bot{
		token:   token,
		chatIDs: chatIDs,
		apiBase: telegramAPI,
		status:  status,
		alerts:  alerts,
		logger:  logger,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Notify sends text to every configured chat.
func (b *Bot) Notify(ctx context.Context, text string) error {
	if len(b.chatIDs) == 0 {
		return errors.New("no telegram chats configured")
	}
	var errs []error
	for _, id := range b.chatIDs {
		if err := b.SendMessage(ctx, id, text); err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// SendMessage sends a text message to a Telegram chat.
func (b *Bot) SendMessage(ctx context.Context, chatID int64, text string) error {
	payload := map[string]interface{}{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.apiBase+b.token+"/sendMessage", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Description string `json:"description"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return fmt.Errorf("telegram API error %d: %s", resp.StatusCode, errResp.Description)
	}
	return nil
}

// Run starts the long-polling loop for incoming Telegram messages.
func (b *Bot) Run(ctx context.Context) {
	b.logger.Info("telegram bot started")
	for {
		select {
		case <-ctx.Done():
			return
		default:
			b.poll(ctx)
		}
	}
}

func (b *Bot) poll(ctx context.Context) {
	url := fmt.Sprintf("%s%s/getUpdates?offset=%d&timeout=30", b.apiBase, b.token, b.offset)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		b.logger.Error("create poll request", "error", err)
		return
	}

	resp, err := b.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		b.logger.Error("poll updates", "error", err)
		select {
		case <-ctx.Done():
		case <-time.After(5 * time.Second):
		}
		return
	}
	defer resp.Body.Close()

	var result struct {
		OK     bool `json:"ok"`
		Result []struct {
			UpdateID int64 `json:"update_id"`
			Message  *struct {
				Chat struct {
					ID int64 `json:"id"`
				} `json:"chat"`
				Text string `json:"text"`
			} `json:"message"`
		} `json:"result"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		b.logger.Error("decode updates", "error", err)
		return
	}

	for _, u := range result.Result {
		b.offset = u.UpdateID + 1
		if u.Message == nil {
			continue
		}
		chatID := u.Message.Chat.ID
		if err := b.SendMessage(ctx, chatID, b.reply(chatID, strings.TrimSpace(u.Message.Text))); err != nil {
			b.logger.Error("reply failed", "chat_id", chatID, "error", err)
		}
	}
}

func (b *Bot) reply(chatID int64, text string) string {
	switch text {
	case "/start":
		return fmt.Sprintf("👋 Welcome to Yield Guardian!\n\n"+
			"Your chat id: <code>%d</code>\n\n"+
			"Add it to TELEGRAM_CHAT_IDS to receive risk alerts.", chatID)
	case "/help":
		return "🤖 <b>Yield Guardian Bot</b>\n\n" +
			"Commands:\n" +
			"/start - Show your chat id\n" +
			"/status - Guard cycle status\n" +
			"/alerts - Alerts from the last 24 hours\n" +
			"/help - Show this message"
	case "/status":
		return b.statusText()
	case "/alerts":
		return b.alertsText()
	default:
		return "Unknown command. Send /help for available commands."
	}
}

func (b *Bot) statusText() string {
	if b.status == nil {
		return "Status is not available."
	}
	st := b.status.Status()
	msg := fmt.Sprintf("📊 <b>Guard status</b>\n\nState: %s\nCycles run: %d\n", st.State, st.Cycles)
	if c := st.LastCycle; c != nil {
		msg += fmt.Sprintf("\nLast cycle: %s\nOutcome: %s\nRisk score: %d/100 (%s)\n",
			c.FinishedAt.UTC().Format(time.RFC3339), c.Outcome, c.Risk.TotalScore, c.Risk.Level)
		if c.Decision != nil {
			msg += fmt.Sprintf("Decision: %s\n", c.Decision.Reason)
		}
	}
	return msg
}

func (b *Bot) alertsText() string {
	if b.alerts == nil {
		return "Alerts are not available."
	}
	active := b.alerts.ActiveAlerts(24 * time.Hour)
	if len(active) == 0 {
		return "✅ No alerts in the last 24 hours."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "🔔 <b>%d alert(s) in the last 24 hours</b>\n\n", len(active))
	for _, a := range active {
		fmt.Fprintf(&sb, "• [%s] %s\n", a.Severity, html.EscapeString(a.Message))
	}
	return sb.String()
}
