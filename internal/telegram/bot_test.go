package telegram

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/web3-frozen/yield-guardian/internal/agent"
	"github.com/web3-frozen/yield-guardian/internal/alert"
)

type sent struct {
	ChatID    int64  `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

type fakeAPI struct {
	mu       sync.Mutex
	messages []sent
	failChat int64
}

func (f *fakeAPI) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/sendMessage") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var m sent
		if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
			t.Errorf("decode: %v", err)
		}
		if m.ChatID == f.failChat {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"ok":false,"description":"bot was blocked by the user"}`))
			return
		}
		f.mu.Lock()
		f.messages = append(f.messages, m)
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"ok":true}`))
	}
}

func newTestBot(t *testing.T, api *fakeAPI, chats []int64) *Bot {
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)
	b := NewBot("TOKEN", chats, nil, nil, slog.Default())
	b.apiBase = srv.URL + "/bot"
	return b
}

func TestNotifyAllChats(t *testing.T) {
	api := &fakeAPI{}
	b := newTestBot(t, api, []int64{11, 22})

	if err := b.Notify(context.Background(), "<b>hi</b>"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(api.messages) != 2 {
		t.Fatalf("sent %d messages, want 2", len(api.messages))
	}
	if api.messages[0].ChatID != 11 || api.messages[1].ChatID != 22 {
		t.Errorf("chat ids = %d, %d", api.messages[0].ChatID, api.messages[1].ChatID)
	}
	if api.messages[0].ParseMode != "HTML" {
		t.Errorf("parse_mode = %q", api.messages[0].ParseMode)
	}
}

func TestNotifyPartialFailure(t *testing.T) {
	api := &fakeAPI{failChat: 22}
	b := newTestBot(t, api, []int64{11, 22, 33})

	err := b.Notify(context.Background(), "x")
	if err == nil || !strings.Contains(err.Error(), "blocked") || !strings.Contains(err.Error(), "chat 22") {
		t.Errorf("err = %v", err)
	}
	if len(api.messages) != 2 {
		t.Errorf("other chats should still receive the message, sent %d", len(api.messages))
	}
}

func TestNotifyNoChats(t *testing.T) {
	b := newTestBot(t, &fakeAPI{}, nil)
	if err := b.Notify(context.Background(), "x"); err == nil {
		t.Error("expected error without chats")
	}
}

type fakeStatus struct{ st agent.Status }

func (f fakeStatus) Status() agent.Status { return f.st }

type fakeAlerts []alert.Alert

func (f fakeAlerts) ActiveAlerts(time.Duration) []alert.Alert { return f }

func TestReplyCommands(t *testing.T) {
	b := NewBot("TOKEN", nil,
		fakeStatus{agent.Status{State: agent.StateIdle, Cycles: 3}},
		fakeAlerts{{Severity: alert.SeverityHigh, Message: "Overconcentrated in A<B (70.0%)"}},
		slog.Default())

	tests := []struct {
		cmd  string
		want string
	}{
		{"/start", "<code>42</code>"},
		{"/help", "/alerts"},
		{"/status", "Cycles run: 3"},
		{"/alerts", "[HIGH] Overconcentrated in A&lt;B (70.0%)"},
		{"hello", "Unknown command"},
	}
	for _, tt := range tests {
		if got := b.reply(42, tt.cmd); !strings.Contains(got, tt.want) {
			t.Errorf("reply(%q) = %q, want substring %q", tt.cmd, got, tt.want)
		}
	}
}

func TestReplyWithoutSources(t *testing.T) {
	b := NewBot("TOKEN", nil, nil, fakeAlerts{}, slog.Default())
	if got := b.reply(1, "/status"); !strings.Contains(got, "not available") {
		t.Errorf("status = %q", got)
	}
	if got := b.reply(1, "/alerts"); !strings.Contains(got, "No alerts") {
		t.Errorf("alerts = %q", got)
	}
}
