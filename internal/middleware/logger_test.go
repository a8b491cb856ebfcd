package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLoggerLevels(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		status    int
		wantLevel string
	}{
		{"ok", "/api/alerts", http.StatusOK, "INFO"},
		{"client error", "/api/limits", http.StatusBadRequest, "WARN"},
		{"server error", "/api/agent/cycle", http.StatusBadGateway, "ERROR"},
		{"failing probe", "/readyz", http.StatusServiceUnavailable, "ERROR"},
		{"healthy probe", "/healthz", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))
			h := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

			if tt.wantLevel == "" {
				if buf.Len() != 0 {
					t.Errorf("expected no log line, got %s", buf.String())
				}
				return
			}
			var line map[string]any
			if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
				t.Fatalf("decode log line %q: %v", buf.String(), err)
			}
			if line["level"] != tt.wantLevel {
				t.Errorf("level = %v, want %s", line["level"], tt.wantLevel)
			}
			if line["path"] != tt.path || line["status"] != float64(tt.status) {
				t.Errorf("line = %v", line)
			}
		})
	}
}
