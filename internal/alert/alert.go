// Package alert watches portfolio risk snapshots and keeps an append-only
// log of advisory alerts.
package alert

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/web3-frozen/yield-guardian/internal/metrics"
	"github.com/web3-frozen/yield-guardian/internal/risk"
)

// Severity ranks alerts.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Kind classifies what triggered an alert.
type Kind string

const (
	KindHighRisk      Kind = "HIGH_RISK"
	KindElevatedRisk  Kind = "ELEVATED_RISK"
	KindConcentration Kind = "CONCENTRATION_RISK"
	KindVenueRisk     Kind = "PROTOCOL_RISK_CHANGE"
)

// Alert is immutable once created.
type Alert struct {
	ID             string    `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	Severity       Severity  `json:"severity"`
	Kind           Kind      `json:"kind"`
	Message        string    `json:"message"`
	Recommendation string    `json:"recommendation"`
}

// Thresholds configure when alerts fire. Scores are on the 0-100 scale and
// ConcentrationLimit is a 0-100 percentage.
type Thresholds struct {
	HighRiskScore      int     `json:"high_risk_score"`
	CriticalRiskScore  int     `json:"critical_risk_score"`
	ConcentrationLimit float64 `json:"concentration_limit"`
	VenueRiskChange    float64 `json:"venue_risk_change"`
}

// DefaultThresholds returns 50/70 for score alerts, 60% concentration and a
// 10 point venue risk change.
func DefaultThresholds() Thresholds {
	return Thresholds{
		HighRiskScore:      50,
		CriticalRiskScore:  70,
		ConcentrationLimit: 60,
		VenueRiskChange:    10,
	}
}

// Notifier delivers alert text to operators.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// System holds the alert log. Identical checks produce identical repeated
// alerts; nothing is deduplicated.
type System struct {
	mu         sync.RWMutex
	alerts     []Alert
	thresholds Thresholds
	notifier   Notifier
	logger     *slog.Logger
	now        func() time.Time
}

// NewSystem creates a System. notifier may be nil.
func NewSystem(th Thresholds, notifier Notifier, logger *slog.Logger) *System {
	if logger == nil {
		logger = slog.Default()
	}
	return &System{thresholds: th, notifier: notifier, logger: logger, now: time.Now}
}

// SetNotifier replaces the notifier. Call it before the first Dispatch.
func (s *System) SetNotifier(n Notifier) { s.notifier = n }

// Thresholds returns the configured thresholds.
func (s *System) Thresholds() Thresholds { return s.thresholds }

// CheckPortfolio raises a CRITICAL or HIGH score alert and one HIGH
// concentration alert per position at or above the concentration limit.
// The new alerts are appended to the log and returned.
func (s *System) CheckPortfolio(totalScore int, positions []risk.PortfolioPosition) []Alert {
	now := s.now()
	var out []Alert

	switch {
	case totalScore >= s.thresholds.CriticalRiskScore:
		out = append(out, s.newAlert(now, SeverityCritical, KindHighRisk,
			fmt.Sprintf("Portfolio risk score is critically high (%d/100)", totalScore),
			"Immediately reduce exposure to high-risk protocols or diversify."))
	case totalScore >= s.thresholds.HighRiskScore:
		out = append(out, s.newAlert(now, SeverityHigh, KindElevatedRisk,
			fmt.Sprintf("Portfolio risk score is elevated (%d/100)", totalScore),
			"Consider rebalancing to lower-risk protocols."))
	}

	for _, p := range positions {
		if p.Percentage >= s.thresholds.ConcentrationLimit {
			out = append(out, s.newAlert(now, SeverityHigh, KindConcentration,
				fmt.Sprintf("Overconcentrated in %s (%.1f%%)", p.Venue, p.Percentage),
				fmt.Sprintf("Diversify to reduce %s exposure below %g%%.", p.Venue, s.thresholds.ConcentrationLimit)))
		}
	}

	s.append(out)
	return out
}

// CheckVenueRisk raises a MEDIUM alert when a venue's own risk score moved
// by more than the configured change since the previous reading.
func (s *System) CheckVenueRisk(venue string, previous, current risk.Score) []Alert {
	delta := float64(current - previous)
	if math.Abs(delta) <= s.thresholds.VenueRiskChange {
		return nil
	}
	direction := "rose"
	if delta < 0 {
		direction = "fell"
	}
	a := s.newAlert(s.now(), SeverityMedium, KindVenueRisk,
		fmt.Sprintf("%s risk score %s from %g to %g", venue, direction, float64(previous), float64(current)),
		fmt.Sprintf("Review %s exposure before the next rebalance.", venue))
	out := []Alert{a}
	s.append(out)
	return out
}

func (s *System) newAlert(now time.Time, sev Severity, kind Kind, msg, rec string) Alert {
	metrics.AlertsRaisedTotal.WithLabelValues(string(sev), string(kind)).Inc()
	return Alert{
		ID:             uuid.NewString(),
		Timestamp:      now,
		Severity:       sev,
		Kind:           kind,
		Message:        msg,
		Recommendation: rec,
	}
}

func (s *System) append(alerts []Alert) {
	if len(alerts) == 0 {
		return
	}
	s.mu.Lock()
	s.alerts = append(s.alerts, alerts...)
	s.mu.Unlock()
}

// ActiveAlerts returns alerts younger than maxAge, oldest first.
func (s *System) ActiveAlerts(maxAge time.Duration) []Alert {
	cutoff := s.now().Add(-maxAge)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		if a.Timestamp.After(cutoff) {
			out = append(out, a)
		}
	}
	return out
}

// ClearOldAlerts drops alerts older than maxAge and reports how many were
// removed.
func (s *System) ClearOldAlerts(maxAge time.Duration) int {
	cutoff := s.now().Add(-maxAge)
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.alerts[:0]
	for _, a := range s.alerts {
		if a.Timestamp.After(cutoff) {
			kept = append(kept, a)
		}
	}
	removed := len(s.alerts) - len(kept)
	clear(s.alerts[len(kept):])
	s.alerts = kept
	return removed
}

// Stats summarises alerts younger than maxAge.
type Stats struct {
	Total      int              `json:"total"`
	BySeverity map[Severity]int `json:"by_severity"`
	ByKind     map[Kind]int     `json:"by_kind"`
}

// Stats counts active alerts by severity and kind.
func (s *System) Stats(maxAge time.Duration) Stats {
	active := s.ActiveAlerts(maxAge)
	st := Stats{
		Total:      len(active),
		BySeverity: make(map[Severity]int),
		ByKind:     make(map[Kind]int),
	}
	for _, a := range active {
		st.BySeverity[a.Severity]++
		st.ByKind[a.Kind]++
	}
	return st
}

// Dispatch sends alerts through the notifier. Delivery failures are logged
// and counted, never returned.
func (s *System) Dispatch(ctx context.Context, alerts []Alert) {
	for _, a := range alerts {
		if s.notifier == nil {
			s.logger.Info("alert", "severity", a.Severity, "kind", a.Kind, "message", a.Message)
			continue
		}
		if err := s.notifier.Notify(ctx, Format(a)); err != nil {
			metrics.AlertsFailedTotal.WithLabelValues(string(a.Kind)).Inc()
			s.logger.Error("alert delivery failed", "id", a.ID, "kind", a.Kind, "error", err)
			continue
		}
		metrics.AlertsSentTotal.WithLabelValues(string(a.Kind)).Inc()
	}
}

// Format renders an alert as a Telegram HTML message.
func Format(a Alert) string {
	icon := "⚠️"
	if a.Severity == SeverityCritical {
		icon = "🚨"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>[%s] %s</b>\n\n", icon, a.Severity, strings.ReplaceAll(string(a.Kind), "_", " "))
	b.WriteString(html.EscapeString(a.Message))
	b.WriteString("\n\n💡 ")
	b.WriteString(html.EscapeString(a.Recommendation))
	return b.String()
}
