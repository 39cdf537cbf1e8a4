package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/diaperwatch/diaperwatch-cli/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRetailerFailureRate AlertType = "retailer_failure_rate"
	AlertRetailerDown        AlertType = "retailer_down"
	AlertCatalogStale        AlertType = "catalog_stale"
)

// minRunsForRate is the number of runs a retailer needs in the window before
// its failure rate is judged.
const minRunsForRate = 3

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Retailer  string         `json:"retailer,omitempty"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg        config.MonitoringConfig
	staleAfter time.Duration
	client     *http.Client
}

// NewAlerter creates a new Alerter. staleAfter is the catalog age that
// raises AlertCatalogStale; zero disables the check.
func NewAlerter(cfg config.MonitoringConfig, staleAfter time.Duration) *Alerter {
	return &Alerter{
		cfg:        cfg,
		staleAfter: staleAfter,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := snap.CollectedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	for _, h := range snap.Retailers {
		// A retailer that is down gets one alert, not two.
		if reason, down := a.isDown(h); down {
			alerts = append(alerts, Alert{
				Type:     AlertRetailerDown,
				Severity: "high",
				Retailer: h.Retailer,
				Message:  fmt.Sprintf("%s scraper is down: %s", h.Retailer, reason),
				Details: map[string]any{
					"consecutive_failures": h.ConsecutiveFailures,
					"breaker":              h.Breaker,
					"last_error":           h.LastError,
				},
				Timestamp: now,
			})
			continue
		}

		if h.Runs >= minRunsForRate && a.cfg.FailureRateThreshold > 0 && h.FailRate > a.cfg.FailureRateThreshold {
			alerts = append(alerts, Alert{
				Type:     AlertRetailerFailureRate,
				Severity: "medium",
				Retailer: h.Retailer,
				Message: fmt.Sprintf(
					"%s failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d runs in last %dh)",
					h.Retailer, h.FailRate*100, a.cfg.FailureRateThreshold*100,
					h.Failed, h.Runs, snap.LookbackHours,
				),
				Details: map[string]any{
					"failure_rate": h.FailRate,
					"threshold":    a.cfg.FailureRateThreshold,
					"failed":       h.Failed,
					"runs":         h.Runs,
				},
				Timestamp: now,
			})
		}
	}

	if a.staleAfter > 0 {
		age := snap.CatalogAge()
		switch {
		case snap.LastSuccessfulRun.IsZero():
			alerts = append(alerts, Alert{
				Type:      AlertCatalogStale,
				Severity:  "high",
				Message:   "no successful scrape has been recorded",
				Timestamp: now,
			})
		case age > a.staleAfter:
			alerts = append(alerts, Alert{
				Type:     AlertCatalogStale,
				Severity: "high",
				Message: fmt.Sprintf("catalog is %s old, refresh expected every %s",
					age.Round(time.Minute), a.staleAfter),
				Details: map[string]any{
					"last_successful_run": snap.LastSuccessfulRun,
					"listings":            snap.ListingCount,
				},
				Timestamp: now,
			})
		}
	}

	return alerts
}

func (a *Alerter) isDown(h RetailerHealth) (string, bool) {
	if h.Breaker == "open" {
		return "circuit breaker open", true
	}
	if a.cfg.ConsecutiveFailures > 0 && h.ConsecutiveFailures >= a.cfg.ConsecutiveFailures {
		return fmt.Sprintf("%d consecutive failed runs", h.ConsecutiveFailures), true
	}
	return "", false
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.String("retailer", alert.Retailer),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("retailer", alert.Retailer),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
