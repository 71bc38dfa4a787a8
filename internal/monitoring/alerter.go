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

	"github.com/triagehq/triage-cli/internal/config"
	"github.com/triagehq/triage-cli/internal/jobs"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertFallbackRate AlertType = "fallback_rate"
	AlertJobFailures  AlertType = "job_failures"
	AlertCostOverrun  AlertType = "cost_overrun"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	// Fallback rate: a high share of Failed tickets means the oracle is
	// misbehaving even though every item still produced a ticket.
	if snap.TicketsTotal >= 5 && snap.FallbackRate > a.cfg.FallbackRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertFallbackRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Fallback rate %.1f%% exceeds threshold %.1f%% (%d fallback / %d tickets)",
				snap.FallbackRate*100, a.cfg.FallbackRateThreshold*100,
				snap.FallbackTickets, snap.TicketsTotal,
			),
			Details: map[string]any{
				"fallback_rate":    snap.FallbackRate,
				"threshold":        a.cfg.FallbackRateThreshold,
				"fallback_tickets": snap.FallbackTickets,
				"tickets_total":    snap.TicketsTotal,
			},
			Timestamp: now,
		})
	}

	// Failed jobs: a run that died wholesale, not item-level fallbacks.
	if failed := snap.JobsByStatus[string(jobs.StatusFailed)]; failed > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertJobFailures,
			Severity: "high",
			Message:  fmt.Sprintf("%d triage job(s) in failed state", failed),
			Details: map[string]any{
				"failed_jobs": failed,
			},
			Timestamp: now,
		})
	}

	// Cost overrun on the most recent run.
	if a.cfg.CostThresholdUSD > 0 && snap.LastRun != nil && snap.LastRun.EstimatedCostUSD > a.cfg.CostThresholdUSD {
		alerts = append(alerts, Alert{
			Type:     AlertCostOverrun,
			Severity: "high",
			Message: fmt.Sprintf(
				"Run %s cost $%.2f exceeds threshold $%.2f",
				snap.LastRun.RunID, snap.LastRun.EstimatedCostUSD, a.cfg.CostThresholdUSD,
			),
			Details: map[string]any{
				"run_id":        snap.LastRun.RunID,
				"cost_usd":      snap.LastRun.EstimatedCostUSD,
				"threshold_usd": a.cfg.CostThresholdUSD,
			},
			Timestamp: now,
		})
	}

	return alerts
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
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
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
