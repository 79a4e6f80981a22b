package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JoshuaOlubori/truemeds-v2/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertOracleDegradedRate AlertType = "oracle_degraded_rate"
	AlertNoScanTraffic      AlertType = "no_scan_traffic"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds and
// sends alerts via webhook when thresholds are breached.
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

	// Degraded verdicts mean the oracle is failing behind the fallback.
	// Small windows are too noisy to judge.
	if snap.ScansTotal >= 5 && snap.DegradedRate > a.cfg.DegradedRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertOracleDegradedRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Degraded classification rate %.1f%% exceeds threshold %.1f%% (%d of %d scans in last %dh)",
				snap.DegradedRate*100, a.cfg.DegradedRateThreshold*100,
				snap.ScansDegraded, snap.ScansTotal, snap.LookbackHours,
			),
			Details: map[string]any{
				"degraded_rate": snap.DegradedRate,
				"threshold":     a.cfg.DegradedRateThreshold,
				"degraded":      snap.ScansDegraded,
				"total":         snap.ScansTotal,
			},
			Timestamp: now,
		})
	}

	if a.cfg.AlertOnZeroTraffic && snap.ScansTotal == 0 {
		alerts = append(alerts, Alert{
			Type:     AlertNoScanTraffic,
			Severity: "medium",
			Message:  fmt.Sprintf("No scans received in last %dh", snap.LookbackHours),
			Details: map[string]any{
				"lookback_hours": snap.LookbackHours,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL. Without a
// webhook, alerts are logged only. Returns the number delivered.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	for _, alert := range alerts {
		zap.L().Warn("alert raised",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
			zap.String("message", alert.Message),
		)
	}

	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		payload, err := json.Marshal(alert)
		if err != nil {
			zap.L().Error("marshal alert", zap.Error(err))
			continue
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
		if err != nil {
			zap.L().Error("build alert request", zap.Error(err))
			continue
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := a.client.Do(req)
		if err != nil {
			zap.L().Error("send alert", zap.Error(err))
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 300 {
			zap.L().Error("alert webhook rejected",
				zap.Int("status", resp.StatusCode),
				zap.String("type", string(alert.Type)),
			)
			continue
		}
		sent++
	}
	return sent
}
