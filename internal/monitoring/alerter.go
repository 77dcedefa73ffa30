// Package monitoring turns a finished run summary into webhook alerts.
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

	"github.com/sells-group/schoolscrape/internal/config"
	"github.com/sells-group/schoolscrape/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRegionFailureRate AlertType = "region_failure_rate"
	AlertDetailFailureRate AlertType = "detail_failure_rate"
	AlertRunCancelled      AlertType = "run_cancelled"
)

// minDetailSample is the fewest detail records a run needs before its
// FAILED share is judged.
const minDetailSample = 50

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	RunID     string         `json:"run_id"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a RunSummary against configured thresholds
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

// Evaluate checks the summary against thresholds and returns any alerts.
func (a *Alerter) Evaluate(s *model.RunSummary) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	attempted := len(s.Regions) - s.Pending()
	if attempted > 0 {
		rate := float64(s.Failed()) / float64(attempted)
		if rate > a.cfg.RegionFailureThreshold {
			alerts = append(alerts, Alert{
				Type:     AlertRegionFailureRate,
				Severity: "high",
				RunID:    s.ID,
				Message: fmt.Sprintf(
					"Region failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d attempted)",
					rate*100, a.cfg.RegionFailureThreshold*100, s.Failed(), attempted,
				),
				Details: map[string]any{
					"failure_rate":   rate,
					"threshold":      a.cfg.RegionFailureThreshold,
					"failed_regions": s.FailedNames(),
				},
				Timestamp: now,
			})
		}
	}

	hist := s.Statuses()
	total := hist[model.StatusSuccess] + hist[model.StatusPartial] + hist[model.StatusFailed]
	if a.cfg.DetailFailureThreshold > 0 && total >= minDetailSample {
		rate := float64(hist[model.StatusFailed]) / float64(total)
		if rate > a.cfg.DetailFailureThreshold {
			alerts = append(alerts, Alert{
				Type:     AlertDetailFailureRate,
				Severity: "medium",
				RunID:    s.ID,
				Message: fmt.Sprintf(
					"%.1f%% of detail pages yielded nothing (%d of %d); selectors may be stale",
					rate*100, hist[model.StatusFailed], total,
				),
				Details: map[string]any{
					"failed":    hist[model.StatusFailed],
					"partial":   hist[model.StatusPartial],
					"success":   hist[model.StatusSuccess],
					"threshold": a.cfg.DetailFailureThreshold,
				},
				Timestamp: now,
			})
		}
	}

	if s.Cancelled {
		alerts = append(alerts, Alert{
			Type:     AlertRunCancelled,
			Severity: "low",
			RunID:    s.ID,
			Message:  fmt.Sprintf("Run cancelled with %d region(s) not attempted", s.Pending()),
			Details: map[string]any{
				"pending": s.Pending(),
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
