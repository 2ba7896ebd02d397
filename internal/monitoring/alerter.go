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

	"github.com/ncov-ph/ncov-cli/internal/config"
	"github.com/ncov-ph/ncov-cli/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRunFailed       AlertType = "run_failed"
	AlertDatasetFailures AlertType = "dataset_failures"
	AlertFailureRate     AlertType = "run_failure_rate"
)

// minFinishedRuns is the number of finished runs needed before the failure
// rate is judged.
const minFinishedRuns = 5

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	RunID     string         `json:"run_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a finished run and the recent run log against the
// configured thresholds and posts alerts to a webhook.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	now    func() time.Time
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

// Enabled reports whether a webhook is configured.
func (a *Alerter) Enabled() bool {
	return a.cfg.WebhookURL != ""
}

// Evaluate returns the alerts raised by run. snap may be nil, in which case
// the failure rate is not checked.
func (a *Alerter) Evaluate(run *model.IngestRun, snap *RunSummary) []Alert {
	var alerts []Alert
	now := a.now().UTC()

	if run != nil {
		switch run.Status {
		case model.RunStatusFailed:
			alerts = append(alerts, Alert{
				Type:      AlertRunFailed,
				Severity:  "high",
				Message:   fmt.Sprintf("Ingestion run %s failed: %s", run.ID, run.Error),
				RunID:     run.ID,
				Timestamp: now,
			})
		case model.RunStatusPartial:
			failed := run.Failed()
			errs := make(map[string]string, len(failed))
			for _, o := range failed {
				errs[o.Dataset] = fmt.Sprintf("[%s] %s", o.Stage, o.Error)
			}
			alerts = append(alerts, Alert{
				Type:     AlertDatasetFailures,
				Severity: "medium",
				Message: fmt.Sprintf("%d of %d dataset(s) failed in run %s",
					len(failed), len(run.Outcomes), run.ID),
				RunID:     run.ID,
				Details:   map[string]any{"errors": errs, "inserted": run.Inserted()},
				Timestamp: now,
			})
		}
	}

	if snap == nil {
		return alerts
	}
	finished := snap.Complete + snap.Partial + snap.Failed
	if finished >= minFinishedRuns && snap.FailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Run failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %d runs)",
				snap.FailRate*100, a.cfg.FailureRateThreshold*100,
				snap.Failed, finished, snap.Total,
			),
			Details: map[string]any{
				"failure_rate":     snap.FailRate,
				"threshold":        a.cfg.FailureRateThreshold,
				"failed":           snap.Failed,
				"finished":         finished,
				"failing_datasets": snap.FailingDatasets,
			},
			Timestamp: now,
		})
	}
	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if !a.Enabled() || len(alerts) == 0 {
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
