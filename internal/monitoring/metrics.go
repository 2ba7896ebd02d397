// Package monitoring exports ingestion run metrics and summarizes the run log.
package monitoring

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/rotisserie/eris"

	"github.com/ncov-ph/ncov-cli/internal/model"
)

const namespace = "ncov"

// Fallback kinds counted by FallbacksTotal.
const (
	FallbackLocation = "location"
	FallbackDate     = "date"
)

// Metrics holds the Prometheus collectors for one process. A CLI invocation
// is short-lived, so metrics are pushed rather than scraped.
type Metrics struct {
	RecordsFetched  *prometheus.CounterVec
	RecordsInserted *prometheus.CounterVec
	DatasetFailures *prometheus.CounterVec
	Fallbacks       *prometheus.CounterVec
	RunDuration     prometheus.Gauge
	LastRunStatus   *prometheus.GaugeVec
	LastSuccess     prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates and registers the ingestion collectors on a private
// registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RecordsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_fetched_total",
			Help:      "Features fetched from each dataset's feature layer.",
		}, []string{"dataset"}),
		RecordsInserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_inserted_total",
			Help:      "Records inserted into each dataset's collection.",
		}, []string{"dataset"}),
		DatasetFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dataset_failures_total",
			Help:      "Datasets that stopped early, by stage.",
		}, []string{"dataset", "stage"}),
		Fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Fields that fell back to a default or raw value, by kind.",
		}, []string{"kind"}),
		RunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last ingestion run.",
		}),
		LastRunStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_status",
			Help:      "1 for the terminal status of the last run, 0 otherwise.",
		}, []string{"status"}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run that inserted every dataset.",
		}),
	}

	m.registry.MustRegister(
		m.RecordsFetched,
		m.RecordsInserted,
		m.DatasetFailures,
		m.Fallbacks,
		m.RunDuration,
		m.LastRunStatus,
		m.LastSuccess,
	)
	return m
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(run *model.IngestRun) {
	for _, o := range run.Outcomes {
		m.RecordsFetched.WithLabelValues(o.Dataset).Add(float64(o.Fetched))
		m.RecordsInserted.WithLabelValues(o.Dataset).Add(float64(o.Inserted))
		m.Fallbacks.WithLabelValues(FallbackLocation).Add(float64(o.DefaultLocations))
		m.Fallbacks.WithLabelValues(FallbackDate).Add(float64(o.UnresolvedDates))
		if !o.OK() {
			m.DatasetFailures.WithLabelValues(o.Dataset, string(o.Stage)).Inc()
		}
	}

	for _, s := range []model.RunStatus{model.RunStatusComplete, model.RunStatusPartial, model.RunStatusFailed} {
		v := 0.0
		if run.Status == s {
			v = 1
		}
		m.LastRunStatus.WithLabelValues(string(s)).Set(v)
	}

	if run.CompletedAt != nil {
		m.RunDuration.Set(run.CompletedAt.Sub(run.StartedAt).Seconds())
		if run.Status == model.RunStatusComplete {
			m.LastSuccess.Set(float64(run.CompletedAt.Unix()))
		}
	}
}

// Push sends every collector to a Prometheus Pushgateway, replacing the
// job's previous metrics.
func (m *Metrics) Push(ctx context.Context, gatewayURL, job string) error {
	if gatewayURL == "" {
		return nil
	}
	err := push.New(gatewayURL, job).
		Gatherer(m.registry).
		PushContext(ctx)
	if err != nil {
		return eris.Wrapf(err, "monitoring: push to %s", gatewayURL)
	}
	return nil
}
