package main

import (
	"context"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ncov-ph/ncov-cli/internal/arcgis"
	"github.com/ncov-ph/ncov-cli/internal/dataset"
	"github.com/ncov-ph/ncov-cli/internal/fetcher"
	"github.com/ncov-ph/ncov-cli/internal/ingest"
	"github.com/ncov-ph/ncov-cli/internal/model"
	"github.com/ncov-ph/ncov-cli/internal/monitoring"
	"github.com/ncov-ph/ncov-cli/internal/resolve"
)

func init() {
	rootCmd.Flags().StringSlice("dataset", nil, "ingest only these datasets (default: all, as listed by ncov-cli feeds)")
	rootCmd.Flags().Int("concurrency", 0, "datasets processed in parallel (overrides ingest.concurrency)")
	rootCmd.Flags().Bool("fail-on-partial", false, "exit non-zero when any dataset fails (overrides ingest.fail_on_partial)")
}

func runIngest(cmd *cobra.Command, _ []string) error {
	datasets, _ := cmd.Flags().GetStringSlice("dataset")
	if cmd.Flags().Changed("concurrency") {
		cfg.Ingest.Concurrency, _ = cmd.Flags().GetInt("concurrency")
	}
	if cmd.Flags().Changed("fail-on-partial") {
		cfg.Ingest.FailOnPartial, _ = cmd.Flags().GetBool("fail-on-partial")
	}
	return ingestPass(cmd.Context(), cmd.OutOrStdout(), datasets)
}

// ingestPass runs one ingestion pass with the loaded config and writes the
// run report to out.
func ingestPass(ctx context.Context, out io.Writer, datasets []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := zap.L().With(zap.String("component", "cmd.ingest"))

	if cfg.Ingest.TimeoutSecs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.Ingest.TimeoutSecs)*time.Second)
		defer cancel()
	}

	reg, err := dataset.Load(cfg.Ingest.FeedsFile)
	if err != nil {
		return err
	}

	st, err := initStore(ctx, reg.Collections())
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:  cfg.Fetch.UserAgent,
		Timeout:    time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		MaxRetries: cfg.Fetch.MaxRetries,
		RatePerSec: cfg.Fetch.RatePerSec,
	})
	client := arcgis.NewClient(f,
		arcgis.WithPageSize(cfg.Ingest.PageSize),
		arcgis.WithMaxPages(cfg.Ingest.MaxPages),
	)
	dates := resolve.NewDateResolver(resolve.LoadLocation(cfg.Ingest.Timezone))

	eng := ingest.NewEngine(client, st, reg, dates, ingest.Options{
		DashboardURL: cfg.Ingest.DashboardURL,
		Concurrency:  cfg.Ingest.Concurrency,
		Datasets:     datasets,
	})

	run, runErr := eng.Run(ctx)
	if run != nil {
		ingest.WriteReport(out, run)

		m := monitoring.NewMetrics()
		m.ObserveRun(run)
		if err := m.Push(context.WithoutCancel(ctx), cfg.Metrics.PushgatewayURL, cfg.Metrics.Job); err != nil {
			log.Warn("metrics push failed", zap.Error(err))
		}
		sendAlerts(context.WithoutCancel(ctx), log, st, run)
	}
	if runErr != nil {
		return runErr
	}

	if run.Status == model.RunStatusPartial && cfg.Ingest.FailOnPartial {
		return eris.Errorf("ingest: run %s finished with %d failed dataset(s)", run.ID, len(run.Failed()))
	}
	return nil
}

// sendAlerts posts webhook alerts for run and the recent run log. Alerting
// never changes the outcome of the pass.
func sendAlerts(ctx context.Context, log *zap.Logger, runs monitoring.RunLister, run *model.IngestRun) {
	alerter := monitoring.NewAlerter(cfg.Monitoring)
	if !alerter.Enabled() {
		return
	}
	snap, err := monitoring.NewCollector(runs).Collect(ctx, cfg.Monitoring.LookbackRuns)
	if err != nil {
		log.Warn("run log summary failed, checking this run only", zap.Error(err))
	}
	alerts := alerter.Evaluate(run, snap)
	if sent := alerter.SendAlerts(ctx, alerts); sent < len(alerts) {
		log.Warn("some alerts were not sent", zap.Int("sent", sent), zap.Int("alerts", len(alerts)))
	}
}
