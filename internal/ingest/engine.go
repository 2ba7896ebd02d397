package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ncov-ph/ncov-cli/internal/arcgis"
	"github.com/ncov-ph/ncov-cli/internal/dataset"
	"github.com/ncov-ph/ncov-cli/internal/model"
	"github.com/ncov-ph/ncov-cli/internal/resolve"
	"github.com/ncov-ph/ncov-cli/internal/store"
)

// Source is the upstream the engine reads from.
type Source interface {
	DashboardSource
	QueryAll(ctx context.Context, layerURL, orderBy string) ([]arcgis.Feature, error)
}

// Options configures a run.
type Options struct {
	DashboardURL string
	// Concurrency is the number of datasets processed at once. 1 runs them
	// strictly in registry order.
	Concurrency int
	// Datasets restricts the run to the named datasets. Empty means all.
	Datasets []string
}

// Engine orchestrates ingestion runs.
type Engine struct {
	src   Source
	store store.Store
	reg   *dataset.Registry
	dates *resolve.DateResolver
	opts  Options

	now   func() time.Time
	newID func() string
}

// NewEngine creates a new ingestion engine.
func NewEngine(src Source, st store.Store, reg *dataset.Registry, dates *resolve.DateResolver, opts Options) *Engine {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if dates == nil {
		dates = resolve.NewDateResolver(nil)
	}
	return &Engine{
		src:   src,
		store: st,
		reg:   reg,
		dates: dates,
		opts:  opts,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Run performs one ingestion pass and returns the finished run. The error is
// non-nil only when the run could not start or the version probe failed.
// Dataset failures are reported on the run's outcomes. Once data has been
// ingested a failure to close the run log entry is only logged, and the
// entry stays "running".
func (e *Engine) Run(ctx context.Context) (*model.IngestRun, error) {
	log := zap.L().With(zap.String("component", "ingest.engine"))

	datasets, err := e.reg.Select(e.opts.Datasets)
	if err != nil {
		return nil, err
	}

	run := &model.IngestRun{
		ID:        e.newID(),
		Status:    model.RunStatusRunning,
		StartedAt: e.now().UTC(),
	}
	if err := e.store.StartRun(ctx, run); err != nil {
		return nil, eris.Wrap(err, "ingest: start run")
	}
	log = log.With(zap.String("run_id", run.ID))

	stamp, err := ProbeVersion(ctx, e.src, e.opts.DashboardURL, e.dates)
	if err != nil {
		log.Error("version probe failed, nothing ingested", zap.Error(err))
		run.Status = model.RunStatusFailed
		run.Error = err.Error()
		if finErr := e.finish(ctx, run); finErr != nil {
			log.Error("failed to record run failure", zap.Error(finErr))
		}
		return run, err
	}
	run.DashboardVersion = stamp.Version
	run.DashboardLastUpdated = stamp.LastUpdated.String()
	log.Info("dashboard version",
		zap.String("version", stamp.Version),
		zap.String("last_updated", run.DashboardLastUpdated),
		zap.Int("datasets", len(datasets)),
	)

	run.Outcomes = make([]model.DatasetOutcome, len(datasets))
	if e.opts.Concurrency == 1 {
		for i, d := range datasets {
			run.Outcomes[i] = e.ingestDataset(ctx, log, run.ID, d, stamp)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(e.opts.Concurrency)
		for i, d := range datasets {
			i, d := i, d
			g.Go(func() error {
				run.Outcomes[i] = e.ingestDataset(ctx, log, run.ID, d, stamp)
				return nil
			})
		}
		_ = g.Wait()
	}

	run.Status = model.RunStatusComplete
	if len(run.Failed()) > 0 {
		run.Status = model.RunStatusPartial
	}
	if err := e.finish(ctx, run); err != nil {
		log.Error("failed to record run completion", zap.Error(err))
	}

	log.Info("run finished",
		zap.String("status", string(run.Status)),
		zap.Int64("inserted", run.Inserted()),
		zap.Int("failed_datasets", len(run.Failed())),
		zap.Duration("elapsed", run.CompletedAt.Sub(run.StartedAt)),
	)
	return run, nil
}

// finish writes the terminal state even when ctx was cancelled mid-run.
func (e *Engine) finish(ctx context.Context, run *model.IngestRun) error {
	done := e.now().UTC()
	run.CompletedAt = &done
	if err := e.store.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		return eris.Wrap(err, "ingest: finish run")
	}
	return nil
}

// ingestDataset fetches, normalizes and stores one dataset. Fetch failures
// skip the dataset; a store failure stops it, keeping what was inserted.
func (e *Engine) ingestDataset(ctx context.Context, log *zap.Logger, runID string, d *dataset.Dataset, stamp model.VersionStamp) model.DatasetOutcome {
	start := time.Now()
	out := model.DatasetOutcome{Dataset: d.Name, Collection: d.Collection}
	dLog := log.With(zap.String("dataset", d.Name), zap.String("collection", d.Collection))

	features, err := e.src.QueryAll(ctx, d.LayerURL, d.OrderBy)
	if err != nil {
		out.Stage = model.StageFetch
		out.Error = err.Error()
		out.Elapsed = time.Since(start)
		dLog.Error("fetch failed, skipping dataset", zap.Error(err))
		return out
	}
	out.Fetched = int64(len(features))

	for _, f := range features {
		rec, res := d.Normalize(f, stamp, e.dates, e.now().UTC())
		if res.DefaultLocation {
			out.DefaultLocations++
		}
		out.UnresolvedDates += int64(res.UnresolvedDates)

		if err := e.store.Insert(ctx, d.Collection, runID, rec); err != nil {
			out.Stage = model.StageStore
			out.Error = err.Error()
			dLog.Error("store write failed, aborting dataset",
				zap.Int64("inserted", out.Inserted),
				zap.Int64("fetched", out.Fetched),
				zap.Error(err),
			)
			break
		}
		out.Inserted++
	}
	out.Elapsed = time.Since(start)

	if out.OK() {
		dLog.Info("dataset ingested",
			zap.Int64("inserted", out.Inserted),
			zap.Int64("default_locations", out.DefaultLocations),
			zap.Int64("unresolved_dates", out.UnresolvedDates),
			zap.Duration("elapsed", out.Elapsed),
		)
	}
	return out
}
