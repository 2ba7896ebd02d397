package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ncov-ph/ncov-cli/internal/dataset"
	"github.com/ncov-ph/ncov-cli/internal/model"
	"github.com/ncov-ph/ncov-cli/internal/resolve"
	"github.com/ncov-ph/ncov-cli/internal/store"
)

var allDatasets = []string{"foreign", "local", "overseas_worker", "pui", "facility_confirmed", "commodities"}

func setupEngine(t *testing.T, opts Options) (*Engine, *fakeSource, *memStore, *dataset.Registry) {
	t.Helper()
	reg := dataset.Default()
	src := newFakeSource()
	st := newMemStore()
	opts.DashboardURL = "https://dashboard.example/data"
	return NewEngine(src, st, reg, resolve.NewDateResolver(time.UTC), opts), src, st, reg
}

func outcomeNames(run *model.IngestRun) []string {
	var names []string
	for _, o := range run.Outcomes {
		names = append(names, o.Dataset)
	}
	return names
}

func TestRun_StampsEveryRecord(t *testing.T) {
	eng, src, st, reg := setupEngine(t, Options{})
	src.setLayer(reg, "local", 3)

	start := time.Now()
	run, err := eng.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, "v7", run.DashboardVersion)
	assert.Equal(t, "2020-03-05T00:00:00Z", run.DashboardLastUpdated)

	docs := st.docs["cases_local"]
	require.Len(t, docs, 3)
	for _, rec := range docs {
		assert.Equal(t, "v7", rec.Version())
		assert.Equal(t, time.Date(2020, 3, 5, 0, 0, 0, 0, time.UTC), rec[model.FieldDashboardLastUpdated])
		assert.False(t, rec.InsertedAt().Before(start.Truncate(time.Second)), "inserted_at precedes test start")
		assert.Equal(t, time.Date(2020, 3, 4, 0, 0, 0, 0, time.UTC), rec["confirmed"])
	}

	local := run.Outcomes[1]
	assert.Equal(t, "local", local.Dataset)
	assert.Equal(t, int64(3), local.Fetched)
	assert.Equal(t, int64(3), local.Inserted)
	assert.Zero(t, local.DefaultLocations)
}

func TestRun_ForeignFetchFailsOthersContinue(t *testing.T) {
	eng, src, st, reg := setupEngine(t, Options{})
	for _, name := range allDatasets {
		src.setLayer(reg, name, 2)
	}
	src.failLayer(reg, "foreign", errors.New("http 500"))

	run, err := eng.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusPartial, run.Status)
	assert.Equal(t, allDatasets, outcomeNames(run))
	assert.Equal(t, 6, src.queryCount())

	foreign := run.Outcomes[0]
	assert.Equal(t, model.StageFetch, foreign.Stage)
	assert.Contains(t, foreign.Error, "http 500")
	assert.Zero(t, foreign.Inserted)

	for _, o := range run.Outcomes[1:] {
		assert.True(t, o.OK(), o.Dataset)
		assert.Equal(t, int64(2), o.Inserted, o.Dataset)
	}
	assert.Equal(t, int64(10), run.Inserted())
	assert.Empty(t, st.docs["cases_foreign"])

	logged := st.runs[run.ID]
	assert.Equal(t, model.RunStatusPartial, logged.Status)
	require.NotNil(t, logged.CompletedAt)
}

func TestRun_ProbeFailureIngestsNothing(t *testing.T) {
	eng, src, st, reg := setupEngine(t, Options{})
	src.setLayer(reg, "local", 3)
	src.dashErr = errors.New("dial tcp: i/o timeout")

	run, err := eng.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrVersionProbe)
	assert.Contains(t, err.Error(), "i/o timeout")

	require.NotNil(t, run)
	assert.Equal(t, model.RunStatusFailed, run.Status)
	assert.Zero(t, src.queryCount())
	assert.Zero(t, st.total())
	assert.Equal(t, model.RunStatusFailed, st.runs[run.ID].Status)
}

func TestRun_ProbeMalformedTitle(t *testing.T) {
	eng, src, st, _ := setupEngine(t, Options{})
	src.dashboard.HeaderPanel.Title = "COVID-19 Tracker"

	_, err := eng.Run(context.Background())
	assert.ErrorIs(t, err, ErrVersionProbe)
	assert.Zero(t, src.queryCount())
	assert.Zero(t, st.total())
}

func TestRun_StoreErrorAbortsOnlyThatDataset(t *testing.T) {
	eng, src, st, reg := setupEngine(t, Options{})
	src.setLayer(reg, "local", 3)
	src.setLayer(reg, "pui", 2)
	st.failAfter["cases_local"] = 1

	run, err := eng.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusPartial, run.Status)
	local := run.Outcomes[1]
	assert.Equal(t, model.StageStore, local.Stage)
	assert.Equal(t, int64(3), local.Fetched)
	assert.Equal(t, int64(1), local.Inserted)
	assert.Contains(t, local.Error, "write conflict")

	pui := run.Outcomes[3]
	assert.True(t, pui.OK())
	assert.Equal(t, int64(2), pui.Inserted)
}

func TestRun_CountsFallbacks(t *testing.T) {
	eng, src, _, reg := setupEngine(t, Options{})
	src.setLayer(reg, "local", 2)
	local, _ := reg.Get("local")
	delete(src.layers[local.LayerURL][0].Attributes, "latitude")
	src.layers[local.LayerURL][1].Attributes["confirmed"] = "for validation"

	run, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), run.Outcomes[1].DefaultLocations)
	assert.Equal(t, int64(1), run.Outcomes[1].UnresolvedDates)
	assert.Equal(t, model.RunStatusComplete, run.Status)
}

func TestRun_ConcurrentKeepsRegistryOrder(t *testing.T) {
	eng, src, st, reg := setupEngine(t, Options{Concurrency: 3})
	for _, name := range allDatasets {
		src.setLayer(reg, name, 4)
	}

	run, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, allDatasets, outcomeNames(run))
	assert.Equal(t, 24, st.total())

	// Intra-dataset order is kept.
	docs := st.docs["cases_local"]
	require.Len(t, docs, 4)
	for i, rec := range docs {
		assert.EqualValues(t, fmtNumber(i+1), rec["FID"])
	}
}

func TestRun_SelectedDatasets(t *testing.T) {
	eng, src, _, reg := setupEngine(t, Options{Datasets: []string{"commodities"}})
	src.setLayer(reg, "commodities", 1)

	run, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"commodities"}, outcomeNames(run))
	assert.Equal(t, 1, src.queryCount())
}

func TestRun_UnknownDataset(t *testing.T) {
	eng, _, st, _ := setupEngine(t, Options{Datasets: []string{"deaths"}})
	_, err := eng.Run(context.Background())
	require.Error(t, err)
	assert.Empty(t, st.runs)
}

func TestRun_StartRunError(t *testing.T) {
	eng, src, st, _ := setupEngine(t, Options{})
	st.startErr = errors.New("database is locked")

	run, err := eng.Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, run)
	assert.Contains(t, err.Error(), "ingest: start run")
	assert.Zero(t, src.queryCount())
}

func TestRun_FinishErrorKeepsIngestedRun(t *testing.T) {
	eng, src, st, reg := setupEngine(t, Options{})
	src.setLayer(reg, "commodities", 2)
	st.finishErr = errors.New("database is locked")

	run, err := eng.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, int64(2), run.Inserted())
	assert.NotNil(t, run.CompletedAt)
	assert.Equal(t, model.RunStatusRunning, st.runs[run.ID].Status)
}

func TestRun_ConcurrentSQLite(t *testing.T) {
	reg := dataset.Default()
	src := newFakeSource()
	for _, name := range allDatasets {
		src.setLayer(reg, name, 300)
	}

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "ncov.db"), reg.Collections())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	eng := NewEngine(src, st, reg, resolve.NewDateResolver(time.UTC), Options{
		DashboardURL: "https://dashboard.example/data",
		Concurrency:  len(allDatasets),
	})
	run, err := eng.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Empty(t, run.Failed())
	assert.Equal(t, int64(300*len(allDatasets)), run.Inserted())

	for _, name := range allDatasets {
		d, err := reg.Get(name)
		require.NoError(t, err)
		n, err := st.Count(ctx, d.Collection)
		require.NoError(t, err)
		assert.Equal(t, int64(300), n, name)
	}

	runs, err := st.ListRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusComplete, runs[0].Status)
}

func TestRun_InjectedClockAndID(t *testing.T) {
	eng, src, st, reg := setupEngine(t, Options{})
	src.setLayer(reg, "commodities", 1)
	fixed := time.Date(2020, 3, 6, 9, 0, 0, 0, time.UTC)
	eng.now = func() time.Time { return fixed }
	eng.newID = func() string { return "run-fixed" }

	run, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run-fixed", run.ID)
	assert.Equal(t, fixed, run.StartedAt)
	assert.Equal(t, fixed, st.docs["commodities"][0].InsertedAt())
}

func TestRun_TwiceDuplicatesDocuments(t *testing.T) {
	reg := dataset.Default()
	src := newFakeSource()
	src.setLayer(reg, "local", 3)
	src.setLayer(reg, "commodities", 2)

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "ncov.db"), reg.Collections())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	eng := NewEngine(src, st, reg, resolve.NewDateResolver(time.UTC), Options{DashboardURL: "https://dashboard.example/data"})
	first, err := eng.Run(ctx)
	require.NoError(t, err)
	second, err := eng.Run(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	// Append-only: identical upstream data is stored once per run.
	n, err := st.Count(ctx, "cases_local")
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)
	n, err = st.Count(ctx, "commodities")
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	docs, err := st.Documents(ctx, "cases_local", second.ID)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "v7", docs[0]["dashboard_version"])
	assert.Equal(t, map[string]any{"type": "Point", "coordinates": []any{121.0, 14.5}}, docs[0]["location"])

	runs, err := st.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	for _, r := range runs {
		assert.Equal(t, model.RunStatusComplete, r.Status)
		assert.Len(t, r.Outcomes, 6)
	}
}
