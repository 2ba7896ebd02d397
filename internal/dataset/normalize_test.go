package dataset

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ncov-ph/ncov-cli/internal/arcgis"
	"github.com/ncov-ph/ncov-cli/internal/model"
	"github.com/ncov-ph/ncov-cli/internal/resolve"
)

var testStamp = model.VersionStamp{
	Version:     "v7",
	LastUpdated: resolve.Date{Time: time.Date(2020, 3, 5, 0, 0, 0, 0, time.UTC), Raw: "March 5, 2020", OK: true},
}

func mustGet(t *testing.T, name string) *Dataset {
	t.Helper()
	d, err := Default().Get(name)
	require.NoError(t, err)
	return d
}

func TestNormalize_Local(t *testing.T) {
	d := mustGet(t, "local")
	now := time.Now()
	f := arcgis.Feature{Attributes: map[string]any{
		"FID":       json.Number("42"),
		"confirmed": "03/05/2020",
		"latitude":  "14.5",
		"longitude": "121.0",
	}}

	rec, res := d.Normalize(f, testStamp, resolve.NewDateResolver(time.UTC), now)

	assert.Equal(t, json.Number("42"), rec["FID"])
	assert.Equal(t, time.Date(2020, 3, 5, 0, 0, 0, 0, time.UTC), rec["confirmed"])
	pt, ok := rec[model.FieldLocation].(resolve.Point)
	require.True(t, ok)
	assert.Equal(t, []float64{121.0, 14.5}, pt.Coordinates())
	assert.Equal(t, "v7", rec.Version())
	assert.Equal(t, testStamp.LastUpdated.Time, rec[model.FieldDashboardLastUpdated])
	assert.Equal(t, now, rec.InsertedAt())
	assert.Equal(t, Resolution{}, res)

	// Source attributes are untouched.
	assert.Equal(t, "03/05/2020", f.Attributes["confirmed"])
	assert.NotContains(t, f.Attributes, model.FieldLocation)
}

func TestNormalize_MissingCoordinates(t *testing.T) {
	d := mustGet(t, "pui")
	rec, res := d.Normalize(arcgis.Feature{Attributes: map[string]any{"facility": "RITM"}}, testStamp, resolve.NewDateResolver(nil), time.Now())

	pt := rec[model.FieldLocation].(resolve.Point)
	assert.Equal(t, []float64{0, 0}, pt.Coordinates())
	assert.False(t, pt.Known())
	assert.True(t, res.DefaultLocation)
}

func TestNormalize_OverseasWorkerDates(t *testing.T) {
	d := mustGet(t, "overseas_worker")
	f := arcgis.Feature{Attributes: map[string]any{
		"date_confi": "Confirmed on 2020-02-02",
		"date_repor": "pending",
		"latitude":   14.6,
		"longitude":  121.03,
	}}
	rec, res := d.Normalize(f, testStamp, resolve.NewDateResolver(time.UTC), time.Now())

	assert.Equal(t, time.Date(2020, 2, 2, 0, 0, 0, 0, time.UTC), rec["date_confi"])
	assert.Equal(t, "pending", rec["date_repor"])
	assert.Equal(t, 1, res.UnresolvedDates)
	assert.False(t, res.DefaultLocation)
}

func TestNormalize_AbsentDateFieldStaysAbsent(t *testing.T) {
	d := mustGet(t, "local")
	rec, res := d.Normalize(arcgis.Feature{Attributes: map[string]any{}}, testStamp, resolve.NewDateResolver(time.UTC), time.Now())

	assert.NotContains(t, rec, "confirmed")
	assert.Equal(t, 0, res.UnresolvedDates)
}

func TestNormalize_NonStringDatePassesThrough(t *testing.T) {
	d := mustGet(t, "local")
	epoch := json.Number("1583366400000")
	rec, res := d.Normalize(arcgis.Feature{Attributes: map[string]any{"confirmed": epoch}}, testStamp, resolve.NewDateResolver(time.UTC), time.Now())

	assert.Equal(t, epoch, rec["confirmed"])
	assert.Equal(t, 1, res.UnresolvedDates)
}

func TestNormalize_CommoditiesHasNoLocation(t *testing.T) {
	d := mustGet(t, "commodities")
	rec, res := d.Normalize(arcgis.Feature{Attributes: map[string]any{"item": "masks", "latitude": 1.0}}, testStamp, resolve.NewDateResolver(time.UTC), time.Now())

	assert.NotContains(t, rec, model.FieldLocation)
	assert.False(t, res.DefaultLocation)
	assert.Equal(t, "masks", rec["item"])
	assert.Equal(t, "v7", rec.Version())
}

func TestNormalize_UnresolvedStampKeepsRawText(t *testing.T) {
	d := mustGet(t, "commodities")
	stamp := model.VersionStamp{Version: "3", LastUpdated: resolve.Date{Raw: "today"}}
	rec, _ := d.Normalize(arcgis.Feature{}, stamp, resolve.NewDateResolver(time.UTC), time.Now())

	assert.Equal(t, "today", rec[model.FieldDashboardLastUpdated])
}

func TestNormalize_EncodesAsDocument(t *testing.T) {
	d := mustGet(t, "foreign")
	now := time.Date(2020, 3, 6, 1, 2, 3, 0, time.UTC)
	rec, _ := d.Normalize(arcgis.Feature{Attributes: map[string]any{"latitude": 14.5, "longitude": 121.0}}, testStamp, resolve.NewDateResolver(time.UTC), now)

	b, err := json.Marshal(rec)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(b, &doc))
	assert.Equal(t, map[string]any{"type": "Point", "coordinates": []any{121.0, 14.5}}, doc["location"])
	assert.Equal(t, "2020-03-06T01:02:03Z", doc["inserted_at"])
	assert.Equal(t, "2020-03-05T00:00:00Z", doc["dashboard_last_updated"])
}
