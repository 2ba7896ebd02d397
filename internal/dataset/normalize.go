package dataset

import (
	"time"

	"go.uber.org/zap"

	"github.com/ncov-ph/ncov-cli/internal/arcgis"
	"github.com/ncov-ph/ncov-cli/internal/model"
	"github.com/ncov-ph/ncov-cli/internal/resolve"
)

// Resolution reports the fallbacks taken while normalizing one feature.
type Resolution struct {
	DefaultLocation bool
	UnresolvedDates int
}

// Normalize maps a raw feature to a record: the attributes copied as-is,
// date fields resolved, a location for location-bearing datasets, and the
// run's provenance. The feature is not modified.
func (d *Dataset) Normalize(f arcgis.Feature, stamp model.VersionStamp, dates *resolve.DateResolver, now time.Time) (model.Record, Resolution) {
	rec := make(model.Record, len(f.Attributes)+4)
	for k, v := range f.Attributes {
		rec[k] = v
	}

	var res Resolution
	for _, field := range d.DateFields {
		raw, ok := f.Attributes[field]
		if !ok {
			continue
		}
		resolved, ok := dates.ResolveField(raw)
		if !ok {
			res.UnresolvedDates++
			zap.L().Debug("date left unresolved",
				zap.String("dataset", d.Name),
				zap.String("field", field),
				zap.Any("value", raw),
			)
			continue
		}
		rec[field] = resolved.(resolve.Date).Time
	}

	if d.Location {
		pt := resolve.PointFrom(f.Attributes, d.LatField, d.LonField)
		if !pt.Known() {
			res.DefaultLocation = true
		}
		rec[model.FieldLocation] = pt
	}

	rec[model.FieldDashboardVersion] = stamp.Version
	rec[model.FieldDashboardLastUpdated] = stamp.LastUpdated.Value()
	rec[model.FieldInsertedAt] = now
	return rec, res
}
