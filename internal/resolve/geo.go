package resolve

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// Default attribute names carrying coordinates on the DOH feature layers.
const (
	LatitudeField  = "latitude"
	LongitudeField = "longitude"
)

// Point is a GeoJSON point in [longitude, latitude] order. The zero value is
// the unknown-location sentinel.
type Point struct {
	geom  *geom.Point
	known bool
}

// NewPoint returns a known point at the given coordinates.
func NewPoint(lon, lat float64) Point {
	return Point{geom: geom.NewPointFlat(geom.XY, []float64{lon, lat}), known: true}
}

// UnknownPoint returns the [0, 0] sentinel used when coordinates are missing.
func UnknownPoint() Point {
	return Point{geom: geom.NewPointFlat(geom.XY, []float64{0, 0})}
}

// PointFrom builds a point from the latitude and longitude attributes of a
// feature. Empty field names fall back to LatitudeField and LongitudeField.
// Any missing or non-numeric coordinate yields UnknownPoint.
func PointFrom(attrs map[string]any, latField, lonField string) Point {
	if latField == "" {
		latField = LatitudeField
	}
	if lonField == "" {
		lonField = LongitudeField
	}
	lat, ok := toFloat(attrs[latField])
	if !ok {
		return UnknownPoint()
	}
	lon, ok := toFloat(attrs[lonField])
	if !ok {
		return UnknownPoint()
	}
	return NewPoint(lon, lat)
}

// Known reports whether the point came from usable source coordinates.
func (p Point) Known() bool { return p.known }

// Lon returns the longitude.
func (p Point) Lon() float64 {
	if p.geom == nil {
		return 0
	}
	return p.geom.X()
}

// Lat returns the latitude.
func (p Point) Lat() float64 {
	if p.geom == nil {
		return 0
	}
	return p.geom.Y()
}

// Coordinates returns [longitude, latitude].
func (p Point) Coordinates() []float64 {
	return []float64{p.Lon(), p.Lat()}
}

// Geom returns the underlying go-geom point.
func (p Point) Geom() *geom.Point {
	if p.geom == nil {
		return UnknownPoint().geom
	}
	return p.geom
}

// MarshalJSON encodes the point as a GeoJSON geometry.
func (p Point) MarshalJSON() ([]byte, error) {
	return geojson.Marshal(p.Geom())
}

// toFloat converts the scalar shapes feature layers use for coordinates.
// NaN and infinities are rejected: they are not valid positions and cannot
// be encoded as JSON.
func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
