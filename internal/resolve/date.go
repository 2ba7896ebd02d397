package resolve

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	dps "github.com/markusmobius/go-dateparser"
	"go.uber.org/zap"
)

// searchLanguage is the language of the DOH feeds. Fixing it skips language
// detection, which misfires on short labels.
const searchLanguage = "en"

// Date is the outcome of resolving a free-text date: either a parsed time
// (OK is true) or the untouched input.
type Date struct {
	Time time.Time
	Raw  string
	OK   bool
}

// String returns the RFC 3339 form of a resolved date, or the raw text.
func (d Date) String() string {
	if d.OK {
		return d.Time.Format(time.RFC3339)
	}
	return d.Raw
}

// Value returns the time.Time when resolved, otherwise the raw string.
func (d Date) Value() any {
	if d.OK {
		return d.Time
	}
	return d.Raw
}

// MarshalJSON encodes a resolved date as an RFC 3339 string and an
// unresolved one as its raw text.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts anything MarshalJSON produces.
func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		*d = Date{Time: t, Raw: s, OK: true}
		return nil
	}
	*d = Date{Raw: s}
	return nil
}

// DateResolver finds dates in free text, interpreting them in Location.
type DateResolver struct {
	Location *time.Location

	parser *dps.Parser
}

// NewDateResolver returns a resolver for the given location; nil means UTC.
func NewDateResolver(loc *time.Location) *DateResolver {
	if loc == nil {
		loc = time.UTC
	}
	return &DateResolver{
		Location: loc,
		// Relative phrases ("today") and bare numbers are not dates in a
		// record, so only absolute formats are searched.
		parser: &dps.Parser{ParserTypes: []dps.ParserType{dps.AbsoluteTime}},
	}
}

var defaultResolver = NewDateResolver(time.UTC)

// ParseDate resolves s in UTC. See DateResolver.Parse.
func ParseDate(s string) Date {
	return defaultResolver.Parse(s)
}

// LoadLocation loads a tz database zone, falling back to UTC.
func LoadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		zap.L().Warn("resolve: unknown timezone, using UTC", zap.String("timezone", name), zap.Error(err))
		return time.UTC
	}
	return loc
}

// Parse resolves s to a point in time. A value that is a date on its own is
// parsed whole, so an explicit offset or zone is honored. Otherwise s is
// searched for complete dates and the last one found wins. When nothing
// resolves, the result carries s unchanged with OK false.
func (r *DateResolver) Parse(s string) Date {
	text := strings.TrimSpace(s)
	if text == "" {
		return Date{Raw: s}
	}

	if t, err := dateparse.ParseIn(text, r.Location); err == nil {
		return Date{Time: t.In(r.Location), Raw: s, OK: true}
	}

	found, err := r.parser.SearchWithLanguage(r.searchConfig(), searchLanguage, text)
	if err != nil {
		zap.L().Debug("resolve: date search failed", zap.String("text", text), zap.Error(err))
		return Date{Raw: s}
	}
	for i := len(found) - 1; i >= 0; i-- {
		if !found[i].Date.IsZero() {
			return Date{Time: found[i].Date.Time.In(r.Location), Raw: s, OK: true}
		}
	}
	return Date{Raw: s}
}

// searchConfig only accepts dates with a day, month and year.
func (r *DateResolver) searchConfig() *dps.Configuration {
	return &dps.Configuration{
		DefaultTimezone: r.Location,
		DateOrder:       dps.MDY,
		StrictParsing:   true,
	}
}

// ResolveField applies Parse to string attribute values. Anything else,
// including nil and numeric epoch values, is returned unchanged.
func (r *DateResolver) ResolveField(v any) (any, bool) {
	s, ok := v.(string)
	if !ok {
		return v, false
	}
	d := r.Parse(s)
	return d, d.OK
}
