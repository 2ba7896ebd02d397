// Package resolve turns loosely typed feature-layer attributes into
// structured values without ever failing.
//
// # Dates
//
// Upstream date fields are free text. Besides plain values such as
// "2020-03-05" or "3/5/2020" they carry labels and commentary, e.g.
// "Reported 3/4/2020, confirmed March 5, 2020". A value that is a date on its
// own is parsed whole, so an explicit offset ("Z", "+0000") is kept. Anything
// else is searched for dates that name a day, month and year, and the last
// one found wins. Taking the last mention is a heuristic that matched the DOH
// feeds, not a general rule. When nothing parses the original text is kept
// and Date.OK is false.
//
// Numeric dates are read month first. Dates without an offset are
// interpreted in the resolver's location.
//
// # Locations
//
// Feature layers expose coordinates as separate latitude and longitude
// attributes, sometimes numeric and sometimes strings. A missing or
// unparseable coordinate yields the [0, 0] sentinel point. Consumers rely on
// every located record having a point, so the sentinel is stored rather than
// null; Point.Known distinguishes it from a real position on the equator.
package resolve
