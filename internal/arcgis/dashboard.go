package arcgis

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"

	"github.com/rotisserie/eris"

	"github.com/ncov-ph/ncov-cli/internal/fetcher"
)

// Dashboard is the subset of a dashboard item's data document that carries
// its version and header title.
type Dashboard struct {
	Version     Version     `json:"version"`
	HeaderPanel HeaderPanel `json:"headerPanel"`
	Error       *APIError   `json:"error,omitempty"`
}

// HeaderPanel is the dashboard header.
type HeaderPanel struct {
	Title string `json:"title"`
}

// Version is a dashboard version. The item data serves it as either a string
// or a number; both decode to their textual form.
type Version string

// UnmarshalJSON accepts a JSON string, number, or null.
func (v *Version) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*v = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = Version(s)
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return eris.Wrapf(err, "arcgis: version %s", string(b))
		}
		*v = Version(n.String())
	}
	return nil
}

// Dashboard fetches the item data document at itemURL, requesting JSON.
func (c *Client) Dashboard(ctx context.Context, itemURL string) (*Dashboard, error) {
	u, err := url.Parse(itemURL)
	if err != nil {
		return nil, eris.Wrap(err, "arcgis: parse dashboard url")
	}
	q := u.Query()
	q.Set("f", "json")
	u.RawQuery = q.Encode()

	d, err := fetcher.GetJSON[Dashboard](ctx, c.fetcher, u.String())
	if err != nil {
		return nil, eris.Wrap(err, "arcgis: dashboard")
	}
	if d.Error != nil {
		return nil, eris.Wrap(d.Error, "arcgis: dashboard")
	}
	return d, nil
}
