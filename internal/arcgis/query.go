package arcgis

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ncov-ph/ncov-cli/internal/fetcher"
)

// Feature is one row of a feature layer. Numbers are kept as json.Number.
type Feature struct {
	Attributes map[string]any `json:"attributes"`
}

// FeatureSet is a single page of query results.
type FeatureSet struct {
	Features              []Feature `json:"features"`
	ExceededTransferLimit bool      `json:"exceededTransferLimit"`
	Error                 *APIError `json:"error,omitempty"`
}

// QueryURL builds the query URL for one page of a layer.
func QueryURL(layerURL, orderBy string, offset, count int) string {
	q := url.Values{}
	q.Set("f", "json")
	q.Set("where", "1=1")
	q.Set("returnGeometry", "false")
	q.Set("spatialRel", "esriSpatialRelIntersects")
	q.Set("outFields", "*")
	if orderBy != "" {
		q.Set("orderByFields", orderBy)
	}
	q.Set("resultOffset", strconv.Itoa(offset))
	if count > 0 {
		q.Set("resultRecordCount", strconv.Itoa(count))
	}
	q.Set("cacheHint", "true")
	return strings.TrimRight(layerURL, "/") + "/query?" + q.Encode()
}

// Query fetches a single page starting at offset.
func (c *Client) Query(ctx context.Context, layerURL, orderBy string, offset int) (*FeatureSet, error) {
	set, err := fetcher.GetJSON[FeatureSet](ctx, c.fetcher, QueryURL(layerURL, orderBy, offset, c.pageSize))
	if err != nil {
		return nil, eris.Wrap(err, "arcgis: query")
	}
	if set.Error != nil {
		return nil, eris.Wrap(set.Error, "arcgis: query")
	}
	return set, nil
}

// QueryAll fetches every feature of a layer. Pagination continues while the
// server reports exceededTransferLimit or returns a full page, and stops at
// the configured page limit.
func (c *Client) QueryAll(ctx context.Context, layerURL, orderBy string) ([]Feature, error) {
	log := zap.L().With(zap.String("component", "arcgis.query"), zap.String("layer", layerURL))

	var all []Feature
	offset := 0
	for page := 1; ; page++ {
		set, err := c.Query(ctx, layerURL, orderBy, offset)
		if err != nil {
			return nil, eris.Wrapf(err, "arcgis: page %d", page)
		}
		all = append(all, set.Features...)

		n := len(set.Features)
		full := c.pageSize > 0 && n >= c.pageSize
		if n == 0 || (!set.ExceededTransferLimit && !full) {
			break
		}
		if page >= c.maxPages {
			log.Warn("page limit reached, result may be truncated",
				zap.Int("pages", page),
				zap.Int("features", len(all)),
			)
			break
		}
		offset += n
	}

	log.Debug("layer fetched", zap.Int("features", len(all)))
	return all, nil
}
