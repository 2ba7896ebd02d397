package ingest

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ncov-ph/ncov-cli/internal/arcgis"
	"github.com/ncov-ph/ncov-cli/internal/model"
	"github.com/ncov-ph/ncov-cli/internal/resolve"
)

// ErrVersionProbe matches every error returned by ProbeVersion.
var ErrVersionProbe = errors.New("version probe failed")

// ProbeError is a version probe failure. It is fatal to the run.
type ProbeError struct {
	URL string
	Err error
}

func (e *ProbeError) Error() string {
	return "ingest: version probe " + e.URL + ": " + e.Err.Error()
}

func (e *ProbeError) Unwrap() error { return e.Err }

// Is reports whether target is ErrVersionProbe.
func (e *ProbeError) Is(target error) bool { return target == ErrVersionProbe }

// DashboardSource fetches a dashboard item's data document.
type DashboardSource interface {
	Dashboard(ctx context.Context, itemURL string) (*arcgis.Dashboard, error)
}

// ProbeVersion reads the dashboard version and the last-updated date from
// its header title. There is no cached fallback: any failure is returned as
// a *ProbeError.
func ProbeVersion(ctx context.Context, src DashboardSource, dashboardURL string, dates *resolve.DateResolver) (model.VersionStamp, error) {
	fail := func(err error) (model.VersionStamp, error) {
		return model.VersionStamp{}, &ProbeError{URL: dashboardURL, Err: err}
	}

	d, err := src.Dashboard(ctx, dashboardURL)
	if err != nil {
		return fail(err)
	}
	if d.Version == "" {
		return fail(eris.New("ingest: dashboard has no version"))
	}
	text, err := TitleDate(d.HeaderPanel.Title)
	if err != nil {
		return fail(err)
	}

	stamp := model.VersionStamp{
		Version:     string(d.Version),
		LastUpdated: dates.Parse(text),
	}
	if !stamp.LastUpdated.OK {
		zap.L().Warn("dashboard date not recognized, keeping raw text",
			zap.String("component", "ingest.version"),
			zap.String("text", text),
		)
	}
	return stamp, nil
}

// TitleDate returns the date text of a dashboard title: whatever follows the
// first "of ", without semicolons, surrounding space, or trailing
// punctuation.
func TitleDate(title string) (string, error) {
	i := strings.Index(title, "of ")
	if i < 0 {
		return "", eris.Errorf("ingest: dashboard title %q has no date", title)
	}
	text := strings.ReplaceAll(title[i+len("of "):], ";", "")
	text = strings.TrimRight(strings.TrimSpace(text), ".,:!|-")
	text = strings.TrimSpace(text)
	if text == "" {
		return "", eris.Errorf("ingest: dashboard title %q has no date", title)
	}
	return text, nil
}
