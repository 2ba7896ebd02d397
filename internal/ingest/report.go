package ingest

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"github.com/ncov-ph/ncov-cli/internal/model"
)

// WriteReport writes the per-dataset outcome table of a run to out.
func WriteReport(out io.Writer, run *model.IngestRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Run:\t%s\n", run.ID)
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", run.Status)
	if run.DashboardVersion != "" {
		_, _ = fmt.Fprintf(w, "Dashboard:\tversion %s, updated %s\n", run.DashboardVersion, run.DashboardLastUpdated)
	}
	if run.Error != "" {
		_, _ = fmt.Fprintf(w, "Error:\t%s\n", run.Error)
	}
	_ = w.Flush()

	if len(run.Outcomes) == 0 {
		return
	}
	_, _ = fmt.Fprintln(out)

	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DATASET\tCOLLECTION\tFETCHED\tINSERTED\tNO_LOCATION\tRAW_DATES\tELAPSED\tERROR")
	_, _ = fmt.Fprintln(w, "-------\t----------\t-------\t--------\t-----------\t---------\t-------\t-----")
	for _, o := range run.Outcomes {
		errText := ""
		if !o.OK() {
			errText = fmt.Sprintf("[%s] %s", o.Stage, truncate(o.Error, 60))
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			o.Dataset,
			o.Collection,
			o.Fetched,
			o.Inserted,
			o.DefaultLocations,
			o.UnresolvedDates,
			o.Elapsed.Round(time.Millisecond),
			errText,
		)
	}
	_, _ = fmt.Fprintf(w, "TOTAL\t\t\t%d\t\t\t\t%d failed\n", run.Inserted(), len(run.Failed()))
	_ = w.Flush()
}

// WriteRunList writes a compact table of runs to out.
func WriteRunList(out io.Writer, runs []model.IngestRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tVERSION\tSTARTED\tDURATION\tINSERTED\tFAILED")
	_, _ = fmt.Fprintln(w, "--\t------\t-------\t-------\t--------\t--------\t------")
	for _, r := range runs {
		dur := ""
		if r.CompletedAt != nil {
			dur = r.CompletedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\n",
			truncateID(r.ID),
			r.Status,
			r.DashboardVersion,
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
			r.Inserted(),
			len(r.Failed()),
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-3]) + "..."
}
