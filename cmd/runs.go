package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/ncov-ph/ncov-cli/internal/dataset"
	"github.com/ncov-ph/ncov-cli/internal/ingest"
	"github.com/ncov-ph/ncov-cli/internal/monitoring"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent ingestion runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		reg, err := dataset.Load(cfg.Ingest.FeedsFile)
		if err != nil {
			return err
		}
		st, err := initStore(ctx, reg.Collections())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		summary, err := monitoring.NewCollector(st).Collect(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "runs")
		}

		out := cmd.OutOrStdout()
		if asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(summary.Runs)
		}
		if len(summary.Runs) == 0 {
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "No runs found.")
			return nil
		}

		ingest.WriteRunList(out, summary.Runs)
		_, _ = fmt.Fprintln(out)
		formatRunSummary(out, summary)
		return nil
	},
}

func init() {
	runsCmd.Flags().Int("limit", 20, "max number of runs to display")
	runsCmd.Flags().Bool("json", false, "print runs as JSON, including per-dataset outcomes")
	rootCmd.AddCommand(runsCmd)
}

// formatRunSummary writes aggregate stats to w.
func formatRunSummary(out io.Writer, s *monitoring.RunSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Complete:\t%d\n", s.Complete)
	_, _ = fmt.Fprintf(w, "Partial:\t%d\n", s.Partial)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.Failed)
	if s.Running > 0 {
		_, _ = fmt.Fprintf(w, "Running:\t%d\n", s.Running)
	}
	_, _ = fmt.Fprintf(w, "Records inserted:\t%d\n", s.Inserted)
	_, _ = fmt.Fprintf(w, "Fail rate:\t%.0f%%\n", s.FailRate*100)
	if s.LastSuccess != nil {
		_, _ = fmt.Fprintf(w, "Last success:\t%s\n", s.LastSuccess.Format("2006-01-02 15:04"))
	}
	if len(s.FailingDatasets) > 0 {
		names := make([]string, 0, len(s.FailingDatasets))
		for name := range s.FailingDatasets {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			_, _ = fmt.Fprintf(w, "  %s failed:\t%d\n", name, s.FailingDatasets[name])
		}
	}
	_ = w.Flush()
}
