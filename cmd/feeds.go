package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ncov-ph/ncov-cli/internal/dataset"
)

var feedsCmd = &cobra.Command{
	Use:   "feeds",
	Short: "Show the dataset table in processing order",
	RunE: func(cmd *cobra.Command, _ []string) error {
		reg, err := dataset.Load(cfg.Ingest.FeedsFile)
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(reg.All())
		}
		formatFeeds(cmd.OutOrStdout(), reg.All())
		return nil
	},
}

func init() {
	feedsCmd.Flags().Bool("json", false, "print the table as JSON")
	rootCmd.AddCommand(feedsCmd)
}

func formatFeeds(out io.Writer, datasets []*dataset.Dataset) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DATASET\tCOLLECTION\tORDER BY\tDATE FIELDS\tLOCATION\tLAYER")
	for _, d := range datasets {
		orderBy := d.OrderBy
		if orderBy == "" {
			orderBy = "-"
		}
		dates := strings.Join(d.DateFields, ",")
		if dates == "" {
			dates = "-"
		}
		loc := "no"
		if d.Location {
			loc = "yes"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", d.Name, d.Collection, orderBy, dates, loc, d.LayerURL)
	}
	_ = w.Flush()
}
