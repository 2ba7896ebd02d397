package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ncov-ph/ncov-cli/internal/dataset"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the run log and one table per dataset collection",
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
		fmt.Fprintf(cmd.OutOrStdout(), "migrated %s store: %s\n", cfg.Store.Driver, strings.Join(reg.Collections(), ", "))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
