package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobharvest/internal/report"
	"github.com/amishk599/jobharvest/internal/store"
)

var (
	statsSite  string
	statsLimit int
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show stored postings and recent site runs",
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().StringVar(&statsSite, "site", "", "only show runs of this site")
	statsCmd.Flags().IntVar(&statsLimit, "runs", 10, "number of recent runs to show")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx := context.Background()
	st, err := store.Open(ctx, store.Config{Driver: cfg.Store.Driver, Path: cfg.Store.Path, DSN: cfg.Store.DSN})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	stats, err := st.Stats(ctx)
	if err != nil {
		return err
	}
	runs, err := st.ListRuns(ctx, statsSite, statsLimit)
	if err != nil {
		return err
	}
	return report.RenderStats(cmd.OutOrStdout(), stats, runs)
}
