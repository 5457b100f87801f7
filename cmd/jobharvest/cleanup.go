package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobharvest/internal/pipeline"
	"github.com/amishk599/jobharvest/internal/store"
)

var cleanupRetention time.Duration

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete postings not seen within the retention period",
	RunE:  runCleanup,
}

func init() {
	cleanupCmd.Flags().DurationVar(&cleanupRetention, "older-than", 0, "retention period (overrides cleanup.retention)")
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, logger := mustLoad()

	retention := cfg.Cleanup.Retention
	if cleanupRetention > 0 {
		retention = cleanupRetention
	}
	if retention <= 0 {
		return fmt.Errorf("retention period must be positive")
	}

	ctx := context.Background()
	st, err := store.Open(ctx, store.Config{Driver: cfg.Store.Driver, Path: cfg.Store.Path, DSN: cfg.Store.DSN})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	p := pipeline.New(pipeline.Options{Store: st, RetentionPeriod: retention, Logger: logger})
	res, err := p.Run(ctx, pipeline.Phases{CleanupOnly: true})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d postings not seen in %s\n", res.CleanedUp, retention)
	return nil
}
