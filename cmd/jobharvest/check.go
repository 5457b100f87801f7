package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobharvest/internal/pipeline"
	"github.com/amishk599/jobharvest/internal/report"
)

var checkSites []string

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Poll once, print the classification, exit",
	Long: "One-shot dry run: fetches every selected site, classifies postings against the store and prints " +
		"the result. Nothing is written to the store, no documents are generated and no report is sent.",
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringSliceVar(&checkSites, "site", nil, "only check this site (repeatable)")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, logger := mustLoad()
	logger.Info("check mode: the store will not be modified")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, appOptions{Sites: checkSites, DryRun: true}, logger)
	if err != nil {
		logger.Error("setup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	p, err := a.pipeline(nil)
	if err != nil {
		logger.Error("setup failed", "error", err)
		os.Exit(1)
	}

	res, err := p.Run(ctx, pipeline.Phases{SkipDocuments: true, SkipReport: true})
	if rerr := report.Render(cmd.OutOrStdout(), res.Report); rerr != nil {
		logger.Warn("rendering report", "error", rerr)
	}
	if err != nil {
		logger.Error("check finished with errors", "error", err)
	}

	logger.Info("check complete", "analyzed", res.Analyzed, "relevant", res.Relevant)
	return nil
}
