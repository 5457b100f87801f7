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

var runFlags struct {
	sites         []string
	skipScraping  bool
	skipAnalysis  bool
	skipDocuments bool
	skipReport    bool
	skipEmail     bool
	cleanupOnly   bool
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline once",
	Long: "Runs ingest, analysis, documents, report and cleanup once and exits. " +
		"Each phase can be skipped; --cleanup-only runs retention alone.",
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringSliceVar(&runFlags.sites, "site", nil, "only run this site (repeatable)")
	f.BoolVar(&runFlags.skipScraping, "skip-scraping", false, "skip the ingest phase")
	f.BoolVar(&runFlags.skipAnalysis, "skip-analysis", false, "skip the filter phase")
	f.BoolVar(&runFlags.skipDocuments, "skip-documents", false, "skip document generation")
	f.BoolVar(&runFlags.skipReport, "skip-report", false, "skip sending the report")
	f.BoolVar(&runFlags.skipEmail, "skip-email", false, "alias for --skip-report")
	f.BoolVar(&runFlags.cleanupOnly, "cleanup-only", false, "only run the cleanup phase")
	f.BoolVar(&runFlags.dryRun, "dry-run", false, "classify without writing to the store or the filesystem")
	_ = f.MarkDeprecated("skip-email", "use --skip-report")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, logger := mustLoad()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, appOptions{Sites: runFlags.sites, DryRun: runFlags.dryRun}, logger)
	if err != nil {
		logger.Error("setup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if runFlags.dryRun {
		logger.Info("dry-run mode: nothing will be written")
	}

	p, err := a.pipeline(setupNotifier(cfg, a.httpClient, logger))
	if err != nil {
		logger.Error("setup failed", "error", err)
		os.Exit(1)
	}

	res, err := p.Run(ctx, pipeline.Phases{
		SkipIngest:    runFlags.skipScraping,
		SkipAnalysis:  runFlags.skipAnalysis,
		SkipDocuments: runFlags.skipDocuments,
		SkipReport:    runFlags.skipReport || runFlags.skipEmail,
		CleanupOnly:   runFlags.cleanupOnly,
	})

	if !runFlags.cleanupOnly && !runFlags.skipScraping {
		if rerr := report.Render(cmd.OutOrStdout(), res.Report); rerr != nil {
			logger.Warn("rendering report", "error", rerr)
		}
	}
	if err != nil {
		logger.Error("run finished with errors", "error", err)
		a.Close()
		os.Exit(1)
	}
	logger.Info("run complete",
		"relevant", res.Relevant,
		"documents", len(res.Report.Documents),
		"expired", res.CleanedUp,
	)
	return nil
}
