// Package scheduler runs site pollers as one multi-site run and repeats
// that run on a cron schedule.
package scheduler

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/amishk599/jobharvest/internal/model"
	"github.com/amishk599/jobharvest/internal/poller"
)

// SiteRunner runs one site to completion and never fails the caller.
type SiteRunner interface {
	Run(ctx context.Context, runID string) poller.Outcome
}

// Options configures an Orchestrator.
type Options struct {
	// Concurrency caps how many sites run at once; 0 means one worker per site.
	Concurrency int
	Now         func() time.Time
	NewRunID    func() string
	Logger      *slog.Logger
}

// Orchestrator coordinates one run across every configured site. Sites are
// independent: a failure in one is recorded on its SiteRunRecord and the
// rest proceed.
type Orchestrator struct {
	sites       []SiteRunner
	concurrency int
	now         func() time.Time
	newRunID    func() string
	logger      *slog.Logger
}

func NewOrchestrator(sites []SiteRunner, opts Options) *Orchestrator {
	o := &Orchestrator{
		sites:       sites,
		concurrency: opts.Concurrency,
		now:         opts.Now,
		newRunID:    opts.NewRunID,
		logger:      opts.Logger,
	}
	if o.concurrency <= 0 {
		o.concurrency = len(sites)
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.newRunID == nil {
		o.newRunID = uuid.NewString
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o
}

// RunOnce runs every site and aggregates their records and classified
// postings, in site order. The report succeeds if at least one site completed.
func (o *Orchestrator) RunOnce(ctx context.Context) model.Report {
	runID := o.newRunID()
	report := model.Report{StartedAt: o.now().UTC()}
	o.logger.Info("run started", "run_id", runID, "sites", len(o.sites), "concurrency", o.concurrency)

	outcomes := make([]poller.Outcome, len(o.sites))
	var g errgroup.Group
	if o.concurrency > 0 {
		g.SetLimit(o.concurrency)
	}
	for i, site := range o.sites {
		g.Go(func() error {
			outcomes[i] = site.Run(ctx, runID)
			return nil
		})
	}
	g.Wait()

	for _, out := range outcomes {
		report.Records = append(report.Records, out.Record)
		report.Batch = append(report.Batch, out.Result.Qualifying()...)
		report.Vanished = append(report.Vanished, out.Result.Vanished...)
	}
	report.CompletedAt = o.now().UTC()

	o.logger.Info("run finished",
		"run_id", runID,
		"succeeded", report.Succeeded(),
		"qualifying", len(report.Batch),
		"vanished", len(report.Vanished),
		"duration", report.CompletedAt.Sub(report.StartedAt),
	)
	return report
}
