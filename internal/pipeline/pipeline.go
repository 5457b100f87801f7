// Package pipeline runs the phases of one invocation in order:
// ingest → analysis → documents → report → cleanup.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/amishk599/jobharvest/internal/filter"
	"github.com/amishk599/jobharvest/internal/model"
)

// ErrNoSiteCompleted is returned when ingest ran and every site failed.
var ErrNoSiteCompleted = errors.New("no site completed")

// Ingester runs every site once.
type Ingester interface {
	RunOnce(ctx context.Context) model.Report
}

// Retention is what the cleanup phase needs from the store.
type Retention interface {
	Cleanup(ctx context.Context, cutoff time.Time) (int64, error)
	Delete(ctx context.Context, sourceID string) error
}

// Phases selects what a run does. The zero value runs everything.
type Phases struct {
	SkipIngest    bool
	SkipAnalysis  bool
	SkipDocuments bool
	SkipReport    bool
	CleanupOnly   bool
}

// Options wires a Pipeline. Nil collaborators skip their phase.
type Options struct {
	Ingester  Ingester
	Filter    model.PostingFilter
	Documents model.DocumentGenerator
	Notifier  model.Notifier
	Store     Retention
	// RetentionPeriod deletes postings not seen for this long; 0 disables it.
	RetentionPeriod time.Duration
	// DeleteVanished removes this run's vanished postings during cleanup.
	DeleteVanished bool
	// DryRun leaves the store and the filesystem untouched.
	DryRun bool
	Now    func() time.Time
	Logger *slog.Logger
}

// Result is what a pipeline run did.
type Result struct {
	Report          model.Report
	Analyzed        int
	Relevant        int
	DocumentErrors  int
	CleanedUp       int64
	VanishedDeleted int
}

// Pipeline sequences the phases. Only ingest produces postings; every later
// phase works on the report it returned.
type Pipeline struct {
	opts   Options
	now    func() time.Time
	logger *slog.Logger
}

func New(opts Options) *Pipeline {
	p := &Pipeline{opts: opts, now: opts.Now, logger: opts.Logger}
	if p.now == nil {
		p.now = time.Now
	}
	if p.logger == nil {
		p.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return p
}

// Run executes the selected phases. A failing phase is logged and the
// following phases still run; the returned error joins every phase failure.
func (p *Pipeline) Run(ctx context.Context, phases Phases) (Result, error) {
	var (
		res  Result
		errs []error
	)

	if phases.CleanupOnly {
		p.logger.Info("running cleanup only")
		if err := p.cleanup(ctx, &res); err != nil {
			errs = append(errs, err)
		}
		return res, errors.Join(errs...)
	}

	res.Report = p.ingest(ctx, phases.SkipIngest)
	if !phases.SkipIngest && !res.Report.Succeeded() {
		errs = append(errs, ErrNoSiteCompleted)
	}

	p.analyze(phases.SkipAnalysis, &res)
	p.documents(ctx, phases.SkipDocuments, &res)

	if err := p.report(ctx, phases.SkipReport, res.Report); err != nil {
		errs = append(errs, err)
	}

	if err := p.cleanup(ctx, &res); err != nil {
		errs = append(errs, err)
	}

	return res, errors.Join(errs...)
}

func (p *Pipeline) ingest(ctx context.Context, skip bool) model.Report {
	if skip || p.opts.Ingester == nil {
		p.logger.Info("skipping ingest phase")
		now := p.now().UTC()
		return model.Report{StartedAt: now, CompletedAt: now}
	}
	p.logger.Info("phase: ingest")
	return p.opts.Ingester.RunOnce(ctx)
}

func (p *Pipeline) analyze(skip bool, res *Result) {
	res.Analyzed = len(res.Report.Batch)
	if skip || p.opts.Filter == nil || len(res.Report.Batch) == 0 {
		p.logger.Info("skipping analysis phase")
		res.Relevant = res.Analyzed
		return
	}
	p.logger.Info("phase: analysis", "postings", res.Analyzed)
	res.Report.Batch = filter.Apply(p.opts.Filter, res.Report.Batch)
	res.Relevant = len(res.Report.Batch)
	p.logger.Info("analysis complete", "analyzed", res.Analyzed, "relevant", res.Relevant)
}

func (p *Pipeline) documents(ctx context.Context, skip bool, res *Result) {
	if skip || p.opts.Documents == nil || p.opts.DryRun || len(res.Report.Batch) == 0 {
		p.logger.Info("skipping document generation phase")
		return
	}
	p.logger.Info("phase: documents", "postings", len(res.Report.Batch))
	for _, cp := range res.Report.Batch {
		path, err := p.opts.Documents.Generate(ctx, cp)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			res.DocumentErrors++
			p.logger.Warn("document generation failed", "source_id", cp.Posting.SourceID, "error", err)
			continue
		}
		res.Report.Documents = append(res.Report.Documents, path)
	}
	p.logger.Info("documents complete", "written", len(res.Report.Documents), "failed", res.DocumentErrors)
}

func (p *Pipeline) report(ctx context.Context, skip bool, r model.Report) error {
	if skip || p.opts.Notifier == nil {
		p.logger.Info("skipping report phase")
		return nil
	}
	p.logger.Info("phase: report")
	if err := p.opts.Notifier.Notify(ctx, r); err != nil {
		p.logger.Error("report failed", "error", err)
		return fmt.Errorf("report: %w", err)
	}
	return nil
}

func (p *Pipeline) cleanup(ctx context.Context, res *Result) error {
	if p.opts.Store == nil || p.opts.DryRun {
		p.logger.Info("skipping cleanup phase")
		return nil
	}
	p.logger.Info("phase: cleanup")

	if p.opts.DeleteVanished {
		for _, cp := range res.Report.Vanished {
			if err := p.opts.Store.Delete(ctx, cp.Posting.SourceID); err != nil {
				return fmt.Errorf("cleanup: delete vanished %s: %w", cp.Posting.SourceID, err)
			}
			res.VanishedDeleted++
		}
	}

	if p.opts.RetentionPeriod > 0 {
		cutoff := p.now().UTC().Add(-p.opts.RetentionPeriod)
		n, err := p.opts.Store.Cleanup(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("cleanup: %w", err)
		}
		res.CleanedUp = n
	}

	p.logger.Info("cleanup complete", "expired", res.CleanedUp, "vanished_deleted", res.VanishedDeleted)
	return nil
}
