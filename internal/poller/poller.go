// Package poller drives one site's run: pagination, fetching, parsing,
// normalization and reconciliation.
package poller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/amishk599/jobharvest/internal/lock"
	"github.com/amishk599/jobharvest/internal/metrics"
	"github.com/amishk599/jobharvest/internal/model"
	"github.com/amishk599/jobharvest/internal/normalize"
	"github.com/amishk599/jobharvest/internal/reconcile"
)

const (
	DefaultMaxPages      = 10
	DefaultMaxEmptyPages = 3
)

// ErrEmptyPages ends a site run whose adapter keeps promising more pages
// without returning any postings.
var ErrEmptyPages = errors.New("too many consecutive empty pages")

// Options wires a SitePoller. Site, Adapter, Fetcher and Reconciler are
// required.
type Options struct {
	Site          string
	Adapter       model.SiteAdapter
	Fetcher       model.PageFetcher
	Reconciler    *reconcile.Reconciler
	Runs          model.RunStore // optional run log
	Locker        lock.Locker    // optional; nil means no cross-process guard
	MaxPages      int
	MaxEmptyPages int
	Now           func() time.Time
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
}

// SitePoller owns the full run pipeline for a single site:
// paginate → fetch → parse → normalize → dedup → reconcile → record.
type SitePoller struct {
	Name          string
	adapter       model.SiteAdapter
	fetcher       model.PageFetcher
	reconciler    *reconcile.Reconciler
	runs          model.RunStore
	locker        lock.Locker
	maxPages      int
	maxEmptyPages int
	now           func() time.Time
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

// Outcome is what one site run hands back to the orchestrator.
type Outcome struct {
	Record model.SiteRunRecord
	Result reconcile.Result
}

// New creates a poller wired with all its dependencies.
func New(opts Options) *SitePoller {
	p := &SitePoller{
		Name:          opts.Site,
		adapter:       opts.Adapter,
		fetcher:       opts.Fetcher,
		reconciler:    opts.Reconciler,
		runs:          opts.Runs,
		locker:        opts.Locker,
		maxPages:      opts.MaxPages,
		maxEmptyPages: opts.MaxEmptyPages,
		now:           opts.Now,
		metrics:       opts.Metrics,
		logger:        opts.Logger,
	}
	if p.maxPages <= 0 {
		p.maxPages = DefaultMaxPages
	}
	if p.maxEmptyPages <= 0 {
		p.maxEmptyPages = DefaultMaxEmptyPages
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.metrics == nil {
		p.metrics = metrics.Discard()
	}
	if p.logger == nil {
		p.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return p
}

// collected is the outcome of the pagination phase.
type collected struct {
	postings []model.Posting
	// complete is false when pagination stopped before the site said it was
	// done, in which case absence from the batch proves nothing.
	complete bool
}

// Run executes one site run and finalizes its record exactly once. It never
// returns an error: failures are recorded on the SiteRunRecord. Cancellation
// is honoured between page fetches; once reconciliation starts it finishes.
func (p *SitePoller) Run(ctx context.Context, runID string) Outcome {
	rec := model.SiteRunRecord{
		RunID:        runID,
		SiteName:     p.Name,
		RunStartedAt: p.now().UTC(),
		Status:       model.RunRunning,
	}
	logger := p.logger.With("site", p.Name, "run_id", runID)
	logger.Info("site run started", "max_pages", p.maxPages)

	var out Outcome
	batch, err := p.collect(ctx, logger, &rec)
	if err == nil {
		out.Result, err = p.reconcile(ctx, logger, batch)
	}

	switch {
	case err == nil:
		rec.New = out.Result.Count(model.New)
		rec.Updated = out.Result.Count(model.Updated)
		rec.Unchanged = out.Result.Count(model.Unchanged)
		rec.Vanished = out.Result.Count(model.Vanished)
		rec.Finalize(model.RunCompleted, p.now().UTC())
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		rec.RecordError(err)
		rec.Finalize(model.RunAborted, p.now().UTC())
	default:
		rec.RecordError(err)
		rec.Finalize(model.RunFailed, p.now().UTC())
	}
	out.Record = rec

	p.metrics.SiteRuns.WithLabelValues(p.Name, string(rec.Status)).Inc()
	p.metrics.SiteRunSeconds.WithLabelValues(p.Name).Observe(rec.Duration().Seconds())
	p.save(ctx, logger, rec)

	attrs := []any{
		"status", rec.Status,
		"pages", rec.PagesFetched,
		"seen", rec.PostingsSeen,
		"new", rec.New,
		"updated", rec.Updated,
		"unchanged", rec.Unchanged,
		"vanished", rec.Vanished,
		"dropped", rec.Dropped,
		"duration", rec.Duration(),
	}
	if err != nil {
		logger.Error("site run did not complete", append(attrs, "error", err)...)
	} else {
		logger.Info("site run finished", attrs...)
	}
	return out
}

// collect walks the pages in order. Page N+1 is requested only when page N
// reported a next page and the max_pages ceiling allows it.
func (p *SitePoller) collect(ctx context.Context, logger *slog.Logger, rec *model.SiteRunRecord) (collected, error) {
	var (
		out   collected
		empty int
	)
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return collected{}, err
		}

		req, err := p.adapter.BuildRequest(page)
		if err != nil {
			return collected{}, fmt.Errorf("building request for page %d: %w", page, err)
		}

		resp, err := p.fetcher.Fetch(ctx, req)
		if err != nil {
			return collected{}, fmt.Errorf("fetching page %d: %w", page, err)
		}
		rec.PagesFetched++

		parsed := p.adapter.Parse(page, resp.Body)
		if parsed.ParseErr != nil {
			p.metrics.ParseFailures.WithLabelValues(p.Name).Inc()
			logger.Warn("page could not be parsed, ending pagination",
				"page", page,
				"error", parsed.ParseErr,
			)
			return out, nil
		}

		rec.PostingsSeen += len(parsed.Postings)
		for _, raw := range parsed.Postings {
			posting, err := normalize.Normalize(raw, p.Name)
			if err != nil {
				rec.Dropped++
				p.metrics.DroppedPostings.WithLabelValues(p.Name).Inc()
				logger.Warn("dropping posting", "page", page, "error", err)
				continue
			}
			out.postings = append(out.postings, posting)
		}
		logger.Debug("page parsed",
			"page", page,
			"postings", len(parsed.Postings),
			"has_next", parsed.HasNext,
		)

		if !parsed.HasNext {
			out.complete = true
			return out, nil
		}

		if len(parsed.Postings) == 0 {
			empty++
			if empty >= p.maxEmptyPages {
				return collected{}, fmt.Errorf("page %d: %w (%d)", page, ErrEmptyPages, empty)
			}
		} else {
			empty = 0
		}

		if page >= p.maxPages {
			logger.Info("max pages reached", "page", page)
			return out, nil
		}
	}
}

// reconcile holds the site lock while the batch is written. The work runs
// detached from ctx so a cancellation cannot leave the batch half applied.
func (p *SitePoller) reconcile(ctx context.Context, logger *slog.Logger, batch collected) (reconcile.Result, error) {
	if p.locker != nil && !p.reconciler.DryRun() {
		release, err := p.locker.Acquire(ctx, p.Name)
		if err != nil {
			return reconcile.Result{}, fmt.Errorf("acquiring site lock: %w", err)
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("releasing site lock", "error", err)
			}
		}()
	}

	if !batch.complete {
		logger.Info("page sequence truncated, skipping vanished detection")
	}
	return p.reconciler.Reconcile(context.WithoutCancel(ctx), p.Name, batch.postings, batch.complete)
}

func (p *SitePoller) save(ctx context.Context, logger *slog.Logger, rec model.SiteRunRecord) {
	if p.runs == nil || p.reconciler.DryRun() {
		return
	}
	if err := p.runs.SaveRun(context.WithoutCancel(ctx), rec); err != nil {
		logger.Error("saving run record", "error", err)
	}
}
