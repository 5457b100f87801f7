// Package reconcile diffs a site run's postings against the job store.
package reconcile

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/amishk599/jobharvest/internal/metrics"
	"github.com/amishk599/jobharvest/internal/model"
)

// Options configures a Reconciler.
type Options struct {
	// Now is the clock; defaults to time.Now. Every posting in one call is
	// stamped with a single reading.
	Now func() time.Time
	// DryRun classifies against the store without writing to it.
	DryRun  bool
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Reconciler is the only writer of postings to the job store.
type Reconciler struct {
	store   model.JobStore
	now     func() time.Time
	dryRun  bool
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Result is the classified outcome of one site's reconciliation.
type Result struct {
	Site string
	// Postings holds New, Updated and Unchanged entries in batch order.
	Postings []model.ClassifiedPosting
	// Vanished holds stored postings of the site absent from the batch.
	Vanished []model.ClassifiedPosting
}

// Count returns how many postings received classification c.
func (r Result) Count(c model.Classification) int {
	if c == model.Vanished {
		return len(r.Vanished)
	}
	n := 0
	for _, cp := range r.Postings {
		if cp.Classification == c {
			n++
		}
	}
	return n
}

// Qualifying returns the New and Updated entries.
func (r Result) Qualifying() []model.ClassifiedPosting {
	var out []model.ClassifiedPosting
	for _, cp := range r.Postings {
		if cp.Qualifies() {
			out = append(out, cp)
		}
	}
	return out
}

// New creates a Reconciler over store.
func New(store model.JobStore, opts Options) *Reconciler {
	r := &Reconciler{
		store:   store,
		now:     opts.Now,
		dryRun:  opts.DryRun,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if r.metrics == nil {
		r.metrics = metrics.Discard()
	}
	return r
}

// DryRun reports whether the reconciler leaves the store untouched.
func (r *Reconciler) DryRun() bool { return r.dryRun }

// Reconcile classifies batch for site and persists the result. Duplicate
// source ids in batch collapse to the last occurrence's content at the first
// occurrence's position. When detectVanished is set, stored postings of the
// site that are absent from batch are reported as Vanished; they are never
// deleted here.
//
// The first store error stops reconciliation. Upserts already made stay,
// and replaying the batch is safe.
func (r *Reconciler) Reconcile(ctx context.Context, site string, batch []model.Posting, detectVanished bool) (Result, error) {
	now := r.now().UTC()
	result := Result{Site: site}

	postings := Dedup(batch)
	seen := make(map[string]struct{}, len(postings))

	for _, p := range postings {
		seen[p.SourceID] = struct{}{}

		cp, err := r.reconcileOne(ctx, p, now)
		if err != nil {
			return result, fmt.Errorf("reconcile %s: %w", site, err)
		}
		result.Postings = append(result.Postings, cp)
		r.metrics.Classified.WithLabelValues(site, cp.Classification.String()).Inc()

		r.logger.Debug("posting classified",
			"site", site,
			"source_id", p.SourceID,
			"classification", cp.Classification.String(),
		)
	}

	if detectVanished {
		stored, err := r.store.ListBySite(ctx, site)
		if err != nil {
			return result, fmt.Errorf("reconcile %s: list stored postings: %w", site, err)
		}
		for _, sp := range stored {
			if _, ok := seen[sp.SourceID]; ok {
				continue
			}
			result.Vanished = append(result.Vanished, model.ClassifiedPosting{Posting: sp, Classification: model.Vanished})
		}
		sort.Slice(result.Vanished, func(i, j int) bool {
			return result.Vanished[i].Posting.SourceID < result.Vanished[j].Posting.SourceID
		})
		r.metrics.Classified.WithLabelValues(site, model.Vanished.String()).Add(float64(len(result.Vanished)))
	}

	return result, nil
}

func (r *Reconciler) reconcileOne(ctx context.Context, p model.Posting, now time.Time) (model.ClassifiedPosting, error) {
	stored, found, err := r.store.Get(ctx, p.SourceID)
	if err != nil {
		return model.ClassifiedPosting{}, err
	}

	var cp model.ClassifiedPosting
	switch {
	case !found:
		p.FirstSeenAt = now
		p.LastSeenAt = now
		cp = model.ClassifiedPosting{Posting: p, Classification: model.New}

	case stored.Fingerprint != p.Fingerprint:
		p.FirstSeenAt = stored.FirstSeenAt
		p.LastSeenAt = later(stored.LastSeenAt, now)
		cp = model.ClassifiedPosting{Posting: p, Classification: model.Updated}

	default:
		stored.LastSeenAt = later(stored.LastSeenAt, now)
		cp = model.ClassifiedPosting{Posting: stored, Classification: model.Unchanged}
	}

	if r.dryRun {
		return cp, nil
	}
	if err := r.store.Upsert(ctx, cp.Posting); err != nil {
		return model.ClassifiedPosting{}, err
	}
	return cp, nil
}

// Dedup collapses postings sharing a source id: the last occurrence's
// content wins, placed where the id first appeared.
func Dedup(batch []model.Posting) []model.Posting {
	index := make(map[string]int, len(batch))
	out := make([]model.Posting, 0, len(batch))
	for _, p := range batch {
		if i, ok := index[p.SourceID]; ok {
			out[i] = p
			continue
		}
		index[p.SourceID] = len(out)
		out = append(out, p)
	}
	return out
}

// later keeps last_seen_at monotonic even if the clock steps backwards.
func later(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
