package poller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/amishk599/jobharvest/internal/lock"
	"github.com/amishk599/jobharvest/internal/model"
	"github.com/amishk599/jobharvest/internal/reconcile"
	"github.com/amishk599/jobharvest/internal/store"
)

// --- Fakes ---

// scriptedAdapter serves canned pages; unknown pages parse to nothing.
type scriptedAdapter struct {
	pages map[int]model.Page
}

func (a *scriptedAdapter) BuildRequest(page int) (model.RequestDescriptor, error) {
	return model.RequestDescriptor{URL: fmt.Sprintf("https://example.org/search?page=%d", page)}, nil
}

func (a *scriptedAdapter) Parse(page int, _ []byte) model.Page {
	return a.pages[page]
}

// countingFetcher returns an empty body, or errs[n] on the n-th call.
type countingFetcher struct {
	calls  int
	errs   map[int]error
	before func(call int)
}

func (f *countingFetcher) Fetch(_ context.Context, req model.RequestDescriptor) (model.Response, error) {
	f.calls++
	if f.before != nil {
		f.before(f.calls)
	}
	if err := f.errs[f.calls]; err != nil {
		return model.Response{}, err
	}
	return model.Response{StatusCode: 200, Body: []byte(req.URL)}, nil
}

// --- Helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func raw(id, title string) model.RawPosting {
	return model.RawPosting{NativeID: id, Title: title, URL: "https://example.org/jobs/" + id}
}

func newTestPoller(s *store.MemoryStore, adapter model.SiteAdapter, fetcher model.PageFetcher, maxPages int) *SitePoller {
	return New(Options{
		Site:       "ExampleBoard",
		Adapter:    adapter,
		Fetcher:    fetcher,
		Reconciler: reconcile.New(s, reconcile.Options{Now: func() time.Time { return t0 }}),
		Runs:       s,
		MaxPages:   maxPages,
		Now:        func() time.Time { return t0 },
		Logger:     discardLogger(),
	})
}

func countByClass(out Outcome) map[model.Classification]int {
	counts := map[model.Classification]int{}
	for _, cp := range out.Result.Postings {
		counts[cp.Classification]++
	}
	counts[model.Vanished] = len(out.Result.Vanished)
	return counts
}

// --- Tests ---

func TestRun_ExampleBoardScenario(t *testing.T) {
	s := store.NewMemoryStore()
	adapter := &scriptedAdapter{pages: map[int]model.Page{
		1: {Postings: []model.RawPosting{raw("a1", "Engineer")}, HasNext: true},
		2: {Postings: []model.RawPosting{raw("a1", "Engineer"), raw("a2", "Analyst")}},
	}}
	fetcher := &countingFetcher{}

	out := newTestPoller(s, adapter, fetcher, 2).Run(context.Background(), "run-1")

	if out.Record.Status != model.RunCompleted {
		t.Fatalf("status = %s, want completed (errors %v)", out.Record.Status, out.Record.ErrorMessages)
	}
	if out.Record.New != 2 || out.Record.PagesFetched != 2 || out.Record.PostingsSeen != 3 {
		t.Errorf("unexpected record: %+v", out.Record)
	}
	stored, _ := s.ListBySite(context.Background(), "ExampleBoard")
	if len(stored) != 2 {
		t.Fatalf("store holds %d postings, want 2", len(stored))
	}

	// Rerun with a1's title changed and a2 gone.
	adapter.pages = map[int]model.Page{
		1: {Postings: []model.RawPosting{raw("a1", "Senior Engineer")}},
	}
	out = newTestPoller(s, adapter, &countingFetcher{}, 2).Run(context.Background(), "run-2")

	counts := countByClass(out)
	if counts[model.Updated] != 1 || counts[model.Vanished] != 1 {
		t.Errorf("classification counts = %v, want 1 updated and 1 vanished", counts)
	}
	if out.Result.Vanished[0].Posting.NativeID != "a2" {
		t.Errorf("vanished = %s, want a2", out.Result.Vanished[0].Posting.NativeID)
	}
}

func TestRun_StopsAtMaxPages(t *testing.T) {
	s := store.NewMemoryStore()
	// Seed a posting that would look vanished if the truncated run were trusted.
	seed := newTestPoller(s, &scriptedAdapter{pages: map[int]model.Page{
		1: {Postings: []model.RawPosting{raw("old", "Engineer")}},
	}}, &countingFetcher{}, 3)
	seed.Run(context.Background(), "seed")

	pages := map[int]model.Page{}
	for i := 1; i <= 10; i++ {
		pages[i] = model.Page{Postings: []model.RawPosting{raw(fmt.Sprintf("p%d", i), "Engineer")}, HasNext: true}
	}
	fetcher := &countingFetcher{}

	out := newTestPoller(s, &scriptedAdapter{pages: pages}, fetcher, 3).Run(context.Background(), "run-1")

	if fetcher.calls != 3 {
		t.Errorf("fetched %d pages, want 3", fetcher.calls)
	}
	if out.Record.Status != model.RunCompleted || out.Record.New != 3 {
		t.Errorf("unexpected record: %+v", out.Record)
	}
	if len(out.Result.Vanished) != 0 {
		t.Errorf("truncated run must not report vanished postings, got %d", len(out.Result.Vanished))
	}
}

func TestRun_FetchErrorFailsSiteWithoutReconciling(t *testing.T) {
	s := store.NewMemoryStore()
	adapter := &scriptedAdapter{pages: map[int]model.Page{
		1: {Postings: []model.RawPosting{raw("a1", "Engineer")}, HasNext: true},
	}}
	fetcher := &countingFetcher{errs: map[int]error{
		2: &model.FetchError{Kind: model.FetchExhausted, URL: "https://example.org/search?page=2", Attempts: 4, Err: errors.New("429")},
	}}

	out := newTestPoller(s, adapter, fetcher, 5).Run(context.Background(), "run-1")

	if out.Record.Status != model.RunFailed {
		t.Fatalf("status = %s, want failed", out.Record.Status)
	}
	if out.Record.Errors != 1 || len(out.Record.ErrorMessages) != 1 {
		t.Errorf("expected one recorded error, got %+v", out.Record)
	}
	if stored, _ := s.ListBySite(context.Background(), "ExampleBoard"); len(stored) != 0 {
		t.Errorf("failed run must not reconcile, store holds %d", len(stored))
	}
}

func TestRun_CancellationAborts(t *testing.T) {
	s := store.NewMemoryStore()
	adapter := &scriptedAdapter{pages: map[int]model.Page{
		1: {Postings: []model.RawPosting{raw("a1", "Engineer")}, HasNext: true},
		2: {Postings: []model.RawPosting{raw("a2", "Analyst")}},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fetcher := &countingFetcher{before: func(call int) {
		if call == 1 {
			cancel()
		}
	}}

	out := newTestPoller(s, adapter, fetcher, 5).Run(ctx, "run-1")

	if out.Record.Status != model.RunAborted {
		t.Fatalf("status = %s, want aborted", out.Record.Status)
	}
	if fetcher.calls != 1 {
		t.Errorf("fetched %d pages after cancellation, want 1", fetcher.calls)
	}
	if stored, _ := s.ListBySite(context.Background(), "ExampleBoard"); len(stored) != 0 {
		t.Errorf("aborted run must not reconcile, store holds %d", len(stored))
	}

	runs, _ := s.ListRuns(context.Background(), "ExampleBoard", 0)
	if len(runs) != 1 || runs[0].Status != model.RunAborted {
		t.Errorf("expected aborted run in the log, got %+v", runs)
	}
}

func TestRun_ParseFailureOnFirstPageCompletesEmpty(t *testing.T) {
	s := store.NewMemoryStore()
	adapter := &scriptedAdapter{pages: map[int]model.Page{
		1: {ParseErr: fmt.Errorf("html: %w", model.ErrParseFailure)},
	}}

	out := newTestPoller(s, adapter, &countingFetcher{}, 5).Run(context.Background(), "run-1")

	if out.Record.Status != model.RunCompleted {
		t.Fatalf("status = %s, want completed", out.Record.Status)
	}
	if out.Record.Errors != 0 || out.Record.New != 0 {
		t.Errorf("parse failure is not an error: %+v", out.Record)
	}
}

func TestRun_ParseFailureLaterKeepsEarlierPages(t *testing.T) {
	s := store.NewMemoryStore()
	newTestPoller(s, &scriptedAdapter{pages: map[int]model.Page{
		1: {Postings: []model.RawPosting{raw("keep", "Engineer")}},
	}}, &countingFetcher{}, 5).Run(context.Background(), "seed")

	adapter := &scriptedAdapter{pages: map[int]model.Page{
		1: {Postings: []model.RawPosting{raw("a1", "Engineer")}, HasNext: true},
		2: {ParseErr: fmt.Errorf("html: %w", model.ErrParseFailure)},
	}}
	out := newTestPoller(s, adapter, &countingFetcher{}, 5).Run(context.Background(), "run-1")

	if out.Record.Status != model.RunCompleted || out.Record.New != 1 {
		t.Fatalf("unexpected record: %+v", out.Record)
	}
	if len(out.Result.Vanished) != 0 {
		t.Errorf("vanished detection must be skipped after a parse failure")
	}
}

func TestRun_DropsUnnormalizablePostings(t *testing.T) {
	s := store.NewMemoryStore()
	adapter := &scriptedAdapter{pages: map[int]model.Page{
		1: {Postings: []model.RawPosting{raw("a1", "Engineer"), {NativeID: "a2", URL: "https://example.org/jobs/a2"}}},
	}}

	out := newTestPoller(s, adapter, &countingFetcher{}, 5).Run(context.Background(), "run-1")

	if out.Record.Status != model.RunCompleted {
		t.Fatalf("status = %s, want completed", out.Record.Status)
	}
	if out.Record.Dropped != 1 || out.Record.New != 1 || out.Record.PostingsSeen != 2 {
		t.Errorf("unexpected record: %+v", out.Record)
	}
}

func TestRun_RepeatedEmptyPagesFail(t *testing.T) {
	s := store.NewMemoryStore()
	pages := map[int]model.Page{}
	for i := 1; i <= 10; i++ {
		pages[i] = model.Page{HasNext: true}
	}
	fetcher := &countingFetcher{}

	out := newTestPoller(s, &scriptedAdapter{pages: pages}, fetcher, 10).Run(context.Background(), "run-1")

	if out.Record.Status != model.RunFailed {
		t.Fatalf("status = %s, want failed", out.Record.Status)
	}
	if fetcher.calls != DefaultMaxEmptyPages {
		t.Errorf("fetched %d pages, want %d", fetcher.calls, DefaultMaxEmptyPages)
	}
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	s := store.NewMemoryStore()
	p := New(Options{
		Site: "ExampleBoard",
		Adapter: &scriptedAdapter{pages: map[int]model.Page{
			1: {Postings: []model.RawPosting{raw("a1", "Engineer")}},
		}},
		Fetcher:    &countingFetcher{},
		Reconciler: reconcile.New(s, reconcile.Options{DryRun: true}),
		Runs:       s,
		Locker:     lock.NewLocal(),
		Logger:     discardLogger(),
	})

	out := p.Run(context.Background(), "preview")

	if out.Record.New != 1 {
		t.Errorf("dry run should still classify, got %+v", out.Record)
	}
	if stored, _ := s.ListBySite(context.Background(), "ExampleBoard"); len(stored) != 0 {
		t.Errorf("dry run wrote %d postings", len(stored))
	}
	if runs, _ := s.ListRuns(context.Background(), "", 0); len(runs) != 0 {
		t.Errorf("dry run wrote %d run records", len(runs))
	}
}

func TestRun_WaitsForSiteLock(t *testing.T) {
	s := store.NewMemoryStore()
	locker := lock.NewLocal()
	release, err := locker.Acquire(context.Background(), "ExampleBoard")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release(context.Background())

	p := New(Options{
		Site: "ExampleBoard",
		Adapter: &scriptedAdapter{pages: map[int]model.Page{
			1: {Postings: []model.RawPosting{raw("a1", "Engineer")}},
		}},
		Fetcher:    &countingFetcher{},
		Reconciler: reconcile.New(s, reconcile.Options{}),
		Runs:       s,
		Locker:     locker,
		Logger:     discardLogger(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	out := p.Run(ctx, "run-1")

	if out.Record.Status != model.RunAborted {
		t.Fatalf("status = %s, want aborted while another holder has the lock", out.Record.Status)
	}
	if stored, _ := s.ListBySite(context.Background(), "ExampleBoard"); len(stored) != 0 {
		t.Errorf("store holds %d postings, want 0", len(stored))
	}
}
