package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amishk599/jobharvest/internal/metrics"
	"github.com/amishk599/jobharvest/internal/model"
	"github.com/amishk599/jobharvest/internal/normalize"
	"github.com/amishk599/jobharvest/internal/store"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// clock is a settable time source.
type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func posting(t *testing.T, site, id, title string) model.Posting {
	t.Helper()
	p, err := normalize.Normalize(model.RawPosting{
		NativeID: id,
		Title:    title,
		Company:  "Acme",
		URL:      "https://example.org/jobs/" + id,
	}, site)
	require.NoError(t, err)
	return p
}

func classes(cps []model.ClassifiedPosting) map[string]model.Classification {
	out := make(map[string]model.Classification, len(cps))
	for _, cp := range cps {
		out[cp.Posting.NativeID] = cp.Classification
	}
	return out
}

func TestReconcile_NewPostings(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	r := New(s, Options{Now: (&clock{t0}).Now})

	res, err := r.Reconcile(ctx, "board", []model.Posting{
		posting(t, "board", "a1", "Engineer"),
		posting(t, "board", "a2", "Analyst"),
	}, true)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Count(model.New))
	assert.Empty(t, res.Vanished)
	assert.Len(t, res.Qualifying(), 2)

	stored, found, err := s.Get(ctx, "board:a1")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, stored.FirstSeenAt.Equal(t0))
	assert.True(t, stored.LastSeenAt.Equal(t0))
}

func TestReconcile_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	r := New(s, Options{Now: (&clock{t0}).Now})

	batch := []model.Posting{
		posting(t, "board", "a1", "Engineer"),
		posting(t, "board", "a2", "Analyst"),
	}

	_, err := r.Reconcile(ctx, "board", batch, true)
	require.NoError(t, err)
	first, err := s.ListBySite(ctx, "board")
	require.NoError(t, err)

	res, err := r.Reconcile(ctx, "board", batch, true)
	require.NoError(t, err)
	second, err := s.ListBySite(ctx, "board")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 2, res.Count(model.Unchanged))
	assert.Empty(t, res.Qualifying())
}

func TestReconcile_ChangeDetectionKeepsFirstSeen(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	c := &clock{t0}
	r := New(s, Options{Now: c.Now})

	_, err := r.Reconcile(ctx, "board", []model.Posting{posting(t, "board", "a1", "Engineer")}, true)
	require.NoError(t, err)

	c.now = t0.Add(6 * time.Hour)
	changed := posting(t, "board", "a1", "Senior Engineer")
	res, err := r.Reconcile(ctx, "board", []model.Posting{changed}, true)
	require.NoError(t, err)

	require.Len(t, res.Postings, 1)
	assert.Equal(t, model.Updated, res.Postings[0].Classification)

	stored, _, err := s.Get(ctx, "board:a1")
	require.NoError(t, err)
	assert.Equal(t, "Senior Engineer", stored.Fields.Title)
	assert.Equal(t, changed.Fingerprint, stored.Fingerprint)
	assert.True(t, stored.FirstSeenAt.Equal(t0))
	assert.True(t, stored.LastSeenAt.Equal(c.now))
}

func TestReconcile_UnchangedOnlyTouchesLastSeen(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	c := &clock{t0}
	r := New(s, Options{Now: c.Now})

	p := posting(t, "board", "a1", "Engineer")
	_, err := r.Reconcile(ctx, "board", []model.Posting{p}, true)
	require.NoError(t, err)

	c.now = t0.Add(time.Hour)
	res, err := r.Reconcile(ctx, "board", []model.Posting{p}, true)
	require.NoError(t, err)
	assert.Equal(t, model.Unchanged, res.Postings[0].Classification)

	stored, _, _ := s.Get(ctx, "board:a1")
	assert.True(t, stored.FirstSeenAt.Equal(t0))
	assert.True(t, stored.LastSeenAt.Equal(t0.Add(time.Hour)))
}

func TestReconcile_LastSeenNeverMovesBackwards(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	c := &clock{t0}
	r := New(s, Options{Now: c.Now})

	p := posting(t, "board", "a1", "Engineer")
	_, err := r.Reconcile(ctx, "board", []model.Posting{p}, true)
	require.NoError(t, err)

	c.now = t0.Add(-time.Hour)
	_, err = r.Reconcile(ctx, "board", []model.Posting{p}, true)
	require.NoError(t, err)

	stored, _, _ := s.Get(ctx, "board:a1")
	assert.True(t, stored.LastSeenAt.Equal(t0))
}

func TestReconcile_VanishedIsReportedNotDeleted(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	r := New(s, Options{Now: (&clock{t0}).Now})

	_, err := r.Reconcile(ctx, "board", []model.Posting{
		posting(t, "board", "a1", "Engineer"),
		posting(t, "board", "a2", "Analyst"),
	}, true)
	require.NoError(t, err)
	// Another site's postings are never vanished candidates for board.
	_, err = r.Reconcile(ctx, "other", []model.Posting{posting(t, "other", "z9", "Manager")}, true)
	require.NoError(t, err)

	res, err := r.Reconcile(ctx, "board", []model.Posting{posting(t, "board", "a1", "Engineer")}, true)
	require.NoError(t, err)

	require.Len(t, res.Vanished, 1)
	assert.Equal(t, "board:a2", res.Vanished[0].Posting.SourceID)
	assert.Equal(t, model.Vanished, res.Vanished[0].Classification)
	assert.False(t, res.Vanished[0].Qualifies())

	_, found, err := s.Get(ctx, "board:a2")
	require.NoError(t, err)
	assert.True(t, found, "vanished postings stay in the store")
}

func TestReconcile_SkipsVanishedDetectionWhenAsked(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	r := New(s, Options{Now: (&clock{t0}).Now})

	_, err := r.Reconcile(ctx, "board", []model.Posting{
		posting(t, "board", "a1", "Engineer"),
		posting(t, "board", "a2", "Analyst"),
	}, true)
	require.NoError(t, err)

	res, err := r.Reconcile(ctx, "board", []model.Posting{posting(t, "board", "a1", "Engineer")}, false)
	require.NoError(t, err)
	assert.Empty(t, res.Vanished)
}

func TestReconcile_DryRunLeavesStoreUntouched(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	seed := New(s, Options{Now: (&clock{t0}).Now})
	_, err := seed.Reconcile(ctx, "board", []model.Posting{posting(t, "board", "a1", "Engineer")}, true)
	require.NoError(t, err)

	preview := New(s, Options{Now: (&clock{t0.Add(time.Hour)}).Now, DryRun: true})
	assert.True(t, preview.DryRun())

	res, err := preview.Reconcile(ctx, "board", []model.Posting{
		posting(t, "board", "a1", "Senior Engineer"),
		posting(t, "board", "a2", "Analyst"),
	}, true)
	require.NoError(t, err)

	assert.Equal(t, map[string]model.Classification{"a1": model.Updated, "a2": model.New}, classes(res.Postings))

	stored, err := s.ListBySite(ctx, "board")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "Engineer", stored[0].Fields.Title)
	assert.True(t, stored[0].LastSeenAt.Equal(t0))
}

func TestDedup_LastWriteWinsAtFirstPosition(t *testing.T) {
	a1 := posting(t, "board", "a1", "Engineer")
	a2 := posting(t, "board", "a2", "Analyst")
	a1b := posting(t, "board", "a1", "Staff Engineer")

	out := Dedup([]model.Posting{a1, a2, a1b})

	require.Len(t, out, 2)
	assert.Equal(t, "Staff Engineer", out[0].Fields.Title)
	assert.Equal(t, "board:a2", out[1].SourceID)
}

func TestReconcile_ExampleBoardScenario(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	c := &clock{t0}
	r := New(s, Options{Now: c.Now})

	page1 := []model.Posting{posting(t, "ExampleBoard", "a1", "Engineer")}
	page2 := []model.Posting{
		posting(t, "ExampleBoard", "a1", "Engineer"),
		posting(t, "ExampleBoard", "a2", "Analyst"),
	}
	res, err := r.Reconcile(ctx, "ExampleBoard", append(page1, page2...), true)
	require.NoError(t, err)

	assert.Equal(t, map[string]model.Classification{"a1": model.New, "a2": model.New}, classes(res.Postings))
	stored, err := s.ListBySite(ctx, "ExampleBoard")
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	c.now = t0.Add(24 * time.Hour)
	res, err = r.Reconcile(ctx, "ExampleBoard", []model.Posting{posting(t, "ExampleBoard", "a1", "Senior Engineer")}, true)
	require.NoError(t, err)

	assert.Equal(t, map[string]model.Classification{"a1": model.Updated}, classes(res.Postings))
	assert.Equal(t, map[string]model.Classification{"a2": model.Vanished}, classes(res.Vanished))
}

// failingStore fails Upsert for one source id.
type failingStore struct {
	*store.MemoryStore
	failOn string
}

func (f *failingStore) Upsert(ctx context.Context, p model.Posting) error {
	if p.SourceID == f.failOn {
		return &model.StoreError{Op: "upsert", Key: p.SourceID, Err: errors.New("disk full")}
	}
	return f.MemoryStore.Upsert(ctx, p)
}

func TestReconcile_StoreErrorStopsReconciliation(t *testing.T) {
	ctx := context.Background()
	s := &failingStore{MemoryStore: store.NewMemoryStore(), failOn: "board:a2"}
	r := New(s, Options{Now: (&clock{t0}).Now})

	res, err := r.Reconcile(ctx, "board", []model.Posting{
		posting(t, "board", "a1", "Engineer"),
		posting(t, "board", "a2", "Analyst"),
		posting(t, "board", "a3", "Manager"),
	}, true)

	var storeErr *model.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "board:a2", storeErr.Key)
	assert.Len(t, res.Postings, 1)

	_, found, _ := s.Get(ctx, "board:a1")
	assert.True(t, found, "earlier upserts stay committed")
	_, found, _ = s.Get(ctx, "board:a3")
	assert.False(t, found, "nothing after the failure is written")
}

func TestReconcile_CountsClassifications(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	r := New(store.NewMemoryStore(), Options{Now: (&clock{t0}).Now, Metrics: m})

	_, err := r.Reconcile(ctx, "board", []model.Posting{
		posting(t, "board", "a1", "Engineer"),
		posting(t, "board", "a2", "Analyst"),
	}, true)
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Classified.WithLabelValues("board", "new")))
}
