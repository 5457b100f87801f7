package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_CountersIncrement(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.FetchRequests.WithLabelValues("acme", "ok").Inc()
	m.FetchRequests.WithLabelValues("acme", "ok").Inc()
	m.Classified.WithLabelValues("acme", "new").Add(3)

	assert.InDelta(t, 2, testutil.ToFloat64(m.FetchRequests.WithLabelValues("acme", "ok")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.Classified.WithLabelValues("acme", "new")), 0)
}

func TestHandler_ExposesNamespace(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.SiteRuns.WithLabelValues("acme", "completed").Inc()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `jobharvest_poller_site_runs_total{site="acme",status="completed"} 1`)
}

func TestDiscard_IndependentRegistries(t *testing.T) {
	// Registering twice on separate registries must not panic.
	a := Discard()
	b := Discard()
	a.FetchRetries.WithLabelValues("x").Inc()
	assert.InDelta(t, 0, testutil.ToFloat64(b.FetchRetries.WithLabelValues("x")), 0)
}
