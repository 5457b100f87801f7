package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amishk599/jobharvest/internal/model"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func sampleReport() model.Report {
	return model.Report{
		StartedAt:   t0,
		CompletedAt: t0.Add(90 * time.Second),
		Records: []model.SiteRunRecord{
			{SiteName: "ExampleBoard", Status: model.RunCompleted, PagesFetched: 2, PostingsSeen: 1500, New: 1200, Updated: 3, Vanished: 1,
				RunStartedAt: t0, RunCompletedAt: t0.Add(time.Minute)},
			{SiteName: "Lever", Status: model.RunFailed, Errors: 1, ErrorMessages: []string{"fetching page 1: exhausted"},
				RunStartedAt: t0, RunCompletedAt: t0.Add(5 * time.Second)},
		},
		Batch: []model.ClassifiedPosting{{
			Posting: model.Posting{Site: "ExampleBoard", Fields: model.Fields{
				Title: "Backend Engineer", Company: "Acme", Location: "Remote", URL: "https://example.org/jobs/a1",
			}},
			Classification: model.New,
		}},
	}
}

func TestSummary(t *testing.T) {
	got := Summary(sampleReport())
	assert.Equal(t, "1/2 sites completed, 1,200 new, 3 updated, 1 vanished in 1 minute", got)
}

func TestDuration(t *testing.T) {
	assert.Equal(t, "now", Duration(0))
	assert.Equal(t, "5 seconds", Duration(5*time.Second))
	assert.Equal(t, "2 hours", Duration(2*time.Hour+10*time.Minute))
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleReport()))
	out := buf.String()

	for _, want := range []string{
		"ExampleBoard", "Lever", "completed", "failed", "1,500",
		"Backend Engineer · Acme · Remote", "https://example.org/jobs/a1",
		"fetching page 1: exhausted",
	} {
		assert.True(t, strings.Contains(out, want), "output missing %q:\n%s", want, out)
	}
}

func TestRenderStats(t *testing.T) {
	var buf bytes.Buffer
	stats := model.StoreStats{Total: 2500, BySite: map[string]int{"b": 500, "a": 2000}, Runs: 4}
	runs := []model.SiteRunRecord{{SiteName: "a", Status: model.RunCompleted, RunStartedAt: time.Now().Add(-time.Hour), New: 2}}

	require.NoError(t, RenderStats(&buf, stats, runs))
	out := buf.String()

	assert.Contains(t, out, "2,500 postings stored")
	assert.Contains(t, out, "4 site runs logged")
	assert.Less(t, strings.Index(out, "  a "), strings.Index(out, "  b "), "sites sorted by name")
}
