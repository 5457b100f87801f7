package docgen

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amishk599/jobharvest/internal/ai"
	"github.com/amishk599/jobharvest/internal/model"
)

func classified() model.ClassifiedPosting {
	posted := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	return model.ClassifiedPosting{
		Posting: model.Posting{
			SourceID: "ExampleBoard:a1",
			Site:     "ExampleBoard",
			NativeID: "a1",
			Fields: model.Fields{
				Title:        "Backend Engineer",
				Company:      "Acme",
				URL:          "https://example.org/jobs/a1",
				Compensation: "$150k",
				Description:  "Build the ingestion engine.",
				PostedAt:     &posted,
			},
			FirstSeenAt: time.Now().Add(-2 * time.Hour),
		},
		Classification: model.New,
	}
}

func TestGenerate_DefaultTemplate(t *testing.T) {
	dir := t.TempDir()
	g, err := New(dir, "")
	require.NoError(t, err)

	path, err := g.Generate(context.Background(), classified())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "ExampleBoard", "a1.md"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	doc := string(data)

	assert.Contains(t, doc, "# Backend Engineer")
	assert.Contains(t, doc, "**Location:** unknown")
	assert.Contains(t, doc, "**Compensation:** $150k")
	assert.Contains(t, doc, "**Posted:** 2026-02-10")
	assert.Contains(t, doc, "**Source:** ExampleBoard (new)")
	assert.Contains(t, doc, "2 hours ago")
	assert.Contains(t, doc, "Build the ingestion engine.")
}

func TestGenerate_OverwritesAndSanitizesPath(t *testing.T) {
	dir := t.TempDir()
	g, err := New(dir, "{{ .Fields.Title }}")
	require.NoError(t, err)

	cp := classified()
	cp.Posting.NativeID = "../../etc/passwd"
	path, err := g.Generate(context.Background(), cp)
	require.NoError(t, err)

	rel, err := filepath.Rel(dir, path)
	require.NoError(t, err)
	assert.Equal(t, "ExampleBoard", filepath.Dir(rel))
	assert.Regexp(t, `^etc_passwd-[0-9a-f]{8}\.md$`, filepath.Base(rel))

	cp.Posting.Fields.Title = "Staff Engineer"
	_, err = g.Generate(context.Background(), cp)
	require.NoError(t, err)
	data, _ := os.ReadFile(path)
	assert.Equal(t, "Staff Engineer", string(data))
}

func TestGenerate_DistinctIDsNeverShareAFile(t *testing.T) {
	dir := t.TempDir()
	g, err := New(dir, "{{ .NativeID }}")
	require.NoError(t, err)

	paths := map[string]string{}
	for _, id := range []string{"a/b", "a_b", "a b", "a1"} {
		cp := classified()
		cp.Posting.NativeID = id
		path, err := g.Generate(context.Background(), cp)
		require.NoError(t, err)
		paths[path] = id
	}
	require.Len(t, paths, 4)

	for path, id := range paths {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, id, string(data))
	}
	assert.Equal(t, filepath.Join(dir, "ExampleBoard", "a1.md"), findPath(paths, "a1"))
}

func findPath(paths map[string]string, id string) string {
	for p, v := range paths {
		if v == id {
			return p
		}
	}
	return ""
}

func TestNew_Errors(t *testing.T) {
	_, err := New("", "")
	assert.Error(t, err)

	_, err = New(t.TempDir(), "{{ .Broken ")
	assert.Error(t, err)

	_, err = NewFromFile(t.TempDir(), filepath.Join(t.TempDir(), "missing.tmpl"))
	assert.Error(t, err)
}

func TestGenerate_Cancelled(t *testing.T) {
	g, err := New(t.TempDir(), "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.Generate(ctx, classified())
	assert.ErrorIs(t, err, context.Canceled)
}

type stubSummarizer struct {
	brief *ai.Brief
	err   error
}

func (s stubSummarizer) Summarize(context.Context, model.Posting) (*ai.Brief, error) {
	return s.brief, s.err
}

func TestGenerate_EmbedsBrief(t *testing.T) {
	g, err := New(t.TempDir(), "")
	require.NoError(t, err)
	g.WithSummarizer(stubSummarizer{brief: &ai.Brief{
		RoleType:  "backend",
		Seniority: "senior",
		TechStack: []string{"Go", "PostgreSQL"},
		KeyPoints: []string{"Owns ingestion.", "Needs Go.", "Remote."},
	}}, nil)

	path, err := g.Generate(context.Background(), classified())
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	doc := string(data)

	assert.Contains(t, doc, "## Summary")
	assert.Contains(t, doc, "**Role:** backend (senior)")
	assert.Contains(t, doc, "**Stack:** Go, PostgreSQL")
	assert.Contains(t, doc, "- Needs Go.")
}

func TestGenerate_SummaryFailureStillWrites(t *testing.T) {
	g, err := New(t.TempDir(), "")
	require.NoError(t, err)
	g.WithSummarizer(stubSummarizer{err: errors.New("llm down")}, nil)

	path, err := g.Generate(context.Background(), classified())
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "## Summary")
	assert.Contains(t, string(data), "Build the ingestion engine.")
}
