package adapter

import (
	"errors"
	"testing"

	"github.com/amishk599/jobharvest/internal/model"
)

func TestGemParse_Success(t *testing.T) {
	payload := `[
		{
			"id": "g-101",
			"title": "Backend Engineer",
			"location": {"name": "Remote"},
			"absolute_url": "https://jobs.gem.com/acme/g-101",
			"first_published_at": "2026-01-20T10:00:00Z",
			"content": "&lt;p&gt;Build &lt;b&gt;APIs&lt;/b&gt;&lt;/p&gt;"
		},
		{
			"title": "Designer",
			"location": {"name": "Berlin"},
			"absolute_url": "https://jobs.gem.com/acme/design",
			"content_plain": "Design things."
		}
	]`

	a := newGemTestAdapter(t)
	page := a.Parse(1, []byte(payload))

	if page.ParseErr != nil {
		t.Fatalf("unexpected parse error: %v", page.ParseErr)
	}
	if page.HasNext {
		t.Error("gem boards are a single page")
	}
	if len(page.Postings) != 2 {
		t.Fatalf("expected 2 postings, got %d", len(page.Postings))
	}

	p := page.Postings[0]
	if p.NativeID != "g-101" || p.Company != "Acme" || p.Location != "Remote" {
		t.Errorf("unexpected posting: %+v", p)
	}
	if p.Description != "Build APIs" {
		t.Errorf("description = %q, want HTML stripped", p.Description)
	}
	if p.PostedAt == nil {
		t.Error("expected PostedAt to be set")
	}

	if got, want := page.Postings[1].NativeID, deriveID("https://jobs.gem.com/acme/design"); got != want {
		t.Errorf("derived id = %s, want %s", got, want)
	}
	if page.Postings[1].Description != "Design things." {
		t.Errorf("plain content should win, got %q", page.Postings[1].Description)
	}
}

func TestGemParse_Malformed(t *testing.T) {
	for _, body := range []string{`{"jobs": []}`, `null`, `<html>`} {
		page := newGemTestAdapter(t).Parse(1, []byte(body))
		if !errors.Is(page.ParseErr, model.ErrParseFailure) {
			t.Errorf("%s: expected ErrParseFailure, got %v", body, page.ParseErr)
		}
	}
}

func TestGemBuildRequest(t *testing.T) {
	a := newGemTestAdapter(t)
	req, err := a.BuildRequest(1)
	if err != nil {
		t.Fatalf("BuildRequest(1): %v", err)
	}
	if req.URL != "http://gem.test/v0/acme/job_posts/" {
		t.Errorf("url = %s", req.URL)
	}
	if _, err := a.BuildRequest(2); err == nil {
		t.Error("expected error for page 2")
	}
}

func newGemTestAdapter(t *testing.T) *GemAdapter {
	t.Helper()
	a, err := NewGemAdapter(Site{Name: "gem-acme", Kind: KindGem, Token: "acme", Company: "Acme", APIBase: "http://gem.test/v0/"})
	if err != nil {
		t.Fatalf("NewGemAdapter: %v", err)
	}
	return a
}
