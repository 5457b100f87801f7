package model

import (
	"context"
	"net/http"
	"time"
)

// Fields are the canonical, display-ready attributes of a posting.
type Fields struct {
	Title        string
	Company      string
	Location     string
	URL          string
	Compensation string
	Description  string
	RawText      string
	PostedAt     *time.Time // nullable (not every source exposes it)
}

// Posting is one externally observed job listing after normalization.
type Posting struct {
	SourceID    string // site + ":" + native id, immutable once stored
	Site        string
	NativeID    string
	Fingerprint string // hex SHA-256 of the normalized content fields
	Fields      Fields
	FirstSeenAt time.Time
	LastSeenAt  time.Time
}

// RawPosting is what a site adapter extracts from a page before normalization.
type RawPosting struct {
	NativeID     string
	Title        string
	Company      string
	Location     string
	URL          string
	Compensation string
	Description  string
	RawText      string
	PostedAt     *time.Time
}

// Classification is the per-run reconciliation outcome for one posting.
type Classification int

const (
	New Classification = iota
	Updated
	Unchanged
	Vanished
)

func (c Classification) String() string {
	switch c {
	case New:
		return "new"
	case Updated:
		return "updated"
	case Unchanged:
		return "unchanged"
	case Vanished:
		return "vanished"
	default:
		return "unknown"
	}
}

// ClassifiedPosting pairs a posting with its classification for this run.
type ClassifiedPosting struct {
	Posting        Posting
	Classification Classification
}

// Qualifies reports whether the entry is handed to document generation.
func (c ClassifiedPosting) Qualifies() bool {
	return c.Classification == New || c.Classification == Updated
}

// RequestDescriptor describes one page request built by a site adapter.
type RequestDescriptor struct {
	Method string // defaults to GET when empty
	URL    string
	Header http.Header
	Body   []byte
}

// Response is a fetched page.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Page is the result of parsing one fetched body.
type Page struct {
	Postings []RawPosting
	HasNext  bool
	// ParseErr is set when the body could not be parsed. Postings is then
	// empty and HasNext false.
	ParseErr error
}

// SiteAdapter knows how to page through one external source and extract
// raw postings from its responses. Pages are numbered from 1. Parse is
// total: it never panics and reports unparseable bodies through Page.ParseErr.
type SiteAdapter interface {
	BuildRequest(page int) (RequestDescriptor, error)
	Parse(page int, body []byte) Page
}

// PageFetcher retrieves one page. Implementations own politeness and retries.
type PageFetcher interface {
	Fetch(ctx context.Context, req RequestDescriptor) (Response, error)
}

// JobStore is the durable record of every posting ever seen, keyed by SourceID.
type JobStore interface {
	Get(ctx context.Context, sourceID string) (Posting, bool, error)
	Upsert(ctx context.Context, p Posting) error
	ListBySite(ctx context.Context, site string) ([]Posting, error)
	Delete(ctx context.Context, sourceID string) error
}

// PostingFilter decides whether a posting matches the user's criteria.
type PostingFilter interface {
	Match(p Posting) bool
}

// Notifier sends a run report to the user.
type Notifier interface {
	Notify(ctx context.Context, report Report) error
}

// DocumentGenerator turns a qualifying posting into a document and returns
// where it was written.
type DocumentGenerator interface {
	Generate(ctx context.Context, cp ClassifiedPosting) (string, error)
}
