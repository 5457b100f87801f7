package model

import (
	"context"
	"time"
)

// RunStatus is the lifecycle state of a SiteRunRecord.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunAborted   RunStatus = "aborted"
)

// SiteRunRecord is the bookkeeping for one site in one run. It is created
// when the site run starts and finalized exactly once.
type SiteRunRecord struct {
	RunID          string
	SiteName       string
	RunStartedAt   time.Time
	RunCompletedAt time.Time
	Status         RunStatus
	PagesFetched   int
	PostingsSeen   int
	New            int
	Updated        int
	Unchanged      int
	Vanished       int
	Dropped        int // raw postings rejected by the normalizer
	Errors         int
	ErrorMessages  []string
}

// Completed reports whether the site run finished successfully.
func (r SiteRunRecord) Completed() bool {
	return r.Status == RunCompleted
}

// Duration is the wall time of the run, zero while it is still running.
func (r SiteRunRecord) Duration() time.Duration {
	if r.RunCompletedAt.IsZero() {
		return 0
	}
	return r.RunCompletedAt.Sub(r.RunStartedAt)
}

// RecordError counts an error and keeps its message.
func (r *SiteRunRecord) RecordError(err error) {
	r.Errors++
	r.ErrorMessages = append(r.ErrorMessages, err.Error())
}

// Finalize stamps the completion time and terminal status.
func (r *SiteRunRecord) Finalize(status RunStatus, at time.Time) {
	r.Status = status
	r.RunCompletedAt = at
}

// Report is what downstream reporting receives after a run.
type Report struct {
	StartedAt   time.Time
	CompletedAt time.Time
	Records     []SiteRunRecord
	Batch       []ClassifiedPosting // New and Updated only
	Vanished    []ClassifiedPosting
	Documents   []string // paths written by document generation, if it ran
}

// Succeeded is true when at least one site completed.
func (r Report) Succeeded() bool {
	for _, rec := range r.Records {
		if rec.Completed() {
			return true
		}
	}
	return false
}

// RunStore is the append-only log of site runs.
type RunStore interface {
	SaveRun(ctx context.Context, rec SiteRunRecord) error
	ListRuns(ctx context.Context, site string, limit int) ([]SiteRunRecord, error)
}

// StoreStats summarizes what the store holds.
type StoreStats struct {
	Total  int
	BySite map[string]int
	Runs   int
}

// Store is the full persistence surface used by the command line.
type Store interface {
	JobStore
	RunStore
	// Cleanup deletes postings last seen before cutoff and returns how many went.
	Cleanup(ctx context.Context, cutoff time.Time) (int64, error)
	Stats(ctx context.Context) (StoreStats, error)
	Close() error
}
