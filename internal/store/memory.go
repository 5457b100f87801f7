package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/amishk599/jobharvest/internal/model"
)

// MemoryStore keeps everything in process memory. Used for tests and for
// throwaway runs with --store memory; nothing survives a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	postings map[string]model.Posting
	runs     []model.SiteRunRecord
}

var _ model.Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{postings: make(map[string]model.Posting)}
}

func (s *MemoryStore) Get(_ context.Context, sourceID string) (model.Posting, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.postings[sourceID]
	return p, ok, nil
}

func (s *MemoryStore) Upsert(_ context.Context, p model.Posting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.postings[p.SourceID]; ok {
		p.FirstSeenAt = old.FirstSeenAt
		if old.LastSeenAt.After(p.LastSeenAt) {
			p.LastSeenAt = old.LastSeenAt
		}
	}
	s.postings[p.SourceID] = p
	return nil
}

func (s *MemoryStore) ListBySite(_ context.Context, site string) ([]model.Posting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Posting
	for _, p := range s.postings {
		if p.Site == site {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, sourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.postings, sourceID)
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, rec model.SiteRunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ErrorMessages = append([]string(nil), rec.ErrorMessages...)
	s.runs = append(s.runs, rec)
	return nil
}

func (s *MemoryStore) ListRuns(_ context.Context, site string, limit int) ([]model.SiteRunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.SiteRunRecord
	for i := len(s.runs) - 1; i >= 0; i-- {
		if site != "" && s.runs[i].SiteName != site {
			continue
		}
		out = append(out, s.runs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) Cleanup(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, p := range s.postings {
		if p.LastSeenAt.Before(cutoff) {
			delete(s.postings, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Stats(_ context.Context) (model.StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := model.StoreStats{BySite: make(map[string]int), Runs: len(s.runs)}
	for _, p := range s.postings {
		stats.BySite[p.Site]++
		stats.Total++
	}
	return stats, nil
}

func (s *MemoryStore) Close() error { return nil }
