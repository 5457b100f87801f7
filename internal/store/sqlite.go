package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"github.com/amishk599/jobharvest/internal/model"
)

var postingColumns = []string{
	"source_id", "site", "native_id", "fingerprint",
	"title", "company", "location", "url", "compensation", "description", "raw_text",
	"posted_at", "first_seen_at", "last_seen_at",
}

var runColumns = []string{
	"run_id", "site_name", "started_at", "completed_at", "status",
	"pages_fetched", "postings_seen", "new_count", "updated_count", "unchanged_count",
	"vanished_count", "dropped_count", "error_count", "error_messages",
}

// upsertSuffix keeps source_id and first_seen_at as first written and never
// moves last_seen_at backwards.
const upsertSuffix = `ON CONFLICT (source_id) DO UPDATE SET
	fingerprint   = excluded.fingerprint,
	title         = excluded.title,
	company       = excluded.company,
	location      = excluded.location,
	url           = excluded.url,
	compensation  = excluded.compensation,
	description   = excluded.description,
	raw_text      = excluded.raw_text,
	posted_at     = excluded.posted_at,
	last_seen_at  = MAX(postings.last_seen_at, excluded.last_seen_at)`

// SQLiteStore persists postings and the site run log in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ model.Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and applies
// the schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// One connection serializes writers from concurrent site workers.
	db.SetMaxOpenConns(1)

	// Verify the connection is alive.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	if err := migrateSQLite(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating sqlite db: %w", err)
	}

	return newSQLiteStore(db), nil
}

func newSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Get returns the posting stored under sourceID.
func (s *SQLiteStore) Get(ctx context.Context, sourceID string) (model.Posting, bool, error) {
	query, args, err := sq.Select(postingColumns...).
		From("postings").
		Where(sq.Eq{"source_id": sourceID}).
		ToSql()
	if err != nil {
		return model.Posting{}, false, &model.StoreError{Op: "get", Key: sourceID, Err: err}
	}

	p, err := scanSQLitePosting(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Posting{}, false, nil
	}
	if err != nil {
		return model.Posting{}, false, &model.StoreError{Op: "get", Key: sourceID, Err: err}
	}
	return p, true, nil
}

// Upsert inserts or replaces the posting in a single transaction.
func (s *SQLiteStore) Upsert(ctx context.Context, p model.Posting) error {
	query, args, err := sq.Insert("postings").
		Columns(postingColumns...).
		Values(
			p.SourceID, p.Site, p.NativeID, p.Fingerprint,
			p.Fields.Title, p.Fields.Company, p.Fields.Location, p.Fields.URL,
			p.Fields.Compensation, p.Fields.Description, p.Fields.RawText,
			nullableNanos(p.Fields.PostedAt), p.FirstSeenAt.UnixNano(), p.LastSeenAt.UnixNano(),
		).
		Suffix(upsertSuffix).
		ToSql()
	if err != nil {
		return &model.StoreError{Op: "upsert", Key: p.SourceID, Err: err}
	}

	if err := s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, query, args...)
		return err
	}); err != nil {
		return &model.StoreError{Op: "upsert", Key: p.SourceID, Err: err}
	}
	return nil
}

// ListBySite returns every stored posting of site ordered by source id.
func (s *SQLiteStore) ListBySite(ctx context.Context, site string) ([]model.Posting, error) {
	query, args, err := sq.Select(postingColumns...).
		From("postings").
		Where(sq.Eq{"site": site}).
		OrderBy("source_id").
		ToSql()
	if err != nil {
		return nil, &model.StoreError{Op: "list", Key: site, Err: err}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &model.StoreError{Op: "list", Key: site, Err: err}
	}
	defer rows.Close()

	var postings []model.Posting
	for rows.Next() {
		p, err := scanSQLitePosting(rows)
		if err != nil {
			return nil, &model.StoreError{Op: "list", Key: site, Err: err}
		}
		postings = append(postings, p)
	}
	if err := rows.Err(); err != nil {
		return nil, &model.StoreError{Op: "list", Key: site, Err: err}
	}
	return postings, nil
}

// Delete removes the posting stored under sourceID. Deleting an absent
// posting is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, sourceID string) error {
	query, args, err := sq.Delete("postings").Where(sq.Eq{"source_id": sourceID}).ToSql()
	if err != nil {
		return &model.StoreError{Op: "delete", Key: sourceID, Err: err}
	}
	if err := s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, query, args...)
		return err
	}); err != nil {
		return &model.StoreError{Op: "delete", Key: sourceID, Err: err}
	}
	return nil
}

// SaveRun appends a finalized site run record to the run log.
func (s *SQLiteStore) SaveRun(ctx context.Context, rec model.SiteRunRecord) error {
	messages, err := json.Marshal(nonNilMessages(rec.ErrorMessages))
	if err != nil {
		return &model.StoreError{Op: "save run", Key: rec.SiteName, Err: err}
	}

	var completed any
	if !rec.RunCompletedAt.IsZero() {
		completed = rec.RunCompletedAt.UnixNano()
	}

	query, args, err := sq.Insert("site_runs").
		Columns(runColumns...).
		Values(
			rec.RunID, rec.SiteName, rec.RunStartedAt.UnixNano(), completed, string(rec.Status),
			rec.PagesFetched, rec.PostingsSeen, rec.New, rec.Updated, rec.Unchanged,
			rec.Vanished, rec.Dropped, rec.Errors, string(messages),
		).
		ToSql()
	if err != nil {
		return &model.StoreError{Op: "save run", Key: rec.SiteName, Err: err}
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return &model.StoreError{Op: "save run", Key: rec.SiteName, Err: err}
	}
	return nil
}

// ListRuns returns the most recent run records, newest first. An empty
// site lists every site.
func (s *SQLiteStore) ListRuns(ctx context.Context, site string, limit int) ([]model.SiteRunRecord, error) {
	b := sq.Select(runColumns...).From("site_runs").OrderBy("started_at DESC", "id DESC")
	if site != "" {
		b = b.Where(sq.Eq{"site_name": site})
	}
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, &model.StoreError{Op: "list runs", Key: site, Err: err}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &model.StoreError{Op: "list runs", Key: site, Err: err}
	}
	defer rows.Close()

	var runs []model.SiteRunRecord
	for rows.Next() {
		var (
			rec       model.SiteRunRecord
			started   int64
			completed sql.NullInt64
			status    string
			messages  string
		)
		if err := rows.Scan(
			&rec.RunID, &rec.SiteName, &started, &completed, &status,
			&rec.PagesFetched, &rec.PostingsSeen, &rec.New, &rec.Updated, &rec.Unchanged,
			&rec.Vanished, &rec.Dropped, &rec.Errors, &messages,
		); err != nil {
			return nil, &model.StoreError{Op: "list runs", Key: site, Err: err}
		}
		rec.RunStartedAt = time.Unix(0, started).UTC()
		if completed.Valid {
			rec.RunCompletedAt = time.Unix(0, completed.Int64).UTC()
		}
		rec.Status = model.RunStatus(status)
		if err := json.Unmarshal([]byte(messages), &rec.ErrorMessages); err != nil {
			return nil, &model.StoreError{Op: "list runs", Key: site, Err: fmt.Errorf("decode error messages: %w", err)}
		}
		runs = append(runs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &model.StoreError{Op: "list runs", Key: site, Err: err}
	}
	return runs, nil
}

// Cleanup deletes postings last seen before cutoff.
func (s *SQLiteStore) Cleanup(ctx context.Context, cutoff time.Time) (int64, error) {
	query, args, err := sq.Delete("postings").Where(sq.Lt{"last_seen_at": cutoff.UnixNano()}).ToSql()
	if err != nil {
		return 0, &model.StoreError{Op: "cleanup", Err: err}
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, &model.StoreError{Op: "cleanup", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &model.StoreError{Op: "cleanup", Err: err}
	}
	return n, nil
}

// Stats counts stored postings per site and logged runs.
func (s *SQLiteStore) Stats(ctx context.Context) (model.StoreStats, error) {
	stats := model.StoreStats{BySite: make(map[string]int)}

	query, args, err := sq.Select("site", "COUNT(*)").From("postings").GroupBy("site").ToSql()
	if err != nil {
		return stats, &model.StoreError{Op: "stats", Err: err}
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return stats, &model.StoreError{Op: "stats", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var site string
		var count int
		if err := rows.Scan(&site, &count); err != nil {
			return stats, &model.StoreError{Op: "stats", Err: err}
		}
		stats.BySite[site] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return stats, &model.StoreError{Op: "stats", Err: err}
	}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM site_runs").Scan(&stats.Runs); err != nil {
		return stats, &model.StoreError{Op: "stats", Err: err}
	}
	return stats, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLitePosting(row rowScanner) (model.Posting, error) {
	var (
		p         model.Posting
		postedAt  sql.NullInt64
		firstSeen int64
		lastSeen  int64
	)
	err := row.Scan(
		&p.SourceID, &p.Site, &p.NativeID, &p.Fingerprint,
		&p.Fields.Title, &p.Fields.Company, &p.Fields.Location, &p.Fields.URL,
		&p.Fields.Compensation, &p.Fields.Description, &p.Fields.RawText,
		&postedAt, &firstSeen, &lastSeen,
	)
	if err != nil {
		return model.Posting{}, err
	}
	if postedAt.Valid {
		t := time.Unix(0, postedAt.Int64).UTC()
		p.Fields.PostedAt = &t
	}
	p.FirstSeenAt = time.Unix(0, firstSeen).UTC()
	p.LastSeenAt = time.Unix(0, lastSeen).UTC()
	return p, nil
}

func nullableNanos(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func nonNilMessages(m []string) []string {
	if m == nil {
		return []string{}
	}
	return m
}
