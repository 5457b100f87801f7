package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/amishk599/jobharvest/internal/model"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const pgUpsertSuffix = `ON CONFLICT (source_id) DO UPDATE SET
	fingerprint   = EXCLUDED.fingerprint,
	title         = EXCLUDED.title,
	company       = EXCLUDED.company,
	location      = EXCLUDED.location,
	url           = EXCLUDED.url,
	compensation  = EXCLUDED.compensation,
	description   = EXCLUDED.description,
	raw_text      = EXCLUDED.raw_text,
	posted_at     = EXCLUDED.posted_at,
	last_seen_at  = GREATEST(postings.last_seen_at, EXCLUDED.last_seen_at)`

// PostgresStore persists postings and the site run log in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ model.Store = (*PostgresStore)(nil)

// NewPostgresStore connects to dsn, applies the schema migrations and
// returns a store backed by a connection pool.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	migrationDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres for migrations: %w", err)
	}
	if err := migratePostgres(migrationDB); err != nil {
		migrationDB.Close()
		return nil, fmt.Errorf("migrating postgres db: %w", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Get(ctx context.Context, sourceID string) (model.Posting, bool, error) {
	query, args, err := psql.Select(postingColumns...).From("postings").Where(sq.Eq{"source_id": sourceID}).ToSql()
	if err != nil {
		return model.Posting{}, false, &model.StoreError{Op: "get", Key: sourceID, Err: err}
	}

	p, err := scanPgPosting(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Posting{}, false, nil
	}
	if err != nil {
		return model.Posting{}, false, &model.StoreError{Op: "get", Key: sourceID, Err: err}
	}
	return p, true, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, p model.Posting) error {
	query, args, err := psql.Insert("postings").
		Columns(postingColumns...).
		Values(
			p.SourceID, p.Site, p.NativeID, p.Fingerprint,
			p.Fields.Title, p.Fields.Company, p.Fields.Location, p.Fields.URL,
			p.Fields.Compensation, p.Fields.Description, p.Fields.RawText,
			p.Fields.PostedAt, p.FirstSeenAt, p.LastSeenAt,
		).
		Suffix(pgUpsertSuffix).
		ToSql()
	if err != nil {
		return &model.StoreError{Op: "upsert", Key: p.SourceID, Err: err}
	}

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, query, args...)
		return err
	})
	if err != nil {
		return &model.StoreError{Op: "upsert", Key: p.SourceID, Err: err}
	}
	return nil
}

func (s *PostgresStore) ListBySite(ctx context.Context, site string) ([]model.Posting, error) {
	query, args, err := psql.Select(postingColumns...).From("postings").
		Where(sq.Eq{"site": site}).OrderBy("source_id").ToSql()
	if err != nil {
		return nil, &model.StoreError{Op: "list", Key: site, Err: err}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, &model.StoreError{Op: "list", Key: site, Err: err}
	}
	defer rows.Close()

	var postings []model.Posting
	for rows.Next() {
		p, err := scanPgPosting(rows)
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

func (s *PostgresStore) Delete(ctx context.Context, sourceID string) error {
	query, args, err := psql.Delete("postings").Where(sq.Eq{"source_id": sourceID}).ToSql()
	if err != nil {
		return &model.StoreError{Op: "delete", Key: sourceID, Err: err}
	}
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, query, args...)
		return err
	})
	if err != nil {
		return &model.StoreError{Op: "delete", Key: sourceID, Err: err}
	}
	return nil
}

func (s *PostgresStore) SaveRun(ctx context.Context, rec model.SiteRunRecord) error {
	messages, err := json.Marshal(nonNilMessages(rec.ErrorMessages))
	if err != nil {
		return &model.StoreError{Op: "save run", Key: rec.SiteName, Err: err}
	}
	var completed *time.Time
	if !rec.RunCompletedAt.IsZero() {
		completed = &rec.RunCompletedAt
	}

	query, args, err := psql.Insert("site_runs").
		Columns(runColumns...).
		Values(
			rec.RunID, rec.SiteName, rec.RunStartedAt, completed, string(rec.Status),
			rec.PagesFetched, rec.PostingsSeen, rec.New, rec.Updated, rec.Unchanged,
			rec.Vanished, rec.Dropped, rec.Errors, messages,
		).
		ToSql()
	if err != nil {
		return &model.StoreError{Op: "save run", Key: rec.SiteName, Err: err}
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return &model.StoreError{Op: "save run", Key: rec.SiteName, Err: err}
	}
	return nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, site string, limit int) ([]model.SiteRunRecord, error) {
	b := psql.Select(runColumns...).From("site_runs").OrderBy("started_at DESC", "id DESC")
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

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, &model.StoreError{Op: "list runs", Key: site, Err: err}
	}
	defer rows.Close()

	var runs []model.SiteRunRecord
	for rows.Next() {
		var (
			rec       model.SiteRunRecord
			completed *time.Time
			status    string
			messages  []byte
		)
		if err := rows.Scan(
			&rec.RunID, &rec.SiteName, &rec.RunStartedAt, &completed, &status,
			&rec.PagesFetched, &rec.PostingsSeen, &rec.New, &rec.Updated, &rec.Unchanged,
			&rec.Vanished, &rec.Dropped, &rec.Errors, &messages,
		); err != nil {
			return nil, &model.StoreError{Op: "list runs", Key: site, Err: err}
		}
		if completed != nil {
			rec.RunCompletedAt = completed.UTC()
		}
		rec.RunStartedAt = rec.RunStartedAt.UTC()
		rec.Status = model.RunStatus(status)
		if err := json.Unmarshal(messages, &rec.ErrorMessages); err != nil {
			return nil, &model.StoreError{Op: "list runs", Key: site, Err: fmt.Errorf("decode error messages: %w", err)}
		}
		runs = append(runs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &model.StoreError{Op: "list runs", Key: site, Err: err}
	}
	return runs, nil
}

func (s *PostgresStore) Cleanup(ctx context.Context, cutoff time.Time) (int64, error) {
	query, args, err := psql.Delete("postings").Where(sq.Lt{"last_seen_at": cutoff}).ToSql()
	if err != nil {
		return 0, &model.StoreError{Op: "cleanup", Err: err}
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, &model.StoreError{Op: "cleanup", Err: err}
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) Stats(ctx context.Context) (model.StoreStats, error) {
	stats := model.StoreStats{BySite: make(map[string]int)}

	rows, err := s.pool.Query(ctx, "SELECT site, COUNT(*) FROM postings GROUP BY site")
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

	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM site_runs").Scan(&stats.Runs); err != nil {
		return stats, &model.StoreError{Op: "stats", Err: err}
	}
	return stats, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanPgPosting(row rowScanner) (model.Posting, error) {
	var p model.Posting
	err := row.Scan(
		&p.SourceID, &p.Site, &p.NativeID, &p.Fingerprint,
		&p.Fields.Title, &p.Fields.Company, &p.Fields.Location, &p.Fields.URL,
		&p.Fields.Compensation, &p.Fields.Description, &p.Fields.RawText,
		&p.Fields.PostedAt, &p.FirstSeenAt, &p.LastSeenAt,
	)
	if err != nil {
		return model.Posting{}, err
	}
	if p.Fields.PostedAt != nil {
		t := p.Fields.PostedAt.UTC()
		p.Fields.PostedAt = &t
	}
	p.FirstSeenAt = p.FirstSeenAt.UTC()
	p.LastSeenAt = p.LastSeenAt.UTC()
	return p, nil
}
