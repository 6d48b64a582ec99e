// Package postgres persists notices and enrichments as JSONB rows.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/noticewatch/internal/notice"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the connection pool and table names.
type Config struct {
	DSN             string
	NoticeTable     string
	EnrichmentTable string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Ping(context.Context) error
	Close()
}

// Store implements notice.NoticeStore on Postgres.
type Store struct {
	pool        execCloser
	notices     string
	enrichments string
}

// New opens a pool from cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("docstore.uri is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewWithPool(pool, cfg.NoticeTable, cfg.EnrichmentTable)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool execCloser, noticeTable, enrichmentTable string) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if noticeTable == "" {
		noticeTable = "applyhome_data"
	}
	if enrichmentTable == "" {
		enrichmentTable = "applyhome_json"
	}
	for _, name := range []string{noticeTable, enrichmentTable} {
		if !validTableName.MatchString(name) {
			return nil, fmt.Errorf("invalid table name %q", name)
		}
	}
	return &Store{pool: pool, notices: noticeTable, enrichments: enrichmentTable}, nil
}

// EnsureSchema creates both tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	id             TEXT PRIMARY KEY,
	raw            JSONB NOT NULL DEFAULT '{}'::jsonb,
	detail_url     TEXT,
	x              DOUBLE PRECISION,
	y              DOUBLE PRECISION,
	geocode_status TEXT,
	s3_pdf_urls    TEXT[] NOT NULL DEFAULT '{}',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS %[2]s (
	id         TEXT PRIMARY KEY,
	notice_id  TEXT NOT NULL,
	document   JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.notices, s.enrichments)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// UpsertNotice merges the raw upstream record into the notice row.
func (s *Store) UpsertNotice(ctx context.Context, n notice.Notice) error {
	if n.ID == "" {
		return errors.New("notice id is required")
	}
	raw := n.Raw
	if raw == nil {
		raw = map[string]any{}
	}
	rawJSON, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("marshal notice %s: %w", n.ID, err)
	}
	query := fmt.Sprintf(`
INSERT INTO %[1]s (id, raw, detail_url)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE
SET raw = %[1]s.raw || EXCLUDED.raw,
    detail_url = EXCLUDED.detail_url,
    updated_at = now()`, s.notices)
	if _, err := s.pool.Exec(ctx, query, n.ID, rawJSON, n.DetailURL); err != nil {
		return fmt.Errorf("upsert notice %s: %w", n.ID, err)
	}
	return nil
}

// ApplyCoordinates updates an existing row only.
func (s *Store) ApplyCoordinates(ctx context.Context, noticeID string, rec notice.CoordinateRecord) error {
	query := fmt.Sprintf(`
UPDATE %s
SET x = $2, y = $3, geocode_status = $4, updated_at = now()
WHERE id = $1`, s.notices)
	if _, err := s.pool.Exec(ctx, query, noticeID, rec.X, rec.Y, string(rec.Status)); err != nil {
		return fmt.Errorf("apply coordinates %s: %w", noticeID, err)
	}
	return nil
}

// UpsertEnrichment replaces the extracted document stored under rec.Key.
func (s *Store) UpsertEnrichment(ctx context.Context, rec notice.EnrichmentRecord) error {
	if rec.Key == "" {
		return errors.New("enrichment key is required")
	}
	doc := rec.Document()
	delete(doc, "_id")
	docJSON, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal enrichment %s: %w", rec.Key, err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (id, notice_id, document)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE
SET notice_id = EXCLUDED.notice_id,
    document = EXCLUDED.document,
    updated_at = now()`, s.enrichments)
	if _, err := s.pool.Exec(ctx, query, rec.Key, rec.NoticeID, docJSON); err != nil {
		return fmt.Errorf("upsert enrichment %s: %w", rec.Key, err)
	}
	return nil
}

// AddArchiveURL appends url to the notice's archive set unless already present.
func (s *Store) AddArchiveURL(ctx context.Context, noticeID, url string, at time.Time) error {
	query := fmt.Sprintf(`
INSERT INTO %[1]s (id, s3_pdf_urls, created_at)
VALUES ($1, ARRAY[$2::text], $3)
ON CONFLICT (id) DO UPDATE
SET s3_pdf_urls = CASE
        WHEN $2::text = ANY(%[1]s.s3_pdf_urls) THEN %[1]s.s3_pdf_urls
        ELSE array_append(%[1]s.s3_pdf_urls, $2::text)
    END,
    updated_at = now()`, s.notices)
	if _, err := s.pool.Exec(ctx, query, noticeID, url, at.UTC()); err != nil {
		return fmt.Errorf("add archive url %s: %w", noticeID, err)
	}
	return nil
}

// Ping checks the pool can reach the server.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}
