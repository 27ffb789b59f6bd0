// Package postgres mirrors parsed directory records into Postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/directory-crawler/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "directory_records"

// RecordStoreConfig controls the Postgres connection pool used for record rows.
type RecordStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type txPool interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// RecordStore upserts records keyed by company_id. It implements
// crawler.TableSink.
type RecordStore struct {
	pool  txPool
	table string
}

// NewRecordStore creates a Postgres-backed RecordStore using the provided config.
func NewRecordStore(ctx context.Context, cfg RecordStoreConfig) (*RecordStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewRecordStoreWithPool(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewRecordStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRecordStoreWithPool(pool txPool, table string) (*RecordStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &RecordStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *RecordStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the record table when it does not exist.
func (s *RecordStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	company_id     TEXT PRIMARY KEY,
	state          TEXT NOT NULL,
	name           TEXT NOT NULL DEFAULT '',
	street         TEXT NOT NULL DEFAULT '',
	zipcode        TEXT NOT NULL DEFAULT '',
	city           TEXT NOT NULL DEFAULT '',
	phone          TEXT NOT NULL DEFAULT '',
	fax            TEXT NOT NULL DEFAULT '',
	mobile         TEXT NOT NULL DEFAULT '',
	email          TEXT NOT NULL DEFAULT '',
	website        TEXT NOT NULL DEFAULT '',
	contact_person TEXT NOT NULL DEFAULT '',
	products_info  TEXT NOT NULL DEFAULT '',
	industry       TEXT NOT NULL DEFAULT '',
	scrape_date    TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

var recordColumns = []string{
	"company_id", "state", "name", "street", "zipcode", "city", "phone", "fax", "mobile",
	"email", "website", "contact_person", "products_info", "industry", "scrape_date",
}

func (s *RecordStore) upsertQuery() string {
	placeholders := make([]string, len(recordColumns))
	updates := make([]string, 0, len(recordColumns)-1)
	for i, col := range recordColumns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		if i > 0 {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
		}
	}
	return fmt.Sprintf(`
INSERT INTO %s (%s) VALUES (%s)
ON CONFLICT (company_id) DO UPDATE SET %s`,
		s.table,
		strings.Join(recordColumns, ", "),
		strings.Join(placeholders, ","),
		strings.Join(updates, ", "),
	)
}

// Write implements crawler.TableSink. The batch is upserted in one
// transaction; the newest scrape of a company wins.
func (s *RecordStore) Write(ctx context.Context, _ crawler.Region, records []crawler.Record) error {
	if s == nil || s.pool == nil {
		return errors.New("record store is not configured")
	}
	if len(records) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin record upsert: %w", crawler.ErrPersistence, err)
	}
	query := s.upsertQuery()
	for _, rec := range records {
		if rec.ID == "" {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("%w: record without company_id", crawler.ErrPersistence)
		}
		if _, err := tx.Exec(ctx, query, recordArgs(rec)...); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("%w: upsert record %s: %w", crawler.ErrPersistence, rec.ID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit record upsert: %w", crawler.ErrPersistence, err)
	}
	return nil
}

func recordArgs(rec crawler.Record) []any {
	return []any{
		string(rec.ID),
		rec.Region,
		rec.Name,
		rec.Street,
		rec.Zipcode,
		rec.City,
		rec.Phone,
		rec.Fax,
		rec.Mobile,
		rec.Email,
		rec.Website,
		rec.ContactPerson,
		rec.ProductsInfo,
		rec.Industry,
		rec.ScrapedAt.UTC(),
	}
}
