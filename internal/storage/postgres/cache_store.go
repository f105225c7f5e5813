// Package postgres provides the Postgres-backed artifact cache.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/linkloader/internal/media"
)

const defaultTable = "media_cache"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Column names of the cache table.
const (
	colURL       = "canonical_url"
	colVideo     = "video_ref"
	colAudio     = "audio_ref"
	colPhotos    = "photo_refs"
	colCaption   = "caption"
	colWriteTime = "last_write_time"
)

// Config controls the Postgres connection pool used for the cache.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	Retention       time.Duration
}

type txPool interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// CacheStore implements media.CacheStore on a single table. Every operation
// runs its eviction sweep and its read or write in one transaction.
type CacheStore struct {
	pool      txPool
	table     string
	retention time.Duration
	clock     media.Clock
	sql       sq.StatementBuilderType
}

// NewCacheStore connects a pool using cfg.
func NewCacheStore(ctx context.Context, cfg Config, clock media.Clock) (*CacheStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("cache.postgres.dsn is required")
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
	store, err := NewCacheStoreWithPool(pool, cfg.Table, cfg.Retention, clock)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewCacheStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewCacheStoreWithPool(pool txPool, table string, retention time.Duration, clock media.Clock) (*CacheStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if retention <= 0 {
		retention = media.DefaultRetention
	}
	return &CacheStore{
		pool:      pool,
		table:     table,
		retention: retention,
		clock:     clock,
		sql:       sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}, nil
}

// Close releases the underlying pool resources.
func (s *CacheStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the cache table when it does not exist.
func (s *CacheStore) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	canonical_url   TEXT PRIMARY KEY,
	video_ref       TEXT,
	audio_ref       TEXT,
	photo_refs      TEXT,
	caption         TEXT,
	last_write_time TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// Lookup purges every stale row then reads the key.
func (s *CacheStore) Lookup(ctx context.Context, canonicalURL string) (*media.CacheEntry, error) {
	cutoff := s.now().Add(-s.retention)

	purge, purgeArgs, err := s.sql.Delete(s.table).Where(sq.Lt{colWriteTime: cutoff}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build purge: %w", err)
	}
	query, args, err := s.sql.
		Select(colURL, colVideo, colAudio, colPhotos, colCaption, colWriteTime).
		From(s.table).
		Where(sq.Eq{colURL: canonicalURL}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build lookup: %w", err)
	}

	var entry *media.CacheEntry
	err = s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, purge, purgeArgs...); err != nil {
			return fmt.Errorf("purge stale rows: %w", err)
		}
		var (
			row    media.CacheEntry
			photos *string
		)
		scanErr := tx.QueryRow(ctx, query, args...).Scan(
			&row.CanonicalURL, &row.VideoRef, &row.AudioRef, &photos, &row.Caption, &row.LastWriteTime,
		)
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return nil
		}
		if scanErr != nil {
			return fmt.Errorf("select entry: %w", scanErr)
		}
		if photos != nil && *photos != "" {
			if err := json.Unmarshal([]byte(*photos), &row.PhotoRefs); err != nil {
				return fmt.Errorf("decode photo_refs: %w", err)
			}
		}
		entry = &row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Upsert deletes a stale row for the key and writes only the provided columns.
func (s *CacheStore) Upsert(ctx context.Context, canonicalURL string, update media.CacheUpdate) error {
	if update.Empty() {
		return nil
	}
	now := s.now()

	purge, purgeArgs, err := s.sql.Delete(s.table).
		Where(sq.Eq{colURL: canonicalURL}).
		Where(sq.Lt{colWriteTime: now.Add(-s.retention)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build purge: %w", err)
	}

	cols := []string{colURL}
	vals := []any{canonicalURL}
	if update.VideoRef != nil {
		cols, vals = append(cols, colVideo), append(vals, *update.VideoRef)
	}
	if update.AudioRef != nil {
		cols, vals = append(cols, colAudio), append(vals, *update.AudioRef)
	}
	if len(update.PhotoRefs) > 0 {
		encoded, err := json.Marshal(update.PhotoRefs)
		if err != nil {
			return fmt.Errorf("encode photo_refs: %w", err)
		}
		cols, vals = append(cols, colPhotos), append(vals, string(encoded))
	}
	if update.Caption != nil {
		cols, vals = append(cols, colCaption), append(vals, *update.Caption)
	}
	cols, vals = append(cols, colWriteTime), append(vals, now)

	insert, insertArgs, err := s.sql.Insert(s.table).
		Columns(cols...).
		Values(vals...).
		Suffix(conflictClause(cols[1:])).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}

	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, purge, purgeArgs...); err != nil {
			return fmt.Errorf("purge stale row: %w", err)
		}
		if _, err := tx.Exec(ctx, insert, insertArgs...); err != nil {
			return fmt.Errorf("upsert entry: %w", err)
		}
		return nil
	})
}

func conflictClause(cols []string) string {
	clause := "ON CONFLICT (" + colURL + ") DO UPDATE SET "
	for i, c := range cols {
		if i > 0 {
			clause += ", "
		}
		clause += c + " = EXCLUDED." + c
	}
	return clause
}

func (s *CacheStore) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *CacheStore) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now()
}
