// Package postgres provides the Postgres-backed lottery.Store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/lottery-crawler/internal/clock/system"
	"github.com/JakeFAU/lottery-crawler/internal/lottery"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the subset of pgxpool.Pool the store needs; pgxmock satisfies it.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// Store implements lottery.Store on Postgres.
type Store struct {
	pool    pool
	clock   lottery.Clock
	typeIDs *lru.Cache[string, int64]
}

// Option customizes a Store.
type Option func(*Store)

// WithClock sets the time source for ledger timestamps.
func WithClock(clock lottery.Clock) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

// NewStore connects a pool using cfg.
func NewStore(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("db.dsn is required")
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
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewStoreWithPool(p, opts...)
}

// NewStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewStoreWithPool(p pool, opts ...Option) (*Store, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	cache, err := lru.New[string, int64](32)
	if err != nil {
		return nil, fmt.Errorf("create type cache: %w", err)
	}
	s := &Store{pool: p, clock: system.New(), typeIDs: cache}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// exists runs SELECT EXISTS(<q>).
func (s *Store) exists(ctx context.Context, q squirrel.SelectBuilder) (bool, error) {
	sql, args, err := q.Prefix("SELECT EXISTS (").Suffix(")").ToSql()
	if err != nil {
		return false, fmt.Errorf("build exists query: %w", err)
	}
	var ok bool
	if err := s.pool.QueryRow(ctx, sql, args...).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

var _ lottery.Store = (*Store)(nil)
