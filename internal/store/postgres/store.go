// Package postgres provides the Postgres-backed product store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prodfinder/imagepick/internal/pick"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool for product rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store persists product rows in Postgres using the external status
// vocabulary ("pending", "approved", "retry"); the internal status is
// reconstructed from status plus notes on read.
type Store struct {
	pool  pgxPool
	table string
	sb    sq.StatementBuilderType
}

// New creates a Postgres-backed Store using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
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
	return NewWithPool(pool, cfg.Table)
}

// NewWithPool constructs a Store from an existing pool (primarily for
// testing).
func NewWithPool(pool pgxPool, table string) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "products"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Store{
		pool:  pool,
		table: table,
		sb:    sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the products table when it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	product_name TEXT PRIMARY KEY,
	status       TEXT NOT NULL,
	image_url    TEXT NOT NULL DEFAULT '',
	attempts     INT NOT NULL DEFAULT 0,
	notes        TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// UpsertProduct inserts or replaces the row keyed by product name.
func (s *Store) UpsertProduct(ctx context.Context, p pick.Product) error {
	if p.Name == "" {
		return fmt.Errorf("product name is required")
	}
	query, args, err := s.sb.
		Insert(s.table).
		Columns("product_name", "status", "image_url", "attempts", "notes", "created_at", "updated_at").
		Values(p.Name, p.Status.External(), p.ImageURL, p.Attempts, p.Notes, p.CreatedAt, p.UpdatedAt).
		Suffix(`ON CONFLICT (product_name) DO UPDATE SET
			status = EXCLUDED.status,
			image_url = EXCLUDED.image_url,
			attempts = EXCLUDED.attempts,
			notes = EXCLUDED.notes,
			updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert product %q: %w", p.Name, err)
	}
	return nil
}

// GetProduct returns the row or ErrProductNotFound.
func (s *Store) GetProduct(ctx context.Context, name string) (pick.Product, error) {
	query, args, err := s.selectProducts().
		Where(sq.Eq{"product_name": name}).
		ToSql()
	if err != nil {
		return pick.Product{}, fmt.Errorf("build select: %w", err)
	}

	row := s.pool.QueryRow(ctx, query, args...)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return pick.Product{}, pick.ErrProductNotFound
		}
		return pick.Product{}, fmt.Errorf("get product %q: %w", name, err)
	}
	return p, nil
}

// ListProducts returns every row ordered by product name.
func (s *Store) ListProducts(ctx context.Context) ([]pick.Product, error) {
	query, args, err := s.selectProducts().
		OrderBy("product_name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	return s.queryProducts(ctx, query, args...)
}

// ListByExternalStatus returns rows with the given external status value,
// ordered by product name.
func (s *Store) ListByExternalStatus(ctx context.Context, external string) ([]pick.Product, error) {
	query, args, err := s.selectProducts().
		Where(sq.Eq{"status": external}).
		OrderBy("product_name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	return s.queryProducts(ctx, query, args...)
}

func (s *Store) selectProducts() sq.SelectBuilder {
	return s.sb.
		Select("product_name", "status", "image_url", "attempts", "notes", "created_at", "updated_at").
		From(s.table)
}

func (s *Store) queryProducts(ctx context.Context, query string, args ...any) ([]pick.Product, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var out []pick.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return out, nil
}

func scanProduct(row pgx.Row) (pick.Product, error) {
	var (
		p        pick.Product
		external string
	)
	err := row.Scan(&p.Name, &external, &p.ImageURL, &p.Attempts, &p.Notes, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return pick.Product{}, err
	}
	p.Status = pick.StatusFromExternal(external, p.Notes)
	p.Exclusions = make(pick.ExclusionSet)
	return p, nil
}
