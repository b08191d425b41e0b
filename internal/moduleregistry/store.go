// Package moduleregistry is the durable, versioned store of published
// Bur modules, backed by Postgres via pgx — the source of truth an
// embedding host publishes named modules into (`bur module publish`)
// and the CLI's list/get/rollback commands read back from, distinct
// from the ephemeral modulecache/Runtime caches.
package moduleregistry

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PublishedModule is one row of the durable module registry: a named
// path at a specific version, its source text, the hash of that
// source, and when it was published.
type PublishedModule struct {
	Path      string
	Version   int
	Source    string
	CodeHash  string
	CreatedAt time.Time
}

// Store wraps a pgxpool.Pool, grounded on
// oriys-nova/internal/store.PostgresStore's pgxpool+ensureSchema shape.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore dials dsn, verifies connectivity, and ensures the registry
// schema exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("moduleregistry: connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("moduleregistry: pinging postgres: %w", err)
	}
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() { s.pool.Close() }

func (s *Store) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS modules (
			path TEXT PRIMARY KEY,
			latest_version INTEGER NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS module_versions (
			path TEXT NOT NULL REFERENCES modules(path) ON DELETE CASCADE,
			version INTEGER NOT NULL,
			source TEXT NOT NULL,
			code_hash TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (path, version)
		)`,
		`CREATE INDEX IF NOT EXISTS module_versions_path_idx ON module_versions (path, version DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("moduleregistry: ensuring schema: %w", err)
		}
	}
	return nil
}

// Publish appends a new version of path, bumping modules.latest_version.
func (s *Store) Publish(ctx context.Context, path, source, codeHash string) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("moduleregistry: begin publish tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var version int
	err = tx.QueryRow(ctx, `SELECT latest_version FROM modules WHERE path = $1 FOR UPDATE`, path).Scan(&version)
	if err != nil {
		version = 0
	}
	version++

	now := time.Now()
	if _, err := tx.Exec(ctx,
		`INSERT INTO module_versions (path, version, source, code_hash, created_at) VALUES ($1, $2, $3, $4, $5)`,
		path, version, source, codeHash, now); err != nil {
		return 0, fmt.Errorf("moduleregistry: inserting version: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO modules (path, latest_version, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (path) DO UPDATE SET latest_version = $2, updated_at = $3`,
		path, version, now); err != nil {
		return 0, fmt.Errorf("moduleregistry: upserting module: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("moduleregistry: commit publish tx: %w", err)
	}
	return version, nil
}

// Get returns the latest published version of path.
func (s *Store) Get(ctx context.Context, path string) (*PublishedModule, error) {
	var latest int
	if err := s.pool.QueryRow(ctx, `SELECT latest_version FROM modules WHERE path = $1`, path).Scan(&latest); err != nil {
		return nil, fmt.Errorf("moduleregistry: module %q not found: %w", path, err)
	}
	return s.GetVersion(ctx, path, latest)
}

// GetVersion returns a specific version of path.
func (s *Store) GetVersion(ctx context.Context, path string, version int) (*PublishedModule, error) {
	m := &PublishedModule{Path: path, Version: version}
	err := s.pool.QueryRow(ctx,
		`SELECT source, code_hash, created_at FROM module_versions WHERE path = $1 AND version = $2`,
		path, version,
	).Scan(&m.Source, &m.CodeHash, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("moduleregistry: module %q version %d not found: %w", path, version, err)
	}
	return m, nil
}

// List returns every published module path with its latest version.
func (s *Store) List(ctx context.Context) ([]*PublishedModule, error) {
	rows, err := s.pool.Query(ctx, `SELECT path, latest_version, updated_at FROM modules ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("moduleregistry: listing modules: %w", err)
	}
	defer rows.Close()

	var out []*PublishedModule
	for rows.Next() {
		m := &PublishedModule{}
		if err := rows.Scan(&m.Path, &m.Version, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("moduleregistry: scanning module row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListVersions returns every version recorded for path, newest first.
func (s *Store) ListVersions(ctx context.Context, path string) ([]*PublishedModule, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT version, source, code_hash, created_at FROM module_versions WHERE path = $1 ORDER BY version DESC`, path)
	if err != nil {
		return nil, fmt.Errorf("moduleregistry: listing versions of %q: %w", path, err)
	}
	defer rows.Close()

	var out []*PublishedModule
	for rows.Next() {
		m := &PublishedModule{Path: path}
		if err := rows.Scan(&m.Version, &m.Source, &m.CodeHash, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("moduleregistry: scanning version row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Rollback sets path's latest_version to an already-published version,
// without deleting any history.
func (s *Store) Rollback(ctx context.Context, path string, version int) error {
	if _, err := s.GetVersion(ctx, path, version); err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx,
		`UPDATE modules SET latest_version = $2, updated_at = $3 WHERE path = $1`,
		path, version, time.Now()); err != nil {
		return fmt.Errorf("moduleregistry: rolling back %q to version %d: %w", path, version, err)
	}
	return nil
}
