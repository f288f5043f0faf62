// Package registry manages the single organizations table that tracks
// which organization ids exist, so the Status Reconciler's webhook path
// can scan every org's store for a provider message id without a
// separate service directory, per §6's "one registry database ...
// organizations table keyed by id".
package registry

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"

	"github.com/sunridge-benefits/enroll-scheduler/internal/config"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Registry is the process-wide directory of known organization ids,
// backed by one small Postgres database shared across the process
// (distinct from the per-org databases pkg/database manages).
type Registry struct {
	db *sql.DB
}

// registryTable is the schema for the organizations table, created on
// Open the same way pkg/database.InitializeSchema prepares an org
// database.
const registryTable = `
CREATE TABLE IF NOT EXISTS organizations (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// registryDSN builds the connection string for the shared registry
// database, named "<prefix>_main" alongside the per-org "<prefix>_org_*"
// databases.
func registryDSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s_main?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Prefix, cfg.SSLMode)
}

// Open connects to the registry database, creating it via the
// maintenance connection if it does not yet exist, and ensures the
// organizations table is present.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Registry, error) {
	if err := ensureRegistryDatabaseExists(cfg); err != nil {
		return nil, fmt.Errorf("failed to ensure registry database: %w", err)
	}

	db, err := sql.Open("postgres", registryDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open registry connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to registry database: %w", err)
	}
	if _, err := db.ExecContext(ctx, registryTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize registry schema: %w", err)
	}

	return &Registry{db: db}, nil
}

// newRegistry wraps an already-open connection, used by tests to inject
// a sqlmock database without dialing Postgres.
func newRegistry(db *sql.DB) *Registry {
	return &Registry{db: db}
}

// Close closes the registry's connection.
func (r *Registry) Close() error {
	return r.db.Close()
}

// Register records an organization id, no-op if it already exists.
func (r *Registry) Register(ctx context.Context, orgID, name string) error {
	query := psql.Insert("organizations").
		Columns("id", "name").
		Values(orgID, name).
		Suffix("ON CONFLICT (id) DO NOTHING")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

// Deregister removes an organization id from the registry. The
// organization's own database is left untouched.
func (r *Registry) Deregister(ctx context.Context, orgID string) error {
	query := psql.Delete("organizations").Where(sq.Eq{"id": orgID})
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build delete: %w", err)
	}
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

// ListOrgIDs returns every known organization id, ordered by id for
// deterministic iteration in the webhook-path scan.
func (r *Registry) ListOrgIDs(ctx context.Context) ([]string, error) {
	query := psql.Select("id").From("organizations").OrderBy("id ASC")
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan organization id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func ensureRegistryDatabaseExists(cfg config.DatabaseConfig) error {
	dbName := fmt.Sprintf("%s_main", cfg.Prefix)

	maintenance := fmt.Sprintf("postgres://%s:%s@%s:%d/postgres?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.SSLMode)

	db, err := sql.Open("postgres", maintenance)
	if err != nil {
		return fmt.Errorf("failed to open maintenance connection: %w", err)
	}
	defer db.Close()

	var exists bool
	if err := db.QueryRow("SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", dbName).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check registry database existence: %w", err)
	}
	if exists {
		return nil
	}

	if _, err := db.Exec(fmt.Sprintf(`CREATE DATABASE "%s"`, dbName)); err != nil {
		return fmt.Errorf("failed to create registry database: %w", err)
	}
	return nil
}
