package database

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/sunridge-benefits/enroll-scheduler/internal/config"
)

// maintenanceDSN returns a DSN for Postgres's always-present "postgres"
// maintenance database, used only to check for and create an
// organization's database.
func maintenanceDSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/postgres?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.SSLMode)
}

// EnsureOrgDatabaseExists creates the organization's database if it does
// not already exist, connecting through the maintenance database the
// way the teacher's workspace provisioning does.
func EnsureOrgDatabaseExists(cfg config.DatabaseConfig, orgID string) error {
	dbName := orgDatabaseName(cfg, orgID)

	db, err := sql.Open("postgres", maintenanceDSN(cfg))
	if err != nil {
		return fmt.Errorf("failed to open maintenance connection: %w", err)
	}
	defer db.Close()

	var exists bool
	err = db.QueryRow("SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", dbName).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check org database existence: %w", err)
	}
	if exists {
		return nil
	}

	// CREATE DATABASE does not accept parameter placeholders; dbName is
	// passed through quoteIdentifier, which double-quotes it and escapes
	// embedded quotes.
	if _, err := db.Exec(fmt.Sprintf("CREATE DATABASE %s", quoteIdentifier(dbName))); err != nil {
		return fmt.Errorf("failed to create org database %s: %w", dbName, err)
	}

	return nil
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
