// Package database manages the per-organization Postgres connection
// pools that back the Tracking Store (C5). Each organization gets its
// own physical database; this package owns pool lifecycle and lazy
// database/schema creation, adapted from the teacher's per-workspace
// connection manager onto organization-scoped storage.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/sunridge-benefits/enroll-scheduler/internal/config"
)

// ConnectionManager hands out one connection pool per organization
// database, evicting least-recently-used idle pools when the process
// approaches its global connection ceiling.
type ConnectionManager interface {
	// GetOrgConnection returns a connection pool for an organization's
	// database, creating and migrating it on first use.
	GetOrgConnection(ctx context.Context, orgID string) (*sql.DB, error)

	// CloseOrgConnection closes a specific organization's pool.
	CloseOrgConnection(orgID string) error

	// GetStats returns connection usage statistics across all pools.
	GetStats() ConnectionStats

	// Close closes every open organization pool.
	Close() error
}

// ConnectionStats provides visibility into connection usage.
type ConnectionStats struct {
	MaxConnections        int
	MaxConnectionsPerOrg  int
	OrgPools              map[string]ConnectionPoolStats
	TotalOpenConnections  int
	TotalInUseConnections int
	TotalIdleConnections  int
	ActiveOrgDatabases    int
}

// ConnectionPoolStats provides stats for a single connection pool.
type ConnectionPoolStats struct {
	OpenConnections int
	InUse           int
	Idle            int
	MaxOpen         int
	WaitCount       int64
	WaitDuration    time.Duration
}

// connectionManager implements ConnectionManager.
type connectionManager struct {
	mu                  sync.RWMutex
	config              config.DatabaseConfig
	orgPools            map[string]*sql.DB   // orgID -> connection pool
	poolAccessTimes     map[string]time.Time // orgID -> last access time
	maxConnections      int
	maxConnectionsPerDB int
}

var (
	instance     *connectionManager
	instanceOnce sync.Once
	instanceMu   sync.RWMutex
)

// InitializeConnectionManager initializes the singleton with configuration.
func InitializeConnectionManager(cfg config.DatabaseConfig) {
	instanceOnce.Do(func() {
		instanceMu.Lock()
		defer instanceMu.Unlock()

		instance = &connectionManager{
			config:              cfg,
			orgPools:            make(map[string]*sql.DB),
			poolAccessTimes:     make(map[string]time.Time),
			maxConnections:      cfg.MaxConnections,
			maxConnectionsPerDB: cfg.MaxConnectionsPerOrg,
		}
	})
}

// GetConnectionManager returns the singleton instance.
func GetConnectionManager() (ConnectionManager, error) {
	instanceMu.RLock()
	defer instanceMu.RUnlock()

	if instance == nil {
		return nil, fmt.Errorf("connection manager not initialized")
	}

	return instance, nil
}

// ResetConnectionManager resets the singleton (for testing only).
func ResetConnectionManager() {
	instanceMu.Lock()
	defer instanceMu.Unlock()

	if instance != nil {
		instance.Close()
		instance = nil
	}
	instanceOnce = sync.Once{}
}

// GetOrgConnection returns a connection pool for an organization database.
func (cm *connectionManager) GetOrgConnection(ctx context.Context, orgID string) (*sql.DB, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	cm.mu.RLock()
	pool, ok := cm.orgPools[orgID]
	cm.mu.RUnlock()

	if ok {
		if err := pool.PingContext(ctx); err == nil {
			cm.mu.RLock()
			stillExists := cm.orgPools[orgID] == pool
			cm.mu.RUnlock()

			if stillExists {
				cm.mu.Lock()
				cm.poolAccessTimes[orgID] = time.Now()
				cm.mu.Unlock()
				return pool, nil
			}
		}

		cm.mu.Lock()
		if cm.orgPools[orgID] == pool {
			delete(cm.orgPools, orgID)
			delete(cm.poolAccessTimes, orgID)
			pool.Close()
		}
		cm.mu.Unlock()
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	if pool, ok := cm.orgPools[orgID]; ok {
		cm.poolAccessTimes[orgID] = time.Now()
		return pool, nil
	}

	if !cm.hasCapacityForNewPool() {
		if cm.closeLRUIdlePools(1) > 0 {
			if !cm.hasCapacityForNewPool() {
				return nil, &ConnectionLimitError{
					MaxConnections:     cm.maxConnections,
					CurrentConnections: cm.getTotalConnectionCount(),
					OrgID:              orgID,
				}
			}
		} else {
			return nil, &ConnectionLimitError{
				MaxConnections:     cm.maxConnections,
				CurrentConnections: cm.getTotalConnectionCount(),
				OrgID:              orgID,
			}
		}
	}

	pool, err := cm.createOrgPool(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to create org pool: %w", err)
	}

	cm.orgPools[orgID] = pool
	cm.poolAccessTimes[orgID] = time.Now()

	return pool, nil
}

// createOrgPool creates and migrates a new connection pool for an
// organization database.
func (cm *connectionManager) createOrgPool(ctx context.Context, orgID string) (*sql.DB, error) {
	if err := EnsureOrgDatabaseExists(cm.config, orgID); err != nil {
		return nil, err
	}

	dsn := orgDSN(cm.config, orgID)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		// Don't include dsn in error (contains password)
		return nil, fmt.Errorf("failed to open connection to org %s: %w", orgID, err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to org %s database: %w", orgID, err)
	}

	if err := InitializeSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema for org %s: %w", orgID, err)
	}

	// Each org database gets only a few connections; tracking-store
	// queries are short-lived.
	db.SetMaxOpenConns(cm.maxConnectionsPerDB)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(cm.config.ConnectionMaxLifetime)
	db.SetConnMaxIdleTime(cm.config.ConnectionMaxIdleTime)

	return db, nil
}

// hasCapacityForNewPool must be called with the lock held.
func (cm *connectionManager) hasCapacityForNewPool() bool {
	currentTotal := cm.getTotalConnectionCount()
	projectedTotal := currentTotal + cm.maxConnectionsPerDB
	maxAllowed := int(float64(cm.maxConnections) * 0.9)
	return projectedTotal <= maxAllowed
}

// getTotalConnectionCount must be called with the lock held.
func (cm *connectionManager) getTotalConnectionCount() int {
	total := 0
	for _, pool := range cm.orgPools {
		total += pool.Stats().OpenConnections
	}
	return total
}

// closeLRUIdlePools closes up to 'count' least-recently-used idle pools
// and returns the number actually closed. Must be called with the lock held.
func (cm *connectionManager) closeLRUIdlePools(count int) int {
	type candidate struct {
		orgID      string
		lastAccess time.Time
	}

	var candidates []candidate
	for orgID, pool := range cm.orgPools {
		stats := pool.Stats()
		if stats.InUse == 0 && stats.OpenConnections > 0 {
			candidates = append(candidates, candidate{
				orgID:      orgID,
				lastAccess: cm.poolAccessTimes[orgID],
			})
		}
	}

	if len(candidates) == 0 {
		return 0
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].lastAccess.Before(candidates[j].lastAccess)
	})

	closed := 0
	for i := 0; i < len(candidates) && i < count; i++ {
		orgID := candidates[i].orgID
		if pool, ok := cm.orgPools[orgID]; ok {
			pool.Close()
			delete(cm.orgPools, orgID)
			delete(cm.poolAccessTimes, orgID)
			closed++
		}
	}

	return closed
}

// CloseOrgConnection closes a specific organization's connection pool.
func (cm *connectionManager) CloseOrgConnection(orgID string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if pool, ok := cm.orgPools[orgID]; ok {
		delete(cm.orgPools, orgID)
		delete(cm.poolAccessTimes, orgID)
		return pool.Close()
	}

	return nil
}

// GetStats returns connection statistics across all organization pools.
func (cm *connectionManager) GetStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{
		MaxConnections:       cm.maxConnections,
		MaxConnectionsPerOrg: cm.maxConnectionsPerDB,
		OrgPools:             make(map[string]ConnectionPoolStats),
	}

	for orgID, pool := range cm.orgPools {
		poolStats := pool.Stats()
		stats.OrgPools[orgID] = ConnectionPoolStats{
			OpenConnections: poolStats.OpenConnections,
			InUse:           poolStats.InUse,
			Idle:            poolStats.Idle,
			MaxOpen:         poolStats.MaxOpenConnections,
			WaitCount:       poolStats.WaitCount,
			WaitDuration:    poolStats.WaitDuration,
		}
		stats.TotalOpenConnections += poolStats.OpenConnections
		stats.TotalInUseConnections += poolStats.InUse
		stats.TotalIdleConnections += poolStats.Idle
	}

	stats.ActiveOrgDatabases = len(cm.orgPools)

	return stats
}

// Close closes every open organization connection pool.
func (cm *connectionManager) Close() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	var errs []error
	for orgID, pool := range cm.orgPools {
		if err := pool.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close org %s: %w", orgID, err))
		}
		delete(cm.orgPools, orgID)
		delete(cm.poolAccessTimes, orgID)
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing connections: %v", errs)
	}

	return nil
}

// ConnectionLimitError is returned when the connection ceiling would be
// exceeded by opening another org pool.
type ConnectionLimitError struct {
	MaxConnections     int
	CurrentConnections int
	OrgID              string
}

func (e *ConnectionLimitError) Error() string {
	return fmt.Sprintf(
		"connection limit reached: %d/%d connections in use, cannot create pool for org %s",
		e.CurrentConnections,
		e.MaxConnections,
		e.OrgID,
	)
}

// IsConnectionLimitError checks if an error is a connection limit error.
func IsConnectionLimitError(err error) bool {
	_, ok := err.(*ConnectionLimitError)
	return ok
}

// orgDSN builds the connection string for an organization's database.
func orgDSN(cfg config.DatabaseConfig, orgID string) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		orgDatabaseName(cfg, orgID),
		cfg.SSLMode,
	)
}

func orgDatabaseName(cfg config.DatabaseConfig, orgID string) string {
	safeID := strings.ReplaceAll(strings.ToLower(orgID), "-", "_")
	return fmt.Sprintf("%s_org_%s", cfg.Prefix, safeID)
}
