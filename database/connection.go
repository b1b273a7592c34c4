package database

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoDatabaseURL is returned when no connection string is configured.
var ErrNoDatabaseURL = errors.New("database_url not set (config file, SHEETMATCH_DATABASE_URL or DATABASE_URL)")

var (
	mu   sync.Mutex
	pool *pgxpool.Pool
	dsn  string
)

// GetPool returns the shared connection pool for dsn, creating and pinging
// it on first use.
func GetPool(ctx context.Context, connStr string) (*pgxpool.Pool, error) {
	if connStr == "" {
		return nil, ErrNoDatabaseURL
	}

	mu.Lock()
	defer mu.Unlock()
	if pool != nil && dsn == connStr {
		return pool, nil
	}
	if pool != nil {
		pool.Close()
		pool = nil
	}

	p, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	// Test the connection
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	pool, dsn = p, connStr
	return pool, nil
}

// ClosePool closes the connection pool (should be called on application shutdown)
func ClosePool() {
	mu.Lock()
	defer mu.Unlock()
	if pool != nil {
		pool.Close()
		pool = nil
		dsn = ""
	}
}
