package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Client is an embedded SQLite database for single-node deployments and local runs.
type Client struct {
	db *sql.DB
}

// NewClient opens (creating if needed) the database file at path.
func NewClient(ctx context.Context, path string) (*Client, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// a single writer avoids SQLITE_BUSY under concurrent appends
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	log.Info().Str("path", path).Msg("Opened SQLite database")
	return &Client{db: db}, nil
}

// DB returns the underlying database connection
func (c *Client) DB() *sql.DB {
	return c.db
}

// Dialect returns the goqu dialect name for this database
func (c *Client) Dialect() string {
	return "sqlite3"
}

// Close closes the database connection
func (c *Client) Close() error {
	return c.db.Close()
}
