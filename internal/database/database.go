package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Pragmas are set through the DSN so every pooled connection gets them.
// foreign_keys in particular is per-connection in SQLite.
const dsnPragmas = "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

// DB wraps a SQLite database connection.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates or opens a SQLite database at the given path and applies
// pending migrations.
func Open(dbPath string) (*DB, error) {
	return OpenContext(context.Background(), dbPath, slog.Default())
}

// OpenContext is Open with an explicit context and logger for migration output.
func OpenContext(ctx context.Context, dbPath string, log *slog.Logger) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath+dsnPragmas)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if err := runMigrations(ctx, conn, dbPath, log); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &DB{conn: conn, path: dbPath}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping verifies the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// GetStats returns aggregate counts for the status command.
func (db *DB) GetStats(ctx context.Context) (*Stats, error) {
	var s Stats
	err := db.conn.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM articles),
			(SELECT COUNT(DISTINCT category) FROM articles WHERE category IS NOT NULL AND category != ''),
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM read_marks),
			(SELECT MAX(created_at) FROM articles)`,
	).Scan(&s.Articles, &s.Categories, &s.Users, &s.ReadMarks, &s.LastIngestedAt)
	if err != nil {
		return nil, fmt.Errorf("querying stats: %w", err)
	}
	return &s, nil
}
