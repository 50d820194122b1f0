// Package persistence records every consumed message and every task
// status transition in a relational audit log.
package persistence

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/angora-org/angora/internal/logger"
)

//go:embed migrations
var migrations embed.FS

// Store is the audit log over a SQLite or PostgreSQL database.
type Store struct {
	db      *sql.DB
	dialect string
}

// Open connects to the database named by the DSN. A postgres:// or
// postgresql:// DSN selects the PostgreSQL driver; anything else is
// treated as a SQLite file path.
func Open(ctx context.Context, dsn string) (*Store, error) {
	driver, dialect := "sqlite", "sqlite3"
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		driver, dialect = "pgx", "postgres"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if dialect == "sqlite3" {
		// Serialized access keeps SQLite happy under concurrent workers.
		db.SetMaxOpenConns(1)
	}
	return &Store{db: db, dialect: dialect}, nil
}

// Migrate creates or upgrades the messages and tasks tables.
func (s *Store) Migrate(ctx context.Context) error {
	sub, err := fs.Sub(migrations, "migrations/"+s.dialectDir())
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	provider, err := goose.NewProvider(goose.Dialect(s.dialect), s.db, sub)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	for _, r := range results {
		logger.Info(ctx, "Applied migration", "source", r.Source.Path, "duration", r.Duration)
	}
	return nil
}

func (s *Store) dialectDir() string {
	if s.dialect == "postgres" {
		return "postgres"
	}
	return "sqlite"
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders to the $n form PostgreSQL expects.
func (s *Store) rebind(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
