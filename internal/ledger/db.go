// Package ledger keeps the run manifest: one row per batch run plus the
// per-page outcomes. The artifact folder stays the source of truth for
// resumption; the ledger only feeds status queries and reports.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// One statement per entry; pgx's extended protocol rejects multi-statement
// Exec calls.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
	id             TEXT PRIMARY KEY,
	folder         TEXT NOT NULL,
	output_folder  TEXT NOT NULL,
	total_pages    INTEGER NOT NULL,
	completed      INTEGER NOT NULL,
	failed         INTEGER NOT NULL,
	skipped        INTEGER NOT NULL,
	degraded       INTEGER NOT NULL,
	started_at_ms  INTEGER NOT NULL,
	finished_at_ms INTEGER NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS page_outcomes (
	run_id     TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	page_index INTEGER NOT NULL,
	stem       TEXT NOT NULL,
	status     TEXT NOT NULL,
	degraded   INTEGER NOT NULL,
	attempts   INTEGER NOT NULL,
	elapsed_ms INTEGER NOT NULL,
	error      TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, page_index)
)`,
}

// DB is an open ledger handle. A file path or file: URI opens an embedded
// SQLite database; a postgres:// DSN opens a shared server-side ledger.
type DB struct {
	sql      *sql.DB
	pool     *pgxpool.Pool
	log      *slog.Logger
	postgres bool
}

// Open connects to the ledger at dsn and applies the schema.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	d := &DB{log: logger, postgres: isPostgresDSN(dsn)}
	if d.postgres {
		pc, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			logger.Error("ledger.open.failed", "error", err)
			return nil, fmt.Errorf("parsing ledger DSN: %w", err)
		}
		pc.ConnConfig.RuntimeParams["application_name"] = "pagescribe"
		pool, err := pgxpool.NewWithConfig(ctx, pc)
		if err != nil {
			logger.Error("ledger.open.failed", "error", err)
			return nil, fmt.Errorf("connecting to ledger: %w", err)
		}
		d.pool = pool
		d.sql = stdlib.OpenDBFromPool(pool)
	} else {
		if dir := filepath.Dir(dsn); dir != "." && dir != "" && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating ledger directory: %w", err)
			}
		}
		sqldb, err := sql.Open("sqlite", dsn)
		if err != nil {
			logger.Error("ledger.open.failed", "error", err)
			return nil, fmt.Errorf("opening ledger: %w", err)
		}
		d.sql = sqldb
	}

	if err := d.migrate(ctx); err != nil {
		d.Close()
		return nil, err
	}
	logger.Info("ledger.open.ok", "dsn", dsn, "postgres", d.postgres)
	return d, nil
}

func isPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

func (d *DB) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := d.sql.ExecContext(ctx, stmt); err != nil {
			d.log.Error("ledger.migrate.failed", "error", err)
			return fmt.Errorf("applying ledger schema: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders to the $n form Postgres expects. SQLite
// takes the queries as written.
func (d *DB) rebind(query string) string {
	if !d.postgres {
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

// Ping verifies the ledger is reachable.
func (d *DB) Ping(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return d.sql.PingContext(ctx)
}

// Close closes the database connections gracefully.
func (d *DB) Close() {
	if err := d.sql.Close(); err != nil {
		d.log.Error("ledger.close.failed", "error", err)
	}
	if d.pool != nil {
		d.pool.Close()
	}
}
