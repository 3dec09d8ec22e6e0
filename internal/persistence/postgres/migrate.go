// SPDX-License-Identifier: Apache-2.0

package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	embeddedmigrations "github.com/Sohailahussien/AI-Chat-APP-sub000/migrations"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaMigrationLockID int64 = 0x4348414e5f4d4947 // "CHAN_MIG"

var requiredTables = []string{
	"chains",
	"audit_entries",
}

// requiredColumns are table.column pairs the stores read and write.
var requiredColumns = []string{
	"chains.definition",
	"audit_entries.seq",
	"audit_entries.duration_ms",
}

type SchemaHealthChecker struct {
	pool *pgxpool.Pool
}

func NewSchemaHealthChecker(pool *pgxpool.Pool) *SchemaHealthChecker {
	return &SchemaHealthChecker{pool: pool}
}

func (h *SchemaHealthChecker) Check(ctx context.Context) error {
	return SchemaReady(ctx, h.pool)
}

func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	if pool == nil {
		return errors.New("nil database pool")
	}
	if logger == nil {
		logger = slog.Default()
	}

	started := time.Now()
	logger.Info("schema bootstrap starting")

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire db connection for schema bootstrap: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, schemaMigrationLockID); err != nil {
		return fmt.Errorf("acquire schema bootstrap lock: %w", err)
	}
	defer func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, unlockErr := conn.Exec(unlockCtx, `SELECT pg_advisory_unlock($1)`, schemaMigrationLockID); unlockErr != nil {
			logger.Error("schema bootstrap unlock failed", "error", unlockErr)
		}
	}()

	if _, err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	migrations, err := embeddedmigrations.Ordered()
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}
	if len(migrations) == 0 {
		return errors.New("no embedded migrations found")
	}

	rows, err := conn.Query(ctx, `SELECT filename FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("list applied migrations: %w", err)
	}
	done, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return fmt.Errorf("list applied migrations: %w", err)
	}
	alreadyApplied := make(map[string]bool, len(done))
	for _, name := range done {
		alreadyApplied[name] = true
	}

	applied := 0
	for _, migration := range migrations {
		if alreadyApplied[migration.Name] {
			continue
		}

		logger.Info("applying migration", "version", migration.Version, "file", migration.Name)
		if err := applyMigration(ctx, conn, migration); err != nil {
			return fmt.Errorf("apply migration %s: %w", migration.Name, err)
		}
		applied++
	}

	logger.Info("schema bootstrap complete",
		"applied", applied,
		"skipped", len(migrations)-applied,
		"duration_ms", time.Since(started).Milliseconds(),
	)

	return SchemaReady(ctx, pool)
}

func applyMigration(ctx context.Context, conn *pgxpool.Conn, migration embeddedmigrations.File) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, migration.SQL, pgx.QueryExecModeSimpleProtocol); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO schema_migrations (filename)
		VALUES ($1)
	`, migration.Name); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// SchemaReady reports the required tables and columns that are missing
// from the public schema.
func SchemaReady(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return errors.New("nil database pool")
	}

	tables, err := queryNames(ctx, pool, `
		SELECT table_name::text
		FROM information_schema.tables
		WHERE table_schema = 'public'
		  AND table_name::text = ANY($1::text[])
	`, requiredTables)
	if err != nil {
		return fmt.Errorf("check tables: %w", err)
	}
	if gone := missing(requiredTables, tables); len(gone) > 0 {
		return fmt.Errorf("required tables missing: %s", strings.Join(gone, ", "))
	}

	columns, err := queryNames(ctx, pool, `
		SELECT table_name::text || '.' || column_name::text
		FROM information_schema.columns
		WHERE table_schema = 'public'
		  AND table_name::text || '.' || column_name::text = ANY($1::text[])
	`, requiredColumns)
	if err != nil {
		return fmt.Errorf("check columns: %w", err)
	}
	if gone := missing(requiredColumns, columns); len(gone) > 0 {
		return fmt.Errorf("required columns missing: %s", strings.Join(gone, ", "))
	}

	return nil
}

func queryNames(ctx context.Context, pool *pgxpool.Pool, sql string, names []string) ([]string, error) {
	rows, err := pool.Query(ctx, sql, names)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// missing returns the entries of required absent from present, in order.
func missing(required, present []string) []string {
	have := make(map[string]struct{}, len(present))
	for _, name := range present {
		have[name] = struct{}{}
	}
	var out []string
	for _, name := range required {
		if _, ok := have[name]; !ok {
			out = append(out, name)
		}
	}
	return out
}
