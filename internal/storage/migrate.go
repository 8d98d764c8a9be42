package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/dgellow/restaurant-reviews/internal/log"
)

const migrationTable = "schema_migrations"

// sqlExecutor is the subset of a database handle the migrator needs. Both
// the SQLite and PostgreSQL stores provide one.
type sqlExecutor interface {
	// exec runs one or more statements. args use the store's placeholder style.
	exec(ctx context.Context, query string, args ...any) error
	// applied reports whether the named migration was recorded.
	applied(ctx context.Context, name string) (bool, error)
	// inTx runs fn in a transaction.
	inTx(ctx context.Context, fn func(exec func(query string, args ...any) error) error) error
	// recordSQL inserts a row into the migration table.
	recordSQL() string
}

// applyMigrations executes every *.sql file under root at most once, in
// lexical order. Only the "-- +migrate Up" section of each file runs.
func applyMigrations(ctx context.Context, db sqlExecutor, migrationFS fs.FS, root string) error {
	entries, err := fs.ReadDir(migrationFS, root)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	createSQL := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    name TEXT PRIMARY KEY,
    applied_at BIGINT NOT NULL
)`, migrationTable)
	if err := db.exec(ctx, createSQL); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, file := range files {
		done, err := db.applied(ctx, file)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", file, err)
		}
		if done {
			continue
		}

		content, err := fs.ReadFile(migrationFS, path.Join(root, file))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		upSQL := extractUpMigration(string(content))
		if strings.TrimSpace(upSQL) == "" {
			continue
		}

		err = db.inTx(ctx, func(exec func(string, ...any) error) error {
			if err := exec(upSQL); err != nil && !isAlreadyExistsError(err) {
				return err
			}
			return exec(db.recordSQL(), file, time.Now().UTC().UnixMilli())
		})
		if err != nil {
			return fmt.Errorf("apply migration %s: %w", file, err)
		}

		log.LogInfoWithFields("storage", "Applied migration", map[string]any{
			"migration": file,
		})
	}
	return nil
}

// extractUpMigration returns the SQL in the "-- +migrate Up" section, or
// the whole file when it has no markers.
func extractUpMigration(content string) string {
	const up, down = "-- +migrate Up", "-- +migrate Down"
	upIdx := strings.Index(content, up)
	if upIdx == -1 {
		return content
	}
	downIdx := strings.Index(content, down)
	if downIdx == -1 || downIdx < upIdx {
		return content[upIdx+len(up):]
	}
	return content[upIdx+len(up) : downIdx]
}

func isAlreadyExistsError(err error) bool {
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "already exists") || strings.Contains(value, "duplicate column name")
}

// sqlDBExecutor adapts database/sql handles to the migrator.
type sqlDBExecutor struct {
	db *sql.DB
}

func (e sqlDBExecutor) exec(ctx context.Context, query string, args ...any) error {
	_, err := e.db.ExecContext(ctx, query, args...)
	return err
}

func (e sqlDBExecutor) applied(ctx context.Context, name string) (bool, error) {
	var found int
	err := e.db.QueryRowContext(ctx, "SELECT 1 FROM "+migrationTable+" WHERE name = ?", name).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (e sqlDBExecutor) inTx(ctx context.Context, fn func(exec func(string, ...any) error) error) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	err = fn(func(query string, args ...any) error {
		_, err := tx.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (e sqlDBExecutor) recordSQL() string {
	return "INSERT OR IGNORE INTO " + migrationTable + " (name, applied_at) VALUES (?, ?)"
}
