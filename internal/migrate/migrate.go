// Package migrate applies the numbered SQL files under migrations/ and tracks
// them in the schema_migrations table.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"
)

// Migration represents a database migration
type Migration struct {
	Version   int
	Name      string
	FilePath  string
	DownPath  string
	Applied   bool
	AppliedAt *time.Time
}

// Pattern: 001_name.sql, rolled back by 001_name.down.sql
var (
	upPattern   = regexp.MustCompile(`^(\d{3})_([^.]+)\.sql$`)
	downPattern = regexp.MustCompile(`^(\d{3})_([^.]+)\.down\.sql$`)
)

// Runner applies and rolls back migrations from a directory
type Runner struct {
	db  *sql.DB
	dir string
}

// NewRunner creates a runner over the migrations directory
func NewRunner(db *sql.DB, dir string) *Runner {
	return &Runner{db: db, dir: dir}
}

// EnsureTable creates the schema_migrations tracking table
func (r *Runner) EnsureTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`

	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}
	return nil
}

// Applied retrieves all applied migrations keyed by version
func (r *Runner) Applied(ctx context.Context) (map[int]Migration, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT version, name, applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]Migration)
	for rows.Next() {
		var m Migration
		if err := rows.Scan(&m.Version, &m.Name, &m.AppliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		m.Applied = true
		applied[m.Version] = m
	}

	return applied, rows.Err()
}

// Files scans the directory and returns all migrations sorted by version
func Files(dir string) ([]Migration, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	downs := map[int]string{}
	var migrations []Migration
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		if m := downPattern.FindStringSubmatch(entry.Name()); m != nil {
			version, _ := strconv.Atoi(m[1])
			downs[version] = filepath.Join(dir, entry.Name())
			continue
		}

		m := upPattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		version, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		migrations = append(migrations, Migration{
			Version:  version,
			Name:     m[2],
			FilePath: filepath.Join(dir, entry.Name()),
		})
	}

	for i := range migrations {
		migrations[i].DownPath = downs[migrations[i].Version]
	}
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

// Status returns every migration file merged with its applied state
func (r *Runner) Status(ctx context.Context) ([]Migration, error) {
	applied, err := r.Applied(ctx)
	if err != nil {
		return nil, err
	}
	migrations, err := Files(r.dir)
	if err != nil {
		return nil, err
	}

	for i, m := range migrations {
		if a, ok := applied[m.Version]; ok {
			migrations[i].Applied = true
			migrations[i].AppliedAt = a.AppliedAt
		}
	}
	return migrations, nil
}

// Up applies all pending migrations in order and returns them
func (r *Runner) Up(ctx context.Context) ([]Migration, error) {
	migrations, err := r.Status(ctx)
	if err != nil {
		return nil, err
	}

	var done []Migration
	for _, m := range migrations {
		if m.Applied {
			continue
		}
		if err := r.apply(ctx, m); err != nil {
			return done, fmt.Errorf("failed to apply migration %03d_%s: %w", m.Version, m.Name, err)
		}
		done = append(done, m)
	}
	return done, nil
}

// Down rolls back the most recently applied migration. It returns nil when
// nothing is applied.
func (r *Runner) Down(ctx context.Context) (*Migration, error) {
	migrations, err := r.Status(ctx)
	if err != nil {
		return nil, err
	}

	for i := len(migrations) - 1; i >= 0; i-- {
		m := migrations[i]
		if !m.Applied {
			continue
		}
		if err := r.rollback(ctx, m); err != nil {
			return nil, fmt.Errorf("failed to rollback migration %03d_%s: %w", m.Version, m.Name, err)
		}
		return &m, nil
	}
	return nil, nil
}

// Reset rolls back every applied migration and reapplies them all
func (r *Runner) Reset(ctx context.Context) ([]Migration, error) {
	for {
		m, err := r.Down(ctx)
		if err != nil {
			return nil, err
		}
		if m == nil {
			break
		}
	}
	return r.Up(ctx)
}

func (r *Runner) apply(ctx context.Context, m Migration) error {
	content, err := os.ReadFile(m.FilePath)
	if err != nil {
		return fmt.Errorf("failed to read migration file: %w", err)
	}

	return r.inTx(ctx, string(content),
		"INSERT INTO schema_migrations (version, name) VALUES ($1, $2)", m.Version, m.Name)
}

func (r *Runner) rollback(ctx context.Context, m Migration) error {
	if m.DownPath == "" {
		return fmt.Errorf("no rollback defined for migration version %d", m.Version)
	}
	content, err := os.ReadFile(m.DownPath)
	if err != nil {
		return fmt.Errorf("failed to read rollback file: %w", err)
	}

	return r.inTx(ctx, string(content),
		"DELETE FROM schema_migrations WHERE version = $1", m.Version)
}

// inTx runs the migration body and the tracking statement in one transaction
func (r *Runner) inTx(ctx context.Context, body, track string, args ...interface{}) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, body); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}
	if _, err := tx.ExecContext(ctx, track, args...); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
