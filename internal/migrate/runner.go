// Package migrate applies schema migrations and seed files stored on
// disk, tracked in a single bookkeeping table.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	defaultTable = "schema_migrations"

	kindMigration = "migration"
	kindSeed      = "seed"
)

// Runner executes SQL files and records what ran.
type Runner struct {
	db            *sql.DB
	migrationsDir string
	seedsDir      string
	table         string
}

// Option configures Runner.
type Option func(*Runner)

// WithTable overrides the bookkeeping table name.
func WithTable(name string) Option {
	return func(r *Runner) {
		if name != "" {
			r.table = name
		}
	}
}

// NewRunner constructs a Runner over an open pool.
func NewRunner(db *sql.DB, migrationsDir, seedsDir string, opts ...Option) *Runner {
	r := &Runner{
		db:            db,
		migrationsDir: migrationsDir,
		seedsDir:      seedsDir,
		table:         defaultTable,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Up applies all pending migrations in filename order.
func (r *Runner) Up(ctx context.Context) error {
	return r.applyPending(ctx, r.migrationsDir, ".up.sql", kindMigration)
}

// Seed applies seed files idempotently.
func (r *Runner) Seed(ctx context.Context) error {
	return r.applyPending(ctx, r.seedsDir, ".sql", kindSeed)
}

func (r *Runner) applyPending(ctx context.Context, dir, suffix, kind string) error {
	if err := r.ensureTable(ctx); err != nil {
		return err
	}
	done, err := r.applied(ctx, kind)
	if err != nil {
		return err
	}
	files, err := collectSQL(dir, suffix)
	if err != nil {
		return err
	}
	for _, f := range files {
		if done[f.Base] {
			continue
		}
		if err := r.execFile(ctx, f.Path); err != nil {
			return fmt.Errorf("apply %s %s: %w", kind, f.Base, err)
		}
		if _, err := r.db.ExecContext(ctx,
			fmt.Sprintf(`insert into %s(name, kind, applied_at) values ($1, $2, $3)`, r.table),
			f.Base, kind, time.Now().UTC()); err != nil {
			return err
		}
	}
	return nil
}

// Down rolls back the most recently applied migration.
func (r *Runner) Down(ctx context.Context) error {
	if err := r.ensureTable(ctx); err != nil {
		return err
	}
	history, err := r.Status(ctx)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return errors.New("no migrations applied")
	}
	last := history[len(history)-1]
	downPath := strings.TrimSuffix(filepath.Join(r.migrationsDir, last), ".up.sql") + ".down.sql"
	if _, err := os.Stat(downPath); err != nil {
		return fmt.Errorf("missing down migration for %s", last)
	}
	if err := r.execFile(ctx, downPath); err != nil {
		return fmt.Errorf("rollback migration %s: %w", last, err)
	}
	_, err = r.db.ExecContext(ctx,
		fmt.Sprintf(`delete from %s where name = $1 and kind = $2`, r.table), last, kindMigration)
	return err
}

// Status returns applied migrations in order.
func (r *Runner) Status(ctx context.Context) ([]string, error) {
	if err := r.ensureTable(ctx); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`select name from %s where kind = $1 order by applied_at asc`, r.table), kindMigration)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (r *Runner) ensureTable(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, fmt.Sprintf(`
		create table if not exists %s (
			name text not null,
			kind text not null,
			applied_at timestamptz not null default now(),
			primary key (name, kind)
		)`, r.table))
	return err
}

func (r *Runner) applied(ctx context.Context, kind string) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`select name from %s where kind = $1`, r.table), kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out[name] = true
	}
	return out, rows.Err()
}

// execFile runs one SQL file inside a transaction.
func (r *Runner) execFile(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range splitStatements(string(raw)) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

type sqlFile struct {
	Base string
	Path string
}

func collectSQL(dir, suffix string) ([]sqlFile, error) {
	if dir == "" {
		return nil, nil
	}
	var files []sqlFile
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(d.Name(), suffix) {
			files = append(files, sqlFile{Base: d.Name(), Path: path})
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Base < files[j].Base })
	return files, nil
}

// splitStatements splits on semicolons outside single-quoted strings.
func splitStatements(sql string) []string {
	var (
		stmts    []string
		current  strings.Builder
		inString bool
	)
	for _, r := range sql {
		switch r {
		case '\'':
			current.WriteRune(r)
			inString = !inString
		case ';':
			current.WriteRune(r)
			if !inString {
				stmts = append(stmts, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}
	if strings.TrimSpace(current.String()) != "" {
		stmts = append(stmts, current.String())
	}
	return stmts
}
