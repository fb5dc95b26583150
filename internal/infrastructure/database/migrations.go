package database

import (
	"cmp"
	"context"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"time"
)

// migrationSource holds the *.up.sql / *.down.sql files, named
// YYYYMMDD_HHMMSS_<name>.{up,down}.sql. The migrations package registers
// its embedded files at init.
var migrationSource fs.FS

// RegisterMigrations sets the filesystem Migrate reads from. Files sit at
// its root.
func RegisterMigrations(fsys fs.FS) {
	migrationSource = fsys
}

// Migration is one schema step.
type Migration struct {
	Version string // YYYYMMDD_HHMMSS
	Name    string
	Up      string
	Down    string
}

const createMigrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version    TEXT PRIMARY KEY,
	applied_at TEXT NOT NULL
)`

// Migrate applies pending migrations oldest first, each in its own
// transaction. A failure leaves the earlier steps committed.
func (db *DB) Migrate(ctx context.Context) error {
	pending, err := db.Pending(ctx)
	if err != nil {
		return err
	}
	for _, m := range pending {
		if err := db.step(ctx, m.Up,
			"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
			m.Version, time.Now().UTC().Format(time.RFC3339)); err != nil {
			return fmt.Errorf("applying migration %s_%s: %w", m.Version, m.Name, err)
		}
	}
	return nil
}

// Rollback reverts the newest applied migration. It does nothing when none
// is applied.
func (db *DB) Rollback(ctx context.Context) error {
	applied, err := db.Applied(ctx)
	if err != nil || len(applied) == 0 {
		return err
	}
	latest := applied[len(applied)-1]

	all, err := loadMigrations()
	if err != nil {
		return err
	}
	i := slices.IndexFunc(all, func(m Migration) bool { return m.Version == latest })
	if i < 0 {
		return fmt.Errorf("rolling back %s: no migration file", latest)
	}
	if all[i].Down == "" {
		return fmt.Errorf("rolling back %s: no down migration", latest)
	}
	if err := db.step(ctx, all[i].Down, "DELETE FROM schema_migrations WHERE version = ?", latest); err != nil {
		return fmt.Errorf("rolling back %s_%s: %w", latest, all[i].Name, err)
	}
	return nil
}

// Applied lists applied migration versions oldest first.
func (db *DB) Applied(ctx context.Context) ([]string, error) {
	if _, err := db.ExecContext(ctx, createMigrationsTable); err != nil {
		return nil, fmt.Errorf("creating migrations table: %w", err)
	}
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("listing applied migrations: %w", err)
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("listing applied migrations: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// Pending lists the registered migrations not yet applied, oldest first.
func (db *DB) Pending(ctx context.Context) ([]Migration, error) {
	applied, err := db.Applied(ctx)
	if err != nil {
		return nil, err
	}
	all, err := loadMigrations()
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(all, func(m Migration) bool {
		_, found := slices.BinarySearch(applied, m.Version)
		return found
	}), nil
}

// step runs a migration body and its bookkeeping statement in one transaction.
func (db *DB) step(ctx context.Context, body, record string, args ...any) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, body); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, record, args...); err != nil {
		return err
	}
	return tx.Commit()
}

func loadMigrations() ([]Migration, error) {
	if migrationSource == nil {
		return nil, nil
	}
	files, err := fs.Glob(migrationSource, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("listing migrations: %w", err)
	}

	byVersion := make(map[string]*Migration)
	for _, file := range files {
		version, name, up, ok := parseMigrationFile(file)
		if !ok {
			continue
		}
		body, err := fs.ReadFile(migrationSource, file)
		if err != nil {
			return nil, fmt.Errorf("reading migration %s: %w", file, err)
		}
		m := byVersion[version]
		if m == nil {
			m = &Migration{Version: version, Name: name}
			byVersion[version] = m
		}
		if up {
			m.Up = string(body)
		} else {
			m.Down = string(body)
		}
	}

	out := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.Up == "" {
			return nil, fmt.Errorf("migration %s_%s has no up file", m.Version, m.Name)
		}
		out = append(out, *m)
	}
	slices.SortFunc(out, func(a, b Migration) int { return cmp.Compare(a.Version, b.Version) })
	return out, nil
}

// parseMigrationFile splits "20260301_120000_vent_devices.up.sql" into its
// version, name and direction.
func parseMigrationFile(file string) (version, name string, up, ok bool) {
	base, found := strings.CutSuffix(file, ".sql")
	if !found {
		return "", "", false, false
	}
	if b, isUp := strings.CutSuffix(base, ".up"); isUp {
		base, up = b, true
	} else if b, isDown := strings.CutSuffix(base, ".down"); isDown {
		base = b
	} else {
		return "", "", false, false
	}

	date, rest, found := strings.Cut(base, "_")
	if !found {
		return "", "", false, false
	}
	clock, name, _ := strings.Cut(rest, "_")
	if len(date) != 8 || len(clock) != 6 {
		return "", "", false, false
	}
	return date + "_" + clock, name, up, true
}
