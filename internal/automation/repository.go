package automation

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Repository persists schedule rules so that rules added at runtime survive
// a restart.
type Repository interface {
	List(ctx context.Context) ([]Rule, error)
	Save(ctx context.Context, r Rule) error
	Delete(ctx context.Context, name string) error
}

const ruleColumns = `name, hour, minute, target_type, target, angle, enabled`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a new SQLite-backed rule repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// List returns every stored rule ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Rule, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+ruleColumns+` FROM schedule_rules ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying rules: %w", err)
	}
	defer rows.Close()

	rules := make([]Rule, 0)
	for rows.Next() {
		var rule Rule
		var enabled int
		if err := rows.Scan(&rule.Name, &rule.Hour, &rule.Minute, &rule.TargetType, &rule.Target, &rule.Angle, &enabled); err != nil {
			return nil, fmt.Errorf("scanning rule: %w", err)
		}
		rule.Enabled = enabled != 0
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rules: %w", err)
	}
	return rules, nil
}

// Save inserts or replaces a rule.
func (r *SQLiteRepository) Save(ctx context.Context, rule Rule) error {
	now := r.now().UTC().Format(time.RFC3339)
	enabled := 0
	if rule.Enabled {
		enabled = 1
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO schedule_rules (`+ruleColumns+`, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			hour = excluded.hour,
			minute = excluded.minute,
			target_type = excluded.target_type,
			target = excluded.target,
			angle = excluded.angle,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at`,
		rule.Name, rule.Hour, rule.Minute, rule.TargetType, rule.Target, rule.Angle, enabled, now, now)
	if err != nil {
		return fmt.Errorf("saving rule %q: %w", rule.Name, err)
	}
	return nil
}

// Delete removes a rule by name, or returns ErrRuleNotFound.
func (r *SQLiteRepository) Delete(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM schedule_rules WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("deleting rule %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrRuleNotFound
	}
	return nil
}
