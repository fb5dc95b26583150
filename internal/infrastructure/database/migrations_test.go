package database

import (
	"context"
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ventMigrations = fstest.MapFS{
	"20260101_000000_create_vents.up.sql":   {Data: []byte("CREATE TABLE vents (id TEXT PRIMARY KEY);")},
	"20260101_000000_create_vents.down.sql": {Data: []byte("DROP TABLE vents;")},
	"20260102_000000_add_room.up.sql":       {Data: []byte("ALTER TABLE vents ADD COLUMN room TEXT NOT NULL DEFAULT '';")},
	"README.md":                             {Data: []byte("ignored")},
}

func registerForTest(t *testing.T, fsys fs.FS) {
	t.Helper()
	orig := migrationSource
	t.Cleanup(func() { migrationSource = orig })
	RegisterMigrations(fsys)
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var count int
	require.NoError(t, db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&count))
	return count == 1
}

func TestMigrate(t *testing.T) {
	registerForTest(t, ventMigrations)
	db := openTestDB(t)
	ctx := context.Background()

	pending, err := db.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "create_vents", pending[0].Name)

	require.NoError(t, db.Migrate(ctx))
	assert.True(t, tableExists(t, db, "vents"))

	applied, err := db.Applied(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"20260101_000000", "20260102_000000"}, applied)

	pending, err = db.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// Running again applies nothing.
	require.NoError(t, db.Migrate(ctx))
}

func TestMigrate_FailedStepKeepsEarlierSteps(t *testing.T) {
	registerForTest(t, fstest.MapFS{
		"20260101_000000_create_vents.up.sql": {Data: []byte("CREATE TABLE vents (id TEXT PRIMARY KEY);")},
		"20260102_000000_broken.up.sql":       {Data: []byte("ALTER TABLE missing ADD COLUMN x TEXT;")},
	})
	db := openTestDB(t)
	ctx := context.Background()

	err := db.Migrate(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "20260102_000000_broken")

	applied, err := db.Applied(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"20260101_000000"}, applied)
}

func TestMigrate_DownWithoutUp(t *testing.T) {
	registerForTest(t, fstest.MapFS{
		"20260101_000000_orphan.down.sql": {Data: []byte("DROP TABLE vents;")},
	})
	db := openTestDB(t)
	assert.Error(t, db.Migrate(context.Background()))
}

func TestRollback(t *testing.T) {
	registerForTest(t, ventMigrations)
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Migrate(ctx))

	// add_room has no down file.
	assert.Error(t, db.Rollback(ctx))

	_, err := db.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = '20260102_000000'")
	require.NoError(t, err)

	require.NoError(t, db.Rollback(ctx))
	assert.False(t, tableExists(t, db, "vents"))

	applied, err := db.Applied(ctx)
	require.NoError(t, err)
	assert.Empty(t, applied)
}

func TestMigrate_NothingRegistered(t *testing.T) {
	registerForTest(t, fstest.MapFS{})
	db := openTestDB(t)
	assert.NoError(t, db.Migrate(context.Background()))
	assert.NoError(t, db.Rollback(context.Background()))
}

func TestParseMigrationFile(t *testing.T) {
	tests := []struct {
		file    string
		version string
		name    string
		up      bool
		ok      bool
	}{
		{"20260301_120000_vent_devices.up.sql", "20260301_120000", "vent_devices", true, true},
		{"20260301_120000_vent_devices.down.sql", "20260301_120000", "vent_devices", false, true},
		{"20260301_120000_vent_devices.sql", "", "", false, false},
		{"README.md", "", "", false, false},
		{"nounderscore.up.sql", "", "", false, false},
		{"2026_1200_short.up.sql", "", "", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			version, name, up, ok := parseMigrationFile(tt.file)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.version, version)
			assert.Equal(t, tt.name, name)
			assert.Equal(t, tt.up, up)
		})
	}
}
