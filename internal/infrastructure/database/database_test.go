package database

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	return db
}

func TestOpen_CreatesNestedDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "var", "lib", "hub.db")

	db, err := Open(context.Background(), Config{Path: dbPath, WALMode: true, BusyTimeout: 5})
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck // test cleanup

	info, err := os.Stat(dbPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	var mode string
	require.NoError(t, db.QueryRowContext(context.Background(), "PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", strings.ToLower(mode))
}

func TestOpen_WithoutWAL(t *testing.T) {
	db, err := Open(context.Background(), Config{Path: filepath.Join(t.TempDir(), "hub.db")})
	require.NoError(t, err)

	var mode string
	require.NoError(t, db.QueryRowContext(context.Background(), "PRAGMA journal_mode").Scan(&mode))
	assert.NotEqual(t, "wal", strings.ToLower(mode))
	assert.NoError(t, db.Close())
}

func TestDSN(t *testing.T) {
	dsn := Config{Path: "/data/hub.db", WALMode: true, BusyTimeout: 3}.dsn()
	assert.True(t, strings.HasPrefix(dsn, "file:/data/hub.db?"))
	assert.Contains(t, dsn, "_busy_timeout=3000")
	assert.Contains(t, dsn, "_journal_mode=WAL")
	assert.Contains(t, dsn, "_foreign_keys=on")

	assert.NotContains(t, Config{Path: "hub.db"}.dsn(), "_journal_mode")
}

func TestHealthCheck(t *testing.T) {
	db := openTestDB(t)
	assert.NoError(t, db.HealthCheck(context.Background()))
}

func TestClose(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Close())
	assert.Error(t, db.HealthCheck(context.Background()))

	var zero DB
	assert.NoError(t, zero.Close())
}
