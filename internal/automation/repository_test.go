package automation

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/venthub/internal/infrastructure/database"
	_ "github.com/nerrad567/venthub/migrations"
)

func setupTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "hub.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	require.NoError(t, db.Migrate(ctx))
	return NewSQLiteRepository(db.DB)
}

func TestSQLiteRepository_SaveListDelete(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, Rule{Name: "night", Hour: 23, TargetType: TargetAll, Angle: 90, Enabled: true}))
	require.NoError(t, repo.Save(ctx, Rule{Name: "dawn", Hour: 6, Minute: 15, TargetType: TargetFloor, Target: "1", Angle: 180}))

	rules, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, Rule{Name: "dawn", Hour: 6, Minute: 15, TargetType: TargetFloor, Target: "1", Angle: 180}, rules[0])
	assert.True(t, rules[1].Enabled)

	// Save replaces.
	require.NoError(t, repo.Save(ctx, Rule{Name: "dawn", Hour: 6, Minute: 30, TargetType: TargetFloor, Target: "1", Angle: 150, Enabled: true}))
	rules, err = repo.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, 30, rules[0].Minute)
	assert.True(t, rules[0].Enabled)

	require.NoError(t, repo.Delete(ctx, "dawn"))
	assert.ErrorIs(t, repo.Delete(ctx, "dawn"), ErrRuleNotFound)
}

func TestScheduler_PersistsAndLoads(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	s := NewScheduler(&recordingGroups{})
	s.SetRepository(repo)
	require.NoError(t, s.AddRule(ctx, Rule{Name: "r", Hour: 9, TargetType: TargetAll, Angle: 120, Enabled: true}))

	restarted := NewScheduler(&recordingGroups{})
	restarted.SetRepository(repo)
	require.NoError(t, restarted.Load(ctx))
	got, ok := restarted.Rule("r")
	require.True(t, ok)
	assert.Equal(t, 120, got.Angle)

	require.NoError(t, restarted.RemoveRule(ctx, "r"))
	rules, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestScheduler_SaveFailureKeepsMemoryUnchanged(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO schedule_rules").WillReturnError(errors.New("disk full"))

	s := NewScheduler(&recordingGroups{})
	s.SetRepository(NewSQLiteRepository(db))
	err = s.AddRule(context.Background(), Rule{Name: "r", TargetType: TargetAll, Angle: 90})
	assert.Error(t, err)
	assert.Empty(t, s.Rules())
	assert.NoError(t, mock.ExpectationsWereMet())
}
