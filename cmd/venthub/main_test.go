package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/venthub/internal/automation"
	"github.com/nerrad567/venthub/internal/infrastructure/config"
	"github.com/nerrad567/venthub/internal/infrastructure/database"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	t.Setenv("VENTHUB_CONFIG", path)
	return path
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("VENTHUB_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	assert.Error(t, run(ctx))
}

func TestRun_MissingDatabasePath(t *testing.T) {
	writeConfig(t, `
site:
  id: test-site
database:
  path: ""
api:
  enabled: false
`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	assert.Error(t, run(ctx))
}

func TestRun_BadRuleTime(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "hub.db")
	writeConfig(t, `
site:
  id: test-site
database:
  path: "`+dbPath+`"
discovery:
  otbr_url: "http://127.0.0.1:1"
  timeout: 1
api:
  enabled: false
logging:
  level: error
  format: text
scheduler:
  rules:
    - name: broken
      time: "7am"
      target_type: all
      angle: 90
`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, automation.ErrInvalidTime)
}

func TestRun_StartsAndStopsCleanly(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "hub.db")
	writeConfig(t, `
site:
  id: test-site
  timezone: Europe/London
database:
  path: "`+dbPath+`"
  wal_mode: true
  busy_timeout: 5
discovery:
  otbr_url: "http://127.0.0.1:1"
  timeout: 1
api:
  enabled: false
logging:
  level: error
  format: text
scheduler:
  rules:
    - name: morning
      time: "07:30"
      target_type: room
      target: bedroom
      angle: 135
`)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	require.NoError(t, run(ctx))

	db, err := database.Open(context.Background(), database.Config{Path: dbPath, BusyTimeout: 5})
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck // test cleanup

	rules, err := automation.NewSQLiteRepository(db.DB).List(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "morning", rules[0].Name)
	assert.Equal(t, 7, rules[0].Hour)
	assert.Equal(t, 30, rules[0].Minute)

	// A second start keeps the stored rule rather than failing on it.
	ctx2, cancel2 := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel2()
	require.NoError(t, run(ctx2))
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("VENTHUB_CONFIG", "")
	assert.Equal(t, defaultConfigPath, getConfigPath())

	t.Setenv("VENTHUB_CONFIG", "/custom/path/config.yaml")
	assert.Equal(t, "/custom/path/config.yaml", getConfigPath())
}

func TestSeedRules(t *testing.T) {
	sched := automation.NewScheduler(nil)
	disabled := false
	rules := []config.RuleConfig{
		{Name: "morning", Time: "07:30", TargetType: "all", Angle: 180},
		{Name: "night", Time: "22:00", TargetType: "floor", Target: "1", Angle: 90, Enabled: &disabled},
	}

	require.NoError(t, seedRules(context.Background(), sched, rules))
	require.NoError(t, seedRules(context.Background(), sched, rules))
	require.Len(t, sched.Rules(), 2)

	night, ok := sched.Rule("night")
	require.True(t, ok)
	assert.False(t, night.Enabled)
	assert.Equal(t, 22, night.Hour)

	err := seedRules(context.Background(), sched, []config.RuleConfig{{Name: "x", Time: "24:00", TargetType: "all"}})
	assert.ErrorIs(t, err, automation.ErrInvalidTime)
}

func TestHubConfig(t *testing.T) {
	cfg := &config.Config{
		Site:      config.SiteConfig{ID: "flat-3", Name: "Flat 3", Timezone: "Europe/London"},
		Polling:   config.PollingConfig{Interval: 15},
		Discovery: config.DiscoveryConfig{Interval: 120},
		Groups:    config.GroupsConfig{MaxConcurrency: 4},
		Scheduler: config.SchedulerConfig{Enabled: false, TickInterval: 30},
	}

	hc := hubConfig(cfg)
	assert.Equal(t, "flat-3", hc.SiteID)
	assert.Equal(t, "Flat 3", hc.SiteName)
	assert.Equal(t, 15*time.Second, hc.PollInterval)
	assert.Equal(t, 2*time.Minute, hc.DiscoveryInterval)
	assert.Equal(t, 30*time.Second, hc.TickInterval)
	assert.Equal(t, 4, hc.GroupConcurrency)
	assert.True(t, hc.SchedulerDisabled)
	assert.Equal(t, "Europe/London", hc.Location.String())
}
