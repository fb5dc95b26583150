package automation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/venthub/internal/device"
)

type groupCall struct {
	TargetType string
	Target     string
	Angle      int
}

// recordingGroups records every group command and fails targets listed in fail.
type recordingGroups struct {
	mu    sync.Mutex
	calls []groupCall
	fail  map[string]bool
}

func (g *recordingGroups) Set(_ context.Context, targetType, target string, angle int) ([]device.Device, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, groupCall{targetType, target, angle})
	if g.fail[target] {
		return nil, errors.New("mesh unreachable")
	}
	return []device.Device{{ID: "a"}}, nil
}

func (g *recordingGroups) Calls() []groupCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]groupCall(nil), g.calls...)
}

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 1, hour, minute, 0, 0, time.UTC)
}

func TestCheckRules_ExactMinuteMatch(t *testing.T) {
	groups := &recordingGroups{}
	s := NewScheduler(groups)
	ctx := context.Background()
	require.NoError(t, s.AddRule(ctx, Rule{
		Name: "morning", Hour: 8, Minute: 0, TargetType: TargetRoom, Target: "bedroom", Angle: 135, Enabled: true,
	}))

	assert.Equal(t, 1, s.CheckRules(ctx, at(8, 0)))
	assert.Equal(t, []groupCall{{TargetRoom, "bedroom", 135}}, groups.Calls())

	assert.Equal(t, 0, s.CheckRules(ctx, at(8, 1)))
	assert.Len(t, groups.Calls(), 1)
}

func TestCheckRules_SkipsDisabled(t *testing.T) {
	groups := &recordingGroups{}
	s := NewScheduler(groups)
	ctx := context.Background()
	require.NoError(t, s.AddRule(ctx, Rule{Name: "off", Hour: 8, TargetType: TargetAll, Angle: 90}))

	assert.Equal(t, 0, s.CheckRules(ctx, at(8, 0)))
	assert.Empty(t, groups.Calls())

	require.NoError(t, s.SetEnabled(ctx, "off", true))
	assert.Equal(t, 1, s.CheckRules(ctx, at(8, 0)))
}

func TestCheckRules_FailureCountsAndContinues(t *testing.T) {
	groups := &recordingGroups{fail: map[string]bool{"attic": true}}
	s := NewScheduler(groups)
	ctx := context.Background()
	require.NoError(t, s.AddRule(ctx, Rule{Name: "a-attic", Hour: 22, Minute: 30, TargetType: TargetRoom, Target: "attic", Angle: 90, Enabled: true}))
	require.NoError(t, s.AddRule(ctx, Rule{Name: "b-ground", Hour: 22, Minute: 30, TargetType: TargetFloor, Target: "ground", Angle: 90, Enabled: true}))

	assert.Equal(t, 2, s.CheckRules(ctx, at(22, 30)))
	assert.Equal(t, []groupCall{
		{TargetRoom, "attic", 90},
		{TargetFloor, "ground", 90},
	}, groups.Calls())
}

func TestScheduler_RuleManagement(t *testing.T) {
	s := NewScheduler(&recordingGroups{})
	ctx := context.Background()

	rule := Rule{Name: "night", Hour: 23, TargetType: TargetAll, Angle: 90, Enabled: true}
	require.NoError(t, s.AddRule(ctx, rule))
	assert.ErrorIs(t, s.AddRule(ctx, rule), ErrRuleExists)
	assert.ErrorIs(t, s.AddRule(ctx, Rule{Name: "bad", TargetType: "zone"}), ErrInvalidRule)

	got, ok := s.Rule("night")
	require.True(t, ok)
	assert.Equal(t, "23:00", got.TimeOfDay())

	require.NoError(t, s.AddRule(ctx, Rule{Name: "dawn", Hour: 6, TargetType: TargetAll, Angle: 180}))
	names := []string{}
	for _, r := range s.Rules() {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"dawn", "night"}, names)

	require.NoError(t, s.RemoveRule(ctx, "night"))
	assert.ErrorIs(t, s.RemoveRule(ctx, "night"), ErrRuleNotFound)
	assert.ErrorIs(t, s.SetEnabled(ctx, "night", true), ErrRuleNotFound)
}

// steppingClock returns successive minutes on each call.
type steppingClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.t
	c.t = c.t.Add(30 * time.Second)
	return now
}

func TestRun_TicksUntilStopped(t *testing.T) {
	groups := &recordingGroups{}
	s := NewScheduler(groups)
	ctx := context.Background()
	require.NoError(t, s.AddRule(ctx, Rule{Name: "r", Hour: 8, Minute: 0, TargetType: TargetAll, Angle: 150, Enabled: true}))

	clock := &steppingClock{t: at(8, 0)}
	s.SetClock(clock.Now)
	s.SetTickInterval(5 * time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return len(groups.Calls()) > 0 }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, s.Run(ctx), ErrAlreadyRunning)

	s.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("run loop did not stop")
	}
	assert.False(t, s.Running())

	// 08:00 and 08:00:30 truncate to the same minute: one execution.
	assert.Len(t, groups.Calls(), 1)
}

func TestRun_ChecksOnStart(t *testing.T) {
	groups := &recordingGroups{}
	s := NewScheduler(groups)
	ctx := context.Background()
	require.NoError(t, s.AddRule(ctx, Rule{Name: "r", Hour: 8, TargetType: TargetAll, Angle: 150, Enabled: true}))

	s.SetClock(func() time.Time { return at(8, 0).Add(10 * time.Second) })
	s.SetTickInterval(time.Hour)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.Run(runCtx) //nolint:errcheck // cancelled below

	require.Eventually(t, func() bool { return len(groups.Calls()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []groupCall{{TargetAll, "", 150}}, groups.Calls())
}

func TestRun_ContextCancel(t *testing.T) {
	s := NewScheduler(&recordingGroups{})
	s.SetTickInterval(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, s.Running, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("run loop ignored cancellation")
	}
}

func TestRun_UsesLocation(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	groups := &recordingGroups{}
	s := NewScheduler(groups)
	ctx := context.Background()
	require.NoError(t, s.AddRule(ctx, Rule{Name: "r", Hour: 7, TargetType: TargetAll, Angle: 120, Enabled: true}))

	// 12:00 UTC on 1 March is 07:00 in New York.
	s.SetClock(func() time.Time { return at(12, 0) })
	s.SetLocation(loc)
	s.SetTickInterval(5 * time.Millisecond)

	go s.Run(ctx) //nolint:errcheck // stopped below
	defer s.Stop()

	require.Eventually(t, func() bool { return len(groups.Calls()) == 1 }, time.Second, 5*time.Millisecond)
}
