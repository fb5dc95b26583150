package automation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/venthub/internal/device"
	"github.com/nerrad567/venthub/internal/infrastructure/metrics"
)

// DefaultTickInterval is how often the run loop evaluates rules.
const DefaultTickInterval = 60 * time.Second

// GroupCommander executes a rule's group command.
// *group.Manager satisfies it.
type GroupCommander interface {
	Set(ctx context.Context, targetType, target string, angle int) ([]device.Device, error)
}

// Scheduler holds the rule set and runs it once per tick.
//
// Thread Safety: all methods are safe for concurrent use. Rules execute
// sequentially within a tick.
type Scheduler struct {
	groups GroupCommander
	repo   Repository
	logger device.Logger

	mu    sync.RWMutex
	rules map[string]Rule

	running  atomic.Bool
	tick     time.Duration
	loc      *time.Location
	now      func() time.Time
	lastTick time.Time
}

// NewScheduler creates a scheduler with no rules. It evaluates rules in UTC
// every DefaultTickInterval until told otherwise.
func NewScheduler(groups GroupCommander) *Scheduler {
	return &Scheduler{
		groups: groups,
		logger: device.NoopLogger{},
		rules:  make(map[string]Rule),
		tick:   DefaultTickInterval,
		loc:    time.UTC,
		now:    time.Now,
	}
}

// SetRepository enables persistence. Call Load afterwards to read the
// stored rules.
func (s *Scheduler) SetRepository(repo Repository) { s.repo = repo }

// SetLogger sets the logger for the scheduler.
func (s *Scheduler) SetLogger(logger device.Logger) { s.logger = logger }

// SetLocation sets the time zone rule times are written in.
func (s *Scheduler) SetLocation(loc *time.Location) {
	if loc != nil {
		s.loc = loc
	}
}

// SetTickInterval changes the run loop period. Non-positive values are ignored.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	if d > 0 {
		s.tick = d
	}
}

// SetClock overrides the time source used by the run loop.
func (s *Scheduler) SetClock(now func() time.Time) { s.now = now }

// Load replaces the in-memory rule set with the stored rules.
func (s *Scheduler) Load(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	stored, err := s.repo.List(ctx)
	if err != nil {
		return err
	}
	rules := make(map[string]Rule, len(stored))
	for _, r := range stored {
		rules[r.Name] = r
	}
	s.mu.Lock()
	s.rules = rules
	s.mu.Unlock()
	s.logger.Info("schedule rules loaded", "count", len(rules))
	return nil
}

// AddRule validates and stores a new rule.
//
// Returns:
//   - ErrInvalidRule if validation fails
//   - ErrRuleExists if the name is already taken
//   - a wrapped storage error if persistence fails
func (s *Scheduler) AddRule(ctx context.Context, r Rule) error {
	if err := ValidateRule(&r); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[r.Name]; ok {
		return fmt.Errorf("%w: %q", ErrRuleExists, r.Name)
	}
	if s.repo != nil {
		if err := s.repo.Save(ctx, r); err != nil {
			return err
		}
	}
	s.rules[r.Name] = r
	s.logger.Info("schedule rule added", "rule", r.Name, "time", r.TimeOfDay(),
		"target_type", r.TargetType, "target", r.Target, "angle", r.Angle)
	return nil
}

// RemoveRule deletes a rule by name.
func (s *Scheduler) RemoveRule(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[name]; !ok {
		return ErrRuleNotFound
	}
	if s.repo != nil {
		if err := s.repo.Delete(ctx, name); err != nil && !errors.Is(err, ErrRuleNotFound) {
			return err
		}
	}
	delete(s.rules, name)
	s.logger.Info("schedule rule removed", "rule", name)
	return nil
}

// SetEnabled switches a rule on or off.
func (s *Scheduler) SetEnabled(ctx context.Context, name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[name]
	if !ok {
		return ErrRuleNotFound
	}
	r.Enabled = enabled
	if s.repo != nil {
		if err := s.repo.Save(ctx, r); err != nil {
			return err
		}
	}
	s.rules[name] = r
	return nil
}

// Rule returns a rule by name.
func (s *Scheduler) Rule(name string) (Rule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rules[name]
	return r, ok
}

// Rules returns every rule ordered by name.
func (s *Scheduler) Rules() []Rule {
	s.mu.RLock()
	rules := make([]Rule, 0, len(s.rules))
	for _, r := range s.rules {
		rules = append(rules, r)
	}
	s.mu.RUnlock()

	sort.Slice(rules, func(i, j int) bool { return rules[i].Name < rules[j].Name })
	return rules
}

// CheckRules runs every enabled rule whose time equals t's hour and minute,
// one after another in name order. A failing rule is logged and does not
// stop the rest. The return value counts rules attempted, failed or not.
func (s *Scheduler) CheckRules(ctx context.Context, t time.Time) int {
	hour, minute := t.Hour(), t.Minute()

	executed := 0
	for _, r := range s.Rules() {
		if !r.Matches(hour, minute) {
			continue
		}
		executed++

		updated, err := s.groups.Set(ctx, r.TargetType, r.Target, r.Angle)
		metrics.IncRuleRun(err == nil)
		if err != nil {
			s.logger.Error("schedule rule failed", "rule", r.Name, "error", err)
			continue
		}
		s.logger.Info("schedule rule executed", "rule", r.Name,
			"target_type", r.TargetType, "target", r.Target, "angle", r.Angle, "updated", len(updated))
	}
	return executed
}

// Run evaluates rules on start and then once per tick until Stop is called
// or ctx ends. Stop is observed at the next tick; a tick already in
// progress finishes. Each wall-clock minute is evaluated at most once.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)

	s.logger.Info("scheduler started", "tick", s.tick.String(), "rules", len(s.Rules()))
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for s.running.Load() {
		s.checkMinute(ctx)

		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped", "reason", "context cancelled")
			return ctx.Err()
		case <-ticker.C:
		}
	}

	s.logger.Info("scheduler stopped", "reason", "stop requested")
	return nil
}

// Stop asks the run loop to exit at its next tick.
func (s *Scheduler) Stop() {
	s.running.Store(false)
}

// Running reports whether the run loop is active.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// checkMinute runs CheckRules unless the current minute was already checked.
func (s *Scheduler) checkMinute(ctx context.Context) {
	now := s.now().In(s.loc).Truncate(time.Minute)
	if now.Equal(s.lastTick) {
		return
	}
	s.lastTick = now
	s.CheckRules(ctx, now)
}
