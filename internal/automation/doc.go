// Package automation runs time-of-day rules against vent groups.
//
// A Rule names a target (all vents, one room or one floor), an angle and an
// HH:MM time in the site's time zone. The Scheduler checks the rule set once
// per tick, sixty seconds by default, and hands every match to the group
// manager in sequence.
//
// Rules come from two places: the configuration file, seeded at startup,
// and the HTTP API. With a Repository set, rules added at runtime are kept
// in SQLite and reloaded by Load.
//
// Usage:
//
//	sched := automation.NewScheduler(groups)
//	sched.SetRepository(automation.NewSQLiteRepository(db.DB))
//	if err := sched.Load(ctx); err != nil {
//	    return err
//	}
//	go sched.Run(ctx)
//	defer sched.Stop()
package automation
