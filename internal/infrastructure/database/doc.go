// Package database holds the SQLite store behind the vent inventory and the
// schedule rules.
//
// The pool is a single connection. WAL mode is optional and lets readers
// run beside the poll loop's writes. Schema changes live in the top-level
// migrations package, which registers its embedded files here; Migrate
// applies whatever is pending at startup.
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
