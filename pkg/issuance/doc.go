/*
Package issuance records every certificate minted for the downstream leg.

Each Record ties an issued leaf (serial, subject, validity) to the upstream
peer it was minted for and the connection that triggered it. Records are kept
in a Store: in memory, or in SQLite through either the pure-Go modernc driver
("sqlite") or the cgo mattn driver ("sqlite3").

A Pruner deletes records older than the retention period and a Scheduler runs
it on a cron schedule:

	store, _ := issuance.NewSQLiteStore(&issuance.SQLiteConfig{Path: "data/issued.db"})
	pruner := issuance.NewPruner(store, &issuance.RetentionConfig{
		Retention:     30 * 24 * time.Hour,
		PruneSchedule: "0 3 * * *",
	})
	_ = pruner.Scheduler().Start(ctx)
*/
package issuance
