/*
Package migrate applies forward-only schema migrations and tracks them in a
ledger kept by the target database.

A Runner moves through NotChecked, DatabaseEnsured, Migrating and UpToDate,
or ends in Failed when a step fails:

	steps, _ := migrate.FromFS(migrations.FS, "postgres")
	r, err := migrate.NewRunner(ledger, steps,
		migrate.WithCreator(creator), migrate.WithLogger(logger))
	if _, err := r.EnsureDatabaseExists(ctx); err != nil {
		return err
	}
	res, err := r.MigrateUp(ctx)

Steps run one at a time in ascending version order and each is committed to
the ledger before the next starts. A failed step stops the run; earlier
steps are not rolled back.
*/
package migrate
