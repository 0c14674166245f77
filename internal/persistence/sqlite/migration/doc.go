// Package migration applies the embedded SQLite schema migrations.
//
// Migration files live in the sql directory and are named
// {version}_{description}.sql (e.g. "001_create_appointments.sql"). Applied
// versions are tracked in a schema_migrations table so each file runs once.
//
// Example usage:
//
//	runner := migration.NewRunner(db, logger)
//	if err := runner.Run(ctx); err != nil {
//		return fmt.Errorf("migrate: %w", err)
//	}
package migration
