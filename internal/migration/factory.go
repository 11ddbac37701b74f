package migration

import "fmt"

// NewMigratorFromPath creates a migrator over the SQLite file at path,
// as named by config.MetricsConfig.DatabasePath.
func NewMigratorFromPath(path string) (*DefaultMigrator, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	return NewMigrator(&Config{
		DatabaseURL: BuildDatabaseURL(path),
		TableName:   "schema_migrations",
	})
}

// NewMigratorFromURL creates a migrator from an explicit golang-migrate DSN,
// for operators who want to point at a path outside the loaded config.
func NewMigratorFromURL(dbURL string) (*DefaultMigrator, error) {
	return NewMigrator(&Config{
		DatabaseURL: dbURL,
		TableName:   "schema_migrations",
	})
}
