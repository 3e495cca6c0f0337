package migrations

import "github.com/uptrace/bun/migrate"

// Migrations is applied by the migrate command and by integration tests.
var Migrations = migrate.NewMigrations()
