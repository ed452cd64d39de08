// Package migrations registers the database schema migrations applied by
// `fleetgate db migrate`.
package migrations

import "github.com/uptrace/bun/migrate"

// Migrations is the registry all migration files attach to via init().
var Migrations = migrate.NewMigrations()
