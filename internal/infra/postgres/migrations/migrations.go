// Package migrations holds the Postgres schema. Each file registers one migration;
// bun names it after the file.
package migrations

import "github.com/uptrace/bun/migrate"

var Migrations = migrate.NewMigrations()
