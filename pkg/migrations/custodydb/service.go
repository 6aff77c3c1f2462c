// Package custodydb holds all the migrations for the custody database
package custodydb

import (
	"github.com/uptrace/bun/migrate"
)

// Migrations is the collection of all migrations for the custody database
var Migrations = migrate.NewMigrations()
