// Package database handles database connections for the sync state tables.
//
// It provides a wrapper around GORM (Go Object Relational Mapping) to
// configure MySQL or sqlite connections based on the application's
// configuration.
//
// # Connect
//
// The Connect function establishes a connection with sane pool settings and
// verifies it with a ping. MySQL is the production engine; sqlite serves
// local and single-host deployments.
//
// # Migrate
//
// Migrate applies the schema for the given models via GORM auto-migration.
// The process entry point passes state.Models() so the mapping, cursor and
// run log tables exist before the first run.
//
// # Usage
//
//	db, err := database.Connect(cfg.Database)
//	if err != nil {
//	    log.Fatal("Database connection failed", err)
//	}
//	if err := database.Migrate(db, state.Models()...); err != nil {
//	    log.Fatal("Migration failed", err)
//	}
package database
