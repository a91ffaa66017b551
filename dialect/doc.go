// Package dialect provides database dialect abstraction for docql.
//
// This package defines the interfaces used to execute compiled statements,
// allowing callers to plug in any database/sql backed driver.
//
// # Supported Dialects
//
// The compilers support two dialects:
//
//   - MySQL: JSON_CONTAINS / JSON_SET / spatial functions
//   - Postgres: jsonb operators / PostGIS distance functions
//
// SQLite is recognized by the error normalizer only.
//
// # Driver Interface
//
// The package defines the Driver interface for database operations:
//
//	type Driver interface {
//	    Exec(ctx context.Context, query string, args, v any) error
//	    Query(ctx context.Context, query string, args, v any) error
//	    Close() error
//	    Dialect() string
//	}
//
// Drivers are the execution collaborator of the compilers: they must bind
// arguments in the exact order given and surface raw backend errors.
//
// # Usage
//
//	import (
//	    "github.com/syssam/docql/dialect"
//	    "github.com/syssam/docql/dialect/sql"
//	)
//
//	drv, err := sql.Open(dialect.Postgres, "postgres://...")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer drv.Close()
//
// # Sub-packages
//
//   - dialect/sql: fragment builder, dialect capabilities, driver and error normalizer
package dialect
