// Package sql provides the fragment builder shared by the query and update
// compilers, the MySQL and PostgreSQL capabilities, and the database/sql
// driver glue used to execute rendered statements.
//
// # Builder
//
// A Builder accumulates typed tokens. Fixed SQL text is written with
// WriteString; identifiers and values only ever enter through slots, each
// consuming the next placeholder index:
//
//	b := sql.NewBuilder(1)
//	b.Emit("%n = %v", "score", 10.0)
//	b.Fragment().Text()   // $1:name = $2
//	b.Fragment().Values() // [score 10]
//
// Child builders start at the parent's current index and are appended
// back in order, which is how recursive compilation threads the index.
//
// # Capabilities
//
// Dialect differences (JSON containment, JSON merge, array removal, geo
// functions, regex and full text operators) are expressed by the
// Capabilities interface:
//
//	caps, err := sql.CapabilitiesFor(dialect.Postgres)
//	caps.Contains(b, "tags", `["red"]`) // $n:name @> $m::jsonb
//
// # Rendering
//
// A Statement composes fragments with fixed text and renders them for a
// dialect. Identifier slots are validated and quoted, value slots become
// "?" (MySQL) or "$k" (PostgreSQL) placeholders:
//
//	query, args, err := sql.NewStatement().
//	    WriteString("SELECT * FROM ").Table("GameScore").
//	    WriteString(" WHERE ").Fragment(where).
//	    Render(sql.MySQL())
//
// # Errors
//
// Driver errors are wrapped with the "dialect/sql:" prefix and keep the
// original error in the chain. Normalize classifies them into docql kinds
// and IgnoreOnRead swallows NotFound on read paths.
package sql
