// Package docql compiles JSON-shaped, Mongo-like query and update documents
// into parameterized SQL fragments.
//
// The compilers live in sub-packages:
//
//   - query: query document -> WHERE fragment
//   - update: update document -> SET fragment
//   - schema: external <-> internal class schema views
//   - regex: \Q...\E literal regex dialect -> engine regex
//   - dialect/sql: fragment builder, dialect capabilities, driver glue and
//     the backend error normalizer
//   - store: thin statement composition on top of the compilers
//
// # Fragments
//
// A compiled fragment carries SQL text made only of typed slots, and the
// ordered values bound to them:
//
//	f, err := query.Compile(sql.MySQL(), cls, map[string]any{
//	    "$or": []any{map[string]any{"a": 1.0}, map[string]any{"b": 2.0}},
//	}, 1)
//	f.Text()   // ($1:name = $2 OR $3:name = $4)
//	f.Values() // [a 1 b 2]
//
// Identifier slots ($n:name) and value slots ($n) each consume one index.
// sql.Statement renders fragments into statements for database/sql.
//
// # Errors
//
// Compilation errors are *ValidationError, *UnsupportedShapeError and
// *NestedKeyError. Database errors are normalized into *BackendError with a
// Kind:
//
//	if docql.IsDuplicateValue(err) {
//	    // unique index violated
//	}
package docql

import "sort"

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
