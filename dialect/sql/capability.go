package sql

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/syssam/docql/dialect"
)

// ErrInvalidPath is returned by JSONPath for path components that are not
// plain identifiers.
var ErrInvalidPath = errors.New("dialect/sql: invalid json path component")

// Point is a longitude/latitude pair.
type Point struct {
	Lng, Lat float64
}

// EditKind is the kind of an in-place JSON object edit.
type EditKind uint8

// Object edit kinds, applied in the order given to EditObject.
const (
	EditRemove    EditKind = iota // remove the key at Path
	EditSet                       // set Path to Value (JSON text)
	EditIncrement                 // add Value (number) to the number at Path
	EditMerge                     // merge Value (JSON object text) into the object
)

// ObjectEdit is one step of an in-place JSON object edit.
type ObjectEdit struct {
	Kind  EditKind
	Path  []string
	Value any
}

// Capabilities is the small set of dialect specific renderings shared by
// the query and update compilers. Every method writes through the builder,
// so each identifier or value consumes exactly one slot.
type Capabilities interface {
	// Name returns the dialect name.
	Name() string
	// Quote quotes an already validated identifier.
	Quote(ident string) string
	// Placeholder returns the bind placeholder for the n-th argument (1-based).
	Placeholder(n int) string
	// Numbered reports whether placeholders are numbered and may be reused.
	Numbered() bool

	// JSONPath writes a text extraction of path inside column. It consumes
	// no slot; column and path components are validated instead.
	JSONPath(b *Builder, column string, path []string) error
	// Contains writes a containment test of the JSON document doc in the
	// JSON array field.
	Contains(b *Builder, field, doc string)
	// JSONEqual writes an equality test between field and a JSON document.
	JSONEqual(b *Builder, field, doc string)
	// Regex writes a regular expression match.
	Regex(b *Builder, field, pattern string, insensitive bool)
	// TextSearch writes a full text match.
	TextSearch(b *Builder, field, term, language string)
	// Distance writes the great circle distance in meters between the
	// geo point field and p.
	Distance(b *Builder, field string, p Point)
	// WithinBox writes a bounding box containment test.
	WithinBox(b *Builder, field string, sw, ne Point)
	// WithinPolygon writes a polygon containment test for a closed ring.
	WithinPolygon(b *Builder, field string, ring []Point)
	// PointEqual writes a geo point equality test.
	PointEqual(b *Builder, field string, p Point)
	// TimeValue formats a date value for comparisons and assignments.
	TimeValue(t time.Time) string
	// Timestamp formats the native timestamp of reserved timestamp columns.
	Timestamp(t time.Time) string

	// JSONValue writes a value slot holding a JSON document.
	JSONValue(b *Builder, doc string)
	// ArrayAppend writes field's array, or an empty one, with doc's elements appended.
	ArrayAppend(b *Builder, field, doc string)
	// ArrayRemove writes field's array without any element equal to an element of doc.
	ArrayRemove(b *Builder, field, doc string)
	// ArrayAddUnique writes field's array merged with doc's elements not yet present.
	ArrayAddUnique(b *Builder, field, doc string)
	// EditObject writes field's object, or an empty one, with edits applied
	// in order.
	EditObject(b *Builder, field string, edits []ObjectEdit)
}

// CapabilitiesFor returns the capabilities of the named dialect.
func CapabilitiesFor(name string) (Capabilities, error) {
	switch name {
	case dialect.MySQL:
		return MySQL(), nil
	case dialect.Postgres:
		return Postgres(), nil
	}
	return nil, fmt.Errorf("dialect/sql: unsupported dialect %q", name)
}

// editChain writes a left-to-right composition of edits: openers for the
// outermost edit first, then the base, then each edit's arguments.
func editChain(b *Builder, edits []ObjectEdit, open func(ObjectEdit) string, base func(), tail func(ObjectEdit)) {
	for i := len(edits) - 1; i >= 0; i-- {
		b.WriteString(open(edits[i]))
	}
	base()
	for _, e := range edits {
		tail(e)
	}
}

func checkPath(column string, path []string) error {
	if !isValidColumn(column) {
		return fmt.Errorf("%w: %q", ErrInvalidPath, column)
	}
	if len(path) == 0 {
		return fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	for _, p := range path {
		if !isValidColumn(p) {
			return fmt.Errorf("%w: %q", ErrInvalidPath, p)
		}
	}
	return nil
}

func pointList(ring []Point, format func(Point) string) string {
	parts := make([]string, len(ring))
	for i, p := range ring {
		parts[i] = format(p)
	}
	return strings.Join(parts, ", ")
}
