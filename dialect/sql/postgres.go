package sql

import (
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/syssam/docql/dialect"
)

type postgresCapabilities struct{}

// Postgres returns the PostgreSQL capabilities: jsonb operators for arrays
// and objects, POINT columns and PostGIS distance functions.
func Postgres() Capabilities { return postgresCapabilities{} }

func (postgresCapabilities) Name() string { return dialect.Postgres }

func (postgresCapabilities) Quote(ident string) string { return `"` + ident + `"` }

func (postgresCapabilities) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (postgresCapabilities) Numbered() bool { return true }

func (postgresCapabilities) JSONPath(b *Builder, column string, path []string) error {
	if err := checkPath(column, path); err != nil {
		return err
	}
	b.WriteString(`"` + column + `"#>>'{` + strings.Join(path, ",") + `}'`)
	return nil
}

func (postgresCapabilities) Contains(b *Builder, field, doc string) {
	b.Emit("%n @> %v::jsonb", field, doc)
}

func (postgresCapabilities) JSONEqual(b *Builder, field, doc string) {
	b.Emit("%n = %v::jsonb", field, doc)
}

func (postgresCapabilities) Regex(b *Builder, field, pattern string, insensitive bool) {
	if insensitive {
		b.Emit("%n ~* %v", field, pattern)
		return
	}
	b.Emit("%n ~ %v", field, pattern)
}

func (postgresCapabilities) TextSearch(b *Builder, field, term, language string) {
	b.Emit("to_tsvector(%v::regconfig, %n) @@ to_tsquery(%v::regconfig, %v)", language, field, language, term)
}

func (postgresCapabilities) Distance(b *Builder, field string, p Point) {
	b.Emit("ST_DistanceSphere(%n::geometry, POINT(%v, %v)::geometry)", field, p.Lng, p.Lat)
}

func (postgresCapabilities) WithinBox(b *Builder, field string, sw, ne Point) {
	b.Emit("%n::point <@ %v::box", field, "("+pgPoint(sw)+", "+pgPoint(ne)+")")
}

func (postgresCapabilities) WithinPolygon(b *Builder, field string, ring []Point) {
	b.Emit("%n::point <@ %v::polygon", field, "("+pointList(ring, pgPoint)+")")
}

func (postgresCapabilities) PointEqual(b *Builder, field string, p Point) {
	b.Emit("%n ~= POINT(%v, %v)", field, p.Lng, p.Lat)
}

func (postgresCapabilities) TimeValue(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

func (postgresCapabilities) Timestamp(t time.Time) string {
	return t.UTC().Format(time.DateTime)
}

func (postgresCapabilities) JSONValue(b *Builder, doc string) {
	b.Emit("%v::jsonb", doc)
}

func (postgresCapabilities) ArrayAppend(b *Builder, field, doc string) {
	b.Emit("COALESCE(%n, '[]'::jsonb) || %v::jsonb", field, doc)
}

func (postgresCapabilities) ArrayRemove(b *Builder, field, doc string) {
	b.Emit("(SELECT COALESCE(jsonb_agg(elt), '[]'::jsonb) "+
		"FROM jsonb_array_elements(COALESCE(%n, '[]'::jsonb)) AS elt "+
		"WHERE elt NOT IN (SELECT jsonb_array_elements(%v::jsonb)))", field, doc)
}

func (postgresCapabilities) ArrayAddUnique(b *Builder, field, doc string) {
	b.Emit("COALESCE(%n, '[]'::jsonb) || "+
		"(SELECT COALESCE(jsonb_agg(DISTINCT elt), '[]'::jsonb) "+
		"FROM jsonb_array_elements(%v::jsonb) AS elt "+
		"WHERE elt NOT IN (SELECT jsonb_array_elements(COALESCE(%n, '[]'::jsonb))))", field, doc, field)
}

func (postgresCapabilities) EditObject(b *Builder, field string, edits []ObjectEdit) {
	editChain(b, edits,
		func(e ObjectEdit) string {
			switch e.Kind {
			case EditSet, EditIncrement:
				return "jsonb_set("
			default:
				return "("
			}
		},
		func() { b.Emit("COALESCE(%n, '{}'::jsonb)", field) },
		func(e ObjectEdit) {
			path := pq.StringArray(e.Path)
			switch e.Kind {
			case EditRemove:
				b.Emit(" #- %v::text[])", path)
			case EditSet:
				b.Emit(", %v::text[], %v::jsonb)", path, e.Value)
			case EditIncrement:
				b.Emit(", %v::text[], to_jsonb(COALESCE((%n #>> %v::text[])::numeric, 0) + %v))", path, field, path, e.Value)
			case EditMerge:
				b.Emit(" || %v::jsonb)", e.Value)
			}
		},
	)
}

func pgPoint(p Point) string {
	return "(" + formatFloat(p.Lng) + ", " + formatFloat(p.Lat) + ")"
}
