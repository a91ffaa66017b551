package sql

import (
	"strconv"
	"strings"
	"time"

	"github.com/syssam/docql/dialect"
)

type mysqlCapabilities struct{}

// MySQL returns the MySQL capabilities: JSON_CONTAINS / JSON_SET family
// functions and spatial functions on POINT columns.
func MySQL() Capabilities { return mysqlCapabilities{} }

func (mysqlCapabilities) Name() string { return dialect.MySQL }

func (mysqlCapabilities) Quote(ident string) string { return "`" + ident + "`" }

func (mysqlCapabilities) Placeholder(int) string { return "?" }

func (mysqlCapabilities) Numbered() bool { return false }

func (mysqlCapabilities) JSONPath(b *Builder, column string, path []string) error {
	if err := checkPath(column, path); err != nil {
		return err
	}
	b.WriteString("`" + column + "`->>'$." + strings.Join(path, ".") + "'")
	return nil
}

func (mysqlCapabilities) Contains(b *Builder, field, doc string) {
	b.Emit("JSON_CONTAINS(%n, %v)", field, doc)
}

func (mysqlCapabilities) JSONEqual(b *Builder, field, doc string) {
	b.Emit("%n = CAST(%v AS JSON)", field, doc)
}

func (mysqlCapabilities) Regex(b *Builder, field, pattern string, insensitive bool) {
	if insensitive {
		b.Emit("REGEXP_LIKE(%n, %v, 'i')", field, pattern)
		return
	}
	b.Emit("REGEXP_LIKE(%n, %v, 'c')", field, pattern)
}

// TextSearch ignores the language; MySQL picks the parser of the FULLTEXT index.
func (mysqlCapabilities) TextSearch(b *Builder, field, term, _ string) {
	b.Emit("MATCH (%n) AGAINST (%v IN NATURAL LANGUAGE MODE)", field, term)
}

func (mysqlCapabilities) Distance(b *Builder, field string, p Point) {
	b.Emit("ST_Distance_Sphere(%n, POINT(%v, %v))", field, p.Lng, p.Lat)
}

func (mysqlCapabilities) WithinBox(b *Builder, field string, sw, ne Point) {
	ring := []Point{sw, {ne.Lng, sw.Lat}, ne, {sw.Lng, ne.Lat}, sw}
	b.Emit("MBRContains(ST_GeomFromText(%v), %n)", wktPolygon(ring), field)
}

func (mysqlCapabilities) WithinPolygon(b *Builder, field string, ring []Point) {
	b.Emit("ST_Contains(ST_GeomFromText(%v), %n)", wktPolygon(ring), field)
}

func (mysqlCapabilities) PointEqual(b *Builder, field string, p Point) {
	b.Emit("ST_Equals(%n, POINT(%v, %v))", field, p.Lng, p.Lat)
}

func (mysqlCapabilities) TimeValue(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05.000")
}

func (mysqlCapabilities) Timestamp(t time.Time) string {
	return t.UTC().Format(time.DateTime)
}

func (mysqlCapabilities) JSONValue(b *Builder, doc string) {
	b.Emit("CAST(%v AS JSON)", doc)
}

func (mysqlCapabilities) ArrayAppend(b *Builder, field, doc string) {
	b.Emit("JSON_MERGE_PRESERVE(COALESCE(%n, JSON_ARRAY()), CAST(%v AS JSON))", field, doc)
}

func (mysqlCapabilities) ArrayRemove(b *Builder, field, doc string) {
	b.Emit("(SELECT COALESCE(JSON_ARRAYAGG(j.v), JSON_ARRAY()) "+
		"FROM JSON_TABLE(COALESCE(%n, JSON_ARRAY()), '$[*]' COLUMNS (v JSON PATH '$')) AS j "+
		"WHERE NOT (j.v MEMBER OF (CAST(%v AS JSON))))", field, doc)
}

func (mysqlCapabilities) ArrayAddUnique(b *Builder, field, doc string) {
	b.Emit("JSON_MERGE_PRESERVE(COALESCE(%n, JSON_ARRAY()), "+
		"(SELECT COALESCE(JSON_ARRAYAGG(j.v), JSON_ARRAY()) "+
		"FROM JSON_TABLE(CAST(%v AS JSON), '$[*]' COLUMNS (v JSON PATH '$')) AS j "+
		"WHERE NOT (j.v MEMBER OF (COALESCE(%n, JSON_ARRAY())))))", field, doc, field)
}

func (mysqlCapabilities) EditObject(b *Builder, field string, edits []ObjectEdit) {
	editChain(b, edits,
		func(e ObjectEdit) string {
			switch e.Kind {
			case EditRemove:
				return "JSON_REMOVE("
			case EditMerge:
				return "JSON_MERGE_PATCH("
			default:
				return "JSON_SET("
			}
		},
		func() { b.Emit("COALESCE(%n, JSON_OBJECT())", field) },
		func(e ObjectEdit) {
			path := mysqlPath(e.Path)
			switch e.Kind {
			case EditRemove:
				b.Emit(", %v)", path)
			case EditSet:
				b.Emit(", %v, CAST(%v AS JSON))", path, e.Value)
			case EditIncrement:
				b.Emit(", %v, COALESCE(JSON_EXTRACT(%n, %v), 0) + %v)", path, field, path, e.Value)
			case EditMerge:
				b.Emit(", CAST(%v AS JSON))", e.Value)
			}
		},
	)
}

// mysqlPath returns a JSON path with every member name quoted, e.g. $."a"."b".
func mysqlPath(path []string) string {
	var sb strings.Builder
	sb.WriteByte('$')
	for _, p := range path {
		sb.WriteString(`."`)
		sb.WriteString(strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(p))
		sb.WriteByte('"')
	}
	return sb.String()
}

func wktPolygon(ring []Point) string {
	return "POLYGON((" + pointList(ring, func(p Point) string {
		return formatFloat(p.Lng) + " " + formatFloat(p.Lat)
	}) + "))"
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
