// Package query compiles Mongo-like query documents into WHERE fragments.
//
//	f, err := query.Compile(sql.Postgres(), cls, map[string]any{
//	    "score": map[string]any{"$gte": 1000.0},
//	    "tags":  map[string]any{"$in": []any{nil, "pro"}},
//	}, 1)
//
// Fields are compiled in key order and joined with AND. Every identifier
// and value consumes one placeholder index, starting at the given index.
package query

import (
	"sort"
	"strconv"
	"strings"

	"github.com/syssam/docql"
	"github.com/syssam/docql/dialect/sql"
	"github.com/syssam/docql/schema"
)

// DefaultLanguage is the $text search language used when none is given.
const DefaultLanguage = "english"

// Option configures a compilation.
type Option func(*compiler)

// WithLanguage sets the default $text search language.
func WithLanguage(lang string) Option {
	return func(c *compiler) {
		if lang != "" {
			c.language = lang
		}
	}
}

type compiler struct {
	caps     sql.Capabilities
	cls      *schema.Class
	language string
}

// Compile compiles doc against the internal schema cls. The first slot of
// the returned fragment uses index start. An empty document compiles to an
// empty fragment, which matches every row.
func Compile(caps sql.Capabilities, cls *schema.Class, doc map[string]any, start int, opts ...Option) (*sql.Fragment, error) {
	c := &compiler{caps: caps, cls: cls, language: DefaultLanguage}
	for _, opt := range opts {
		opt(c)
	}
	b := sql.NewBuilder(start)
	if err := c.document(b, doc); err != nil {
		return nil, err
	}
	b.Transform(unwrapPointer)
	return b.Fragment(), nil
}

// document writes the conjunction of all fields of doc.
func (c *compiler) document(b *sql.Builder, doc map[string]any) error {
	for _, key := range sortedKeys(doc) {
		fb := b.Child()
		if err := c.field(fb, key, doc[key]); err != nil {
			return err
		}
		if fb.IsEmpty() {
			continue
		}
		if !b.IsEmpty() {
			b.WriteString(" AND ")
		}
		b.Append(fb)
	}
	return nil
}

func (c *compiler) field(b *sql.Builder, key string, v any) error {
	switch key {
	case "$or":
		return c.logical(b, key, v, " OR ", false)
	case "$and":
		return c.logical(b, key, v, " AND ", false)
	case "$nor":
		return c.logical(b, key, v, " OR ", true)
	}
	if strings.HasPrefix(key, "$") {
		return docql.NewNestedKeyError(key)
	}
	name, path, dotted := strings.Cut(key, ".")
	if c.cls.Field(name) == nil && existsFalse(v) {
		return nil
	}
	if dotted {
		return c.dotted(b, key, name, strings.Split(path, "."), v)
	}
	if !sql.ValidColumn(key) {
		return docql.NewValidationError(key, "", "invalid field name")
	}
	clauses, err := c.parse(key, v)
	if err != nil {
		return err
	}
	if len(clauses) == 0 {
		return docql.NewUnsupportedQueryError(key, v)
	}
	def := c.cls.Field(key)
	for _, cl := range clauses {
		cb := b.Child()
		ok, err := c.render(cb, key, def, cl)
		if err != nil {
			return err
		}
		if !ok {
			return docql.NewUnsupportedQueryError(key, v)
		}
		if cb.IsEmpty() {
			continue
		}
		if !b.IsEmpty() {
			b.WriteString(" AND ")
		}
		b.Append(cb)
	}
	return nil
}

// logical writes $or, $and and $nor. Each branch is a document compiled
// from the running index; an empty branch matches everything.
func (c *compiler) logical(b *sql.Builder, op string, v any, sep string, negate bool) error {
	branches, ok := v.([]any)
	if !ok || len(branches) == 0 {
		return docql.NewValidationError("", op, "expected a non-empty array of documents, got %s", docql.Shape(v))
	}
	if negate {
		b.WriteString("NOT ")
	}
	b.WriteString("(")
	for i, br := range branches {
		doc, ok := br.(map[string]any)
		if !ok {
			return docql.NewValidationError("", op, "branch %d is %s, expected a document", i, docql.Shape(br))
		}
		if i > 0 {
			b.WriteString(sep)
		}
		cb := b.Child()
		if err := c.document(cb, doc); err != nil {
			return err
		}
		if cb.IsEmpty() {
			cb.WriteString("TRUE")
		}
		b.Append(cb)
	}
	b.WriteString(")")
	return nil
}

// dotted writes a comparison of a key inside an Object column. Only the
// compared value consumes an index.
func (c *compiler) dotted(b *sql.Builder, key, column string, path []string, v any) error {
	var text string
	switch v := v.(type) {
	case nil:
	case string:
		text = v
	case bool:
		text = strconv.FormatBool(v)
	default:
		n, ok := number(v)
		if !ok {
			return docql.NewUnsupportedQueryError(key, v)
		}
		text = strconv.FormatFloat(n, 'f', -1, 64)
	}
	if err := c.caps.JSONPath(b, column, path); err != nil {
		return docql.NewValidationError(key, "", "%v", err)
	}
	if v == nil {
		b.WriteString(" IS NULL")
		return nil
	}
	b.Emit(" = %v", text)
	return nil
}

// render writes one clause. It reports false when the clause has no
// translation for the field.
func (c *compiler) render(b *sql.Builder, field string, def *schema.Field, cl clause) (bool, error) {
	array := def.IsArray()
	switch cl := cl.(type) {
	case isNull:
		b.Emit("%n IS NULL", field)
	case eq:
		return c.renderEq(b, field, array, cl.op)
	case ne:
		return c.renderNe(b, field, array, cl.op)
	case in:
		return c.renderIn(b, field, array, cl)
	case all:
		if !array {
			return false, nil
		}
		doc, err := jsonDoc(cl.elems)
		if err != nil {
			return false, docql.NewValidationError(field, "$all", "%v", err)
		}
		c.caps.Contains(b, field, doc)
	case exists:
		if cl.want {
			b.Emit("%n IS NOT NULL", field)
		} else {
			b.Emit("%n IS NULL", field)
		}
	case text:
		c.caps.TextSearch(b, field, cl.term, cl.language)
	case nearSphere:
		mark := b.Mark()
		c.caps.Distance(b, field, cl.point)
		dist := b.Since(mark)
		if cl.limit {
			b.Emit(" <= %v", cl.meters)
		} else {
			b.WriteString(" IS NOT NULL")
		}
		b.AddSort(dist.Refs().Append(" ASC"))
	case withinBox:
		c.caps.WithinBox(b, field, cl.sw, cl.ne)
	case withinPolygon:
		c.caps.WithinPolygon(b, field, cl.ring)
	case withinSphere:
		c.caps.Distance(b, field, cl.center)
		b.Emit(" <= %v", cl.meters)
	case match:
		if array {
			return false, nil
		}
		c.caps.Regex(b, field, cl.pattern, cl.insensitive)
	case compare:
		b.Emit("%n "+cl.op+" %v", field, cl.val.value)
	default:
		return false, nil
	}
	return true, nil
}

func (c *compiler) renderEq(b *sql.Builder, field string, array bool, op operand) (bool, error) {
	switch {
	case op.kind == valNull:
		b.Emit("%n IS NULL", field)
	case op.kind == valPoint:
		c.caps.PointEqual(b, field, op.point)
	case op.bindable() && array:
		doc, err := jsonDoc([]any{op.value})
		if err != nil {
			return false, docql.NewValidationError(field, "$eq", "%v", err)
		}
		c.caps.Contains(b, field, doc)
	case op.bindable():
		b.Emit("%n = %v", field, op.value)
	case op.kind == valArray && array:
		doc, err := jsonDoc(op.value)
		if err != nil {
			return false, docql.NewValidationError(field, "$eq", "%v", err)
		}
		c.caps.JSONEqual(b, field, doc)
	default:
		return false, nil
	}
	return true, nil
}

func (c *compiler) renderNe(b *sql.Builder, field string, array bool, op operand) (bool, error) {
	switch {
	case op.kind == valNull:
		b.Emit("%n IS NOT NULL", field)
	case op.kind == valPoint:
		b.WriteString("(NOT (")
		c.caps.PointEqual(b, field, op.point)
		b.Emit(") OR %n IS NULL)", field)
	case op.bindable() && array:
		doc, err := jsonDoc([]any{op.value})
		if err != nil {
			return false, docql.NewValidationError(field, "$ne", "%v", err)
		}
		b.WriteString("NOT (")
		c.caps.Contains(b, field, doc)
		b.WriteString(")")
	case op.bindable():
		b.Emit("(%n <> %v OR %n IS NULL)", field, op.value, field)
	default:
		return false, nil
	}
	return true, nil
}

// renderIn writes $in and $nin. A null element matches missing values.
func (c *compiler) renderIn(b *sql.Builder, field string, array bool, cl in) (bool, error) {
	if len(cl.elems) == 0 {
		switch {
		case !cl.not:
			b.Emit("%n IS NULL", field)
		case cl.null:
			b.Emit("%n IS NOT NULL", field)
		}
		return true, nil
	}
	if array {
		return true, c.renderArrayIn(b, field, cl)
	}
	switch {
	case !cl.not && cl.null:
		b.Emit("(%n IS NULL OR ", field)
		valueList(b, field, " IN (", cl.elems)
		b.WriteString(")")
	case !cl.not:
		valueList(b, field, " IN (", cl.elems)
	case cl.null:
		valueList(b, field, " NOT IN (", cl.elems)
	default:
		b.Emit("(%n IS NULL OR ", field)
		valueList(b, field, " NOT IN (", cl.elems)
		b.WriteString(")")
	}
	return true, nil
}

func valueList(b *sql.Builder, field, op string, elems []operand) {
	b.Emit("%n", field)
	b.WriteString(op)
	for i, e := range elems {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Value(e.value)
	}
	b.WriteString(")")
}

// renderArrayIn writes one containment test per element.
func (c *compiler) renderArrayIn(b *sql.Builder, field string, cl in) error {
	switch {
	case !cl.not && cl.null:
		b.Emit("(%n IS NULL OR ", field)
	case !cl.not && len(cl.elems) > 1:
		b.WriteString("(")
	case cl.null:
		b.Emit("(%n IS NOT NULL AND NOT (", field)
	default:
		b.Emit("(%n IS NULL OR NOT (", field)
	}
	for i, e := range cl.elems {
		if i > 0 {
			b.WriteString(" OR ")
		}
		doc, err := jsonDoc([]any{e.value})
		if err != nil {
			return docql.NewValidationError(field, "$in", "%v", err)
		}
		c.caps.Contains(b, field, doc)
	}
	switch {
	case cl.not:
		b.WriteString("))")
	case cl.null || len(cl.elems) > 1:
		b.WriteString(")")
	}
	return nil
}

// existsFalse reports if v is exactly {$exists: false}.
func existsFalse(v any) bool {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		return false
	}
	want, ok := m["$exists"].(bool)
	return ok && !want
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
