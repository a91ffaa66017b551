// Package update compiles update documents with atomic operations into
// SET fragments.
//
//	res, err := update.Compile(sql.Postgres(), cls, map[string]any{
//	    "score": map[string]any{"__op": "Increment", "amount": 5.0},
//	}, 1)
//	res.Text()   // $1:name = COALESCE($2:name, 0) + $3
//	res.Values() // [score score 5]
//
// The fragment is a comma separated list of column assignments.
package update

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/syssam/docql"
	"github.com/syssam/docql/dialect/sql"
	"github.com/syssam/docql/schema"
)

// ReservedTimestamps are the columns stored as native timestamps.
var ReservedTimestamps = map[string]bool{
	"createdAt":                      true,
	"updatedAt":                      true,
	schema.EmailVerifyTokenExpiresAt: true,
	schema.AccountLockoutExpiresAt:   true,
	schema.PerishableTokenExpiresAt:  true,
	schema.PasswordChangedAt:         true,
}

// Result is a compiled update.
type Result struct {
	*sql.Fragment
	// NextIndex is the first index free for the caller, e.g. for the
	// WHERE fragment of the same statement.
	NextIndex int
}

type compiler struct {
	caps sql.Capabilities
	cls  *schema.Class
	doc  *flatDoc
}

// Compile compiles doc against the internal schema cls. The first slot of
// the returned fragment uses index start.
func Compile(caps sql.Capabilities, cls *schema.Class, doc map[string]any, start int) (*Result, error) {
	flat, err := flatten(doc)
	if err != nil {
		return nil, err
	}
	c := &compiler{caps: caps, cls: cls, doc: flat}
	b := sql.NewBuilder(start)
	for _, col := range flat.columns() {
		cb := b.Child()
		if err := c.assign(cb, col); err != nil {
			return nil, err
		}
		if cb.IsEmpty() {
			continue
		}
		if !b.IsEmpty() {
			b.WriteString(", ")
		}
		b.Append(cb)
	}
	return &Result{Fragment: b.Fragment(), NextIndex: b.Next()}, nil
}

// assign writes the assignment of one column, or nothing for relations.
func (c *compiler) assign(b *sql.Builder, col string) error {
	if !sql.ValidColumn(col) {
		return docql.NewValidationError(col, "", "invalid field name")
	}
	def := c.cls.Field(col)
	v, direct := c.doc.fields[col]
	nested := c.doc.nested[col]
	if len(nested) > 0 {
		m, isMap := v.(map[string]any)
		if !def.Is(schema.TypeObject) || (direct && (!isMap || isOp(m) || m["__type"] != nil)) {
			w := nested[0]
			return docql.NewUnsupportedUpdateError(col, map[string]any{col + "." + joinPath(w.path): w.value})
		}
		return c.editObject(b, col, m, nested)
	}
	switch {
	case v == nil:
		b.Emit("%n = NULL", col)
		return nil
	case col == AuthData && !isOp(v):
		if m, ok := v.(map[string]any); ok {
			return c.authData(b, col, m)
		}
	case isOp(v):
		return c.op(b, col, v.(map[string]any))
	}
	if ReservedTimestamps[col] {
		if t, ok, err := timestamp(v); err != nil {
			return docql.NewValidationError(col, "", "%v", err)
		} else if ok {
			b.Emit("%n = %v", col, c.caps.Timestamp(t))
			return nil
		}
	}
	ok, err := c.value(b, col, v)
	if err != nil || ok {
		return err
	}
	switch v := v.(type) {
	case map[string]any:
		if v["__type"] == "Relation" {
			return nil
		}
		if def.Is(schema.TypeObject) && v["__type"] == nil {
			return c.editObject(b, col, v, nil)
		}
	case []any:
		if def.IsArray() {
			doc, err := encode(col, v)
			if err != nil {
				return err
			}
			b.Emit("%n = ", col)
			c.caps.JSONValue(b, doc)
			return nil
		}
	}
	return docql.NewUnsupportedUpdateError(col, v)
}

// value writes the direct assignment of scalars and tagged values. It
// reports false when v is neither.
func (c *compiler) value(b *sql.Builder, col string, v any) (bool, error) {
	switch v := v.(type) {
	case string, bool:
		b.Emit("%n = %v", col, v)
		return true, nil
	case map[string]any:
		t, _ := v["__type"].(string)
		switch t {
		case "Date":
			ts, err := parseDate(v)
			if err != nil {
				return false, docql.NewValidationError(col, "", "%v", err)
			}
			b.Emit("%n = %v", col, c.caps.TimeValue(ts))
		case "Pointer":
			id, ok := v["objectId"].(string)
			if !ok {
				return false, docql.NewValidationError(col, "", "pointer without objectId")
			}
			b.Emit("%n = %v", col, id)
		case "File":
			name, ok := v["name"].(string)
			if !ok {
				return false, docql.NewValidationError(col, "", "file without name")
			}
			b.Emit("%n = %v", col, name)
		case "Bytes":
			s, ok := v["base64"].(string)
			if !ok {
				return false, docql.NewValidationError(col, "", "bytes without base64")
			}
			b.Emit("%n = %v", col, s)
		case "GeoPoint":
			lat, ok1 := number(v["latitude"])
			lng, ok2 := number(v["longitude"])
			if !ok1 || !ok2 {
				return false, docql.NewValidationError(col, "", "GeoPoint latitude and longitude must be numbers")
			}
			b.Emit("%n = POINT(%v, %v)", col, lng, lat)
		default:
			return false, nil
		}
		return true, nil
	}
	if _, ok := number(v); ok {
		b.Emit("%n = %v", col, v)
		return true, nil
	}
	return false, nil
}

// op writes an atomic operation.
func (c *compiler) op(b *sql.Builder, col string, m map[string]any) error {
	switch name := opName(m); name {
	case "Delete":
		b.Emit("%n = NULL", col)
	case "Increment":
		amount, ok := number(m["amount"])
		if !ok {
			return docql.NewValidationError(col, "Increment", "amount should be a number, got %s", docql.Shape(m["amount"]))
		}
		b.Emit("%n = COALESCE(%n, 0) + %v", col, col, amount)
	case "Add", "Remove", "AddUnique":
		objects, ok := m["objects"].([]any)
		if !ok {
			return docql.NewValidationError(col, name, "objects should be an array, got %s", docql.Shape(m["objects"]))
		}
		doc, err := encode(col, objects)
		if err != nil {
			return err
		}
		b.Emit("%n = ", col)
		switch name {
		case "Add":
			c.caps.ArrayAppend(b, col, doc)
		case "Remove":
			c.caps.ArrayRemove(b, col, doc)
		default:
			c.caps.ArrayAddUnique(b, col, doc)
		}
	default:
		return docql.NewUnsupportedUpdateError(col, m)
	}
	return nil
}

// authData writes one edit per provider: providers tagged Delete are
// removed, the others replaced.
func (c *compiler) authData(b *sql.Builder, col string, m map[string]any) error {
	edits := make([]sql.ObjectEdit, 0, len(m))
	for _, provider := range sortedKeys(m) {
		v := m[provider]
		if opName(v) == "Delete" {
			edits = append(edits, sql.ObjectEdit{Kind: sql.EditRemove, Path: []string{provider}})
			continue
		}
		doc, err := encode(col, v)
		if err != nil {
			return err
		}
		edits = append(edits, sql.ObjectEdit{Kind: sql.EditSet, Path: []string{provider}, Value: doc})
	}
	if len(edits) == 0 {
		return nil
	}
	b.Emit("%n = ", col)
	c.caps.EditObject(b, col, edits)
	return nil
}

// editObject writes the update of an Object column: removals, then
// increments, then a merge of the remaining values.
func (c *compiler) editObject(b *sql.Builder, col string, direct map[string]any, nested []nestedWrite) error {
	var edits []sql.ObjectEdit
	for _, w := range nested {
		if opName(w.value) == "Delete" {
			edits = append(edits, sql.ObjectEdit{Kind: sql.EditRemove, Path: w.path})
		}
	}
	for _, w := range nested {
		m, _ := w.value.(map[string]any)
		switch opName(w.value) {
		case "Increment":
			amount, ok := number(m["amount"])
			if !ok {
				return docql.NewValidationError(col+"."+joinPath(w.path), "Increment", "amount should be a number, got %s", docql.Shape(m["amount"]))
			}
			edits = append(edits, sql.ObjectEdit{Kind: sql.EditIncrement, Path: w.path, Value: amount})
		case "", "Delete":
		default:
			return docql.NewUnsupportedUpdateError(col+"."+joinPath(w.path), w.value)
		}
	}
	if merge := mergeDoc(direct, nested); merge != nil {
		doc, err := encode(col, merge)
		if err != nil {
			return err
		}
		edits = append(edits, sql.ObjectEdit{Kind: sql.EditMerge, Value: doc})
	}
	b.Emit("%n = ", col)
	c.caps.EditObject(b, col, edits)
	return nil
}

// timestamp returns the time of a reserved timestamp value, given as an
// ISO string or a tagged Date.
func timestamp(v any) (time.Time, bool, error) {
	var iso string
	switch v := v.(type) {
	case string:
		iso = v
	case map[string]any:
		if v["__type"] != "Date" {
			return time.Time{}, false, nil
		}
		t, err := parseDate(v)
		return t.Truncate(time.Second), err == nil, err
	default:
		return time.Time{}, false, nil
	}
	t, err := time.Parse(time.RFC3339Nano, iso)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid timestamp %q", iso)
	}
	return t.Truncate(time.Second), true, nil
}

func parseDate(m map[string]any) (time.Time, error) {
	iso, ok := m["iso"].(string)
	if !ok {
		return time.Time{}, fmt.Errorf("date value without iso string")
	}
	t, err := time.Parse(time.RFC3339Nano, iso)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", iso)
	}
	return t, nil
}

func number(v any) (float64, bool) {
	switch v := v.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

func encode(col string, v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", docql.NewValidationError(col, "", "%v", err)
	}
	return string(b), nil
}

func joinPath(path []string) string {
	s := path[0]
	for _, p := range path[1:] {
		s += "." + p
	}
	return s
}
