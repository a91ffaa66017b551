package update

import (
	"regexp"
	"sort"
	"strings"

	"github.com/syssam/docql"
)

// AuthData is the column holding per provider authentication data.
const AuthData = "authData"

var authDataRe = regexp.MustCompile(`^_auth_data_([a-zA-Z0-9_]+)$`)

// nestedWrite is a write below the top level of an Object column, taken
// from a dotted key such as "stats.level".
type nestedWrite struct {
	path  []string
	value any
}

// flatDoc is an update document with dotted keys split off and
// _auth_data_<provider> keys folded into authData.
type flatDoc struct {
	fields map[string]any
	nested map[string][]nestedWrite
}

// columns returns the updated columns in order.
func (d *flatDoc) columns() []string {
	cols := make([]string, 0, len(d.fields)+len(d.nested))
	for k := range d.fields {
		cols = append(cols, k)
	}
	for k := range d.nested {
		if _, ok := d.fields[k]; !ok {
			cols = append(cols, k)
		}
	}
	sort.Strings(cols)
	return cols
}

func flatten(doc map[string]any) (*flatDoc, error) {
	d := &flatDoc{
		fields: make(map[string]any, len(doc)),
		nested: make(map[string][]nestedWrite),
	}
	var auth map[string]any
	if m, ok := doc[AuthData].(map[string]any); ok && !isOp(m) {
		auth = make(map[string]any, len(m))
		for k, v := range m {
			auth[k] = v
		}
	}
	for _, key := range sortedKeys(doc) {
		v := doc[key]
		if m := authDataRe.FindStringSubmatch(key); m != nil {
			if auth == nil {
				auth = make(map[string]any)
			}
			auth[m[1]] = v
			continue
		}
		if strings.Contains(key, "$") {
			return nil, docql.NewNestedKeyError(key)
		}
		column, rest, dotted := strings.Cut(key, ".")
		if !dotted {
			if err := checkKeys(v); err != nil {
				return nil, err
			}
			d.fields[key] = v
			continue
		}
		path := strings.Split(rest, ".")
		for _, p := range path {
			if p == "" {
				return nil, docql.NewNestedKeyError(key)
			}
		}
		if err := checkKeys(v); err != nil {
			return nil, err
		}
		d.nested[column] = append(d.nested[column], nestedWrite{path: path, value: v})
	}
	if auth != nil {
		d.fields[AuthData] = auth
	}
	return d, nil
}

// checkKeys rejects object keys containing '$' or '.' in nested values.
func checkKeys(v any) error {
	switch v := v.(type) {
	case map[string]any:
		for k, e := range v {
			if strings.ContainsAny(k, "$.") {
				return docql.NewNestedKeyError(k)
			}
			if err := checkKeys(e); err != nil {
				return err
			}
		}
	case []any:
		for _, e := range v {
			if err := checkKeys(e); err != nil {
				return err
			}
		}
	}
	return nil
}

// mergeDoc returns the object merged into an Object column: its direct
// value with the plain nested writes set at their paths. Delete and
// Increment writes are left to the caller.
func mergeDoc(direct map[string]any, writes []nestedWrite) map[string]any {
	out := deepCopy(direct)
	for _, w := range writes {
		if isOp(w.value) {
			continue
		}
		if out == nil {
			out = make(map[string]any)
		}
		m := out
		for _, p := range w.path[:len(w.path)-1] {
			next, ok := m[p].(map[string]any)
			if !ok {
				next = make(map[string]any)
				m[p] = next
			}
			m = next
		}
		m[w.path[len(w.path)-1]] = w.value
	}
	return out
}

func deepCopy(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if c, ok := v.(map[string]any); ok {
			v = deepCopy(c)
		}
		out[k] = v
	}
	return out
}

// isOp reports if v is an atomic operation object.
func isOp(v any) bool {
	m, ok := v.(map[string]any)
	if !ok {
		return false
	}
	_, ok = m["__op"].(string)
	return ok
}

func opName(v any) string {
	m, _ := v.(map[string]any)
	op, _ := m["__op"].(string)
	return op
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
