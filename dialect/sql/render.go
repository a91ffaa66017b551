package sql

import (
	"fmt"
	"regexp"
	"strings"
)

// validColumnRe validates column identifiers bound to identifier slots.
var validColumnRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidColumn(s string) bool {
	return s != "" && len(s) <= 128 && validColumnRe.MatchString(s)
}

// ValidColumn reports whether s may be bound to an identifier slot.
func ValidColumn(s string) bool { return isValidColumn(s) }

type part struct {
	raw      string
	table    string
	expr     Expr
	frag     *Fragment
	value    any
	hasValue bool
}

// Statement composes fixed text, table names and compiled fragments into
// a statement executable through database/sql.
//
//	stmt := sql.NewStatement().
//	    WriteString("SELECT * FROM ").Table("GameScore").
//	    WriteString(" WHERE ").Fragment(where)
//	query, args, err := stmt.Render(sql.Postgres())
type Statement struct {
	parts []part
}

// NewStatement returns an empty statement.
func NewStatement() *Statement { return &Statement{} }

// WriteString appends fixed SQL text.
func (s *Statement) WriteString(raw string) *Statement {
	s.parts = append(s.parts, part{raw: raw})
	return s
}

// Table appends a quoted table name.
func (s *Statement) Table(name string) *Statement {
	s.parts = append(s.parts, part{table: name})
	return s
}

// Fragment appends the text of a compiled fragment.
func (s *Statement) Fragment(f *Fragment) *Statement {
	s.parts = append(s.parts, part{expr: f.expr, frag: f})
	return s
}

// Expr appends an expression whose slots are bound by f, such as one of
// f's sort expressions.
func (s *Statement) Expr(e Expr, f *Fragment) *Statement {
	s.parts = append(s.parts, part{expr: e, frag: f})
	return s
}

// Value appends a bound value, e.g. a LIMIT.
func (s *Statement) Value(v any) *Statement {
	s.parts = append(s.parts, part{value: v, hasValue: true})
	return s
}

// Render renders the statement for the given dialect. Identifier slots are
// validated and quoted, value slots become dialect placeholders and their
// values are returned in binding order.
func (s *Statement) Render(c Capabilities) (string, []any, error) {
	type slotKey struct {
		frag *Fragment
		idx  int
	}
	var (
		sb   strings.Builder
		args []any
		pos  = make(map[slotKey]int)
	)
	bind := func(v any) {
		args = append(args, v)
		sb.WriteString(c.Placeholder(len(args)))
	}
	for _, p := range s.parts {
		switch {
		case p.hasValue:
			bind(p.value)
		case p.table != "":
			if !isValidIdentifier(p.table) {
				return "", nil, fmt.Errorf("dialect/sql: invalid table name %q", p.table)
			}
			sb.WriteString(c.Quote(p.table))
		case p.frag != nil:
			for _, t := range p.expr.tokens {
				switch t.kind {
				case tokRaw:
					sb.WriteString(t.raw)
				case tokIdent, tokIdentRef:
					v, ok := p.frag.value(t.index)
					if !ok {
						return "", nil, fmt.Errorf("dialect/sql: slot $%d out of range", t.index)
					}
					name, ok := v.(string)
					if !ok || !isValidColumn(name) {
						return "", nil, fmt.Errorf("dialect/sql: invalid identifier %v in slot $%d", v, t.index)
					}
					sb.WriteString(c.Quote(name))
				case tokValue, tokValueRef:
					v, ok := p.frag.value(t.index)
					if !ok {
						return "", nil, fmt.Errorf("dialect/sql: slot $%d out of range", t.index)
					}
					key := slotKey{p.frag, t.index}
					if n, seen := pos[key]; seen && c.Numbered() {
						sb.WriteString(c.Placeholder(n))
						continue
					}
					bind(v)
					pos[key] = len(args)
				}
			}
		default:
			sb.WriteString(p.raw)
		}
	}
	return sb.String(), args, nil
}
