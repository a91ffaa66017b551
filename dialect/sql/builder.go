package sql

import (
	"fmt"
	"strconv"
	"strings"
)

type tokenKind uint8

const (
	tokRaw      tokenKind = iota // fixed SQL text written by the compilers
	tokIdent                     // identifier slot, consumes an index
	tokValue                     // value slot, consumes an index
	tokIdentRef                  // reference to an earlier identifier slot
	tokValueRef                  // reference to an earlier value slot
)

type token struct {
	kind  tokenKind
	raw   string
	index int
}

// Expr is an immutable sequence of typed SQL tokens. Identifiers and values
// never appear in an Expr as text; they are referenced by placeholder index.
type Expr struct {
	tokens []token
}

// IsEmpty reports whether the expression has no tokens.
func (e Expr) IsEmpty() bool { return len(e.tokens) == 0 }

// String renders the expression with $n:name identifier slots and $n value
// slots.
func (e Expr) String() string {
	var sb strings.Builder
	for _, t := range e.tokens {
		switch t.kind {
		case tokRaw:
			sb.WriteString(t.raw)
		case tokIdent, tokIdentRef:
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(t.index))
			sb.WriteString(":name")
		case tokValue, tokValueRef:
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(t.index))
		}
	}
	return sb.String()
}

// Slots returns the number of slot tokens (identifier or value) that
// consume an index.
func (e Expr) Slots() int {
	n := 0
	for _, t := range e.tokens {
		if t.kind == tokIdent || t.kind == tokValue {
			n++
		}
	}
	return n
}

// Refs returns a copy of the expression in which every slot is turned into
// a reference to the same index. The copy consumes no index of its own.
func (e Expr) Refs() Expr {
	tokens := make([]token, len(e.tokens))
	for i, t := range e.tokens {
		switch t.kind {
		case tokIdent:
			t.kind = tokIdentRef
		case tokValue:
			t.kind = tokValueRef
		}
		tokens[i] = t
	}
	return Expr{tokens: tokens}
}

// Append returns a new expression with raw text appended.
func (e Expr) Append(raw string) Expr {
	tokens := make([]token, len(e.tokens), len(e.tokens)+1)
	copy(tokens, e.tokens)
	return Expr{tokens: append(tokens, token{kind: tokRaw, raw: raw})}
}

// Builder accumulates typed tokens and their bound values while threading
// the placeholder index. The zero value is not usable; see NewBuilder.
type Builder struct {
	start  int
	next   int
	tokens []token
	values []any
	sorts  []Expr
}

// NewBuilder returns a builder whose first slot uses index start.
// A start below 1 is treated as 1.
func NewBuilder(start int) *Builder {
	if start < 1 {
		start = 1
	}
	return &Builder{start: start, next: start}
}

// Start returns the first index of the builder.
func (b *Builder) Start() int { return b.start }

// Next returns the index the next slot will consume.
func (b *Builder) Next() int { return b.next }

// Len returns the number of tokens written so far.
func (b *Builder) Len() int { return len(b.tokens) }

// IsEmpty reports whether nothing was written to the builder.
func (b *Builder) IsEmpty() bool { return len(b.tokens) == 0 }

// WriteString appends fixed SQL text. It must never be called with user
// input; identifiers and values go through Ident and Value.
func (b *Builder) WriteString(s string) *Builder {
	if s == "" {
		return b
	}
	if n := len(b.tokens); n > 0 && b.tokens[n-1].kind == tokRaw {
		b.tokens[n-1].raw += s
		return b
	}
	b.tokens = append(b.tokens, token{kind: tokRaw, raw: s})
	return b
}

// Ident appends an identifier slot for name and returns its index.
func (b *Builder) Ident(name string) int {
	return b.slot(tokIdent, name)
}

// Value appends a value slot for v and returns its index.
func (b *Builder) Value(v any) int {
	return b.slot(tokValue, v)
}

func (b *Builder) slot(kind tokenKind, v any) int {
	idx := b.next
	b.tokens = append(b.tokens, token{kind: kind, index: idx})
	b.values = append(b.values, v)
	b.next++
	return idx
}

// Emit writes a template where %n is an identifier slot and %v a value
// slot, each consuming the next operand. %% writes a literal percent.
// A mismatch between slots and operands is a programming error and panics.
func (b *Builder) Emit(tpl string, operands ...any) *Builder {
	var (
		n   int
		raw strings.Builder
	)
	flush := func() {
		b.WriteString(raw.String())
		raw.Reset()
	}
	for i := 0; i < len(tpl); i++ {
		c := tpl[i]
		if c != '%' || i+1 == len(tpl) {
			raw.WriteByte(c)
			continue
		}
		i++
		switch tpl[i] {
		case '%':
			raw.WriteByte('%')
		case 'n', 'v':
			if n >= len(operands) {
				panic(fmt.Sprintf("dialect/sql: template %q: missing operand %d", tpl, n))
			}
			flush()
			if tpl[i] == 'n' {
				name, ok := operands[n].(string)
				if !ok {
					panic(fmt.Sprintf("dialect/sql: template %q: identifier operand %d is %T", tpl, n, operands[n]))
				}
				b.Ident(name)
			} else {
				b.Value(operands[n])
			}
			n++
		default:
			raw.WriteByte('%')
			raw.WriteByte(tpl[i])
		}
	}
	flush()
	if n != len(operands) {
		panic(fmt.Sprintf("dialect/sql: template %q: %d operands for %d slots", tpl, len(operands), n))
	}
	return b
}

// Mark returns a position that can be passed to Since.
func (b *Builder) Mark() int { return len(b.tokens) }

// Since returns the tokens written after mark as an expression.
func (b *Builder) Since(mark int) Expr {
	tokens := make([]token, len(b.tokens)-mark)
	copy(tokens, b.tokens[mark:])
	return Expr{tokens: tokens}
}

// AddSort records a derived ORDER BY expression. Sort expressions may only
// reference slots, they never consume indices.
func (b *Builder) AddSort(e Expr) {
	for _, t := range e.tokens {
		if t.kind == tokIdent || t.kind == tokValue {
			panic("dialect/sql: sort expression must only reference slots")
		}
	}
	b.sorts = append(b.sorts, e)
}

// Child returns an empty builder that starts at the current index.
// Nothing that consumes an index may be written to b until the child is
// appended back with Append.
func (b *Builder) Child() *Builder {
	return &Builder{start: b.next, next: b.next}
}

// Append appends the tokens, values and sorts of a child builder.
func (b *Builder) Append(c *Builder) *Builder {
	if c.start != b.next {
		panic(fmt.Sprintf("dialect/sql: child starts at %d, builder is at %d", c.start, b.next))
	}
	for _, t := range c.tokens {
		if t.kind == tokRaw {
			b.WriteString(t.raw)
			continue
		}
		b.tokens = append(b.tokens, t)
	}
	b.values = append(b.values, c.values...)
	b.sorts = append(b.sorts, c.sorts...)
	b.next = c.next
	return b
}

// Join appends the non-empty children separated by sep.
func (b *Builder) Join(sep string, children ...*Builder) *Builder {
	first := true
	for _, c := range children {
		if c.IsEmpty() {
			continue
		}
		if !first {
			b.WriteString(sep)
		}
		b.Append(c)
		first = false
	}
	return b
}

// Transform replaces every bound value with fn(value). It is applied as
// the final pass of a compilation.
func (b *Builder) Transform(fn func(any) any) {
	for i, v := range b.values {
		b.values[i] = fn(v)
	}
}

// Fragment returns an immutable snapshot of the builder.
func (b *Builder) Fragment() *Fragment {
	f := &Fragment{
		start:  b.start,
		next:   b.next,
		expr:   Expr{tokens: append([]token(nil), b.tokens...)},
		values: append([]any(nil), b.values...),
	}
	if len(b.sorts) > 0 {
		f.sorts = append([]Expr(nil), b.sorts...)
	}
	return f
}

// Fragment is a compiled SQL fragment: typed text, the values bound to its
// slots in index order, and derived sort expressions.
type Fragment struct {
	start  int
	next   int
	expr   Expr
	values []any
	sorts  []Expr
}

// Text returns the fragment text using $n:name and $n slots.
func (f *Fragment) Text() string { return f.expr.String() }

// Values returns a copy of the bound values. Values()[i] is bound to the
// slot with index Start()+i.
func (f *Fragment) Values() []any { return append([]any(nil), f.values...) }

// Sorts returns the derived ORDER BY expressions as text.
func (f *Fragment) Sorts() []string {
	if len(f.sorts) == 0 {
		return nil
	}
	s := make([]string, len(f.sorts))
	for i, e := range f.sorts {
		s[i] = e.String()
	}
	return s
}

// SortExprs returns the derived ORDER BY expressions.
func (f *Fragment) SortExprs() []Expr { return append([]Expr(nil), f.sorts...) }

// Expr returns the fragment expression.
func (f *Fragment) Expr() Expr { return f.expr }

// Start returns the index of the first slot.
func (f *Fragment) Start() int { return f.start }

// Next returns the index following the last slot.
func (f *Fragment) Next() int { return f.next }

// IsEmpty reports whether the fragment has no text.
func (f *Fragment) IsEmpty() bool { return f.expr.IsEmpty() }

// value returns the value bound to index idx.
func (f *Fragment) value(idx int) (any, bool) {
	i := idx - f.start
	if i < 0 || i >= len(f.values) {
		return nil, false
	}
	return f.values[i], true
}
