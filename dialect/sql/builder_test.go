package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderEmit(t *testing.T) {
	b := NewBuilder(1)
	b.Emit("%n = %v", "score", 10.0)
	f := b.Fragment()
	assert.Equal(t, "$1:name = $2", f.Text())
	assert.Equal(t, []any{"score", 10.0}, f.Values())
	assert.Equal(t, 1, f.Start())
	assert.Equal(t, 3, f.Next())
	assert.Equal(t, 2, f.Expr().Slots())
}

func TestBuilderStart(t *testing.T) {
	assert.Equal(t, 1, NewBuilder(0).Start())
	assert.Equal(t, 1, NewBuilder(-3).Next())

	b := NewBuilder(7)
	b.Emit("%n IS NULL", "a")
	assert.Equal(t, "$7:name IS NULL", b.Fragment().Text())
	assert.Equal(t, 8, b.Next())
}

func TestBuilderEmitPercent(t *testing.T) {
	b := NewBuilder(1)
	b.Emit("%n LIKE 'a%%'", "name")
	assert.Equal(t, "$1:name LIKE 'a%'", b.Fragment().Text())
	assert.Len(t, b.Fragment().Values(), 1)
}

func TestBuilderEmitMismatch(t *testing.T) {
	assert.Panics(t, func() { NewBuilder(1).Emit("%n = %v", "a") })
	assert.Panics(t, func() { NewBuilder(1).Emit("%n", "a", 1) })
	assert.Panics(t, func() { NewBuilder(1).Emit("%n", 1) })
}

func TestBuilderWriteStringMerges(t *testing.T) {
	b := NewBuilder(1)
	b.WriteString("(").WriteString("TRUE").WriteString(")")
	f := b.Fragment()
	assert.Equal(t, "(TRUE)", f.Text())
	assert.Len(t, f.Expr().tokens, 1)
	assert.Empty(t, f.Values())
	b.WriteString("")
	assert.Equal(t, 1, b.Len())
}

func TestBuilderJoin(t *testing.T) {
	b := NewBuilder(1)
	c1 := b.Child()
	c1.Emit("%n = %v", "a", 1.0)
	empty := c1.Child()
	c2 := empty.Child()
	c2.Emit("%n = %v", "b", 2.0)

	b.WriteString("(")
	b.Join(" OR ", c1, empty, c2)
	b.WriteString(")")

	f := b.Fragment()
	assert.Equal(t, "($1:name = $2 OR $3:name = $4)", f.Text())
	assert.Equal(t, []any{"a", 1.0, "b", 2.0}, f.Values())
	assert.Equal(t, 5, f.Next())
}

func TestBuilderAppendOutOfOrder(t *testing.T) {
	b := NewBuilder(1)
	c := b.Child()
	b.Value(1)
	assert.Panics(t, func() { b.Append(c) })
}

func TestBuilderSorts(t *testing.T) {
	b := NewBuilder(1)
	m := b.Mark()
	b.Emit("dist(%n, %v)", "loc", 2.0)
	e := b.Since(m)
	b.WriteString(" <= ")
	b.Value(10.0)

	assert.Panics(t, func() { b.AddSort(e) })
	b.AddSort(e.Refs().Append(" ASC"))

	f := b.Fragment()
	assert.Equal(t, "dist($1:name, $2) <= $3", f.Text())
	assert.Equal(t, []string{"dist($1:name, $2) ASC"}, f.Sorts())
	require.Len(t, f.SortExprs(), 1)
	assert.Zero(t, f.SortExprs()[0].Slots())
	assert.Equal(t, 4, f.Next())
}

func TestBuilderChildSorts(t *testing.T) {
	b := NewBuilder(1)
	c := b.Child()
	m := c.Mark()
	c.Emit("%n", "x")
	c.AddSort(c.Since(m).Refs())
	b.Append(c)
	assert.Equal(t, []string{"$1:name"}, b.Fragment().Sorts())
}

func TestBuilderTransform(t *testing.T) {
	b := NewBuilder(1)
	b.Emit("%n = %v", "owner", map[string]any{"__type": "Pointer", "objectId": "abc"})
	b.Transform(func(v any) any {
		if m, ok := v.(map[string]any); ok {
			return m["objectId"]
		}
		return v
	})
	assert.Equal(t, []any{"owner", "abc"}, b.Fragment().Values())
}

func TestFragmentImmutable(t *testing.T) {
	b := NewBuilder(1)
	b.Emit("%n = %v", "a", "x")
	f := b.Fragment()
	vs := f.Values()
	vs[1] = "changed"
	b.Emit(" AND %n = %v", "b", "y")
	assert.Equal(t, []any{"a", "x"}, f.Values())
	assert.Equal(t, "$1:name = $2", f.Text())
	assert.True(t, NewBuilder(1).Fragment().IsEmpty())
	assert.Nil(t, f.Sorts())
}

func BenchmarkBuilderEmit(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		bl := NewBuilder(1)
		for j := 0; j < 10; j++ {
			if j > 0 {
				bl.WriteString(" AND ")
			}
			bl.Emit("%n = %v", "field", j)
		}
		_ = bl.Fragment().Text()
	}
}
