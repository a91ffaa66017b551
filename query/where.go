package query

import (
	"strings"
	"time"

	"github.com/syssam/docql/dialect/sql"
)

// Predicate adds a constraint to a query document.
type Predicate func(map[string]any)

// Where returns the query document holding all predicates.
//
//	doc := query.Where(
//	    query.StringField("playerName").EQ("Sean Plott"),
//	    query.NumberField[float64]("score").GTE(1000),
//	)
func Where(ps ...Predicate) map[string]any {
	doc := make(map[string]any)
	for _, p := range ps {
		p(doc)
	}
	return doc
}

// And returns a predicate matching when all groups match.
func And(groups ...Predicate) Predicate {
	return logical("$and", groups)
}

// Or returns a predicate matching when any group matches.
func Or(groups ...Predicate) Predicate {
	return logical("$or", groups)
}

// Nor returns a predicate matching when no group matches.
func Nor(groups ...Predicate) Predicate {
	return logical("$nor", groups)
}

func logical(op string, groups []Predicate) Predicate {
	return func(doc map[string]any) {
		branches := make([]any, len(groups))
		for i, g := range groups {
			branches[i] = Where(g)
		}
		if _, ok := doc[op]; !ok {
			doc[op] = branches
			return
		}
		and, _ := doc["$and"].([]any)
		doc["$and"] = append(and, map[string]any{op: branches})
	}
}

// setOp sets an operator on field, keeping operators set before. A bare
// value set before becomes $eq.
func setOp(field, op string, v any) Predicate {
	return func(doc map[string]any) {
		ops, ok := doc[field].(map[string]any)
		if !ok || ops["__type"] != nil {
			prev, had := doc[field]
			ops = make(map[string]any)
			if had {
				ops["$eq"] = prev
			}
			doc[field] = ops
		}
		ops[op] = v
	}
}

func setEQ(field string, v any) Predicate {
	return func(doc map[string]any) {
		if _, ok := doc[field]; ok {
			setOp(field, "$eq", v)(doc)
			return
		}
		doc[field] = v
	}
}

func list[T any](vs []T, conv func(T) any) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = conv(v)
	}
	return out
}

func self[T any](v T) any { return v }

// StringField is a String field.
type StringField string

// Name returns the field name.
func (f StringField) Name() string { return string(f) }

// EQ returns a predicate that checks if the field equals the given value.
func (f StringField) EQ(v string) Predicate { return setEQ(string(f), v) }

// NEQ returns a predicate that checks if the field does not equal the given value.
func (f StringField) NEQ(v string) Predicate { return setOp(string(f), "$ne", v) }

// In returns a predicate that checks if the field value is in the given list.
func (f StringField) In(vs ...string) Predicate {
	return setOp(string(f), "$in", list(vs, self[string]))
}

// NotIn returns a predicate that checks if the field value is not in the given list.
func (f StringField) NotIn(vs ...string) Predicate {
	return setOp(string(f), "$nin", list(vs, self[string]))
}

// GT returns a predicate that checks if the field is greater than the given value.
func (f StringField) GT(v string) Predicate { return setOp(string(f), "$gt", v) }

// LT returns a predicate that checks if the field is less than the given value.
func (f StringField) LT(v string) Predicate { return setOp(string(f), "$lt", v) }

// HasPrefix returns a predicate that checks if the field has the given prefix.
func (f StringField) HasPrefix(v string) Predicate {
	return setOp(string(f), "$regex", "^"+quote(v))
}

// Contains returns a predicate that checks if the field contains the given substring.
func (f StringField) Contains(v string) Predicate {
	return setOp(string(f), "$regex", quote(v))
}

// quote returns a pattern matching v literally.
func quote(v string) string {
	return `\Q` + strings.ReplaceAll(v, `\E`, `\E\\E\Q`) + `\E`
}

// Matches returns a predicate that checks if the field matches the pattern.
func (f StringField) Matches(pattern, options string) Predicate {
	return func(doc map[string]any) {
		setOp(string(f), "$regex", pattern)(doc)
		if options != "" {
			setOp(string(f), "$options", options)(doc)
		}
	}
}

// Search returns a predicate for a full text search.
func (f StringField) Search(term string) Predicate {
	return setOp(string(f), "$text", map[string]any{
		"$search": map[string]any{"$term": term},
	})
}

// Exists returns a predicate that checks if the field is set (or not).
func (f StringField) Exists(v bool) Predicate { return setOp(string(f), "$exists", v) }

// IsNull returns a predicate that checks if the field is NULL.
func (f StringField) IsNull() Predicate { return setEQ(string(f), nil) }

// Number is the constraint of NumberField values.
type Number interface {
	~int | ~int32 | ~int64 | ~float32 | ~float64
}

// NumberField is a Number field.
type NumberField[T Number] string

// Name returns the field name.
func (f NumberField[T]) Name() string { return string(f) }

// EQ returns a predicate that checks if the field equals the given value.
func (f NumberField[T]) EQ(v T) Predicate { return setEQ(string(f), float64(v)) }

// NEQ returns a predicate that checks if the field does not equal the given value.
func (f NumberField[T]) NEQ(v T) Predicate { return setOp(string(f), "$ne", float64(v)) }

// In returns a predicate that checks if the field value is in the given list.
func (f NumberField[T]) In(vs ...T) Predicate {
	return setOp(string(f), "$in", list(vs, toFloat[T]))
}

// NotIn returns a predicate that checks if the field value is not in the given list.
func (f NumberField[T]) NotIn(vs ...T) Predicate {
	return setOp(string(f), "$nin", list(vs, toFloat[T]))
}

// GT returns a predicate that checks if the field is greater than the given value.
func (f NumberField[T]) GT(v T) Predicate { return setOp(string(f), "$gt", float64(v)) }

// GTE returns a predicate that checks if the field is greater than or equal to the given value.
func (f NumberField[T]) GTE(v T) Predicate { return setOp(string(f), "$gte", float64(v)) }

// LT returns a predicate that checks if the field is less than the given value.
func (f NumberField[T]) LT(v T) Predicate { return setOp(string(f), "$lt", float64(v)) }

// LTE returns a predicate that checks if the field is less than or equal to the given value.
func (f NumberField[T]) LTE(v T) Predicate { return setOp(string(f), "$lte", float64(v)) }

// IsNull returns a predicate that checks if the field is NULL.
func (f NumberField[T]) IsNull() Predicate { return setEQ(string(f), nil) }

func toFloat[T Number](v T) any { return float64(v) }

// BoolField is a Boolean field.
type BoolField string

// EQ returns a predicate that checks if the field equals the given value.
func (f BoolField) EQ(v bool) Predicate { return setEQ(string(f), v) }

// NEQ returns a predicate that checks if the field does not equal the given value.
func (f BoolField) NEQ(v bool) Predicate { return setOp(string(f), "$ne", v) }

// DateField is a Date field.
type DateField string

// EQ returns a predicate that checks if the field equals the given time.
func (f DateField) EQ(t time.Time) Predicate { return setEQ(string(f), Date(t)) }

// GT returns a predicate that checks if the field is after t.
func (f DateField) GT(t time.Time) Predicate { return setOp(string(f), "$gt", Date(t)) }

// GTE returns a predicate that checks if the field is t or after.
func (f DateField) GTE(t time.Time) Predicate { return setOp(string(f), "$gte", Date(t)) }

// LT returns a predicate that checks if the field is before t.
func (f DateField) LT(t time.Time) Predicate { return setOp(string(f), "$lt", Date(t)) }

// LTE returns a predicate that checks if the field is t or before.
func (f DateField) LTE(t time.Time) Predicate { return setOp(string(f), "$lte", Date(t)) }

// PointerField is a Pointer field.
type PointerField string

// EQ returns a predicate that checks if the field points to the object.
func (f PointerField) EQ(className, objectID string) Predicate {
	return setEQ(string(f), Pointer(className, objectID))
}

// In returns a predicate that checks if the field points to one of the objects.
func (f PointerField) In(className string, objectIDs ...string) Predicate {
	return setOp(string(f), "$in", list(objectIDs, func(id string) any {
		return Pointer(className, id)
	}))
}

// ArrayField is an Array field.
type ArrayField string

// Contains returns a predicate that checks if the array holds v.
func (f ArrayField) Contains(v any) Predicate { return setEQ(string(f), v) }

// ContainsAll returns a predicate that checks if the array holds all values.
func (f ArrayField) ContainsAll(vs ...any) Predicate { return setOp(string(f), "$all", vs) }

// ContainsAny returns a predicate that checks if the array holds any value.
func (f ArrayField) ContainsAny(vs ...any) Predicate { return setOp(string(f), "$in", vs) }

// GeoField is a GeoPoint field.
type GeoField string

// NearSphere returns a predicate ordering by distance to p, limited to
// maxRadians when it is positive.
func (f GeoField) NearSphere(p sql.Point, maxRadians float64) Predicate {
	return func(doc map[string]any) {
		setOp(string(f), "$nearSphere", GeoPoint(p))(doc)
		if maxRadians > 0 {
			setOp(string(f), "$maxDistance", maxRadians)(doc)
		}
	}
}

// WithinBox returns a predicate for points inside the box.
func (f GeoField) WithinBox(sw, ne sql.Point) Predicate {
	return setOp(string(f), "$within", map[string]any{
		"$box": []any{GeoPoint(sw), GeoPoint(ne)},
	})
}

// WithinPolygon returns a predicate for points inside the polygon.
func (f GeoField) WithinPolygon(ring ...sql.Point) Predicate {
	return setOp(string(f), "$geoWithin", map[string]any{
		"$polygon": list(ring, func(p sql.Point) any { return GeoPoint(p) }),
	})
}

// Date returns the tagged Date value of t.
func Date(t time.Time) map[string]any {
	return map[string]any{"__type": "Date", "iso": t.UTC().Format("2006-01-02T15:04:05.000Z")}
}

// Pointer returns a tagged Pointer value.
func Pointer(className, objectID string) map[string]any {
	return map[string]any{"__type": "Pointer", "className": className, "objectId": objectID}
}

// GeoPoint returns a tagged GeoPoint value.
func GeoPoint(p sql.Point) map[string]any {
	return map[string]any{"__type": "GeoPoint", "latitude": p.Lat, "longitude": p.Lng}
}
