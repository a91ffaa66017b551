package query

import (
	"fmt"

	"github.com/syssam/docql"
	"github.com/syssam/docql/dialect/sql"
	"github.com/syssam/docql/regex"
)

// operandKind is the shape of a comparison operand.
type operandKind uint8

const (
	valNull    operandKind = iota
	valScalar              // string, number, boolean or a formatted tagged value
	valPointer             // tagged Pointer, unwrapped to its objectId when bound
	valPoint               // tagged GeoPoint
	valArray               // bare array
)

type operand struct {
	kind  operandKind
	value any
	point sql.Point
}

// bindable reports if the operand binds as a single value.
func (o operand) bindable() bool { return o.kind == valScalar || o.kind == valPointer }

// clause is one parsed constraint on a field.
type clause interface{ clause() }

type (
	// isNull is the bare null value.
	isNull struct{}
	// eq is a bare value or $eq.
	eq struct{ op operand }
	// ne is $ne.
	ne struct{ op operand }
	// in is $in, or $nin when not is set.
	in struct {
		not   bool
		null  bool
		elems []operand
	}
	// all is $all.
	all struct{ elems []any }
	// exists is $exists.
	exists struct{ want bool }
	// text is $text.
	text struct{ term, language string }
	// nearSphere is $nearSphere with an optional distance limit in meters.
	nearSphere struct {
		point  sql.Point
		meters float64
		limit  bool
	}
	// withinBox is $within.$box.
	withinBox struct{ sw, ne sql.Point }
	// withinPolygon is $geoWithin.$polygon, as a closed ring.
	withinPolygon struct{ ring []sql.Point }
	// withinSphere is $geoWithin.$centerSphere.
	withinSphere struct {
		center sql.Point
		meters float64
	}
	// match is $regex.
	match struct {
		pattern     string
		insensitive bool
	}
	// compare is $gt, $gte, $lt or $lte.
	compare struct {
		op  string
		val operand
	}
)

func (isNull) clause()        {}
func (eq) clause()            {}
func (ne) clause()            {}
func (in) clause()            {}
func (all) clause()           {}
func (exists) clause()        {}
func (text) clause()          {}
func (nearSphere) clause()    {}
func (withinBox) clause()     {}
func (withinPolygon) clause() {}
func (withinSphere) clause()  {}
func (match) clause()         {}
func (compare) clause()       {}

// comparisons maps comparison operators to SQL, in rendering order.
var comparisons = []struct{ key, sql string }{
	{"$gt", ">"},
	{"$lt", "<"},
	{"$gte", ">="},
	{"$lte", "<="},
}

// modifiers are operator keys that only qualify another operator.
var modifiers = map[string]string{
	"$options":                 "$regex",
	"$maxDistance":             "$nearSphere",
	"$maxDistanceInRadians":    "$nearSphere",
	"$maxDistanceInKilometers": "$nearSphere",
	"$maxDistanceInMiles":      "$nearSphere",
}

// known lists the operators parse understands.
var known = map[string]bool{
	"$ne": true, "$eq": true, "$in": true, "$nin": true, "$all": true,
	"$exists": true, "$text": true, "$nearSphere": true, "$within": true,
	"$geoWithin": true, "$regex": true, "$gt": true, "$lt": true,
	"$gte": true, "$lte": true,
}

// parse turns the value of a field into clauses, in rendering order.
func (c *compiler) parse(field string, v any) ([]clause, error) {
	switch v := v.(type) {
	case nil:
		return []clause{isNull{}}, nil
	case []any:
		return []clause{eq{operand{kind: valArray, value: v}}}, nil
	case map[string]any:
		if _, ok := v["__type"]; ok {
			op, err := c.operand(field, v)
			if err != nil {
				return nil, err
			}
			return []clause{eq{op}}, nil
		}
		return c.parseOps(field, v)
	}
	if isScalar(v) {
		return []clause{eq{operand{kind: valScalar, value: v}}}, nil
	}
	return nil, docql.NewUnsupportedQueryError(field, v)
}

func (c *compiler) parseOps(field string, m map[string]any) ([]clause, error) {
	for k := range m {
		if known[k] {
			continue
		}
		if op, ok := modifiers[k]; ok {
			if _, ok := m[op]; ok {
				continue
			}
		}
		return nil, docql.NewUnsupportedQueryError(field, m)
	}
	var cs []clause
	add := func(cl clause, err error) error {
		if err != nil {
			return err
		}
		cs = append(cs, cl)
		return nil
	}
	if v, ok := m["$ne"]; ok {
		op, err := c.operand(field, v)
		if err := add(ne{op}, err); err != nil {
			return nil, err
		}
	}
	if v, ok := m["$eq"]; ok {
		op, err := c.operand(field, v)
		if err := add(eq{op}, err); err != nil {
			return nil, err
		}
	}
	for _, key := range []string{"$in", "$nin"} {
		if v, ok := m[key]; ok {
			if err := add(c.parseIn(field, key, v)); err != nil {
				return nil, err
			}
		}
	}
	if v, ok := m["$all"]; ok {
		elems, ok := v.([]any)
		if !ok {
			return nil, docql.NewValidationError(field, "$all", "expected an array, got %s", docql.Shape(v))
		}
		cs = append(cs, all{elems})
	}
	if v, ok := m["$exists"]; ok {
		want, ok := v.(bool)
		if !ok {
			return nil, docql.NewValidationError(field, "$exists", "expected a boolean, got %s", docql.Shape(v))
		}
		cs = append(cs, exists{want})
	}
	if v, ok := m["$text"]; ok {
		if err := add(c.parseText(field, v)); err != nil {
			return nil, err
		}
	}
	if v, ok := m["$nearSphere"]; ok {
		if err := add(parseNearSphere(field, v, m)); err != nil {
			return nil, err
		}
	}
	if v, ok := m["$within"]; ok {
		if err := add(parseWithin(field, v)); err != nil {
			return nil, err
		}
	}
	if v, ok := m["$geoWithin"]; ok {
		if err := add(parseGeoWithin(field, v)); err != nil {
			return nil, err
		}
	}
	if v, ok := m["$regex"]; ok {
		if err := add(parseRegex(field, v, m["$options"])); err != nil {
			return nil, err
		}
	}
	for _, cmp := range comparisons {
		v, ok := m[cmp.key]
		if !ok {
			continue
		}
		op, err := c.operand(field, v)
		if err != nil {
			return nil, err
		}
		if !op.bindable() {
			return nil, docql.NewUnsupportedQueryError(field, m)
		}
		cs = append(cs, compare{cmp.sql, op})
	}
	return cs, nil
}

// operand parses a comparison value.
func (c *compiler) operand(field string, v any) (operand, error) {
	switch v := v.(type) {
	case nil:
		return operand{kind: valNull}, nil
	case []any:
		return operand{kind: valArray, value: v}, nil
	case map[string]any:
		t, _ := v["__type"].(string)
		switch t {
		case "Pointer":
			if _, ok := v["objectId"].(string); !ok {
				return operand{}, docql.NewValidationError(field, "", "pointer without objectId")
			}
			return operand{kind: valPointer, value: v}, nil
		case "Date":
			ts, err := parseDate(v)
			if err != nil {
				return operand{}, docql.NewValidationError(field, "", "%v", err)
			}
			return operand{kind: valScalar, value: c.caps.TimeValue(ts)}, nil
		case "GeoPoint":
			p, err := geoPoint(v, false)
			if err != nil {
				return operand{}, docql.NewValidationError(field, "", "%v", err)
			}
			return operand{kind: valPoint, point: p}, nil
		case "File":
			if name, ok := v["name"].(string); ok {
				return operand{kind: valScalar, value: name}, nil
			}
		case "Bytes":
			if s, ok := bytesValue(v); ok {
				return operand{kind: valScalar, value: s}, nil
			}
		}
		return operand{}, docql.NewUnsupportedQueryError(field, v)
	}
	if isScalar(v) {
		return operand{kind: valScalar, value: v}, nil
	}
	return operand{}, docql.NewUnsupportedQueryError(field, v)
}

func (c *compiler) parseIn(field, key string, v any) (clause, error) {
	vs, ok := v.([]any)
	if !ok {
		return nil, docql.NewValidationError(field, key, "expected an array, got %s", docql.Shape(v))
	}
	cl := in{not: key == "$nin"}
	for _, e := range vs {
		op, err := c.operand(field, e)
		if err != nil {
			return nil, err
		}
		switch {
		case op.kind == valNull:
			cl.null = true
		case op.bindable():
			cl.elems = append(cl.elems, op)
		default:
			return nil, docql.NewUnsupportedQueryError(field, map[string]any{key: v})
		}
	}
	return cl, nil
}

func (c *compiler) parseText(field string, v any) (clause, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, docql.NewValidationError(field, "$text", "expected an object, got %s", docql.Shape(v))
	}
	search, ok := m["$search"].(map[string]any)
	if !ok {
		return nil, docql.NewValidationError(field, "$text", "$search, should be object")
	}
	term, ok := search["$term"].(string)
	if !ok || term == "" {
		return nil, docql.NewValidationError(field, "$text", "$term, should be string")
	}
	cl := text{term: term, language: c.language}
	if lang, ok := search["$language"]; ok {
		s, ok := lang.(string)
		if !ok {
			return nil, docql.NewValidationError(field, "$text", "$language, should be string")
		}
		cl.language = s
	}
	if cs, ok := search["$caseSensitive"]; ok {
		b, ok := cs.(bool)
		switch {
		case !ok:
			return nil, docql.NewValidationError(field, "$text", "$caseSensitive, should be boolean")
		case b:
			return nil, docql.NewValidationError(field, "$text", "$caseSensitive not supported, please use $regex or create a separate lower case column")
		}
	}
	if ds, ok := search["$diacriticSensitive"]; ok {
		b, ok := ds.(bool)
		switch {
		case !ok:
			return nil, docql.NewValidationError(field, "$text", "$diacriticSensitive, should be boolean")
		case !b:
			return nil, docql.NewValidationError(field, "$text", "$diacriticSensitive - false not supported, install unaccent extension")
		}
	}
	return cl, nil
}

// maxDistances converts distance limits into meters.
var maxDistances = []struct {
	key      string
	toMeters float64
}{
	{"$maxDistance", earthRadiusMeters},
	{"$maxDistanceInRadians", earthRadiusMeters},
	{"$maxDistanceInKilometers", 1000},
	{"$maxDistanceInMiles", earthRadiusMeters / earthRadiusMiles},
}

func parseNearSphere(field string, v any, m map[string]any) (clause, error) {
	p, err := geoPoint(v, false)
	if err != nil {
		return nil, docql.NewValidationError(field, "$nearSphere", "%v", err)
	}
	cl := nearSphere{point: p}
	for _, d := range maxDistances {
		raw, ok := m[d.key]
		if !ok {
			continue
		}
		n, ok := number(raw)
		if !ok || n < 0 {
			return nil, docql.NewValidationError(field, d.key, "expected a non-negative number, got %s", docql.Shape(raw))
		}
		cl.meters, cl.limit = n*d.toMeters, true
		break
	}
	return cl, nil
}

func parseWithin(field string, v any) (clause, error) {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		return nil, docql.NewUnsupportedQueryError(field, map[string]any{"$within": v})
	}
	box, ok := m["$box"].([]any)
	if !ok {
		return nil, docql.NewUnsupportedQueryError(field, map[string]any{"$within": v})
	}
	if len(box) != 2 {
		return nil, docql.NewValidationError(field, "$within", "$box needs exactly 2 points, got %d", len(box))
	}
	sw, err := geoPoint(box[0], false)
	if err != nil {
		return nil, docql.NewValidationError(field, "$box", "%v", err)
	}
	ne, err := geoPoint(box[1], false)
	if err != nil {
		return nil, docql.NewValidationError(field, "$box", "%v", err)
	}
	return withinBox{sw, ne}, nil
}

func parseGeoWithin(field string, v any) (clause, error) {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		return nil, docql.NewUnsupportedQueryError(field, map[string]any{"$geoWithin": v})
	}
	if p, ok := m["$polygon"]; ok {
		ring, err := parsePolygon(p)
		if err != nil {
			return nil, docql.NewValidationError(field, "$geoWithin", "%v", err)
		}
		return withinPolygon{ring}, nil
	}
	if s, ok := m["$centerSphere"]; ok {
		arr, ok := s.([]any)
		if !ok || len(arr) != 2 {
			return nil, docql.NewValidationError(field, "$geoWithin", "$centerSphere should be an array of a point and a distance")
		}
		center, err := geoPoint(arr[0], true)
		if err != nil {
			return nil, docql.NewValidationError(field, "$geoWithin", "$centerSphere: %v", err)
		}
		r, ok := number(arr[1])
		if !ok || r < 0 {
			return nil, docql.NewValidationError(field, "$geoWithin", "$centerSphere distance should be a non-negative number")
		}
		return withinSphere{center, r * earthRadiusMeters}, nil
	}
	return nil, docql.NewUnsupportedQueryError(field, map[string]any{"$geoWithin": v})
}

// parsePolygon returns the closed ring of a $polygon value: an array of
// GeoPoints or [lng, lat] pairs, or a tagged Polygon.
func parsePolygon(v any) ([]sql.Point, error) {
	pts, ok := v.([]any)
	if !ok {
		m, _, isTagged := tagged(v)
		if !isTagged || m["__type"] != "Polygon" {
			return nil, fmt.Errorf("$polygon should be an array of GeoPoints or a Polygon")
		}
		if pts, ok = m["coordinates"].([]any); !ok {
			return nil, fmt.Errorf("Polygon without coordinates")
		}
	}
	if len(pts) < 3 {
		return nil, fmt.Errorf("$polygon needs at least 3 points, got %d", len(pts))
	}
	ring := make([]sql.Point, 0, len(pts)+1)
	for _, e := range pts {
		p, err := geoPoint(e, true)
		if err != nil {
			return nil, err
		}
		ring = append(ring, p)
	}
	if ring[0] != ring[len(ring)-1] {
		ring = append(ring, ring[0])
	}
	return ring, nil
}

func parseRegex(field string, v, options any) (clause, error) {
	p, ok := v.(string)
	if !ok {
		return nil, docql.NewValidationError(field, "$regex", "expected a string, got %s", docql.Shape(v))
	}
	var flags string
	if options != nil {
		if flags, ok = options.(string); !ok {
			return nil, docql.NewValidationError(field, "$options", "expected a string, got %s", docql.Shape(options))
		}
	}
	opts, err := regex.ParseOptions(flags)
	if err != nil {
		return nil, docql.NewValidationError(field, "$options", "%v", err)
	}
	return match{regex.Literalize(p, opts), opts.Insensitive}, nil
}
