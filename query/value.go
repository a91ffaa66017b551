package query

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/syssam/docql/dialect/sql"
)

// Earth's mean radius, used to turn radians into distances.
const (
	earthRadiusMeters = 6371 * 1000
	earthRadiusMiles  = 3958.8
)

// number returns v as a float64 if it is a number.
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
	case uint:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

// isScalar reports if v is a bare string, number or boolean.
func isScalar(v any) bool {
	switch v.(type) {
	case string, bool:
		return true
	}
	_, ok := number(v)
	return ok
}

// tagged returns the __type of a tagged value.
func tagged(v any) (map[string]any, string, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, "", false
	}
	t, ok := m["__type"].(string)
	return m, t, ok
}

// unwrapPointer is the final value pass: tagged Pointers are bound as
// their objectId.
func unwrapPointer(v any) any {
	if m, t, ok := tagged(v); ok && t == "Pointer" {
		return m["objectId"]
	}
	return v
}

// parseDate returns the time of a tagged Date value.
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

// geoPoint returns the point of a tagged GeoPoint, or of a [lng, lat] pair
// when pairs is set.
func geoPoint(v any, pairs bool) (sql.Point, error) {
	var lat, lng float64
	switch v := v.(type) {
	case map[string]any:
		if t, _ := v["__type"].(string); t != "GeoPoint" {
			return sql.Point{}, fmt.Errorf("expected a GeoPoint")
		}
		var ok1, ok2 bool
		lat, ok1 = number(v["latitude"])
		lng, ok2 = number(v["longitude"])
		if !ok1 || !ok2 {
			return sql.Point{}, fmt.Errorf("GeoPoint latitude and longitude must be numbers")
		}
	case []any:
		if !pairs || len(v) != 2 {
			return sql.Point{}, fmt.Errorf("expected a GeoPoint")
		}
		var ok1, ok2 bool
		lng, ok1 = number(v[0])
		lat, ok2 = number(v[1])
		if !ok1 || !ok2 {
			return sql.Point{}, fmt.Errorf("coordinates must be numbers")
		}
	default:
		return sql.Point{}, fmt.Errorf("expected a GeoPoint")
	}
	switch {
	case math.IsNaN(lat) || lat < -90 || lat > 90:
		return sql.Point{}, fmt.Errorf("latitude %v out of bounds [-90, 90]", lat)
	case math.IsNaN(lng) || lng < -180 || lng > 180:
		return sql.Point{}, fmt.Errorf("longitude %v out of bounds [-180, 180]", lng)
	}
	return sql.Point{Lng: lng, Lat: lat}, nil
}

// jsonDoc encodes v as a JSON document bound as a value.
func jsonDoc(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// bytesValue returns the base64 payload of a tagged Bytes value.
func bytesValue(m map[string]any) (string, bool) {
	s, ok := m["base64"].(string)
	if !ok {
		return "", false
	}
	if _, err := base64.StdEncoding.DecodeString(s); err != nil {
		return "", false
	}
	return s, true
}
