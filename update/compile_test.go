package update

import (
	"context"
	stdsql "database/sql"
	"strconv"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/syssam/docql"
	"github.com/syssam/docql/dialect/sql"
	"github.com/syssam/docql/schema"
)

var gameScore = schema.ToInternal(&schema.Class{
	ClassName: "GameScore",
	Fields: map[string]*schema.Field{
		"playerName": {Type: schema.TypeString},
		"score":      {Type: schema.TypeNumber},
		"cheatMode":  {Type: schema.TypeBoolean},
		"updatedAt":  {Type: schema.TypeDate},
		"tags":       {Type: schema.TypeArray},
		"owner":      {Type: schema.TypePointer, TargetClass: "_User"},
		"location":   {Type: schema.TypeGeoPoint},
		"stats":      {Type: schema.TypeObject},
		"authData":   {Type: schema.TypeObject},
		"friends":    {Type: schema.TypeRelation, TargetClass: "_User"},
	},
})

type M = map[string]any

func TestCompile(t *testing.T) {
	tests := []struct {
		name   string
		doc    M
		text   string
		values []any
	}{
		{
			name: "empty",
			doc:  M{},
		},
		{
			name:   "increment",
			doc:    M{"score": M{"__op": "Increment", "amount": 5.0}},
			text:   "$1:name = COALESCE($2:name, 0) + $3",
			values: []any{"score", "score", 5.0},
		},
		{
			name:   "null",
			doc:    M{"playerName": nil},
			text:   "$1:name = NULL",
			values: []any{"playerName"},
		},
		{
			name:   "delete",
			doc:    M{"playerName": M{"__op": "Delete"}},
			text:   "$1:name = NULL",
			values: []any{"playerName"},
		},
		{
			name:   "scalars in key order",
			doc:    M{"playerName": "Sean", "cheatMode": true, "score": 3.0},
			text:   "$1:name = $2, $3:name = $4, $5:name = $6",
			values: []any{"cheatMode", true, "playerName", "Sean", "score", 3.0},
		},
		{
			name:   "pointer",
			doc:    M{"owner": M{"__type": "Pointer", "className": "_User", "objectId": "abc"}},
			text:   "$1:name = $2",
			values: []any{"owner", "abc"},
		},
		{
			name:   "date",
			doc:    M{"expiresOn": M{"__type": "Date", "iso": "2024-01-02T03:04:05.678Z"}},
			text:   "$1:name = $2",
			values: []any{"expiresOn", "2024-01-02T03:04:05.678Z"},
		},
		{
			name:   "reserved timestamp",
			doc:    M{"updatedAt": "2024-01-02T03:04:05.678Z"},
			text:   "$1:name = $2",
			values: []any{"updatedAt", "2024-01-02 03:04:05"},
		},
		{
			name:   "file",
			doc:    M{"avatar": M{"__type": "File", "name": "pic.png", "url": "http://x/pic.png"}},
			text:   "$1:name = $2",
			values: []any{"avatar", "pic.png"},
		},
		{
			name:   "geopoint",
			doc:    M{"location": M{"__type": "GeoPoint", "latitude": 10.0, "longitude": 20.0}},
			text:   "$1:name = POINT($2, $3)",
			values: []any{"location", 20.0, 10.0},
		},
		{
			name: "relation",
			doc:  M{"friends": M{"__type": "Relation", "className": "_User"}},
		},
		{
			name:   "relation next to a value",
			doc:    M{"friends": M{"__type": "Relation", "className": "_User"}, "score": 1.0},
			text:   "$1:name = $2",
			values: []any{"score", 1.0},
		},
		{
			name:   "add",
			doc:    M{"tags": M{"__op": "Add", "objects": []any{"a"}}},
			text:   "$1:name = COALESCE($2:name, '[]'::jsonb) || $3::jsonb",
			values: []any{"tags", "tags", `["a"]`},
		},
		{
			name: "remove",
			doc:  M{"tags": M{"__op": "Remove", "objects": []any{"a"}}},
			text: "$1:name = (SELECT COALESCE(jsonb_agg(elt), '[]'::jsonb) " +
				"FROM jsonb_array_elements(COALESCE($2:name, '[]'::jsonb)) AS elt " +
				"WHERE elt NOT IN (SELECT jsonb_array_elements($3::jsonb)))",
			values: []any{"tags", "tags", `["a"]`},
		},
		{
			name: "add unique",
			doc:  M{"tags": M{"__op": "AddUnique", "objects": []any{"a", 1.0}}},
			text: "$1:name = COALESCE($2:name, '[]'::jsonb) || " +
				"(SELECT COALESCE(jsonb_agg(DISTINCT elt), '[]'::jsonb) " +
				"FROM jsonb_array_elements($3::jsonb) AS elt " +
				"WHERE elt NOT IN (SELECT jsonb_array_elements(COALESCE($4:name, '[]'::jsonb))))",
			values: []any{"tags", "tags", `["a",1]`, "tags"},
		},
		{
			name:   "array",
			doc:    M{"tags": []any{"a", "b"}},
			text:   "$1:name = $2::jsonb",
			values: []any{"tags", `["a","b"]`},
		},
		{
			name: "auth data",
			doc: M{
				"_auth_data_facebook": M{"id": "1"},
				"_auth_data_twitter":  M{"__op": "Delete"},
			},
			text: "$1:name = (jsonb_set(COALESCE($2:name, '{}'::jsonb), $3::text[], $4::jsonb) #- $5::text[])",
			values: []any{
				"authData", "authData",
				pq.StringArray{"facebook"}, `{"id":"1"}`,
				pq.StringArray{"twitter"},
			},
		},
		{
			name:   "object merge",
			doc:    M{"stats": M{"a": 1.0}},
			text:   "$1:name = (COALESCE($2:name, '{}'::jsonb) || $3::jsonb)",
			values: []any{"stats", "stats", `{"a":1}`},
		},
		{
			name: "object dotted",
			doc: M{
				"stats.level": M{"__op": "Increment", "amount": 1.0},
				"stats.old":   M{"__op": "Delete"},
				"stats.rank":  "gold",
			},
			text: "$1:name = (jsonb_set((COALESCE($2:name, '{}'::jsonb) #- $3::text[]), $4::text[], " +
				"to_jsonb(COALESCE(($5:name #>> $6::text[])::numeric, 0) + $7)) || $8::jsonb)",
			values: []any{
				"stats", "stats",
				pq.StringArray{"old"},
				pq.StringArray{"level"}, "stats", pq.StringArray{"level"}, 1.0,
				`{"rank":"gold"}`,
			},
		},
		{
			name:   "object deep dotted",
			doc:    M{"stats.a.b": 1.0, "stats": M{"c": true}},
			text:   "$1:name = (COALESCE($2:name, '{}'::jsonb) || $3::jsonb)",
			values: []any{"stats", "stats", `{"a":{"b":1},"c":true}`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Compile(sql.Postgres(), gameScore, tt.doc, 1)
			require.NoError(t, err)
			assert.Equal(t, tt.text, res.Text())
			if tt.values == nil {
				assert.Empty(t, res.Values())
			} else {
				assert.Equal(t, tt.values, res.Values())
			}
			assert.Equal(t, 1+len(res.Values()), res.NextIndex)
		})
	}
}

func TestCompileMySQL(t *testing.T) {
	tests := []struct {
		name   string
		doc    M
		text   string
		values []any
	}{
		{
			name:   "reserved timestamp",
			doc:    M{"updatedAt": M{"__type": "Date", "iso": "2024-01-02T03:04:05.678Z"}},
			text:   "$1:name = $2",
			values: []any{"updatedAt", "2024-01-02 03:04:05"},
		},
		{
			name:   "add",
			doc:    M{"tags": M{"__op": "Add", "objects": []any{"a"}}},
			text:   "$1:name = JSON_MERGE_PRESERVE(COALESCE($2:name, JSON_ARRAY()), CAST($3 AS JSON))",
			values: []any{"tags", "tags", `["a"]`},
		},
		{
			name: "object dotted",
			doc: M{
				"stats.level": M{"__op": "Increment", "amount": 2.0},
				"stats.old":   M{"__op": "Delete"},
				"stats.rank":  "gold",
			},
			text: "$1:name = JSON_MERGE_PATCH(JSON_SET(JSON_REMOVE(COALESCE($2:name, JSON_OBJECT()), $3), " +
				"$4, COALESCE(JSON_EXTRACT($5:name, $6), 0) + $7), CAST($8 AS JSON))",
			values: []any{"stats", "stats", `$."old"`, `$."level"`, "stats", `$."level"`, 2.0, `{"rank":"gold"}`},
		},
		{
			name:   "auth data",
			doc:    M{"authData": M{"anonymous": M{"id": "x"}}},
			text:   "$1:name = JSON_SET(COALESCE($2:name, JSON_OBJECT()), $3, CAST($4 AS JSON))",
			values: []any{"authData", "authData", `$."anonymous"`, `{"id":"x"}`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Compile(sql.MySQL(), gameScore, tt.doc, 1)
			require.NoError(t, err)
			assert.Equal(t, tt.text, res.Text())
			assert.Equal(t, tt.values, res.Values())
		})
	}
}

func TestCompileNextIndex(t *testing.T) {
	res, err := Compile(sql.Postgres(), gameScore, M{"playerName": "a", "score": 1.0}, 4)
	require.NoError(t, err)
	assert.Equal(t, "$4:name = $5, $6:name = $7", res.Text())
	assert.Equal(t, 8, res.NextIndex)

	res, err = Compile(sql.Postgres(), gameScore, M{"friends": M{"__type": "Relation"}}, 4)
	require.NoError(t, err)
	assert.True(t, res.IsEmpty())
	assert.Equal(t, 4, res.NextIndex)
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name  string
		doc   M
		is    error
		field string
	}{
		{"increment amount", M{"score": M{"__op": "Increment", "amount": "x"}}, docql.ErrValidation, "score"},
		{"add objects", M{"tags": M{"__op": "Add", "objects": "x"}}, docql.ErrValidation, "tags"},
		{"unknown op", M{"score": M{"__op": "Batch"}}, docql.ErrUnsupportedShape, "score"},
		{"dotted on string", M{"playerName.a": 1.0}, docql.ErrUnsupportedShape, "playerName"},
		{"dotted unknown op", M{"stats.level": M{"__op": "Add", "objects": []any{}}}, docql.ErrUnsupportedShape, "stats.level"},
		{"object on string", M{"playerName": M{"a": 1.0}}, docql.ErrUnsupportedShape, "playerName"},
		{"array on string", M{"playerName": []any{"a"}}, docql.ErrUnsupportedShape, "playerName"},
		{"nested key with dot", M{"stats": M{"a.b": 1.0}}, docql.ErrNestedKey, ""},
		{"nested key with dollar", M{"stats": M{"$inc": 1.0}}, docql.ErrNestedKey, ""},
		{"dotted key with dollar", M{"stats.$a": 1.0}, docql.ErrNestedKey, ""},
		{"empty path component", M{"stats..a": 1.0}, docql.ErrNestedKey, ""},
		{"bad timestamp", M{"updatedAt": "yesterday"}, docql.ErrValidation, "updatedAt"},
		{"invalid field name", M{"bad-name": 1.0}, docql.ErrValidation, "bad-name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Compile(sql.Postgres(), gameScore, tt.doc, 1)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, tt.is)
			if tt.field != "" {
				assert.Contains(t, err.Error(), strconv.Quote(tt.field))
			}
		})
	}
}

func TestCompileUnsupportedShape(t *testing.T) {
	_, err := Compile(sql.Postgres(), gameScore, M{"score": M{"__op": "Batch"}}, 1)
	var e *docql.UnsupportedShapeError
	require.ErrorAs(t, err, &e)
	assert.True(t, e.Update)
	assert.Equal(t, `docql: unsupported update on field "score": op Batch`, err.Error())
}

// TestIncrementNotIdempotent applies the same compiled increment twice on
// an in-memory database: each application adds the amount again.
func TestIncrementNotIdempotent(t *testing.T) {
	ctx := context.Background()
	db, err := stdsql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()
	db.SetMaxOpenConns(1)
	_, err = db.ExecContext(ctx, "CREATE TABLE GameScore (objectId TEXT PRIMARY KEY, score REAL)")
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, "INSERT INTO GameScore (objectId) VALUES ('a')")
	require.NoError(t, err)

	res, err := Compile(sql.MySQL(), gameScore, M{"score": M{"__op": "Increment", "amount": 5.0}}, 1)
	require.NoError(t, err)
	query, args, err := sql.NewStatement().
		WriteString("UPDATE ").Table("GameScore").
		WriteString(" SET ").Fragment(res.Fragment).
		WriteString(" WHERE objectId = ").Value("a").
		Render(sql.MySQL())
	require.NoError(t, err)
	assert.Equal(t, "UPDATE `GameScore` SET `score` = COALESCE(`score`, 0) + ? WHERE objectId = ?", query)

	var scores []float64
	for range 2 {
		_, err := db.ExecContext(ctx, query, args...)
		require.NoError(t, err)
		var score float64
		require.NoError(t, db.QueryRowContext(ctx, "SELECT score FROM GameScore WHERE objectId = 'a'").Scan(&score))
		scores = append(scores, score)
	}
	assert.Equal(t, []float64{5, 10}, scores)
	assert.NotEqual(t, scores[0], scores[1])
}

func TestCompileUserTimestamps(t *testing.T) {
	user := schema.ToInternal(&schema.Class{ClassName: schema.UserClass, Fields: map[string]*schema.Field{}})
	res, err := Compile(sql.Postgres(), user, M{
		schema.PerishableTokenExpiresAt: M{"__type": "Date", "iso": "2024-01-02T03:04:05.678Z"},
		schema.FailedLoginCount:         M{"__op": "Increment", "amount": 1.0},
	}, 1)
	require.NoError(t, err)
	assert.Equal(t, "$1:name = COALESCE($2:name, 0) + $3, $4:name = $5", res.Text())
	assert.Equal(t, []any{
		schema.FailedLoginCount, schema.FailedLoginCount, 1.0,
		schema.PerishableTokenExpiresAt, "2024-01-02 03:04:05",
	}, res.Values())
}

func BenchmarkCompile(b *testing.B) {
	doc := M{
		"score":       M{"__op": "Increment", "amount": 1.0},
		"tags":        M{"__op": "AddUnique", "objects": []any{"a", "b"}},
		"stats.level": M{"__op": "Increment", "amount": 1.0},
		"stats.rank":  "gold",
		"updatedAt":   "2024-01-02T03:04:05.678Z",
	}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := Compile(sql.Postgres(), gameScore, doc, 1); err != nil {
			b.Fatal(err)
		}
	}
}
