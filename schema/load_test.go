package schema_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/docql/schema"
)

const gameScoreDoc = `{
	// scores of one game
	"className": "GameScore",
	"fields": {
		"score":  {"type": "Number"},
		"player": {"type": "Pointer", "targetClass": "_User"},
		"tags":   {"type": "Array", "contents": {"type": "String"}},
	},
}`

func TestParse(t *testing.T) {
	c, err := schema.Parse([]byte(gameScoreDoc))
	require.NoError(t, err)
	assert.Equal(t, gameScore(), c)

	c, err = schema.Parse([]byte(`{"className": "Empty"}`))
	require.NoError(t, err)
	assert.NotNil(t, c.Fields)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		msg  string
	}{
		{name: "syntax", doc: `{"className": `, msg: "invalid JSONC"},
		{name: "type", doc: `{"className": "A", "fields": {"a": {"type": "Money"}}}`, msg: `unknown field type "Money"`},
		{name: "class name", doc: `{"fields": {}}`, msg: "without className"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := schema.Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestLoadAll(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.jsonc")
	b := filepath.Join(dir, "b.jsonc")
	require.NoError(t, os.WriteFile(a, []byte(gameScoreDoc), 0o600))
	require.NoError(t, os.WriteFile(b, []byte(`{"className": "_User"}`), 0o600))

	classes, err := schema.LoadAll(a, b)
	require.NoError(t, err)
	assert.Len(t, classes, 2)
	assert.Equal(t, gameScore(), classes["GameScore"])

	_, err = schema.LoadAll(a, a)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "defined twice")

	_, err = schema.LoadAll(filepath.Join(dir, "missing.jsonc"))
	require.Error(t, err)
}
