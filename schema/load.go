package schema

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tailscale/hujson"
)

// Parse decodes a class document. Comments and trailing commas are
// allowed.
//
//	{
//	    // scores of one game
//	    "className": "GameScore",
//	    "fields": {
//	        "score": {"type": "Number"},
//	    },
//	}
func Parse(data []byte) (*Class, error) {
	std, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("schema: invalid JSONC: %w", err)
	}
	var c Class
	if err := json.Unmarshal(std, &c); err != nil {
		return nil, fmt.Errorf("schema: invalid class document: %w", err)
	}
	if c.ClassName == "" {
		return nil, fmt.Errorf("schema: class document without className")
	}
	if c.Fields == nil {
		c.Fields = make(map[string]*Field)
	}
	return &c, nil
}

// Load reads and parses the class document at path.
func Load(path string) (*Class, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: read %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// LoadAll loads the class documents at paths, keyed by class name.
func LoadAll(paths ...string) (map[string]*Class, error) {
	out := make(map[string]*Class, len(paths))
	for _, p := range paths {
		c, err := Load(p)
		if err != nil {
			return nil, err
		}
		if _, ok := out[c.ClassName]; ok {
			return nil, fmt.Errorf("schema: class %q defined twice (%s)", c.ClassName, p)
		}
		out[c.ClassName] = c
	}
	return out, nil
}
