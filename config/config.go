// Package config loads the docql configuration file.
//
//	dialect: postgres
//	dsn: postgres://localhost/app?sslmode=disable
//	slow_threshold: 250ms
//	statement_timeout: 30s
//	language: english
//	schemas:
//	  - schema/GameScore.jsonc
//	  - schema/_User.jsonc
//
// The DSN may reference environment variables as $VAR or ${VAR}.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/syssam/docql/dialect"
)

// Defaults.
const (
	DefaultDialect       = dialect.Postgres
	DefaultSlowThreshold = 100 * time.Millisecond
	DefaultLanguage      = "english"
)

// Config is the docql configuration.
type Config struct {
	// Dialect is the SQL dialect to compile for: mysql or postgres.
	Dialect string `yaml:"dialect,omitempty"`

	// DSN is the data source name used by commands that execute
	// statements.
	DSN string `yaml:"dsn,omitempty"`

	// SlowThreshold is the duration above which statements are logged as
	// slow. Zero disables slow statement logging.
	SlowThreshold time.Duration `yaml:"slow_threshold,omitempty"`

	// StatementTimeout aborts reads running longer than it. Zero means
	// no limit.
	StatementTimeout time.Duration `yaml:"statement_timeout,omitempty"`

	// Language is the default $text search language.
	Language string `yaml:"language,omitempty"`

	// Debug logs every executed statement.
	Debug bool `yaml:"debug,omitempty"`

	// Schemas are the class documents, relative to the configuration
	// file.
	Schemas StringList `yaml:"schemas,omitempty"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Dialect:       DefaultDialect,
		SlowThreshold: DefaultSlowThreshold,
		Language:      DefaultLanguage,
	}
}

// StringList is a YAML value that is either a string or a list of strings.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler for StringList.
func (s *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*s = []string{node.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*s = list
		return nil
	default:
		return fmt.Errorf("expected string or list, got %v", node.Kind)
	}
}

// MarshalYAML implements yaml.Marshaler for StringList.
func (s StringList) MarshalYAML() (any, error) {
	if len(s) == 1 {
		return s[0], nil
	}
	return []string(s), nil
}

// Load reads the configuration file at path over the defaults. A missing
// file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := Parse(data, cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	dir := filepath.Dir(path)
	for i, p := range cfg.Schemas {
		if !filepath.IsAbs(p) {
			cfg.Schemas[i] = filepath.Join(dir, p)
		}
	}
	return cfg, nil
}

// Parse decodes data into cfg and validates the result. Keys missing from
// data keep their value in cfg.
func Parse(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	cfg.DSN = os.ExpandEnv(cfg.DSN)
	return cfg.Validate()
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case !dialect.Supported(c.Dialect):
		return fmt.Errorf("unsupported dialect %q", c.Dialect)
	case c.SlowThreshold < 0:
		return fmt.Errorf("negative slow_threshold %s", c.SlowThreshold)
	case c.StatementTimeout < 0:
		return fmt.Errorf("negative statement_timeout %s", c.StatementTimeout)
	case c.Language == "":
		return errors.New("empty language")
	}
	return nil
}

// String returns the configuration as YAML.
func (c *Config) String() string {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(data)
}
