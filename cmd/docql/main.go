// Command docql compiles query and update documents to SQL and runs them.
//
//	echo '{"score": {"$gte": 1000}}' | docql compile-query --class GameScore
//	docql --schema GameScore.jsonc compile-update --class GameScore update.jsonc
//	docql --config docql.yaml find --class GameScore --limit 10 where.jsonc
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"github.com/tailscale/hujson"

	"github.com/syssam/docql/config"
	"github.com/syssam/docql/dialect/sql"
	"github.com/syssam/docql/schema"
)

// Version is set by the build.
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options are the persistent flags.
type options struct {
	configPath string
	dialect    string
	schemas    []string
	language   string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "docql",
		Short:         "Compile document queries and updates to SQL",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	f := cmd.PersistentFlags()
	f.StringVar(&opts.configPath, "config", "docql.yaml", "Path to config file")
	f.StringVar(&opts.dialect, "dialect", "", "SQL dialect, mysql or postgres (overrides config)")
	f.StringSliceVar(&opts.schemas, "schema", nil, "Class document files (overrides config)")
	f.StringVar(&opts.language, "language", "", "Default $text search language (overrides config)")

	cmd.AddCommand(
		newCompileQueryCmd(opts),
		newCompileUpdateCmd(opts),
		newSchemaCmd(opts),
		newFindCmd(opts),
		newCountCmd(opts),
	)
	return cmd
}

// env is the resolved configuration of one command run.
type env struct {
	cfg     *config.Config
	caps    sql.Capabilities
	classes map[string]*schema.Class
}

func (o *options) load() (*env, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.dialect != "" {
		cfg.Dialect = o.dialect
	}
	if len(o.schemas) > 0 {
		cfg.Schemas = o.schemas
	}
	if o.language != "" {
		cfg.Language = o.language
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	caps, err := sql.CapabilitiesFor(cfg.Dialect)
	if err != nil {
		return nil, err
	}
	classes, err := schema.LoadAll(cfg.Schemas...)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, caps: caps, classes: classes}, nil
}

// class returns the internal schema of name. Unknown classes have no
// fields.
func (e *env) class(name string) *schema.Class {
	if c, ok := e.classes[name]; ok {
		return schema.ToInternal(c)
	}
	return &schema.Class{ClassName: name, Fields: map[string]*schema.Field{}}
}

func (e *env) logger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if e.cfg.Debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// readDoc reads a JSONC document from the file named by args, or from
// stdin when args is empty or "-".
func readDoc(cmd *cobra.Command, args []string) (map[string]any, error) {
	var (
		data []byte
		err  error
	)
	if len(args) == 0 || args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]any{}, nil
	}
	std, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("invalid JSONC: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(std, &doc); err != nil {
		return nil, fmt.Errorf("document is not an object: %w", err)
	}
	return doc, nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
