package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/syssam/docql/dialect"
	"github.com/syssam/docql/dialect/sql"
	"github.com/syssam/docql/store"
)

// open connects to the configured database. Statements are logged when
// debug is set, otherwise slow statements are and the statement counters
// are logged on close.
func (e *env) open(w io.Writer) (*store.Store, func() error, error) {
	if e.cfg.DSN == "" {
		return nil, nil, errors.New("no dsn configured")
	}
	logger := e.logger(w)
	d, closer, err := e.driver(logger)
	if err != nil {
		return nil, nil, err
	}
	st, err := store.New(d,
		store.WithSchemas(store.StaticSchemas(e.classes)),
		store.WithLanguage(e.cfg.Language),
		store.WithStatementTimeout(e.cfg.StatementTimeout),
		store.WithLogger(logger),
	)
	if err != nil {
		closer()
		return nil, nil, err
	}
	return st, closer, nil
}

func (e *env) driver(logger *slog.Logger) (dialect.Driver, func() error, error) {
	switch {
	case e.cfg.Debug:
		drv, err := sql.Open(e.cfg.Dialect, e.cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return sql.NewDebugDriver(drv, sql.DebugWithLog(func(ctx context.Context, v ...any) {
			logger.DebugContext(ctx, fmt.Sprint(v...))
		})), drv.Close, nil
	case e.cfg.SlowThreshold > 0:
		drv, stats, err := sql.OpenWithStats(e.cfg.Dialect, e.cfg.DSN,
			sql.WithSlowThreshold(e.cfg.SlowThreshold),
			sql.WithSlowQueryLog(logger),
		)
		if err != nil {
			return nil, nil, err
		}
		return drv, func() error {
			logger.Debug("query stats", "stats", stats.Stats().String())
			return drv.Close()
		}, nil
	default:
		drv, err := sql.Open(e.cfg.Dialect, e.cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return drv, drv.Close, nil
	}
}

func newFindCmd(opts *options) *cobra.Command {
	var (
		class string
		fo    store.FindOptions
	)
	cmd := &cobra.Command{
		Use:   "find [file]",
		Short: "Print the rows matching a query document",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.load()
			if err != nil {
				return err
			}
			where, err := readDoc(cmd, args)
			if err != nil {
				return err
			}
			st, closer, err := e.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closer()
			rows, err := st.Find(cmd.Context(), class, where, fo)
			if err != nil {
				return err
			}
			if rows == nil {
				rows = []map[string]any{}
			}
			return writeJSON(cmd, rows)
		},
	}
	f := cmd.Flags()
	f.StringVar(&class, "class", "", "Class to query")
	f.StringSliceVar(&fo.Keys, "keys", nil, "Columns to return")
	f.StringSliceVar(&fo.Sort, "sort", nil, "Sort columns, prefix with - for descending order")
	f.IntVar(&fo.Limit, "limit", 0, "Maximum number of rows")
	f.IntVar(&fo.Skip, "skip", 0, "Number of rows to skip")
	_ = cmd.MarkFlagRequired("class")
	return cmd
}

func newCountCmd(opts *options) *cobra.Command {
	var class string
	cmd := &cobra.Command{
		Use:   "count [file]",
		Short: "Count the rows matching a query document",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.load()
			if err != nil {
				return err
			}
			where, err := readDoc(cmd, args)
			if err != nil {
				return err
			}
			st, closer, err := e.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closer()
			n, err := st.Count(cmd.Context(), class, where)
			if err != nil {
				return err
			}
			return writeJSON(cmd, map[string]int64{"count": n})
		},
	}
	cmd.Flags().StringVar(&class, "class", "", "Class to count")
	_ = cmd.MarkFlagRequired("class")
	return cmd
}
