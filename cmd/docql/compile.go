package main

import (
	"github.com/spf13/cobra"

	"github.com/syssam/docql/dialect/sql"
	"github.com/syssam/docql/query"
	"github.com/syssam/docql/update"
)

type fragmentOutput struct {
	Text      string   `json:"text"`
	Values    []any    `json:"values"`
	Sorts     []string `json:"sorts,omitempty"`
	NextIndex int      `json:"nextIndex,omitempty"`
}

type statementOutput struct {
	SQL  string `json:"sql"`
	Args []any  `json:"args"`
}

func newCompileQueryCmd(opts *options) *cobra.Command {
	var (
		class  string
		start  int
		render bool
	)
	cmd := &cobra.Command{
		Use:   "compile-query [file]",
		Short: "Compile a query document to a WHERE fragment",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.load()
			if err != nil {
				return err
			}
			doc, err := readDoc(cmd, args)
			if err != nil {
				return err
			}
			f, err := query.Compile(e.caps, e.class(class), doc, start, query.WithLanguage(e.cfg.Language))
			if err != nil {
				return err
			}
			if !render {
				return writeJSON(cmd, fragmentOutput{Text: f.Text(), Values: f.Values(), Sorts: f.Sorts()})
			}
			stmt := sql.NewStatement().WriteString("SELECT * FROM ").Table(class)
			if !f.IsEmpty() {
				stmt.WriteString(" WHERE ").Fragment(f)
			}
			for i, s := range f.SortExprs() {
				if i == 0 {
					stmt.WriteString(" ORDER BY ")
				} else {
					stmt.WriteString(", ")
				}
				stmt.Expr(s, f)
			}
			return writeStatement(cmd, e, stmt)
		},
	}
	cmd.Flags().StringVar(&class, "class", "", "Class the document applies to")
	cmd.Flags().IntVar(&start, "start", 1, "First placeholder index")
	cmd.Flags().BoolVar(&render, "sql", false, "Render a complete SELECT statement")
	_ = cmd.MarkFlagRequired("class")
	return cmd
}

func newCompileUpdateCmd(opts *options) *cobra.Command {
	var (
		class  string
		start  int
		render bool
	)
	cmd := &cobra.Command{
		Use:   "compile-update [file]",
		Short: "Compile an update document to a SET fragment",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.load()
			if err != nil {
				return err
			}
			doc, err := readDoc(cmd, args)
			if err != nil {
				return err
			}
			res, err := update.Compile(e.caps, e.class(class), doc, start)
			if err != nil {
				return err
			}
			if !render {
				return writeJSON(cmd, fragmentOutput{Text: res.Text(), Values: res.Values(), NextIndex: res.NextIndex})
			}
			stmt := sql.NewStatement().
				WriteString("UPDATE ").Table(class).
				WriteString(" SET ").Fragment(res.Fragment)
			return writeStatement(cmd, e, stmt)
		},
	}
	cmd.Flags().StringVar(&class, "class", "", "Class the document applies to")
	cmd.Flags().IntVar(&start, "start", 1, "First placeholder index")
	cmd.Flags().BoolVar(&render, "sql", false, "Render an UPDATE statement without WHERE clause")
	_ = cmd.MarkFlagRequired("class")
	return cmd
}

func writeStatement(cmd *cobra.Command, e *env, stmt *sql.Statement) error {
	q, args, err := stmt.Render(e.caps)
	if err != nil {
		return err
	}
	return writeJSON(cmd, statementOutput{SQL: q, Args: args})
}
