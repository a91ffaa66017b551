package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/syssam/docql/schema"
)

func newSchemaCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect class documents",
	}
	cmd.AddCommand(newSchemaViewCmd(opts), newSchemaValidateCmd(opts))
	return cmd
}

func newSchemaViewCmd(opts *options) *cobra.Command {
	var internal bool
	cmd := &cobra.Command{
		Use:   "view [file...]",
		Short: "Print the external or internal view of classes",
		RunE: func(cmd *cobra.Command, args []string) error {
			classes, err := loadClasses(opts, args)
			if err != nil {
				return err
			}
			view := schema.ToExternal
			if internal {
				view = schema.ToInternal
			}
			out := make([]*schema.Class, 0, len(classes))
			for _, c := range classes {
				out = append(out, view(c))
			}
			return writeJSON(cmd, out)
		},
	}
	cmd.Flags().BoolVar(&internal, "internal", false, "Print the storage view with implicit fields")
	return cmd
}

func newSchemaValidateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file...]",
		Short: "Validate class documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			classes, err := loadClasses(opts, args)
			if err != nil {
				return err
			}
			failed := 0
			for _, c := range classes {
				res := schema.Validate(c)
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", c.ClassName, res)
				if res.HasErrors() {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d invalid classes", failed)
			}
			return nil
		},
	}
}

// loadClasses loads the files in args, or the configured schemas, sorted
// by class name.
func loadClasses(opts *options, args []string) ([]*schema.Class, error) {
	var m map[string]*schema.Class
	if len(args) > 0 {
		var err error
		if m, err = schema.LoadAll(args...); err != nil {
			return nil, err
		}
	} else {
		e, err := opts.load()
		if err != nil {
			return nil, err
		}
		m = e.classes
	}
	out := make([]*schema.Class, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClassName < out[j].ClassName })
	return out, nil
}
