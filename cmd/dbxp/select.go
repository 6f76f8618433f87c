package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dbxp/spartan/internal/query/attribute"
	"github.com/dbxp/spartan/internal/query/build"
	"github.com/dbxp/spartan/internal/query/plan"
)

func newSelectCmd() *cobra.Command {
	qf := queryFlags{}
	cmd := &cobra.Command{
		Use:   "select TABLE [TABLE2 ...]",
		Short: "build, rewrite and run a query tree over one or more tables",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, sf, err := loadCatalog(cfg.DataDir)
			if err != nil {
				return err
			}
			attrs, err := qf.attributes()
			if err != nil {
				return err
			}
			ast, err := qf.ast()
			if err != nil {
				return err
			}
			t, err := build.Build(cat, build.Query{Relations: args, Where: ast, Attributes: attrs, Distinct: qf.distinct})
			if err != nil {
				return err
			}

			reg := newRegistry(cfg.DataDir, cat, sf, cfg.LockTimeout())
			defer reg.Close()
			ex, handlers, err := build.Prepare(cmd.Context(), reg, cat, t)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			return build.Drain(cmd.Context(), ex, handlers, func(row plan.Row, visible []attribute.Field) error {
				parts := make([]string, 0, len(visible))
				for _, a := range visible {
					tup, ok := row.Tuples[a.Table]
					if !ok {
						return fmt.Errorf("dbxp: result row missing tuple for %s", a.Table)
					}
					f, err := cat.Field(a.Table, a.Name)
					if err != nil {
						return err
					}
					parts = append(parts, decodeField(f, tup.Buf))
				}
				fmt.Fprintf(out, "(%s)\n", strings.Join(parts, ","))
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVar(&qf.where, "where", nil, "table.field<op>value restriction or table.field<op>table2.field join key, op one of = != < <= > >= (repeatable)")
	cmd.Flags().StringArrayVar(&qf.project, "project", nil, "table.field to include in the result (repeatable; default is every field of every table)")
	cmd.Flags().BoolVar(&qf.distinct, "distinct", false, "wrap the result in DISTINCT")
	return cmd
}
