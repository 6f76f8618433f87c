package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbxp/spartan/internal/query/build"
	"github.com/dbxp/spartan/internal/query/explain"
)

func newExplainCmd() *cobra.Command {
	qf := queryFlags{}
	cmd := &cobra.Command{
		Use:   "explain TABLE [TABLE2 ...]",
		Short: "print the rewritten query tree as a box diagram, without running it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, _, err := loadCatalog(cfg.DataDir)
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
			fmt.Fprint(cmd.OutOrStdout(), explain.Render(t))
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&qf.where, "where", nil, "table.field<op>value restriction or table.field<op>table2.field join key, op one of = != < <= > >= (repeatable)")
	cmd.Flags().StringArrayVar(&qf.project, "project", nil, "table.field to include in the result (repeatable; default is every field of every table)")
	cmd.Flags().BoolVar(&qf.distinct, "distinct", false, "wrap the result in DISTINCT")
	return cmd
}
