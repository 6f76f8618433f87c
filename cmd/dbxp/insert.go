package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbxp/spartan/internal/storage/table"
)

func newInsertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "insert TABLE value [value ...]",
		Short: "append one row to a table's heap file",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, values := args[0], args[1:]
			cat, sf, err := loadCatalog(cfg.DataDir)
			if err != nil {
				return err
			}
			tbl, err := cat.Table(name)
			if err != nil {
				return err
			}
			buf, err := encodeRow(tbl, values)
			if err != nil {
				return err
			}

			reg := newRegistry(cfg.DataDir, cat, sf, cfg.LockTimeout())
			defer reg.Close()
			share, err := reg.Share(name)
			if err != nil {
				return err
			}
			h := table.Open(share, tbl)
			defer h.Close()
			if err := h.WriteRow(cmd.Context(), buf); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "inserted into %s\n", name)
			return nil
		},
	}
}
