package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dbxp/spartan/internal/storage/table"
)

func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan TABLE",
		Short: "dump a table's live rows directly from its heap file, bypassing the planner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			cat, sf, err := loadCatalog(cfg.DataDir)
			if err != nil {
				return err
			}
			tbl, err := cat.Table(name)
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

			ctx := cmd.Context()
			if err := h.RndInit(ctx, true); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			buf := make([]byte, tbl.RowLength)
			for {
				if err := h.RndNext(ctx, buf); err != nil {
					if errors.Is(err, io.EOF) {
						return nil
					}
					return err
				}
				fmt.Fprintln(out, strings.Join(decodeRow(tbl, buf), ","))
			}
		},
	}
}
