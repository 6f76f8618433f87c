package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dbxp/spartan/internal/catalog"
	"github.com/dbxp/spartan/internal/storage/table"
)

func newCreateTableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create-table NAME field:type:length [field:type:length ...]",
		Short: "define a table and lay down its heap file",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			fields := make([]catalog.Field, 0, len(args)-1)
			sfFields := make([]schemaField, 0, len(args)-1)
			maxLen := 0
			for _, spec := range args[1:] {
				parts := strings.Split(spec, ":")
				if len(parts) != 3 {
					return fmt.Errorf("dbxp: bad field spec %q, want name:type:length", spec)
				}
				length, err := strconv.Atoi(parts[2])
				if err != nil {
					return fmt.Errorf("dbxp: bad field length %q: %w", parts[2], err)
				}
				fields = append(fields, catalog.Field{Name: parts[0], Type: parseFieldType(parts[1]), Length: length})
				sfFields = append(sfFields, schemaField{Name: parts[0], Type: parts[1], Length: length})
				if length > maxLen {
					maxLen = length
				}
			}

			if err := table.Create(cfg.DataDir, name, nil, maxLen); err != nil {
				return err
			}

			_, sf, err := loadCatalog(cfg.DataDir)
			if err != nil {
				return err
			}
			sf.Tables = append(sf.Tables, schemaTable{Name: name, Fields: sfFields})
			if err := saveSchema(cfg.DataDir, sf); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created table %s (%d fields)\n", name, len(fields))
			return nil
		},
	}
}
