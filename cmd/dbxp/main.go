// Command dbxp is the CLI front end for the DBXP query planner and its
// Spartan storage engine: create tables, load rows, run SELECT-shaped
// queries, print their rewritten plan, and scan a table's raw heap file.
// Styled after the teacher's cmd/bd root-command/subcommand layout.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dbxp/spartan/internal/config"
)

var (
	cfgPath string
	cfg     config.Config
)

// newRootCmd builds a fresh root command and its full subcommand tree.
// Kept separate from main so script-driven tests can build an isolated
// command tree per invocation instead of sharing main's package globals.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "dbxp",
		Short: "dbxp - a minimal relational query planner and storage engine",
		Long:  "dbxp builds, rewrites and executes relational query trees over Spartan heap-file tables.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			cfg = loaded
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))
			return nil
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to dbxp.toml")
	root.AddCommand(
		newCreateTableCmd(),
		newInsertCmd(),
		newSelectCmd(),
		newExplainCmd(),
		newScanCmd(),
		newServeCmd(),
	)
	return root
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "dbxp:", err)
		os.Exit(1)
	}
}
