package main

import (
	"bytes"
	"context"
	"os"
	"testing"

	"rsc.io/script"
	"rsc.io/script/scripttest"
)

// dbxpCmd wires a "dbxp" script command that runs a fresh command tree
// in-process, the way a real shell would invoke the built binary, but
// without forking a subprocess. DBXP_DATA_DIR is pointed at the script's
// own work directory for the duration of each invocation so tables land
// in a throwaway tree instead of the real filesystem.
func dbxpCmd() script.Cmd {
	return script.Command(
		script.CmdUsage{
			Summary: "run the dbxp CLI in-process",
			Args:    "subcommand [args...]",
		},
		func(s *script.State, args ...string) (script.WaitFunc, error) {
			prev, hadPrev := os.LookupEnv("DBXP_DATA_DIR")
			os.Setenv("DBXP_DATA_DIR", s.Getwd())

			var stdout, stderr bytes.Buffer
			root := newRootCmd()
			root.SetOut(&stdout)
			root.SetErr(&stderr)
			root.SetArgs(args)
			runErr := root.ExecuteContext(context.Background())

			if hadPrev {
				os.Setenv("DBXP_DATA_DIR", prev)
			} else {
				os.Unsetenv("DBXP_DATA_DIR")
			}

			return func(*script.State) (string, string, error) {
				return stdout.String(), stderr.String(), runErr
			}, nil
		},
	)
}

func TestScripts(t *testing.T) {
	engine := &script.Engine{
		Cmds:  script.DefaultCmds(),
		Conds: script.DefaultConds(),
	}
	engine.Cmds["dbxp"] = dbxpCmd()

	ctx := context.Background()
	scripttest.Test(t, ctx, engine, os.Environ(), "testdata/*.txtar")
}
