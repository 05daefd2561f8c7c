package main

import (
	"errors"

	"github.com/fornellas/slogxt/log"
	"github.com/spf13/cobra"

	"github.com/fornellas/fdm/script"
)

var ScriptCmd = &cobra.Command{
	Use:   "script path [args...]",
	Short: "Execute a Go script controlling the printer.",
	Long:  `Execute a Go script, interpreted by yaegi. Scripts can import "fdm" to control the printer; the script path and given args are available at os.Args.`,
	Args:  cobra.MinimumNArgs(1),
	Run: GetRunFn(func(cmd *cobra.Command, args []string) (err error) {
		path := args[0]

		ctx, _ := log.MustWithAttrs(
			cmd.Context(),
			"path", path,
		)
		cmd.SetContext(ctx)

		host, closeFn, err := ConnectHost(ctx)
		if err != nil {
			return err
		}
		defer func() { err = errors.Join(err, closeFn()) }()

		return script.Run(ctx, host, path, script.Options{
			Stdout: cmd.OutOrStdout(),
			Stderr: cmd.ErrOrStderr(),
			Args:   args,
		})
	}),
}

func init() {
	AddPortFlags(ScriptCmd)
	RootCmd.AddCommand(ScriptCmd)
}
