package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fornellas/slogxt/log"
	"github.com/spf13/cobra"
)

var MacroCmd = &cobra.Command{
	Use:   "macro [name]",
	Short: "Run a macro, or list macros when no name is given.",
	Args:  cobra.MaximumNArgs(1),
	Run: GetRunFn(func(cmd *cobra.Command, args []string) (err error) {
		if len(args) == 0 {
			macros := cfg.Macros()
			host, err := NewHost(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, host.Close(cmd.Context())) }()
			for _, name := range host.Macros() {
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", name, strings.Join(macros[name], "; ")); err != nil {
					return err
				}
			}
			return nil
		}

		name := args[0]
		ctx, _ := log.MustWithAttrs(cmd.Context(), "macro", name)
		cmd.SetContext(ctx)

		host, closeFn, err := ConnectHost(ctx)
		if err != nil {
			return err
		}
		defer func() { err = errors.Join(err, closeFn()) }()

		return host.RunMacro(ctx, name)
	}),
}

func init() {
	AddPortFlags(MacroCmd)
	RootCmd.AddCommand(MacroCmd)
}
