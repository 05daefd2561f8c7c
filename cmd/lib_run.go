package main

import (
	"os"

	"github.com/fornellas/slogxt/log"
	"github.com/spf13/cobra"
)

// Exit terminates the process; replaceable for tests.
var Exit = os.Exit

// GetRunFn wraps fn as a cobra Run function, logging any returned error and exiting with status 1.
func GetRunFn(fn func(cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		if err := fn(cmd, args); err != nil {
			logger := log.MustLogger(cmd.Context())
			logger.Error("Failed", "err", err)
			_ = closeLogDebugFile()
			Exit(1)
		}
	}
}
