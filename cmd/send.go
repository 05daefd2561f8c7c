package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/fornellas/slogxt/log"
	"github.com/spf13/cobra"

	"github.com/fornellas/fdm/printer"
)

var sendTimeout time.Duration
var defaultSendTimeout = time.Duration(0)

var SendCmd = &cobra.Command{
	Use:   "send command...",
	Short: "Send each command and wait for its response.",
	Args:  cobra.MinimumNArgs(1),
	Run: GetRunFn(func(cmd *cobra.Command, args []string) (err error) {
		timeout := sendTimeout
		if timeout == 0 {
			timeout = cfg.SerialTimeout()
		}
		ctx, logger := log.MustWithAttrs(cmd.Context(), "timeout", timeout)
		cmd.SetContext(ctx)

		host, closeFn, err := ConnectHost(ctx)
		if err != nil {
			return err
		}
		defer func() { err = errors.Join(err, closeFn()) }()

		for _, command := range args {
			response, err := host.Correlator.Send(ctx, command, timeout)
			if err != nil {
				if errors.Is(err, printer.ErrTimeout) {
					logger.Warn("No response", "command", command)
					continue
				}
				return err
			}
			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", command, response); err != nil {
				return err
			}
		}
		return nil
	}),
}

func init() {
	AddPortFlags(SendCmd)
	SendCmd.Flags().DurationVarP(&sendTimeout, "timeout", "t", defaultSendTimeout, "Response timeout; defaults to serial.timeout configuration")
	RootCmd.AddCommand(SendCmd)

	resetFlagsFns = append(resetFlagsFns, func() {
		sendTimeout = defaultSendTimeout
	})
}
