package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/fornellas/slogxt/log"
	"github.com/spf13/cobra"
)

var monitorLines int
var defaultMonitorLines = 0

var MonitorCmd = &cobra.Command{
	Use:   "monitor [command...]",
	Short: "Print lines received from the printer.",
	Long:  "Connects, sends the given commands without waiting for responses, then prints every line received until interrupted (Ctrl-C) or --lines were printed.",
	Run: GetRunFn(func(cmd *cobra.Command, args []string) (err error) {
		ctx, logger := log.MustWithAttrs(cmd.Context(), "lines", monitorLines)
		cmd.SetContext(ctx)

		host, closeFn, err := ConnectHost(ctx)
		if err != nil {
			return err
		}
		defer func() { err = errors.Join(err, closeFn()) }()

		stream := host.Transport.Stream()
		if stream == nil {
			return errors.New("disconnected")
		}

		for _, command := range args {
			if !host.Send(command) {
				return fmt.Errorf("failed to send: %s", command)
			}
		}

		logger.Info("Monitoring")
		for count := 0; monitorLines <= 0 || count < monitorLines; count++ {
			line, err := stream.Next(ctx)
			if err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}
			if _, err := fmt.Fprintln(cmd.OutOrStdout(), line.Text); err != nil {
				return err
			}
		}
		return nil
	}),
}

func init() {
	AddPortFlags(MonitorCmd)
	MonitorCmd.Flags().IntVar(&monitorLines, "lines", defaultMonitorLines, "Stop after this many lines; 0 for no limit")
	RootCmd.AddCommand(MonitorCmd)

	resetFlagsFns = append(resetFlagsFns, func() {
		monitorLines = defaultMonitorLines
	})
}
