package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fornellas/fdm/transport"
)

var PortsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports.",
	Args:  cobra.NoArgs,
	Run: GetRunFn(func(cmd *cobra.Command, args []string) error {
		for _, port := range transport.ListPortDetails(cmd.Context()) {
			if !port.IsUSB {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), port.Name); err != nil {
					return err
				}
				continue
			}
			if _, err := fmt.Fprintf(
				cmd.OutOrStdout(), "%s\tUSB %s:%s\t%s\t%s\n",
				port.Name, port.VID, port.PID, port.SerialNumber, port.Product,
			); err != nil {
				return err
			}
		}
		return nil
	}),
}

func init() {
	RootCmd.AddCommand(PortsCmd)
}
