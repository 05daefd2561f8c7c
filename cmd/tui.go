package main

import (
	"errors"
	"os"

	"github.com/fornellas/slogxt/log"
	"github.com/spf13/cobra"

	"github.com/fornellas/fdm/printer"
	tuiMod "github.com/fornellas/fdm/tui"
)

var tuiProgramPath string
var defaultTuiProgramPath = ""

var TuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Connect to the printer and provide a terminal user interface.",
	Args:  cobra.NoArgs,
	Run: GetRunFn(func(cmd *cobra.Command, args []string) (err error) {
		name, rate := GetPortName()
		ctx, _ := log.MustWithAttrs(
			cmd.Context(),
			"port-name", name,
			"baud-rate", rate,
			"program", tuiProgramPath,
		)
		cmd.SetContext(ctx)

		var program *printer.Program
		if tuiProgramPath != "" {
			f, err := os.Open(tuiProgramPath)
			if err != nil {
				return err
			}
			program, err = printer.Load(f)
			if closeErr := f.Close(); closeErr != nil {
				return errors.Join(err, closeErr)
			}
			if err != nil {
				return err
			}
		}

		host, err := NewHost(ctx)
		if err != nil {
			return err
		}
		defer func() { err = errors.Join(err, host.Close(ctx)) }()

		tui := tuiMod.NewTui(host, &tuiMod.TuiOptions{
			PortName: name,
			BaudRate: rate,
			Program:  program,
			PreheatTemperatures: map[printer.Heater]float64{
				printer.HeaterExtruder: cfg.DefaultTemperature(printer.HeaterExtruder),
				printer.HeaterBed:      cfg.DefaultTemperature(printer.HeaterBed),
			},
			CommandTimeout: cfg.SerialTimeout(),
			Feedrate:       cfg.HostOptions().Feedrate,
			AppLogger:      logDebugFileLogger,
		})

		return tui.Run(ctx)
	}),
}

func init() {
	AddPortFlags(TuiCmd)

	TuiCmd.Flags().StringVar(
		&tuiProgramPath,
		"program",
		defaultTuiProgramPath,
		"G-code program to load, which can then be printed",
	)

	RootCmd.AddCommand(TuiCmd)

	resetFlagsFns = append(resetFlagsFns, func() {
		tuiProgramPath = defaultTuiProgramPath
	})
}
