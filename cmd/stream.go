package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/fornellas/slogxt/log"
	"github.com/spf13/cobra"

	"github.com/fornellas/fdm/printer"
	"github.com/fornellas/fdm/worker_manager"
)

// streamWorker prints program, logging events until the job ends. When ctx is done, the print
// is stopped.
func streamWorker(ctx context.Context, host *printer.Host, program *printer.Program) error {
	logger := log.MustLogger(ctx)

	name := fmt.Sprintf("stream-%p", host)
	eventsCh := host.Subscribe(name, 100)
	defer host.Unsubscribe(name)

	if !host.StartPrint(ctx, program) {
		return printer.ErrPrintActive
	}

	lastProgress := -1
	for {
		select {
		case event, ok := <-eventsCh:
			if !ok {
				return nil
			}
			switch e := event.(type) {
			case printer.StatusEvent:
				logger.Info("Status", "status", e.Status)
				if !e.Status.Active() {
					job := host.Job()
					if job.Err != nil {
						return job.Err
					}
					if job.Status != printer.StatusFinished {
						return fmt.Errorf("print %s", job.Status)
					}
					return nil
				}
			case printer.ProgressEvent:
				if e.Progress != lastProgress {
					logger.Info("Progress", "progress", fmt.Sprintf("%d%%", e.Progress), "line", e.Current, "total", e.Total)
					lastProgress = e.Progress
				}
			case printer.TemperatureEvent:
				logger.Debug("Temperature", "heater", e.Heater, "temperature", e.Temperature)
			}
		case <-ctx.Done():
			logger.Warn("Stopping print")
			host.StopPrint()
			return ctx.Err()
		}
	}
}

var StreamCmd = &cobra.Command{
	Use:   "stream [path]",
	Short: "Print the G-code program at given file, streaming it line by line.",
	Long:  "Print the G-code program at given file, streaming it line by line. Interrupting (Ctrl-C) stops the print.",
	Args:  cobra.ExactArgs(1),
	Run: GetRunFn(func(cmd *cobra.Command, args []string) (err error) {
		path := args[0]

		ctx, logger := log.MustWithAttrs(cmd.Context(), "file", path)
		cmd.SetContext(ctx)

		logger.Info("Loading")
		file, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open file: %w", err)
		}
		program, err := printer.Load(file)
		if closeErr := file.Close(); closeErr != nil {
			return errors.Join(err, closeErr)
		}
		if err != nil {
			return err
		}
		logger.Info("Loaded",
			"commands", len(program.Commands),
			"layers", program.Analysis.LayerCount,
			"filament", program.Analysis.FilamentLength,
		)

		host, closeFn, err := ConnectHost(ctx)
		if err != nil {
			return err
		}
		defer func() { err = errors.Join(err, closeFn()) }()

		workerManager := worker_manager.NewWorkerManager()
		workerManager.AddWorker("Host.TelemetryWorker", host.TelemetryWorker)
		workerManager.AddWorker("Host.StatusPollWorker", host.StatusPollWorker)
		workerManager.AddWorker("Stream", func(ctx context.Context) error {
			return streamWorker(ctx, host, program)
		})
		return workerManager.Run(ctx)
	}),
}

func init() {
	AddPortFlags(StreamCmd)

	RootCmd.AddCommand(StreamCmd)
}
