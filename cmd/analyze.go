package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fornellas/slogxt/log"
	"github.com/spf13/cobra"

	"github.com/fornellas/fdm/analyzer"
	fdmFmt "github.com/fornellas/fdm/internal/fmt"
	"github.com/fornellas/fdm/printer"
)

func sprintRange(r analyzer.Range) string {
	if !r.Valid() {
		return "-"
	}
	return fmt.Sprintf("%s..%s", fdmFmt.SprintFloat(r.Min, 2), fdmFmt.SprintFloat(r.Max, 2))
}

func writeAnalysis(w io.Writer, result *analyzer.Result) error {
	fits := result.FitsBuildVolume(cfg.BuildVolume())
	var err error
	for _, line := range []string{
		fmt.Sprintf("Lines: %d", result.TotalLines),
		fmt.Sprintf("Layers: %d", result.LayerCount),
		fmt.Sprintf("Filament: %smm", fdmFmt.SprintFloat(result.FilamentLength, 2)),
		fmt.Sprintf("X: %s", sprintRange(result.Bounds.X)),
		fmt.Sprintf("Y: %s", sprintRange(result.Bounds.Y)),
		fmt.Sprintf("Z: %s", sprintRange(result.Bounds.Z)),
		fmt.Sprintf("Size: %s", result.Size()),
		fmt.Sprintf("Center: %s", result.Center()),
		fmt.Sprintf("Fits build volume: %v", fits),
		fmt.Sprintf("Max extruder temperature: %s°C", fdmFmt.SprintFloat(result.MaxExtruderTemp, 1)),
		fmt.Sprintf("Max bed temperature: %s°C", fdmFmt.SprintFloat(result.MaxBedTemp, 1)),
	} {
		_, writeErr := fmt.Fprintln(w, line)
		err = errors.Join(err, writeErr)
	}
	return err
}

var AnalyzeCmd = &cobra.Command{
	Use:   "analyze path",
	Short: "Analyze a G-code file: layers, filament usage, bounds and temperatures.",
	Args:  cobra.ExactArgs(1),
	Run: GetRunFn(func(cmd *cobra.Command, args []string) (err error) {
		path := args[0]

		ctx, logger := log.MustWithAttrs(cmd.Context(), "path", path)
		cmd.SetContext(ctx)
		logger.Info("Analyzing")

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer func() { err = errors.Join(err, f.Close()) }()

		program, err := printer.Load(f)
		if err != nil {
			return err
		}

		w, err := outputValue.WriterCloser(cmd)
		if err != nil {
			return err
		}
		defer func() { err = errors.Join(err, w.Close()) }()

		return writeAnalysis(w, program.Analysis)
	}),
}

func init() {
	AddOutputFlags(AnalyzeCmd)
	RootCmd.AddCommand(AnalyzeCmd)
}
