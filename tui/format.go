package tui

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"

	"github.com/fornellas/fdm/printer"
)

func getStatusColor(status printer.Status) tcell.Color {
	switch status {
	case printer.StatusPrinting:
		return tcell.ColorGreen
	case printer.StatusPaused:
		return tcell.ColorYellow
	case printer.StatusStopped:
		return tcell.ColorRed
	case printer.StatusFinished:
		return tcell.ColorBlue
	default:
		return tcell.ColorBlack
	}
}

// progressBar renders progress (0 to 100) as a bar of width characters.
func progressBar(progress, width int) string {
	progress = max(0, min(100, progress))
	filled := progress * width / 100
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}

func formatJob(job printer.Job) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", job.Status)
	if job.Total > 0 {
		fmt.Fprintf(&b, "%s %d%%\n", progressBar(job.Progress(), 20), job.Progress())
		fmt.Fprintf(&b, "%d/%d\n", job.Current, job.Total)
	}
	if job.Err != nil {
		fmt.Fprintf(&b, "%s\n", job.Err)
	}
	return b.String()
}

func formatSnapshot(snapshot printer.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Extruder: %s\n", snapshot.Extruder)
	fmt.Fprintf(&b, "Bed: %s\n", snapshot.Bed)
	fmt.Fprintf(&b, "\n%s\n", strings.ReplaceAll(snapshot.Position.String(), " ", "\n"))
	return b.String()
}
