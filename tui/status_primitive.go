package tui

import (
	"context"
	"fmt"

	"github.com/rivo/tview"

	"github.com/fornellas/fdm/printer"
)

type StatusPrimitive struct {
	*tview.Flex
	host               *printer.Host
	app                *tview.Application
	connectionTextView *tview.TextView
	jobTextView        *tview.TextView
	stateTextView      *tview.TextView
}

func NewStatusPrimitive(
	host *printer.Host,
	app *tview.Application,
) *StatusPrimitive {
	sp := &StatusPrimitive{
		host: host,
		app:  app,
	}

	sp.connectionTextView = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	sp.connectionTextView.SetBorder(true).SetTitle("Connection")

	sp.jobTextView = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter).
		SetWrap(true)
	sp.jobTextView.SetBorder(true).SetTitle("Job")

	sp.stateTextView = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter).
		SetWrap(true)
	sp.stateTextView.SetBorder(true).SetTitle("State")

	statusFlex := tview.NewFlex()
	statusFlex.SetDirection(tview.FlexRow)
	statusFlex.AddItem(sp.connectionTextView, 3, 0, false)
	statusFlex.AddItem(sp.jobTextView, 6, 0, false)
	statusFlex.AddItem(sp.stateTextView, 0, 1, false)
	sp.Flex = statusFlex

	sp.updateConnection(host.Transport.Connected())
	sp.updateJob()
	sp.updateState()

	return sp
}

func (sp *StatusPrimitive) FixedSize() int {
	return 24
}

func (sp *StatusPrimitive) updateConnection(connected bool) {
	sp.connectionTextView.Clear()
	connection := sp.host.Transport.Connection()
	if !connected || connection == nil {
		fmt.Fprint(sp.connectionTextView, "[red]Disconnected[-]")
		return
	}
	fmt.Fprintf(sp.connectionTextView, "[green]%s@%d[-]", tview.Escape(connection.PortName), connection.BaudRate)
}

func (sp *StatusPrimitive) updateJob() {
	job := sp.host.Job()
	sp.jobTextView.SetBackgroundColor(getStatusColor(job.Status))
	sp.jobTextView.SetText(tview.Escape(formatJob(job)))
}

func (sp *StatusPrimitive) updateState() {
	sp.stateTextView.SetText(tview.Escape(formatSnapshot(sp.host.State.Snapshot())))
}

func (sp *StatusPrimitive) ProcessEvent(ctx context.Context, event printer.Event) {
	switch event.(type) {
	case printer.StatusEvent, printer.ProgressEvent:
		sp.app.QueueUpdateDraw(sp.updateJob)
	case printer.PositionEvent, printer.TemperatureEvent:
		sp.app.QueueUpdateDraw(sp.updateState)
	}
}

func (sp *StatusPrimitive) Worker(
	ctx context.Context,
	eventsCh <-chan printer.Event,
	connectionCh <-chan bool,
) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-eventsCh:
			if !ok {
				return nil
			}
			sp.ProcessEvent(ctx, event)
		case connected, ok := <-connectionCh:
			if !ok {
				return nil
			}
			sp.app.QueueUpdateDraw(func() {
				sp.updateConnection(connected)
			})
		}
	}
}
