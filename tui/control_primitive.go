package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fornellas/slogxt/log"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/fornellas/fdm/printer"
)

type ControlPrimitive struct {
	*tview.Flex
	ctx               context.Context
	host              *printer.Host
	app               *tview.Application
	options           *TuiOptions
	commandInputField *tview.InputField
	macrosDropDown    *tview.DropDown
	statusTextView    *tview.TextView
}

func NewControlPrimitive(
	ctx context.Context,
	host *printer.Host,
	app *tview.Application,
	options *TuiOptions,
) *ControlPrimitive {
	cp := &ControlPrimitive{
		host:    host,
		app:     app,
		options: options,
	}
	cp.ctx, _ = log.MustWithGroup(ctx, "Control")

	cp.statusTextView = tview.NewTextView()
	cp.statusTextView.SetDynamicColors(true)

	cp.commandInputField = tview.NewInputField()
	cp.commandInputField.SetLabel("G-code:")
	cp.commandInputField.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		command := strings.TrimSpace(cp.commandInputField.GetText())
		if command == "" {
			return
		}
		cp.commandInputField.SetText("")
		cp.sendCommand(command)
	})

	cp.macrosDropDown = tview.NewDropDown()
	cp.macrosDropDown.SetLabel("Macro:")
	cp.macrosDropDown.SetOptions(host.Macros(), func(name string, index int) {
		if index < 0 {
			return
		}
		cp.report(host.RunMacro(cp.ctx, name))
	})

	buttonsFlex := tview.NewFlex()
	buttonsFlex.SetDirection(tview.FlexColumn)
	addButton := func(label string, fn func() error) {
		buttonsFlex.AddItem(tview.NewButton(label).SetSelectedFunc(func() {
			cp.report(fn())
		}), 0, 1, false)
		buttonsFlex.AddItem(nil, 1, 0, false)
	}
	if options.Program != nil {
		addButton("Print", func() error {
			if !host.StartPrint(cp.ctx, options.Program) {
				return printer.ErrPrintActive
			}
			return nil
		})
	}
	addButton("Pause", func() error {
		if !host.PausePrint() {
			return errors.New("not printing")
		}
		return nil
	})
	addButton("Resume", func() error {
		if !host.ResumePrint() {
			return errors.New("not paused")
		}
		return nil
	})
	addButton("Stop", func() error {
		if !host.StopPrint() {
			return errors.New("no active print")
		}
		return nil
	})
	addButton("Preheat", func() error {
		return errors.Join(
			host.SetTemperature(printer.HeaterExtruder, options.PreheatTemperatures[printer.HeaterExtruder]),
			host.SetTemperature(printer.HeaterBed, options.PreheatTemperatures[printer.HeaterBed]),
		)
	})
	addButton("Cooldown", func() error {
		return errors.Join(
			host.SetTemperature(printer.HeaterExtruder, 0),
			host.SetTemperature(printer.HeaterBed, 0),
		)
	})
	addButton("Status", func() error {
		if !host.Dispatcher.Active() {
			return host.RequestStatus(cp.ctx)
		}
		go func() {
			if err := host.RequestStatus(cp.ctx); err != nil {
				log.MustLogger(cp.ctx).Warn("Status request failed", "err", err)
			}
		}()
		return nil
	})

	controlFlex := tview.NewFlex()
	controlFlex.SetBorder(true)
	controlFlex.SetTitle("Control")
	controlFlex.SetDirection(tview.FlexRow)
	controlFlex.AddItem(buttonsFlex, 1, 0, false)
	controlFlex.AddItem(nil, 1, 0, false)
	controlFlex.AddItem(cp.macrosDropDown, 1, 0, false)
	controlFlex.AddItem(cp.commandInputField, 1, 0, true)
	controlFlex.AddItem(cp.statusTextView, 1, 0, false)
	cp.Flex = controlFlex

	return cp
}

func (cp *ControlPrimitive) report(err error) {
	cp.statusTextView.Clear()
	if err != nil {
		fmt.Fprintf(cp.statusTextView, "[%s]%s[-]", tcell.ColorRed, tview.Escape(err.Error()))
	}
}

// sendCommand sends command and logs its response, without blocking the UI.
func (cp *ControlPrimitive) sendCommand(command string) {
	if cp.host.Dispatcher.Active() {
		cp.report(printer.ErrPrintActive)
		return
	}
	cp.report(nil)
	go func() {
		logger := log.MustLogger(cp.ctx)
		timeout := cp.options.CommandTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		response, ok := cp.host.SendAndAwait(cp.ctx, command, timeout)
		if !ok {
			logger.Warn("No response", "command", command)
			return
		}
		logger.Info("Response", "command", command, "response", response)
	}()
}
