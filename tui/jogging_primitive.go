package tui

import (
	"context"
	"fmt"
	"strconv"

	"github.com/fornellas/slogxt/log"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/fornellas/fdm/printer"
)

var jogDistances = []string{"0.1", "1", "10", "50"}

type JoggingPrimitive struct {
	*tview.Flex
	host               *printer.Host
	app                *tview.Application
	distanceDropDown   *tview.DropDown
	feedRateInputField *tview.InputField
	statusTextView     *tview.TextView
}

func NewJoggingPrimitive(
	ctx context.Context,
	host *printer.Host,
	app *tview.Application,
	feedRate int,
) *JoggingPrimitive {
	jp := &JoggingPrimitive{
		host: host,
		app:  app,
	}
	_, logger := log.MustWithGroup(ctx, "Jogging")

	jp.distanceDropDown = tview.NewDropDown()
	jp.distanceDropDown.SetLabel("Distance:")
	jp.distanceDropDown.SetOptions(jogDistances, nil)
	jp.distanceDropDown.SetCurrentOption(2)

	jp.feedRateInputField = tview.NewInputField()
	jp.feedRateInputField.SetLabel("Feed rate:")
	jp.feedRateInputField.SetText(strconv.Itoa(feedRate))
	jp.feedRateInputField.SetFieldWidth(8)
	jp.feedRateInputField.SetAcceptanceFunc(tview.InputFieldInteger)

	jp.statusTextView = tview.NewTextView()
	jp.statusTextView.SetDynamicColors(true)

	jog := func(axis rune, sign float64) {
		_, distanceText := jp.distanceDropDown.GetCurrentOption()
		distance, err := strconv.ParseFloat(distanceText, 64)
		if err != nil {
			return
		}
		feedRate, err := strconv.Atoi(jp.feedRateInputField.GetText())
		if err != nil {
			feedRate = 0
		}
		jp.statusTextView.Clear()
		logger.Info("Jogging", "axis", string(axis), "distance", sign*distance, "feedrate", feedRate)
		if err := jp.host.MoveRelative(axis, sign*distance, feedRate); err != nil {
			fmt.Fprintf(jp.statusTextView, "[%s]%s[-]", tcell.ColorRed, tview.Escape(err.Error()))
		}
	}

	button := func(label string, axis rune, sign float64) *tview.Button {
		return tview.NewButton(label).SetSelectedFunc(func() { jog(axis, sign) })
	}

	homeButton := tview.NewButton("Home").SetSelectedFunc(func() {
		jp.statusTextView.Clear()
		if err := jp.host.Home(); err != nil {
			fmt.Fprintf(jp.statusTextView, "[%s]%s[-]", tcell.ColorRed, tview.Escape(err.Error()))
		}
	})

	joystickGrid := tview.NewGrid()
	joystickGrid.SetColumns(0, 0, 0, 0, 0)
	joystickGrid.SetRows(0, 0, 0)
	joystickGrid.SetGap(1, 1)
	joystickGrid.AddItem(button("+Y", 'Y', 1), 0, 1, 1, 1, 0, 0, false)
	joystickGrid.AddItem(button("-X", 'X', -1), 1, 0, 1, 1, 0, 0, false)
	joystickGrid.AddItem(homeButton, 1, 1, 1, 1, 0, 0, false)
	joystickGrid.AddItem(button("+X", 'X', 1), 1, 2, 1, 1, 0, 0, false)
	joystickGrid.AddItem(button("-Y", 'Y', -1), 2, 1, 1, 1, 0, 0, false)
	joystickGrid.AddItem(button("+Z", 'Z', 1), 0, 3, 1, 1, 0, 0, false)
	joystickGrid.AddItem(button("-Z", 'Z', -1), 2, 3, 1, 1, 0, 0, false)
	joystickGrid.AddItem(button("+E", 'E', 1), 0, 4, 1, 1, 0, 0, false)
	joystickGrid.AddItem(button("-E", 'E', -1), 2, 4, 1, 1, 0, 0, false)

	parametersFlex := tview.NewFlex()
	parametersFlex.SetDirection(tview.FlexColumn)
	parametersFlex.AddItem(jp.distanceDropDown, 0, 1, false)
	parametersFlex.AddItem(jp.feedRateInputField, 0, 1, false)

	joggingFlex := tview.NewFlex()
	joggingFlex.SetBorder(true)
	joggingFlex.SetTitle("Jogging")
	joggingFlex.SetDirection(tview.FlexRow)
	joggingFlex.AddItem(joystickGrid, 0, 1, false)
	joggingFlex.AddItem(parametersFlex, 1, 0, false)
	joggingFlex.AddItem(jp.statusTextView, 1, 0, false)
	jp.Flex = joggingFlex

	return jp
}
