// Package tui implements a terminal user interface to monitor and control a printer.
package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/fornellas/slogxt/log"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/fornellas/fdm/printer"
	"github.com/fornellas/fdm/worker_manager"
)

type TuiOptions struct {
	// PortName and BaudRate to connect to.
	PortName string
	BaudRate int
	// Program, when set, can be printed.
	Program *printer.Program
	// PreheatTemperatures by heater.
	PreheatTemperatures map[printer.Heater]float64
	// CommandTimeout is how long to wait for the response of commands typed by the user.
	CommandTimeout time.Duration
	// Feedrate is the default jogging feed rate, in mm/min.
	Feedrate int
	// AppLogger, when set, also receives all application logs.
	AppLogger *slog.Logger
}

type Tui struct {
	host    *printer.Host
	options *TuiOptions
}

func NewTui(host *printer.Host, options *TuiOptions) *Tui {
	if options == nil {
		options = &TuiOptions{}
	}
	return &Tui{
		host:    host,
		options: options,
	}
}

//gocyclo:ignore
func (t *Tui) Run(ctx context.Context) (err error) {
	// Application
	app := tview.NewApplication()
	app.EnableMouse(true)

	// Context & Logging
	consoleCtx, consoleLogger := log.MustWithGroup(ctx, "TUI")
	logsPrimitive := NewLogsPrimitive(app)
	logsHandler, disableLogs := logsPrimitive.Handler(consoleLogger.Handler())
	appHandlers := []slog.Handler{logsHandler}
	if t.options.AppLogger != nil {
		appHandlers = append(appHandlers, t.options.AppLogger.Handler())
	}
	appLogger := slog.New(log.NewMultiHandler(appHandlers...))
	appCtx := log.WithLogger(consoleCtx, appLogger)

	// Printer
	if err := t.host.Connect(consoleCtx, t.options.PortName, t.options.BaudRate); err != nil {
		return err
	}

	// WorkerManager
	workerManager := worker_manager.NewWorkerManager()

	subscriberChSize := 50

	workerManager.AddWorker("Host.TelemetryWorker", t.host.TelemetryWorker)
	workerManager.AddWorker("Host.StatusPollWorker", t.host.StatusPollWorker)

	// StatusPrimitive
	statusPrimitive := NewStatusPrimitive(t.host, app)

	// ControlPrimitive
	controlPrimitive := NewControlPrimitive(appCtx, t.host, app, t.options)

	// JoggingPrimitive
	joggingPrimitive := NewJoggingPrimitive(appCtx, t.host, app, t.options.Feedrate)

	// Root
	mainFlex := tview.NewFlex()
	mainFlex.SetDirection(tview.FlexRow)
	mainFlex.AddItem(controlPrimitive, 7, 0, true)
	mainFlex.AddItem(joggingPrimitive, 9, 0, false)
	mainFlex.AddItem(logsPrimitive, 0, 1, false)
	rootFlex := tview.NewFlex()
	rootFlex.SetDirection(tview.FlexColumn)
	rootFlex.AddItem(mainFlex, 0, 1, true)
	rootFlex.AddItem(statusPrimitive, statusPrimitive.FixedSize(), 0, false)
	app.SetRoot(rootFlex, true)

	// Main worker: returns when cancelled, eg: on Ctrl-C.
	workerManager.AddWorker("StatusPrimitive", func(ctx context.Context) error {
		name := fmt.Sprintf("tui-%p", t)
		defer t.host.Unsubscribe(name)
		return statusPrimitive.Worker(
			ctx,
			t.host.Subscribe(name, subscriberChSize),
			t.host.SubscribeConnection(name, subscriberChSize),
		)
	})

	// Start
	workerManager.Start(appCtx)

	// App Input
	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyCtrlC {
			appLogger.Info("Exiting")
			workerManager.Cancel(appCtx)
			return nil
		}
		return event
	})

	// Exit
	var exitMu sync.Mutex
	exitMu.Lock()
	go func() {
		logger := log.MustLogger(appCtx)
		err = workerManager.WaitErr(appCtx)
		logger.Info("Disconnecting")
		err = errors.Join(err, t.host.Disconnect(consoleCtx))
		logger.Info("Stopping App")
		disableLogs()
		app.Stop()
		exitMu.Unlock()
	}()
	defer func() { exitMu.Lock() }()
	defer func() {
		logger := log.MustLogger(consoleCtx)

		if r := recover(); r != nil {
			logger.Debug("Panic", "recovered", r, "stack", string(debug.Stack()))
		}

		// After Application.Run returns, any pending or future calls to Application.QueueUpdate
		// block indefinitely: spin the app again using a simulated screen, so that workers can
		// properly shutdown.
		app.SetScreen(tcell.NewSimulationScreen("UTF-8"))
		go func() {
			logger.Debug("Restarting app with simulated screen to support workers shutdown")
			logger.Debug("Simulated screen app returned", "err", app.Run())
		}()

		logger.Info("Stopping all workers")
		workerManager.Cancel(appCtx)
	}()

	if runErr := app.Run(); runErr != nil {
		consoleLogger.Error("Application failed", "err", runErr)
		err = errors.Join(err, runErr)
	}
	return
}
