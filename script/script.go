// Package script runs Go scripts controlling a printer, interpreted by yaegi.
//
// Scripts import the "fdm" package, which exposes the printer session:
//
//	import "fdm"
//
//	func main() {
//		if err := fdm.Home(""); err != nil {
//			panic(err)
//		}
//		if err := fdm.Print("benchy.gcode"); err != nil {
//			panic(err)
//		}
//	}
package script

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"time"

	"github.com/fornellas/slogxt/log"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/fornellas/fdm/printer"
)

// ImportPath is the path scripts import the printer bindings from.
const ImportPath = "fdm"

var ErrPrintFailed = errors.New("script: print failed")

func duration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

func parseAxes(axes string) []rune {
	runes := []rune{}
	for _, axis := range axes {
		if axis == ' ' || axis == ',' {
			continue
		}
		if axis >= 'a' && axis <= 'z' {
			axis -= 'a' - 'A'
		}
		runes = append(runes, axis)
	}
	return runes
}

// Symbols returns the bindings of host exposed to scripts under ImportPath. Blocking functions
// are bound to ctx.
//
//gocyclo:ignore
func Symbols(ctx context.Context, host *printer.Host) interp.Exports {
	logger := log.MustLogger(ctx)

	printFn := func(path string) error {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		program, err := host.Load(f)
		if closeErr := f.Close(); closeErr != nil {
			return errors.Join(err, closeErr)
		}
		if err != nil {
			return err
		}
		if !host.StartPrint(ctx, program) {
			return printer.ErrPrintActive
		}
		job, err := host.Dispatcher.Wait(ctx)
		if err != nil {
			host.StopPrint()
			return err
		}
		if job.Status != printer.StatusFinished {
			if job.Err != nil {
				return fmt.Errorf("%w: %s: %w", ErrPrintFailed, path, job.Err)
			}
			return fmt.Errorf("%w: %s: %s", ErrPrintFailed, path, job.Status)
		}
		return nil
	}

	moveRelativeFn := func(axis string, distance float64, feedrate int) error {
		axes := parseAxes(axis)
		if len(axes) != 1 {
			return fmt.Errorf("script: invalid axis: %q", axis)
		}
		return host.MoveRelative(axes[0], distance, feedrate)
	}

	sleepFn := func(seconds float64) error {
		timer := time.NewTimer(duration(seconds))
		defer timer.Stop()
		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return interp.Exports{
		ImportPath + "/fdm": {
			"Connected": reflect.ValueOf(host.Transport.Connected),
			"Send":      reflect.ValueOf(host.Send),
			"SendAndAwait": reflect.ValueOf(func(command string, timeoutSeconds float64) (string, bool) {
				return host.SendAndAwait(ctx, command, duration(timeoutSeconds))
			}),
			"MoveTo":       reflect.ValueOf(host.MoveTo),
			"MoveRelative": reflect.ValueOf(moveRelativeFn),
			"Home": reflect.ValueOf(func(axes string) error {
				return host.Home(parseAxes(axes)...)
			}),
			"SetTemperature": reflect.ValueOf(func(heater string, temperature float64) error {
				return host.SetTemperature(printer.Heater(heater), temperature)
			}),
			"Temperature": reflect.ValueOf(func(heater string) (float64, float64) {
				temperature := host.State.Temperature(printer.Heater(heater))
				return temperature.Current, temperature.Target
			}),
			"Position": reflect.ValueOf(func() (float64, float64, float64, float64) {
				position := host.State.Position()
				return position.X, position.Y, position.Z, position.E
			}),
			"SetSpeeds":       reflect.ValueOf(host.SetSpeeds),
			"SetAcceleration": reflect.ValueOf(host.SetAcceleration),
			"RequestStatus":   reflect.ValueOf(func() error { return host.RequestStatus(ctx) }),
			"RunMacro": reflect.ValueOf(func(name string) error {
				return host.RunMacro(ctx, name)
			}),
			"Macros": reflect.ValueOf(host.Macros),
			"Print":  reflect.ValueOf(printFn),
			"Pause":  reflect.ValueOf(host.PausePrint),
			"Resume": reflect.ValueOf(host.ResumePrint),
			"Stop":   reflect.ValueOf(host.StopPrint),
			"Status": reflect.ValueOf(func() string {
				return string(host.Job().Status)
			}),
			"Progress": reflect.ValueOf(func() int {
				return host.Job().Progress()
			}),
			"Sleep": reflect.ValueOf(sleepFn),
			"Log": reflect.ValueOf(func(msg string, args ...any) {
				logger.Info(msg, args...)
			}),
		},
	}
}

// Options for New.
type Options struct {
	Stdout io.Writer
	Stderr io.Writer
	// Args are available to scripts at os.Args.
	Args []string
}

// New creates an interpreter with the standard library and the printer bindings of host.
func New(ctx context.Context, host *printer.Host, options Options) (*interp.Interpreter, error) {
	interpreter := interp.New(interp.Options{
		Stdout: options.Stdout,
		Stderr: options.Stderr,
		Args:   options.Args,
	})
	if err := interpreter.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("script: %w", err)
	}
	if err := interpreter.Use(Symbols(ctx, host)); err != nil {
		return nil, fmt.Errorf("script: %w", err)
	}
	return interpreter, nil
}

// Run interprets the script at path.
func Run(ctx context.Context, host *printer.Host, path string, options Options) error {
	ctx, logger := log.MustWithAttrs(ctx, "script", path)
	interpreter, err := New(ctx, host, options)
	if err != nil {
		return err
	}
	logger.Info("Running")
	if _, err := interpreter.EvalPathWithContext(ctx, path); err != nil {
		return fmt.Errorf("script: %s: %w", path, err)
	}
	return nil
}

// Eval interprets src.
func Eval(ctx context.Context, host *printer.Host, src string, options Options) (reflect.Value, error) {
	interpreter, err := New(ctx, host, options)
	if err != nil {
		return reflect.Value{}, err
	}
	value, err := interpreter.EvalWithContext(ctx, src)
	if err != nil {
		return value, fmt.Errorf("script: %w", err)
	}
	return value, nil
}
