package script

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fornellas/slogxt/log"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/fornellas/fdm/internal/fakeserial"
	"github.com/fornellas/fdm/printer"
	"github.com/fornellas/fdm/transport"
)

func newTestHost(t *testing.T) (context.Context, *printer.Host, *fakeserial.Port) {
	ctx := log.WithLogger(t.Context(), slog.New(slog.DiscardHandler))
	port := fakeserial.NewPort()
	options := printer.DefaultHostOptions
	options.Dispatcher.CommandDelay = time.Millisecond
	host := printer.NewHost(ctx, func(ctx context.Context, portName string, mode *serial.Mode) (serial.Port, error) {
		return port, nil
	}, options)
	t.Cleanup(func() { require.NoError(t, host.Close(ctx)) })
	require.NoError(t, host.Connect(ctx, "/dev/ttyUSB0", transport.DefaultBaudRate))
	return ctx, host, port
}

func writeFile(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestRun(t *testing.T) {
	ctx, host, port := newTestHost(t)

	path := writeFile(t, "script.go", `package main

import (
	"fmt"

	"fdm"
)

func main() {
	if err := fdm.Home("x, y"); err != nil {
		panic(err)
	}
	if err := fdm.MoveTo(10, 20, 0.3, 0); err != nil {
		panic(err)
	}
	if err := fdm.MoveRelative("z", 1, 600); err != nil {
		panic(err)
	}
	if err := fdm.SetTemperature("bed", 60); err != nil {
		panic(err)
	}
	x, y, z, _ := fdm.Position()
	_, target := fdm.Temperature("bed")
	fmt.Printf("%.1f %.1f %.1f %.0f\n", x, y, z, target)
	fdm.Log("done")
}
`)
	stdout := &bytes.Buffer{}
	require.NoError(t, Run(ctx, host, path, Options{Stdout: stdout}))

	require.Equal(t, "10.0 20.0 1.3 60\n", stdout.String())
	require.Equal(t, []string{
		"G28 X Y",
		"G1 X10.00 Y20.00 Z0.30 F3000",
		"G91",
		"G1 Z1.00 F600",
		"G90",
		"M140 S60",
	}, port.Written())
}

func TestRunError(t *testing.T) {
	ctx, host, _ := newTestHost(t)

	path := writeFile(t, "script.go", `package main

import "fdm"

func main() {
	fdm.DoesNotExist()
}
`)
	require.Error(t, Run(ctx, host, path, Options{}))
	require.Error(t, Run(ctx, host, filepath.Join(t.TempDir(), "missing.go"), Options{}))
}

func TestEval(t *testing.T) {
	ctx, host, _ := newTestHost(t)

	interpreter, err := New(ctx, host, Options{})
	require.NoError(t, err)
	_, err = interpreter.EvalWithContext(ctx, `import "fdm"`)
	require.NoError(t, err)

	value, err := interpreter.EvalWithContext(ctx, `fdm.Status()`)
	require.NoError(t, err)
	require.Equal(t, "idle", value.Interface())

	value, err = interpreter.EvalWithContext(ctx, `fdm.Connected()`)
	require.NoError(t, err)
	require.Equal(t, true, value.Interface())

	value, err = Eval(ctx, host, `1 + 2`, Options{})
	require.NoError(t, err)
	require.Equal(t, 3, value.Interface())
}

func TestPrint(t *testing.T) {
	ctx, host, port := newTestHost(t)
	port.SetResponder(func(line string) []string {
		return []string{"ok"}
	})

	gcodePath := writeFile(t, "part.gcode", "G28\nG1 X10 Y10 Z0.2 ; first\nG1 X20 Y10 E1\n")
	path := writeFile(t, "script.go", `package main

import (
	"fmt"
	"os"

	"fdm"
)

func main() {
	if err := fdm.Print(os.Args[1]); err != nil {
		panic(err)
	}
	fmt.Println(fdm.Status(), fdm.Progress())
}
`)
	stdout := &bytes.Buffer{}
	require.NoError(t, Run(ctx, host, path, Options{
		Stdout: stdout,
		Args:   []string{path, gcodePath},
	}))
	require.Equal(t, "finished 100\n", stdout.String())
	require.Equal(t, []string{"G28", "G1 X10 Y10 Z0.2", "G1 X20 Y10 E1"}, port.Written())
}

func TestParseAxes(t *testing.T) {
	require.Equal(t, []rune{'X', 'Y', 'Z'}, parseAxes("x, Y z"))
	require.Empty(t, parseAxes(""))
}
