// Package printer implements the printer session: state tracking, command correlation, print
// dispatching, manual control, telemetry and macros.
package printer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/fornellas/slogxt/log"

	"github.com/fornellas/fdm/analyzer"
	"github.com/fornellas/fdm/broker"
	"github.com/fornellas/fdm/gcode"
	fdmFmt "github.com/fornellas/fdm/internal/fmt"
	"github.com/fornellas/fdm/transport"
)

var ErrPrintActive = errors.New("printer: print is active")
var ErrUnknownMacro = errors.New("printer: unknown macro")
var ErrNoPortFound = errors.New("printer: no serial port found")

// AutoPortName makes Host.Connect use the first port found.
const AutoPortName = "AUTO"

// Macros shipped by default.
var DefaultMacros = map[string][]string{
	"pla":      {"M104 S200", "M140 S60", "M109 S200", "M190 S60"},
	"abs":      {"M104 S240", "M140 S80", "M109 S240", "M190 S80"},
	"cooldown": {"M104 S0", "M140 S0", "M106 S0"},
	"prepare":  {"G28", "G29", "G1 Z5 F3000", "G1 X10 Y10 F3000"},
	"finish":   {"M104 S0", "M140 S0", "M106 S0", "G91", "G1 Z10 F3000", "G90", "G1 X0 Y200 F3000", "M84"},
}

// HostOptions configure a Host.
type HostOptions struct {
	Dispatcher DispatcherOptions
	// StatusPollInterval is the period of StatusPollWorker.
	StatusPollInterval time.Duration
	// Feedrate is used by manual moves when none is given, in mm/min.
	Feedrate int
	// Macros by name.
	Macros map[string][]string
}

var DefaultHostOptions = HostOptions{
	Dispatcher:         DefaultDispatcherOptions,
	StatusPollInterval: 2 * time.Second,
	Feedrate:           3000,
	Macros:             DefaultMacros,
}

// Program is a loaded G-code file.
type Program struct {
	Commands []*gcode.Command
	Analysis *analyzer.Result
}

// Host is a printer session. It owns the transport and the print dispatcher, and tracks the
// printer state. Create with NewHost and release with Close.
type Host struct {
	Transport  *transport.Transport
	Correlator *Correlator
	Dispatcher *Dispatcher
	State      *State
	events     *broker.Broker[Event]
	options    HostOptions
}

// NewHost creates a Host. ctx is only used for its logger.
func NewHost(ctx context.Context, openPortFn transport.OpenPortFn, options HostOptions) *Host {
	t := transport.NewTransport(ctx, openPortFn)
	state := NewState()
	events := broker.NewBroker[Event]()
	correlator := NewCorrelator(t)
	if options.Macros == nil {
		options.Macros = map[string][]string{}
	}
	return &Host{
		Transport:  t,
		Correlator: correlator,
		Dispatcher: NewDispatcher(correlator, state, events, options.Dispatcher),
		State:      state,
		events:     events,
		options:    options,
	}
}

// Subscribe registers an observer for printer events, see Event.
func (h *Host) Subscribe(name string, size int) <-chan Event {
	return h.events.Subscribe(name, size)
}

// SubscribeConnection registers an observer for connection state changes.
func (h *Host) SubscribeConnection(name string, size int) <-chan bool {
	return h.Transport.SubscribeConnection(name, size)
}

// Unsubscribe removes observers registered by Subscribe or SubscribeConnection.
func (h *Host) Unsubscribe(name string) {
	h.events.Unsubscribe(name)
	h.Transport.Unsubscribe(name)
}

// ListPorts enumerates serial ports.
func (h *Host) ListPorts(ctx context.Context) []string {
	return transport.ListPorts(ctx)
}

// Connect opens portName. With AutoPortName or an empty name, the first port found is used.
func (h *Host) Connect(ctx context.Context, portName string, baudRate int) error {
	if portName == "" || strings.EqualFold(portName, AutoPortName) {
		ports := h.ListPorts(ctx)
		if len(ports) == 0 {
			return ErrNoPortFound
		}
		portName = ports[0]
		log.MustLogger(ctx).Info("Using port", "port", portName)
	}
	if err := h.Transport.Connect(ctx, portName, baudRate); err != nil {
		return fmt.Errorf("printer: %w", err)
	}
	return nil
}

// Disconnect stops an active print, then disconnects.
func (h *Host) Disconnect(ctx context.Context) error {
	h.Dispatcher.Stop()
	return h.Transport.Disconnect(ctx)
}

// Close stops an active print, and releases all resources.
func (h *Host) Close(ctx context.Context) error {
	h.Dispatcher.Stop()
	err := h.Transport.Close(ctx)
	h.events.Close()
	return err
}

// Send enqueues line, without waiting for a response. It returns false when not connected.
func (h *Host) Send(line string) bool {
	return h.Transport.EnqueueWrite(line)
}

// SendAndAwait sends command and waits up to timeout for its response.
func (h *Host) SendAndAwait(ctx context.Context, command string, timeout time.Duration) (string, bool) {
	return h.Correlator.SendAndAwait(ctx, command, timeout)
}

func (h *Host) sendManual(lines ...string) error {
	if h.Dispatcher.Active() {
		return ErrPrintActive
	}
	for _, line := range lines {
		if !h.Send(line) {
			return fmt.Errorf("printer: %s: %w", line, transport.ErrNotConnected)
		}
	}
	return nil
}

func (h *Host) feedrate(feedrate int) int {
	if feedrate <= 0 {
		return h.options.Feedrate
	}
	return feedrate
}

// applyManual updates the state from a manually sent command.
func (h *Host) applyManual(line string) {
	if position, ok := h.State.ApplyCommand(gcode.ParseLine(line)); ok {
		h.events.Publish(PositionEvent{Position: position})
	}
}

// MoveTo moves to an absolute position. A feedrate <= 0 uses the default.
func (h *Host) MoveTo(x, y, z float64, feedrate int) error {
	line := fmt.Sprintf("G1 X%.2f Y%.2f Z%.2f F%d", x, y, z, h.feedrate(feedrate))
	if err := h.sendManual(line); err != nil {
		return err
	}
	h.applyManual(line)
	return nil
}

// MoveRelative moves axis (X, Y, Z or E) by distance. A feedrate <= 0 uses the default.
func (h *Host) MoveRelative(axis rune, distance float64, feedrate int) error {
	if (&Position{}).GetAxis(axis) == nil {
		return fmt.Errorf("printer: invalid axis: %q", axis)
	}
	if err := h.sendManual(
		"G91",
		fmt.Sprintf("G1 %c%.2f F%d", axis, distance, h.feedrate(feedrate)),
		"G90",
	); err != nil {
		return err
	}
	position, err := h.State.Move(axis, distance)
	if err != nil {
		panic(fmt.Sprintf("bug: %s", err))
	}
	h.events.Publish(PositionEvent{Position: position})
	return nil
}

// Home homes the given axes, or all axes if none given.
func (h *Host) Home(axes ...rune) error {
	line := "G28"
	for _, axis := range axes {
		if !slices.Contains([]rune{'X', 'Y', 'Z'}, axis) {
			return fmt.Errorf("printer: invalid axis: %q", axis)
		}
		line += " " + string(axis)
	}
	if err := h.sendManual(line); err != nil {
		return err
	}
	h.applyManual(line)
	return nil
}

// SetTemperature sets the target temperature of heater, without waiting for it.
func (h *Host) SetTemperature(heater Heater, temperature float64) error {
	var code string
	switch heater {
	case HeaterExtruder:
		code = "M104"
	case HeaterBed:
		code = "M140"
	default:
		return fmt.Errorf("printer: invalid heater: %q", heater)
	}
	if !h.Send(fmt.Sprintf("%s S%s", code, fdmFmt.SprintFloat(temperature, 1))) {
		return fmt.Errorf("printer: set temperature: %w", transport.ErrNotConnected)
	}
	h.events.Publish(TemperatureEvent{
		Heater:      heater,
		Temperature: h.State.SetTarget(heater, temperature),
	})
	return nil
}

// SetSpeeds sets the maximum travel feedrate for all axes and the print feedrate, in mm/s and
// mm/min respectively.
func (h *Host) SetSpeeds(printFeedrate, travelFeedrate int) error {
	return h.sendManual(
		fmt.Sprintf("M203 X%d Y%d Z%d", travelFeedrate, travelFeedrate, travelFeedrate),
		fmt.Sprintf("G1 F%d", printFeedrate),
	)
}

// SetAcceleration sets the default acceleration, in mm/s².
func (h *Host) SetAcceleration(acceleration int) error {
	return h.sendManual(fmt.Sprintf("M204 S%d", acceleration))
}

// RequestStatus requests a temperature report and, unless printing, a position report. While
// printing, the temperature request goes through the Correlator and waits for its acknowledgement,
// so that it is not taken for the acknowledgement of a print command.
func (h *Host) RequestStatus(ctx context.Context) error {
	if h.Dispatcher.Active() {
		response, err := h.Correlator.Send(ctx, "M105", h.options.Dispatcher.AckTimeout)
		if err != nil {
			return fmt.Errorf("printer: request status: %w", err)
		}
		if err := ResponseErr(response); err != nil {
			return fmt.Errorf("printer: request status: %w", err)
		}
		return nil
	}
	if !h.Send("M105") {
		return fmt.Errorf("printer: request status: %w", transport.ErrNotConnected)
	}
	if !h.Send("M114") {
		return fmt.Errorf("printer: request status: %w", transport.ErrNotConnected)
	}
	return nil
}

// Macros returns the sorted macro names.
func (h *Host) Macros() []string {
	names := make([]string, 0, len(h.options.Macros))
	for name := range h.options.Macros {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunMacro sends all commands of the named macro.
func (h *Host) RunMacro(ctx context.Context, name string) error {
	commands, ok := h.options.Macros[strings.ToLower(name)]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMacro, name)
	}
	logger := log.MustLogger(ctx)
	logger.Info("Running macro", "name", name, "commands", len(commands))
	if err := h.sendManual(commands...); err != nil {
		return fmt.Errorf("printer: macro %s: %w", name, err)
	}
	return nil
}

// Load reads a G-code program from r, parsing its commands and analyzing it.
func (h *Host) Load(r io.Reader) (*Program, error) {
	return Load(r)
}

// Load reads a G-code program from r, parsing its commands and analyzing it.
func Load(r io.Reader) (*Program, error) {
	lines := []string{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("printer: load: %w", err)
	}
	return &Program{
		Commands: gcode.LoadLines(lines),
		Analysis: analyzer.Analyze(lines),
	}, nil
}

// StartPrint starts printing program. It returns false when a print is active.
func (h *Host) StartPrint(ctx context.Context, program *Program) bool {
	return h.Dispatcher.Start(ctx, program.Commands)
}

func (h *Host) PausePrint() bool {
	return h.Dispatcher.Pause()
}

func (h *Host) ResumePrint() bool {
	return h.Dispatcher.Resume()
}

func (h *Host) StopPrint() bool {
	return h.Dispatcher.Stop()
}

func (h *Host) Job() Job {
	return h.Dispatcher.Job()
}

// HandleLine applies telemetry from a line received from the firmware. Reported positions are
// ignored while a print is active, as they lag behind the dispatched commands.
func (h *Host) HandleLine(line string) {
	telemetry := ParseTelemetry(line)
	if telemetry == nil {
		return
	}
	for _, reading := range telemetry.Temperatures {
		h.State.SetTemperature(reading.Heater, reading.Temperature)
		h.events.Publish(TemperatureEvent{Heater: reading.Heater, Temperature: reading.Temperature})
	}
	if telemetry.Position != nil && !h.Dispatcher.Active() {
		position := h.State.SetXYZ(telemetry.Position.X, telemetry.Position.Y, telemetry.Position.Z)
		h.events.Publish(PositionEvent{Position: position})
	}
}

// TelemetryWorker applies telemetry from all received lines, until ctx is done.
func (h *Host) TelemetryWorker(ctx context.Context) error {
	logger := log.MustLogger(ctx)
	name := fmt.Sprintf("telemetry-%p", h)
	linesCh := h.Transport.SubscribeLines(name, 100)
	defer h.Transport.Unsubscribe(name)
	for {
		select {
		case line, ok := <-linesCh:
			if !ok {
				return nil
			}
			logger.Debug("Received", "line", line.Text)
			h.HandleLine(line.Text)
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		}
	}
}

// StatusPollWorker calls RequestStatus periodically while connected, until ctx is done.
func (h *Host) StatusPollWorker(ctx context.Context) error {
	logger := log.MustLogger(ctx)
	ticker := time.NewTicker(h.options.StatusPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if !h.Transport.Connected() {
				continue
			}
			if err := h.RequestStatus(ctx); err != nil {
				logger.Debug("Status request failed", "err", err)
			}
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		}
	}
}
