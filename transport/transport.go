package transport

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fornellas/slogxt/log"
	"go.bug.st/serial"

	"github.com/fornellas/fdm/broker"
	"github.com/fornellas/fdm/queue"
)

var ErrNotConnected = errors.New("transport: not connected")
var ErrInvalidBaudRate = errors.New("transport: invalid baud rate")
var ErrPortNotFound = errors.New("transport: port not found")
var ErrPortBusy = errors.New("transport: port busy")
var ErrPermissionDenied = errors.New("transport: permission denied")

// BaudRates lists the accepted baud rates.
var BaudRates = []int{
	300, 600, 1200, 2400, 4800, 9600, 14400, 19200, 28800, 38400, 57600, 76800,
	115200, 230400, 250000, 460800, 500000, 921600, 1000000,
}

const (
	// DefaultBaudRate is the most common printer firmware baud rate.
	DefaultBaudRate = 115200
	// readPollTimeout bounds each read, so that the read loop can observe cancellation.
	readPollTimeout = 100 * time.Millisecond
	// writeQueuePollTimeout bounds each write queue wait, so that the write loop can observe
	// shutdown.
	writeQueuePollTimeout = 1 * time.Second
	// readLoopJoinTimeout bounds how long Disconnect waits for the read loop to return.
	readLoopJoinTimeout = 2 * time.Second
	// MaxResponses bounds the responses queue; the oldest lines are dropped first.
	MaxResponses = 256
)

// OpenPortFn opens the port with the given name.
type OpenPortFn func(ctx context.Context, portName string, mode *serial.Mode) (serial.Port, error)

// SerialOpenPortFn opens local serial ports.
func SerialOpenPortFn(ctx context.Context, portName string, mode *serial.Mode) (serial.Port, error) {
	return serial.Open(portName, mode)
}

// Connection describes the open serial channel.
type Connection struct {
	PortName string
	BaudRate int
	Open     bool
}

// Line is a decoded line received from the printer. Seq is the arrival order within a connection,
// starting at 1.
type Line struct {
	Seq  uint64
	Text string
}

func (l Line) String() string {
	return l.Text
}

// Transport owns the serial connection to the printer. Outbound lines are queued and written by a
// long lived write loop; inbound lines are decoded by a per connection read loop and published to
// the inbound Stream, to the responses queue and to line subscribers.
type Transport struct {
	openPortFn OpenPortFn

	// lifecycleMu serializes Connect / Disconnect.
	lifecycleMu sync.Mutex

	// mu guards the fields below.
	mu         sync.Mutex
	port       serial.Port
	connection *Connection
	readErr    error
	readCancel context.CancelFunc
	readDoneCh chan struct{}
	stream     *Stream

	// writeMu is held while writing to or closing the port.
	writeMu sync.Mutex
	open    atomic.Bool

	writeQueue  *queue.Queue[string]
	responses   *queue.Queue[Line]
	lines       *broker.Broker[Line]
	connections *broker.Broker[bool]

	writeCancel context.CancelFunc
	writeDoneCh chan struct{}
	closeOnce   sync.Once
}

// NewTransport creates a Transport and starts its write loop, which runs until Close is called.
// ctx is only used for its logger.
func NewTransport(ctx context.Context, openPortFn OpenPortFn) *Transport {
	if openPortFn == nil {
		openPortFn = SerialOpenPortFn
	}
	t := &Transport{
		openPortFn:  openPortFn,
		writeQueue:  queue.NewQueue[string](),
		responses:   queue.NewQueue[Line](),
		lines:       broker.NewBroker[Line](),
		connections: broker.NewBroker[bool](),
		writeDoneCh: make(chan struct{}),
	}
	writeCtx, writeLogger := log.MustWithGroup(context.WithoutCancel(ctx), "Transport > Write Loop")
	writeCtx, t.writeCancel = context.WithCancel(writeCtx)
	go func() {
		defer close(t.writeDoneCh)
		writeLogger.Debug("Starting")
		t.writeLoop(writeCtx)
		writeLogger.Debug("Finished")
	}()
	return t
}

func validBaudRate(baudRate int) bool {
	return slices.Contains(BaudRates, baudRate)
}

func classifyOpenError(portName string, err error) error {
	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		switch portErr.Code() {
		case serial.PortNotFound:
			return fmt.Errorf("%w: %s: %w", ErrPortNotFound, portName, err)
		case serial.PortBusy:
			return fmt.Errorf("%w: %s: %w", ErrPortBusy, portName, err)
		case serial.PermissionDenied:
			return fmt.Errorf("%w: %s: %w", ErrPermissionDenied, portName, err)
		case serial.InvalidSpeed:
			return fmt.Errorf("%w: %s: %w", ErrInvalidBaudRate, portName, err)
		}
	}
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s: %w", ErrPortNotFound, portName, err)
	}
	if errors.Is(err, os.ErrPermission) {
		return fmt.Errorf("%w: %s: %w", ErrPermissionDenied, portName, err)
	}
	return fmt.Errorf("transport: serial port open error: %s: %w", portName, err)
}

// Connect opens the given port and starts the read loop. An existing connection is closed first.
// On success, connection subscribers receive true.
func (t *Transport) Connect(ctx context.Context, portName string, baudRate int) error {
	ctx, logger := log.MustWithAttrs(ctx, "port-name", portName, "baud-rate", baudRate)

	t.lifecycleMu.Lock()
	defer t.lifecycleMu.Unlock()

	if err := t.disconnect(ctx); err != nil {
		logger.Warn("Failed to close previous connection", "err", err)
	}

	if portName == "" {
		return fmt.Errorf("%w: empty port name", ErrPortNotFound)
	}
	if !validBaudRate(baudRate) {
		return fmt.Errorf("%w: %d", ErrInvalidBaudRate, baudRate)
	}

	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	logger.Info("Opening port")
	port, err := t.openPortFn(ctx, portName, mode)
	if err != nil {
		err = classifyOpenError(portName, err)
		logger.Error("Failed to open port", "err", err)
		t.connections.Publish(false)
		return err
	}

	// we need to set this to allow polling reads to support cancellation
	if err := port.SetReadTimeout(readPollTimeout); err != nil {
		closeErr := port.Close()
		if closeErr != nil {
			closeErr = fmt.Errorf("transport: serial port close error: %w", closeErr)
		}
		return errors.Join(fmt.Errorf("transport: error setting read timeout: %w", err), closeErr)
	}

	t.responses.Clear()

	readCtx, readLogger := log.MustWithGroup(context.WithoutCancel(ctx), "Transport > Read Loop")
	readCtx, readCancel := context.WithCancel(readCtx)
	readDoneCh := make(chan struct{})

	t.mu.Lock()
	t.port = port
	t.connection = &Connection{PortName: portName, BaudRate: baudRate, Open: true}
	t.readErr = nil
	t.readCancel = readCancel
	t.readDoneCh = readDoneCh
	t.stream = nil
	t.mu.Unlock()

	t.open.Store(true)

	go func() {
		defer close(readDoneCh)
		readLogger.Debug("Starting")
		err := t.readLoop(readCtx, port)
		if err != nil {
			readLogger.Error("Read loop failed", "err", err)
			t.mu.Lock()
			t.readErr = err
			t.mu.Unlock()
			return
		}
		readLogger.Debug("Finished")
	}()

	logger.Info("Connected")
	t.connections.Publish(true)
	return nil
}

func (t *Transport) disconnect(ctx context.Context) error {
	logger := log.MustLogger(ctx)

	t.mu.Lock()
	port := t.port
	if port == nil {
		t.mu.Unlock()
		return nil
	}
	readCancel := t.readCancel
	readDoneCh := t.readDoneCh
	stream := t.stream
	t.mu.Unlock()

	// Flipped before joining the read loop, so that the write loop stops writing.
	t.open.Store(false)

	readCancel()
	select {
	case <-readDoneCh:
	case <-time.After(readLoopJoinTimeout):
		logger.Warn("Read loop did not finish in time, closing port anyway", "timeout", readLoopJoinTimeout)
	}

	t.writeMu.Lock()
	err := port.Close()
	t.writeMu.Unlock()
	if err != nil {
		err = fmt.Errorf("transport: serial port close error: %w", err)
	}

	t.mu.Lock()
	t.port = nil
	t.connection = nil
	t.readCancel = nil
	t.readDoneCh = nil
	t.stream = nil
	t.mu.Unlock()

	if stream != nil {
		stream.close()
	}

	logger.Info("Disconnected")
	t.connections.Publish(false)
	return err
}

// Disconnect stops the read loop, closes the port and notifies connection subscribers with false.
// It is safe to call when already disconnected.
func (t *Transport) Disconnect(ctx context.Context) error {
	t.lifecycleMu.Lock()
	defer t.lifecycleMu.Unlock()
	return t.disconnect(ctx)
}

// Close disconnects and stops the write loop. The Transport can not be used afterwards.
func (t *Transport) Close(ctx context.Context) (err error) {
	t.closeOnce.Do(func() {
		err = t.Disconnect(ctx)
		t.writeCancel()
		<-t.writeDoneCh
		t.lines.Close()
		t.connections.Close()
	})
	return
}

// Connected returns whether a connection is open. A connection whose read loop failed is still
// reported as connected, see Err.
func (t *Transport) Connected() bool {
	return t.open.Load()
}

// Connection returns the current connection, or nil when disconnected.
func (t *Transport) Connection() *Connection {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connection == nil {
		return nil
	}
	connection := *t.connection
	return &connection
}

// Err returns the error that terminated the read loop of the current connection, if any.
func (t *Transport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.readErr
}

// Healthy returns true when connected and the read loop has not failed.
func (t *Transport) Healthy() bool {
	return t.Connected() && t.Err() == nil
}

// EnqueueWrite queues line for writing. It returns false when not connected. It never blocks.
func (t *Transport) EnqueueWrite(line string) bool {
	if !t.open.Load() {
		return false
	}
	t.writeQueue.Push(line)
	return true
}

// PendingWrites returns the number of lines waiting on the write queue.
func (t *Transport) PendingWrites() int {
	return t.writeQueue.Len()
}

// Stream returns the inbound line stream of the current connection, or nil when disconnected.
// The stream is created by the first call and only holds lines received after it.
func (t *Transport) Stream() *Stream {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connection == nil {
		return nil
	}
	if t.stream == nil {
		t.stream = newStream()
	}
	return t.stream
}

// Responses returns the buffered copy of inbound lines used for acknowledgement correlation. It
// holds at most MaxResponses lines.
func (t *Transport) Responses() *queue.Queue[Line] {
	return t.responses
}

// SubscribeLines subscribes to all inbound lines, across connections.
func (t *Transport) SubscribeLines(name string, size int) <-chan Line {
	return t.lines.Subscribe(name, size)
}

// SubscribeConnection subscribes to connection state changes.
func (t *Transport) SubscribeConnection(name string, size int) <-chan bool {
	return t.connections.Subscribe(name, size)
}

func (t *Transport) Unsubscribe(name string) {
	t.lines.Unsubscribe(name)
	t.connections.Unsubscribe(name)
}

func (t *Transport) publishLine(line Line) {
	t.mu.Lock()
	stream := t.stream
	t.mu.Unlock()
	if stream != nil {
		stream.queue.Push(line)
	}
	t.responses.PushBounded(line, MaxResponses)
	t.lines.Publish(line)
}

// decodeLine drops invalid UTF-8 bytes and surrounding whitespace.
func decodeLine(raw []byte) string {
	return strings.TrimSpace(strings.ToValidUTF8(string(raw), ""))
}

func (t *Transport) readLoop(ctx context.Context, port serial.Port) error {
	var seq uint64
	var pending []byte
	buf := make([]byte, 256)
	for {
		if ctx.Err() != nil {
			return nil
		}

		n, err := port.Read(buf)
		if err != nil && !errors.Is(err, os.ErrDeadlineExceeded) {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("transport: read error: %w", err)
		}

		pending = append(pending, buf[:n]...)
		for {
			i := slices.Index(pending, '\n')
			if i < 0 {
				break
			}
			text := decodeLine(pending[:i])
			pending = pending[i+1:]
			if text == "" {
				continue
			}
			seq++
			t.publishLine(Line{Seq: seq, Text: text})
		}
	}
}

func (t *Transport) write(line string) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.mu.Lock()
	port := t.port
	t.mu.Unlock()

	if !t.open.Load() || port == nil {
		return ErrNotConnected
	}

	data := []byte(line + "\n")
	n, err := port.Write(data)
	if err != nil {
		return fmt.Errorf("transport: write to serial port error: %w", err)
	}
	if n != len(data) {
		return fmt.Errorf("transport: write to serial port error: wrote %d bytes, expected %d", n, len(data))
	}
	if err := port.Drain(); err != nil {
		return fmt.Errorf("transport: serial port drain error: %w", err)
	}
	return nil
}

func (t *Transport) writeLoop(ctx context.Context) {
	logger := log.MustLogger(ctx)
	for {
		line, ok := t.writeQueue.Pop(ctx, writeQueuePollTimeout)
		if !ok {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		if err := t.write(line); err != nil {
			if errors.Is(err, ErrNotConnected) {
				logger.Debug("Dropped line", "line", line, "err", err)
				continue
			}
			logger.Error("Write failed", "line", line, "err", err)
			continue
		}
		logger.Debug("Sent", "line", line)
	}
}
