package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/fornellas/slogxt/log"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/fornellas/fdm/internal/fakeserial"
)

func testContext(t *testing.T) context.Context {
	return log.WithLogger(t.Context(), slog.New(slog.DiscardHandler))
}

func newTestTransport(t *testing.T) (context.Context, *Transport, *fakeserial.Port) {
	ctx := testContext(t)
	port := fakeserial.NewPort()
	transport := NewTransport(ctx, func(ctx context.Context, portName string, mode *serial.Mode) (serial.Port, error) {
		return port, nil
	})
	t.Cleanup(func() { require.NoError(t, transport.Close(ctx)) })
	return ctx, transport, port
}

func receive[T any](t *testing.T, ch <-chan T) T {
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timeout")
	}
	panic("unreachable")
}

func TestTransportConnectInvalidBaudRate(t *testing.T) {
	ctx, transport, _ := newTestTransport(t)
	err := transport.Connect(ctx, "/dev/ttyUSB0", 12345)
	require.ErrorIs(t, err, ErrInvalidBaudRate)
	require.False(t, transport.Connected())
	require.Nil(t, transport.Connection())
}

func TestTransportConnectOpenError(t *testing.T) {
	ctx := testContext(t)
	transport := NewTransport(ctx, func(ctx context.Context, portName string, mode *serial.Mode) (serial.Port, error) {
		return nil, fmt.Errorf("open %s: %w", portName, os.ErrNotExist)
	})
	defer func() { require.NoError(t, transport.Close(ctx)) }()

	err := transport.Connect(ctx, "/dev/ttyUSB9", DefaultBaudRate)
	require.ErrorIs(t, err, ErrPortNotFound)
	require.False(t, transport.Connected())
	require.False(t, transport.EnqueueWrite("M105"))
}

func TestTransportEnqueueWriteDisconnected(t *testing.T) {
	_, transport, port := newTestTransport(t)
	require.False(t, transport.EnqueueWrite("G28"))
	require.Empty(t, port.Written())
	require.Nil(t, transport.Stream())
}

func TestTransportWriteOrder(t *testing.T) {
	ctx, transport, port := newTestTransport(t)
	connectionCh := transport.SubscribeConnection("test", 10)

	require.NoError(t, transport.Connect(ctx, "/dev/ttyUSB0", DefaultBaudRate))
	require.True(t, receive(t, connectionCh))
	require.Equal(t, &Connection{PortName: "/dev/ttyUSB0", BaudRate: DefaultBaudRate, Open: true}, transport.Connection())

	expected := []string{}
	for i := range 50 {
		line := fmt.Sprintf("G1 X%d", i)
		require.True(t, transport.EnqueueWrite(line))
		expected = append(expected, line)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	written, err := port.WaitWritten(waitCtx, len(expected))
	require.NoError(t, err)
	require.Equal(t, expected, written)
	require.GreaterOrEqual(t, port.Drains(), len(expected))
}

func TestTransportInbound(t *testing.T) {
	ctx, transport, port := newTestTransport(t)
	linesCh := transport.SubscribeLines("test", 10)

	require.NoError(t, transport.Connect(ctx, "/dev/ttyUSB0", DefaultBaudRate))
	stream := transport.Stream()
	require.NotNil(t, stream)

	port.Feed("ok\r\nT:20\xff0.0 /210.0\n\n   \nX:1.00 Y:2")
	port.Feed(".00 Z:3.00\n")

	nextCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	expected := []Line{
		{Seq: 1, Text: "ok"},
		{Seq: 2, Text: "T:200.0 /210.0"},
		{Seq: 3, Text: "X:1.00 Y:2.00 Z:3.00"},
	}
	for _, expectedLine := range expected {
		line, err := stream.Next(nextCtx)
		require.NoError(t, err)
		require.Equal(t, expectedLine, line)
		require.Equal(t, expectedLine, receive(t, linesCh))
	}
	require.Equal(t, len(expected), transport.Responses().Len())

	require.NoError(t, transport.Disconnect(ctx))
	_, err := stream.Next(nextCtx)
	require.ErrorIs(t, err, io.EOF)
}

func TestTransportDisconnectIdempotent(t *testing.T) {
	ctx, transport, port := newTestTransport(t)
	connectionCh := transport.SubscribeConnection("test", 10)

	require.NoError(t, transport.Disconnect(ctx))

	require.NoError(t, transport.Connect(ctx, "/dev/ttyUSB0", DefaultBaudRate))
	require.True(t, receive(t, connectionCh))

	require.NoError(t, transport.Disconnect(ctx))
	require.False(t, receive(t, connectionCh))
	require.True(t, port.Closed())
	require.False(t, transport.Connected())

	require.NoError(t, transport.Disconnect(ctx))
	require.False(t, transport.EnqueueWrite("M105"))
}

func TestTransportReadError(t *testing.T) {
	ctx, transport, port := newTestTransport(t)
	require.NoError(t, transport.Connect(ctx, "/dev/ttyUSB0", DefaultBaudRate))

	readErr := errors.New("device gone")
	port.FailReads(readErr)

	require.Eventually(t, func() bool { return transport.Err() != nil }, 5*time.Second, 10*time.Millisecond)
	require.ErrorIs(t, transport.Err(), readErr)
	require.True(t, transport.Connected())
	require.False(t, transport.Healthy())

	require.NoError(t, transport.Disconnect(ctx))
	require.False(t, transport.Healthy())
}

func TestTransportWriteErrorContinues(t *testing.T) {
	ctx, transport, port := newTestTransport(t)
	require.NoError(t, transport.Connect(ctx, "/dev/ttyUSB0", DefaultBaudRate))

	port.FailWrites(errors.New("write failed"))
	require.True(t, transport.EnqueueWrite("M104 S200"))
	require.Eventually(t, func() bool { return port.Writes() == 1 }, 5*time.Second, 10*time.Millisecond)
	port.FailWrites(nil)

	require.True(t, transport.EnqueueWrite("M140 S60"))
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	written, err := port.WaitWritten(waitCtx, 1)
	require.NoError(t, err)
	require.Equal(t, []string{"M140 S60"}, written)
}

func TestTransportReconnect(t *testing.T) {
	ctx := testContext(t)
	var ports []*fakeserial.Port
	transport := NewTransport(ctx, func(ctx context.Context, portName string, mode *serial.Mode) (serial.Port, error) {
		port := fakeserial.NewPort()
		ports = append(ports, port)
		return port, nil
	})
	defer func() { require.NoError(t, transport.Close(ctx)) }()

	require.NoError(t, transport.Connect(ctx, "/dev/ttyUSB0", DefaultBaudRate))
	first := transport.Stream()
	require.NoError(t, transport.Connect(ctx, "/dev/ttyACM0", 250000))
	second := transport.Stream()

	require.Len(t, ports, 2)
	require.True(t, ports[0].Closed())
	require.NotSame(t, first, second)
	_, err := first.Next(ctx)
	require.ErrorIs(t, err, io.EOF)

	require.True(t, transport.EnqueueWrite("M115"))
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	written, err := ports[1].WaitWritten(waitCtx, 1)
	require.NoError(t, err)
	require.Equal(t, []string{"M115"}, written)
	require.Empty(t, ports[0].Written())
}

func TestTransportInboundBounded(t *testing.T) {
	ctx, transport, port := newTestTransport(t)
	linesCh := transport.SubscribeLines("test", 10)
	require.NoError(t, transport.Connect(ctx, "/dev/ttyUSB0", DefaultBaudRate))

	total := MaxResponses + 44
	data := ""
	for i := range total {
		data += fmt.Sprintf("T:%d.0 /0.0\n", i)
	}
	port.Feed(data)
	for range total {
		receive(t, linesCh)
	}

	require.Equal(t, MaxResponses, transport.Responses().Len())
	line, ok := transport.Responses().TryPop()
	require.True(t, ok)
	require.Equal(t, uint64(total-MaxResponses+1), line.Seq)

	stream := transport.Stream()
	require.NotNil(t, stream)
	require.Zero(t, stream.queue.Len())
	require.Same(t, stream, transport.Stream())

	port.Feed("ok\n")
	nextCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	line, err := stream.Next(nextCtx)
	require.NoError(t, err)
	require.Equal(t, Line{Seq: uint64(total + 1), Text: "ok"}, line)
}
