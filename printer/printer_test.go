package printer

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fornellas/slogxt/log"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/fornellas/fdm/internal/fakeserial"
	"github.com/fornellas/fdm/transport"
)

func testContext(t *testing.T) context.Context {
	return log.WithLogger(t.Context(), slog.New(slog.DiscardHandler))
}

func testHostOptions() HostOptions {
	options := DefaultHostOptions
	options.Dispatcher.CommandDelay = time.Millisecond
	return options
}

func newTestHost(t *testing.T, options HostOptions, connect bool) (context.Context, *Host, *fakeserial.Port) {
	ctx := testContext(t)
	port := fakeserial.NewPort()
	host := NewHost(ctx, func(ctx context.Context, portName string, mode *serial.Mode) (serial.Port, error) {
		return port, nil
	}, options)
	t.Cleanup(func() { require.NoError(t, host.Close(ctx)) })
	if connect {
		require.NoError(t, host.Connect(ctx, "/dev/ttyUSB0", transport.DefaultBaudRate))
	}
	return ctx, host, port
}

// okResponder acknowledges the first limit lines written, or all lines if limit < 0.
func okResponder(limit int64) (func(string) []string, *atomic.Int64) {
	var count atomic.Int64
	return func(line string) []string {
		n := count.Add(1)
		if limit >= 0 && n > limit {
			return nil
		}
		return []string{"ok"}
	}, &count
}

func nextEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case event, ok := <-ch:
		require.True(t, ok, "events channel closed")
		return event
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for event")
	}
	panic("unreachable")
}

// eventsUntil collects events until a StatusEvent with status is received, which is included.
func eventsUntil(t *testing.T, ch <-chan Event, status Status) []Event {
	t.Helper()
	events := []Event{}
	for {
		event := nextEvent(t, ch)
		events = append(events, event)
		if statusEvent, ok := event.(StatusEvent); ok && statusEvent.Status == status {
			return events
		}
	}
}

func requireNoEvent(t *testing.T, ch <-chan Event) {
	t.Helper()
	select {
	case event := <-ch:
		t.Fatalf("unexpected event: %s", event)
	case <-time.After(100 * time.Millisecond):
	}
}

func progressValues(events []Event) []int {
	values := []int{}
	for _, event := range events {
		if progressEvent, ok := event.(ProgressEvent); ok {
			values = append(values, progressEvent.Progress)
		}
	}
	return values
}
