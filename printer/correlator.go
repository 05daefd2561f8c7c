package printer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fornellas/slogxt/log"

	"github.com/fornellas/fdm/queue"
	"github.com/fornellas/fdm/transport"
)

var ErrTimeout = errors.New("printer: timeout waiting for acknowledgement")

// DefaultPollInterval is how often the responses queue is checked while awaiting.
var DefaultPollInterval = 100 * time.Millisecond

// Link is the part of transport.Transport used to exchange commands.
type Link interface {
	EnqueueWrite(line string) bool
	Responses() *queue.Queue[transport.Line]
}

// Correlator matches commands to the next acknowledgement ("ok") or error received. Responses are
// not tagged by firmwares, so this is best effort: a response to an earlier command can be taken
// for the response of a later one. Calls are serialized.
type Correlator struct {
	link         Link
	pollInterval time.Duration
	mu           sync.Mutex
}

var _ Link = (*transport.Transport)(nil)

func NewCorrelator(link Link) *Correlator {
	return &Correlator{
		link:         link,
		pollInterval: DefaultPollInterval,
	}
}

// Drain discards buffered responses, returning how many were discarded.
func (c *Correlator) Drain() int {
	return c.link.Responses().Clear()
}

// Send enqueues command and waits up to timeout for an ok / error response, which is returned.
// Firmware errors are returned as the response, not as an error: use ResponseErr to inspect them.
// It fails with transport.ErrNotConnected when command can not be enqueued, with ErrTimeout when
// no response arrives in time, or with the context error.
func (c *Correlator) Send(ctx context.Context, command string, timeout time.Duration) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	logger := log.MustLogger(ctx)

	if !c.link.EnqueueWrite(command) {
		return "", fmt.Errorf("printer: %s: %w", command, transport.ErrNotConnected)
	}

	deadline := time.Now().Add(timeout)
	responses := c.link.Responses()
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", fmt.Errorf("%w: %s", ErrTimeout, command)
		}
		line, ok := responses.Pop(ctx, min(c.pollInterval, remaining))
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("printer: %s: %w", command, err)
		}
		if !ok {
			continue
		}
		if ClassifyResponse(line.Text) == ResponseOther {
			logger.Debug("Skipping", "line", line.Text)
			continue
		}
		return line.Text, nil
	}
}

// SendAndAwait is like Send, but returns whether a response was received instead of an error.
func (c *Correlator) SendAndAwait(ctx context.Context, command string, timeout time.Duration) (string, bool) {
	response, err := c.Send(ctx, command, timeout)
	if err != nil {
		log.MustLogger(ctx).Debug("No response", "command", command, "err", err)
		return "", false
	}
	return response, true
}
