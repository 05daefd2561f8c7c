package transport

import (
	"context"
	"io"

	"github.com/fornellas/fdm/queue"
)

// Stream is the sequence of lines received over a single connection, starting from the first
// Transport.Stream call. It ends (Next returns io.EOF) once the connection is closed and all
// received lines were consumed. It can not be restarted: each connection has its own Stream.
type Stream struct {
	queue    *queue.Queue[Line]
	closedCh chan struct{}
}

func newStream() *Stream {
	return &Stream{
		queue:    queue.NewQueue[Line](),
		closedCh: make(chan struct{}),
	}
}

func (s *Stream) close() {
	close(s.closedCh)
}

// Next blocks until the next line is received. It returns io.EOF when the stream ended, or the
// context error.
func (s *Stream) Next(ctx context.Context) (Line, error) {
	for {
		if line, ok := s.queue.TryPop(); ok {
			return line, nil
		}
		select {
		case <-s.closedCh:
			if line, ok := s.queue.TryPop(); ok {
				return line, nil
			}
			return Line{}, io.EOF
		default:
		}
		if line, ok := s.queue.Pop(ctx, readPollTimeout); ok {
			return line, nil
		}
		if err := ctx.Err(); err != nil {
			return Line{}, err
		}
	}
}
