// Package fakeserial provides an in-memory serial.Port for tests.
package fakeserial

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

var ErrClosed = errors.New("fakeserial: port closed")

// Port is an in-memory serial.Port. Bytes given to Feed are returned by Read; complete lines
// written are recorded and optionally passed to a responder, whose return values are fed back.
type Port struct {
	mu          sync.Mutex
	cond        *sync.Cond
	inbound     []byte
	writeBuf    []byte
	written     []string
	closed      bool
	readTimeout time.Duration
	readErr     error
	writeErr    error
	responder   func(line string) []string
	drains      int
	writes      int
}

func NewPort() *Port {
	p := &Port{readTimeout: serial.NoTimeout}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// SetResponder registers fn to be called for each complete written line. Returned lines are fed
// back (newline terminated) as inbound data.
func (p *Port) SetResponder(fn func(line string) []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responder = fn
}

// Feed appends raw inbound data.
func (p *Port) Feed(data string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inbound = append(p.inbound, data...)
	p.cond.Broadcast()
}

// FailReads makes subsequent reads return err.
func (p *Port) FailReads(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readErr = err
	p.cond.Broadcast()
}

// FailWrites makes subsequent writes return err; nil restores writes.
func (p *Port) FailWrites(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeErr = err
}

// Written returns all complete lines written so far, without the line terminator.
func (p *Port) Written() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string{}, p.written...)
}

// WaitWritten blocks until at least n lines were written, or ctx is done.
func (p *Port) WaitWritten(ctx context.Context, n int) ([]string, error) {
	for {
		written := p.Written()
		if len(written) >= n {
			return written, nil
		}
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (p *Port) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Port) Drains() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.drains
}

func (p *Port) SetMode(mode *serial.Mode) error {
	return nil
}

func (p *Port) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var deadline time.Time
	if p.readTimeout != serial.NoTimeout {
		deadline = time.Now().Add(p.readTimeout)
		timer := time.AfterFunc(p.readTimeout, func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			p.cond.Broadcast()
		})
		defer timer.Stop()
	}

	for {
		if p.closed {
			return 0, ErrClosed
		}
		if p.readErr != nil {
			return 0, p.readErr
		}
		if len(p.inbound) > 0 {
			n := copy(b, p.inbound)
			p.inbound = p.inbound[n:]
			return n, nil
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return 0, nil
		}
		p.cond.Wait()
	}
}

// Writes returns the number of Write calls, including failed ones.
func (p *Port) Writes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writes
}

func (p *Port) Write(b []byte) (int, error) {
	p.mu.Lock()
	p.writes++
	if p.closed {
		p.mu.Unlock()
		return 0, ErrClosed
	}
	if p.writeErr != nil {
		err := p.writeErr
		p.mu.Unlock()
		return 0, err
	}
	p.writeBuf = append(p.writeBuf, b...)
	var lines []string
	for {
		i := strings.IndexByte(string(p.writeBuf), '\n')
		if i < 0 {
			break
		}
		lines = append(lines, string(p.writeBuf[:i]))
		p.writeBuf = p.writeBuf[i+1:]
	}
	p.written = append(p.written, lines...)
	responder := p.responder
	p.mu.Unlock()

	if responder != nil {
		for _, line := range lines {
			for _, reply := range responder(line) {
				p.Feed(reply + "\n")
			}
		}
	}
	return len(b), nil
}

func (p *Port) Drain() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.drains++
	return nil
}

func (p *Port) ResetInputBuffer() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inbound = nil
	return nil
}

func (p *Port) ResetOutputBuffer() error {
	return nil
}

func (p *Port) SetDTR(dtr bool) error {
	return nil
}

func (p *Port) SetRTS(rts bool) error {
	return nil
}

func (p *Port) GetModemStatusBits() (*serial.ModemStatusBits, error) {
	return &serial.ModemStatusBits{}, nil
}

func (p *Port) SetReadTimeout(t time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readTimeout = t
	return nil
}

func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.closed = true
	p.cond.Broadcast()
	return nil
}

func (p *Port) Break(time.Duration) error {
	return nil
}
