package serialtcp

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/fornellas/slogxt/log"
	"go.bug.st/serial"
)

var ErrNotSupported = errors.New("serialtcp: not supported over TCP")

// TcpPort partially implements serial.Port interface over a TCP connection, typically to a
// printer exposed with "fdm serve".
type TcpPort struct {
	conn        net.Conn
	readTimeout time.Duration
}

func TcpPortDial(ctx context.Context, address string, timeout time.Duration) (*TcpPort, error) {
	logger := log.MustLogger(ctx)
	logger.Info("Dialing TCP port", "address", address, "timeout", timeout)
	dialer := &net.Dialer{
		Timeout: timeout,
	}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetNoDelay(true); err != nil {
			return nil, errors.Join(err, conn.Close())
		}
	}
	return &TcpPort{conn: conn, readTimeout: serial.NoTimeout}, nil
}

// NewTcpPort wraps an already established connection.
func NewTcpPort(conn net.Conn) *TcpPort {
	return &TcpPort{conn: conn, readTimeout: serial.NoTimeout}
}

// SetMode is a no-op: baud rate and framing are set by the serving end.
func (tp *TcpPort) SetMode(mode *serial.Mode) error {
	return nil
}

// Read honours the read timeout set by SetReadTimeout. As with serial ports, a timeout is
// reported as (0, nil).
func (tp *TcpPort) Read(p []byte) (n int, err error) {
	deadline := time.Time{}
	if tp.readTimeout != serial.NoTimeout {
		deadline = time.Now().Add(tp.readTimeout)
	}
	if err := tp.conn.SetReadDeadline(deadline); err != nil {
		return 0, err
	}
	n, err = tp.conn.Read(p)
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return n, nil
	}
	return n, err
}

func (tp *TcpPort) Write(p []byte) (n int, err error) {
	return tp.conn.Write(p)
}

// Drain is a no-op: TCP writes are handed to the kernel on Write.
func (tp *TcpPort) Drain() error {
	return nil
}

func (tp *TcpPort) ResetInputBuffer() error {
	return ErrNotSupported
}

func (tp *TcpPort) ResetOutputBuffer() error {
	return ErrNotSupported
}

func (tp *TcpPort) SetDTR(dtr bool) error {
	return ErrNotSupported
}

func (tp *TcpPort) SetRTS(rts bool) error {
	return ErrNotSupported
}

func (tp *TcpPort) GetModemStatusBits() (*serial.ModemStatusBits, error) {
	return nil, ErrNotSupported
}

func (tp *TcpPort) SetReadTimeout(t time.Duration) error {
	tp.readTimeout = t
	return nil
}

func (tp *TcpPort) Close() error {
	return tp.conn.Close()
}

func (tp *TcpPort) Break(time.Duration) error {
	return ErrNotSupported
}
