package serialtcp

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/fornellas/slogxt/log"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

var _ serial.Port = (*TcpPort)(nil)

func TestTcpPort(t *testing.T) {
	ctx := log.WithLogger(t.Context(), slog.New(slog.DiscardHandler))

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { require.NoError(t, listener.Close()) }()

	serverErrCh := make(chan error, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			serverErrCh <- err
			return
		}
		defer conn.Close()
		line, err := bufio.NewReader(conn).ReadString('\n')
		if err != nil {
			serverErrCh <- err
			return
		}
		if line != "M105\n" {
			serverErrCh <- fmt.Errorf("unexpected line: %q", line)
			return
		}
		_, err = conn.Write([]byte("ok T:200.0 /200.0\n"))
		serverErrCh <- err
	}()

	port, err := TcpPortDial(ctx, listener.Addr().String(), time.Second)
	require.NoError(t, err)
	defer func() { require.NoError(t, port.Close()) }()

	require.NoError(t, port.SetReadTimeout(50*time.Millisecond))

	buf := make([]byte, 64)
	n, err := port.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	_, err = port.Write([]byte("M105\n"))
	require.NoError(t, err)
	require.NoError(t, port.Drain())
	require.NoError(t, <-serverErrCh)

	var got []byte
	deadline := time.Now().Add(5 * time.Second)
	for len(got) == 0 || got[len(got)-1] != '\n' {
		require.True(t, time.Now().Before(deadline))
		n, err := port.Read(buf)
		require.NoError(t, err)
		got = append(got, buf[:n]...)
	}
	require.Equal(t, "ok T:200.0 /200.0\n", string(got))
}
