package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/fornellas/slogxt/log"
	"github.com/spf13/cobra"
	"go.bug.st/serial"

	"github.com/fornellas/fdm/printer"
	"github.com/fornellas/fdm/transport"
)

var listenAddress string
var defaultListenAddress = "127.0.0.1:9999"

func handleServeConnection(ctx context.Context, conn net.Conn, port string, baudRate int) error {
	logger := log.MustLogger(ctx)

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetNoDelay(true); err != nil {
			return errors.Join(fmt.Errorf("failed to set TCP no delay: %w", err), conn.Close())
		}
	}

	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	logger.Info("Opening serial port")
	serialPort, err := transport.SerialOpenPortFn(ctx, port, mode)
	if err != nil {
		return errors.Join(fmt.Errorf("failed to open: %s: %w", port, err), conn.Close())
	}

	errCh := make(chan error, 2)

	logger.Info("Copying I/O")
	go func() {
		_, err := io.Copy(conn, serialPort)
		errCh <- err
	}()

	go func() {
		_, err := io.Copy(serialPort, conn)
		errCh <- err
	}()

	err = <-errCh
	logger.Info("Closing connection")
	err = errors.Join(err, conn.Close())
	logger.Info("Closing port")
	err = errors.Join(err, serialPort.Close())
	logger.Info("Waiting for copy routine to return")
	err = errors.Join(err, <-errCh)

	return err
}

var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a TCP server connected to a serial port.",
	Long:  "Opens serial port and a TCP server, and pipes communication between both, so that other commands can connect with --address. There's NO security implemented, this can only be used in secure networks at your own risk.",
	Args:  cobra.NoArgs,
	Run: GetRunFn(func(cmd *cobra.Command, args []string) (err error) {
		name, rate := GetPortName()
		if name == "" || strings.EqualFold(name, printer.AutoPortName) {
			ports := transport.ListPorts(cmd.Context())
			if len(ports) == 0 {
				return printer.ErrNoPortFound
			}
			name = ports[0]
		}

		ctx, logger := log.MustWithAttrs(
			cmd.Context(),
			"port-name", name,
			"baud-rate", rate,
			"listen-address", listenAddress,
		)
		cmd.SetContext(ctx)

		logger.Info("Listening")
		listenConfig := &net.ListenConfig{}
		listener, err := listenConfig.Listen(ctx, "tcp", listenAddress)
		if err != nil {
			return fmt.Errorf("failed to listen: %s: %w", listenAddress, err)
		}
		defer func() {
			if closeErr := listener.Close(); !errors.Is(closeErr, net.ErrClosed) {
				err = errors.Join(err, closeErr)
			}
		}()

		go func() {
			<-ctx.Done()
			logger.Info("Closing listener")
			_ = listener.Close()
		}()

		for {
			logger.Info("Accepting connection")
			conn, err := listener.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				logger.Error("Failed to accept connection", "error", err)
				continue
			}
			connCtx, connLogger := log.MustWithGroupAttrs(
				ctx,
				"Connection",
				"LocalAddr", conn.LocalAddr(),
				"RemoteAddr", conn.RemoteAddr(),
			)
			connLogger.Info("Accepted")

			if err := handleServeConnection(connCtx, conn, name, rate); err != nil {
				connLogger.Error("Failed to handle connection", "error", err)
			}
		}
	}),
}

func init() {
	ServeCmd.PersistentFlags().StringVarP(&portName, "port-name", "p", defaultPortName, "Serial port name to open, or AUTO for the first one found; defaults to serial.port configuration")
	ServeCmd.PersistentFlags().IntVarP(&baudRate, "baud-rate", "b", defaultBaudRate, "Serial port baud rate; defaults to serial.baudrate configuration")
	ServeCmd.PersistentFlags().StringVar(&listenAddress, "listen-address", defaultListenAddress, "TCP address to listen on (host:port)")

	RootCmd.AddCommand(ServeCmd)

	resetFlagsFns = append(resetFlagsFns, func() {
		listenAddress = defaultListenAddress
	})
}
