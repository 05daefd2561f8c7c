package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fornellas/slogxt/log"
	"github.com/spf13/cobra"
	"go.bug.st/serial"

	"github.com/fornellas/fdm/printer"
	"github.com/fornellas/fdm/serialtcp"
	"github.com/fornellas/fdm/transport"
)

var portName string
var defaultPortName = ""

var address string
var defaultAddress = ""

var baudRate int
var defaultBaudRate = 0

var dialTimeout time.Duration
var defaultDialTimeout = 5 * time.Second

func AddPortFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVarP(&portName, "port-name", "p", defaultPortName, "Serial port name to open, or AUTO for the first one found; defaults to serial.port configuration")
	cmd.PersistentFlags().StringVarP(&address, "address", "a", defaultAddress, "TCP address to connect to, as exposed by serve")
	cmd.PersistentFlags().IntVarP(&baudRate, "baud-rate", "b", defaultBaudRate, "Serial port baud rate; defaults to serial.baudrate configuration")
	cmd.PersistentFlags().DurationVar(&dialTimeout, "dial-timeout", defaultDialTimeout, "TCP dial timeout")
}

// GetPortName returns the port name to connect to and its baud rate, from flags or configuration.
func GetPortName() (string, int) {
	name := portName
	if address != "" {
		name = address
	}
	if name == "" {
		name = cfg.PortName()
	}
	rate := baudRate
	if rate == 0 {
		rate = cfg.BaudRate()
	}
	return name, rate
}

func GetOpenPortFn() (transport.OpenPortFn, error) {
	if portName != "" && address != "" {
		return nil, fmt.Errorf("flags --port-name and --address can not be set simultaneously")
	}

	if address != "" {
		return func(ctx context.Context, portName string, mode *serial.Mode) (serial.Port, error) {
			return serialtcp.TcpPortDial(ctx, portName, dialTimeout)
		}, nil
	}

	return transport.SerialOpenPortFn, nil
}

// NewHost creates a printer.Host configured from flags and configuration.
func NewHost(ctx context.Context) (*printer.Host, error) {
	openPortFn, err := GetOpenPortFn()
	if err != nil {
		return nil, err
	}
	return printer.NewHost(ctx, openPortFn, cfg.HostOptions()), nil
}

// flushWrites waits for queued writes to be sent, up to timeout.
func flushWrites(ctx context.Context, host *printer.Host, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for host.Transport.Connected() && host.Transport.PendingWrites() > 0 {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return fmt.Errorf("%d pending writes: %w", host.Transport.PendingWrites(), ctx.Err())
		}
	}
	return nil
}

// ConnectHost creates a printer.Host and connects it. The returned function flushes pending
// writes, then disconnects and releases the host.
func ConnectHost(ctx context.Context) (*printer.Host, func() error, error) {
	host, err := NewHost(ctx)
	if err != nil {
		return nil, nil, err
	}
	name, rate := GetPortName()
	logger := log.MustLogger(ctx)
	logger.Info("Connecting", "port-name", name, "baud-rate", rate)
	if err := host.Connect(ctx, name, rate); err != nil {
		return nil, nil, errors.Join(err, host.Close(ctx))
	}
	return host, func() error {
		err := flushWrites(context.WithoutCancel(ctx), host, cfg.SerialTimeout())
		logger.Info("Disconnecting")
		return errors.Join(err, host.Close(ctx))
	}, nil
}

func init() {
	resetFlagsFns = append(resetFlagsFns, func() {
		portName = defaultPortName
		address = defaultAddress
		baudRate = defaultBaudRate
		dialTimeout = defaultDialTimeout
	})
}
