package transport

import (
	"context"
	"sort"

	"github.com/fornellas/slogxt/log"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// PortDetails describes a visible serial port.
type PortDetails struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

// ListPorts enumerates visible serial port names. Enumeration failures are logged and result in
// an empty list.
func ListPorts(ctx context.Context) []string {
	logger := log.MustLogger(ctx)
	ports, err := serial.GetPortsList()
	if err != nil {
		logger.Debug("Failed to list serial ports", "err", err)
		return []string{}
	}
	sort.Strings(ports)
	return ports
}

// ListPortDetails is like ListPorts, but includes USB details where available.
func ListPortDetails(ctx context.Context) []*PortDetails {
	logger := log.MustLogger(ctx)
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		logger.Debug("Failed to list serial port details", "err", err)
		return []*PortDetails{}
	}
	details := make([]*PortDetails, 0, len(ports))
	for _, port := range ports {
		details = append(details, &PortDetails{
			Name:         port.Name,
			IsUSB:        port.IsUSB,
			VID:          port.VID,
			PID:          port.PID,
			SerialNumber: port.SerialNumber,
			Product:      port.Product,
		})
	}
	sort.Slice(details, func(i, j int) bool { return details[i].Name < details[j].Name })
	return details
}
