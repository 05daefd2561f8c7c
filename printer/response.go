package printer

import (
	"errors"
	"fmt"
	"strings"
)

var ErrFirmware = errors.New("firmware error")

// ResponseType classifies a line received from the firmware.
type ResponseType int

const (
	// Telemetry, echo or any other line not acknowledging a command.
	ResponseOther ResponseType = iota
	// Command acknowledged.
	ResponseOk
	// Command failed.
	ResponseError
)

func (r ResponseType) String() string {
	switch r {
	case ResponseOk:
		return "ok"
	case ResponseError:
		return "error"
	default:
		return "other"
	}
}

// ClassifyResponse tells whether line acknowledges a command. Matching is by case insensitive
// substring, as firmwares are not consistent with acknowledgement formats (eg: "ok",
// "ok T:210.0 /210.0", "Error:Printer halted").
func ClassifyResponse(line string) ResponseType {
	lower := strings.ToLower(line)
	if strings.Contains(lower, "error") {
		return ResponseError
	}
	if strings.Contains(lower, "ok") {
		return ResponseOk
	}
	return ResponseOther
}

// ResponseErr returns an error wrapping ErrFirmware for error responses, or nil otherwise.
func ResponseErr(line string) error {
	if ClassifyResponse(line) != ResponseError {
		return nil
	}
	message := line
	for i := 0; i+len("error") <= len(line); i++ {
		if strings.EqualFold(line[i:i+len("error")], "error") {
			message = strings.TrimPrefix(line[i+len("error"):], ":")
			break
		}
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return ErrFirmware
	}
	return fmt.Errorf("%w: %s", ErrFirmware, message)
}
