package gnss

import (
	"fmt"

	"go.bug.st/serial"
)

// SerialConfig mirrors the mode fields the teacher's own
// apps/serial_usb_grabber sets on a go.bug.st/serial port, narrowed to
// what a GNSS receiver needs: a fixed baud rate and the port path.
type SerialConfig struct {
	Path     string
	BaudRate int
}

// OpenSerial opens the configured GNSS serial device with 8N1 framing,
// the arrangement practically every NMEA-speaking GNSS receiver uses.
func OpenSerial(cfg SerialConfig) (serial.Port, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.Path, mode)
	if err != nil {
		return nil, fmt.Errorf("gnss: cannot open serial device %s: %w", cfg.Path, err)
	}
	return port, nil
}
