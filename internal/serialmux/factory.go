package serialmux

import (
	"errors"
	"fmt"
	"os"

	"go.bug.st/serial"
)

// NewRealSerialMux creates a SerialMux instance backed by a real serial port at the
// given path using the provided serial options. Permission and missing-device
// failures wrap os.ErrPermission and os.ErrNotExist.
func NewRealSerialMux(path string, opts PortOptions) (*SerialMux[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, classifyOpenError(path, err)
	}

	return NewSerialMux[serial.Port](port), nil
}

func classifyOpenError(path string, err error) error {
	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		switch portErr.Code() {
		case serial.PermissionDenied:
			return fmt.Errorf("open %s: %w: %v", path, os.ErrPermission, err)
		case serial.PortNotFound:
			return fmt.Errorf("open %s: %w: %v", path, os.ErrNotExist, err)
		}
	}
	return fmt.Errorf("open %s: %w", path, err)
}

// ListPorts returns the serial ports present on this machine.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}
