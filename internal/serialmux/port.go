package serialmux

import (
	"io"
)

// SerialPorter defines the minimal interface needed for a serial port.
// This abstraction enables unit testing without real serial hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// Opener opens a multiplexer on the device at path. The GNSS receiver calls
// it each time streaming starts.
type Opener func(path string, opts PortOptions) (SerialMuxInterface, error)

// RealOpener opens real serial ports through go.bug.st/serial.
func RealOpener(path string, opts PortOptions) (SerialMuxInterface, error) {
	mux, err := NewRealSerialMux(path, opts)
	if err != nil {
		return nil, err
	}
	return mux, nil
}
