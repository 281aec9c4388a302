package api

import (
	"fmt"
	"net/http"
	"path/filepath"
	"sort"
	"strings"

	"github.com/banshee-data/position.report/internal/httputil"
	"github.com/banshee-data/position.report/internal/serialmux"
)

// DeviceInfo describes a serial port that could carry a GNSS receiver.
type DeviceInfo struct {
	PortPath     string `json:"port_path"`
	FriendlyName string `json:"friendly_name"`
	InUse        bool   `json:"in_use"`
}

// listPorts is swapped in tests.
var listPorts = serialmux.ListPorts

func (s *Server) listDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	ports, err := listPorts()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to enumerate serial ports: %v", err))
		return
	}
	sort.Strings(ports)
	devices := make([]DeviceInfo, 0, len(ports))
	for _, p := range ports {
		devices = append(devices, DeviceInfo{
			PortPath:     p,
			FriendlyName: friendlyName(p),
			InUse:        s.DevicePath != "" && p == s.DevicePath,
		})
	}
	httputil.WriteJSONOK(w, devices)
}

func friendlyName(portPath string) string {
	dev := filepath.Base(portPath)
	switch {
	case strings.HasPrefix(dev, "ttyUSB"):
		return fmt.Sprintf("USB Serial Adapter (%s)", dev)
	case strings.HasPrefix(dev, "ttyACM"):
		return fmt.Sprintf("USB CDC Receiver (%s)", dev)
	case strings.HasPrefix(dev, "ttyAMA"), strings.HasPrefix(dev, "serial"):
		return fmt.Sprintf("Raspberry Pi UART (%s)", dev)
	case strings.HasPrefix(dev, "ttyS"):
		return fmt.Sprintf("Onboard UART (%s)", dev)
	default:
		return dev
	}
}
