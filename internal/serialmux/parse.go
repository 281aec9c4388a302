package serialmux

import (
	"strings"

	"github.com/adrianmo/go-nmea"
)

const (
	EventTypePosition    = "position"
	EventTypeSatellites  = "satellites"
	EventTypeProprietary = "proprietary"
	EventTypeOther       = "other"
	EventTypeUnknown     = "unknown"
)

// ClassifyPayload inspects a line read from the receiver and returns a coarse
// sentence class. Only the address field is examined; checksums are left to
// the parser.
func ClassifyPayload(payload string) string {
	payload = strings.TrimSpace(payload)
	if len(payload) < 2 || (payload[0] != '$' && payload[0] != '!') {
		return EventTypeUnknown
	}
	addr := payload[1:]
	if i := strings.IndexAny(addr, ",*"); i >= 0 {
		addr = addr[:i]
	}
	if strings.HasPrefix(addr, "P") {
		return EventTypeProprietary
	}
	if len(addr) < 5 {
		return EventTypeUnknown
	}
	switch addr[len(addr)-3:] {
	case "GGA", "RMC", "GLL", "GNS":
		return EventTypePosition
	case "GSA", "GSV":
		return EventTypeSatellites
	}
	return EventTypeOther
}

// FrameSentence wraps a bare sentence body in '$' and its checksum. A body
// that already starts with '$' is returned unchanged.
func FrameSentence(body string) string {
	body = strings.TrimSpace(body)
	if strings.HasPrefix(body, "$") {
		return body
	}
	return "$" + body + "*" + nmea.Checksum(body)
}
