package gnss

import (
	"errors"
	"fmt"
	"time"

	"github.com/adrianmo/go-nmea"

	"github.com/banshee-data/position.report/internal/location"
)

// ErrUnsupported is returned by ParseSentence for well-formed sentences the
// receiver does not use.
var ErrUnsupported = errors.New("unsupported sentence")

// Reading is the part of one NMEA sentence the tracker cares about.
type Reading struct {
	Type string
	// Time is the fix time in UTC, resolved against the receipt time when
	// the sentence carries no date.
	Time        time.Time
	Latitude    float64
	Longitude   float64
	HDOP        float64 // 0 when the sentence carries none
	Satellites  int64
	Fix         bool
	HasPosition bool
}

// ParseSentence decodes GGA, RMC and GSA sentences. now is the receipt time.
func ParseSentence(line string, now time.Time) (Reading, error) {
	s, err := nmea.Parse(line)
	if err != nil {
		return Reading{}, fmt.Errorf("parse nmea: %w", err)
	}

	switch v := s.(type) {
	case nmea.GGA:
		r := Reading{
			Type:        nmea.TypeGGA,
			Time:        resolveTime(now, nmea.Date{}, v.Time),
			Satellites:  v.NumSatellites,
			HDOP:        v.HDOP,
			Fix:         v.FixQuality != nmea.Invalid && v.FixQuality != "",
			HasPosition: true,
		}
		if r.Fix {
			r.Latitude, r.Longitude = v.Latitude, v.Longitude
		}
		return r, nil

	case nmea.RMC:
		r := Reading{
			Type:        nmea.TypeRMC,
			Time:        resolveTime(now, v.Date, v.Time),
			Fix:         v.Validity == nmea.ValidRMC,
			HasPosition: true,
		}
		if r.Fix {
			r.Latitude, r.Longitude = v.Latitude, v.Longitude
		}
		return r, nil

	case nmea.GSA:
		return Reading{
			Type: nmea.TypeGSA,
			Time: now.UTC(),
			HDOP: v.HDOP,
			Fix:  v.FixType == nmea.Fix2D || v.FixType == nmea.Fix3D,
		}, nil
	}
	return Reading{Type: s.DataType()}, ErrUnsupported
}

// Sample converts a position reading into a tracker sample. The accuracy
// radius is HDOP times uere; hdop stands in when the sentence carries none.
// Readings without a fix become the (0,0) no-fix sample.
func (r Reading) Sample(uere, hdop float64) location.Sample {
	if r.HDOP > 0 {
		hdop = r.HDOP
	}
	if !r.Fix {
		return location.Sample{Timestamp: r.Time}
	}
	return location.Sample{
		Latitude:           r.Latitude,
		Longitude:          r.Longitude,
		HorizontalAccuracy: hdop * uere,
		Timestamp:          r.Time,
	}
}

// resolveTime builds a UTC instant from the sentence's date and time of day.
// Without a date, the day is taken from now and shifted by one when that
// puts the fix more than twelve hours away, which handles midnight.
func resolveTime(now time.Time, d nmea.Date, t nmea.Time) time.Time {
	now = now.UTC()
	if !t.Valid {
		return now
	}
	nanos := t.Millisecond * int(time.Millisecond)
	if d.Valid {
		return time.Date(2000+d.YY, time.Month(d.MM), d.DD, t.Hour, t.Minute, t.Second, nanos, time.UTC)
	}
	fix := time.Date(now.Year(), now.Month(), now.Day(), t.Hour, t.Minute, t.Second, nanos, time.UTC)
	switch diff := fix.Sub(now); {
	case diff > 12*time.Hour:
		fix = fix.AddDate(0, 0, -1)
	case diff < -12*time.Hour:
		fix = fix.AddDate(0, 0, 1)
	}
	return fix
}
