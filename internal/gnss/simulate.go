package gnss

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/banshee-data/position.report/internal/serialmux"
	"github.com/banshee-data/position.report/internal/timeutil"
)

// Simulator produces a plausible NMEA stream for a receiver wandering around
// a start point. Each call to Next returns one epoch: a GGA and an RMC
// sentence for the same fix time.
type Simulator struct {
	clock timeutil.Clock

	mu   sync.Mutex
	rng  *rand.Rand
	lat  float64
	lon  float64
	hdop float64
}

// NewSimulator starts a walk at lat/lon. seed makes the walk reproducible.
func NewSimulator(clock timeutil.Clock, lat, lon float64, seed uint64) *Simulator {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Simulator{
		clock: clock,
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		lat:   lat,
		lon:   lon,
		hdop:  1.2,
	}
}

// Next advances the walk by a few meters and returns the sentences for it.
func (s *Simulator) Next() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lat += s.rng.NormFloat64() * 2e-5
	s.lon += s.rng.NormFloat64() * 2e-5
	s.hdop = math.Min(4, math.Max(0.6, s.hdop+s.rng.NormFloat64()*0.1))

	now := s.clock.Now().UTC()
	hms := fmt.Sprintf("%02d%02d%02d.%03d", now.Hour(), now.Minute(), now.Second(), now.Nanosecond()/1e6)
	lat, ns := nmeaCoord(s.lat, 2, "N", "S")
	lon, ew := nmeaCoord(s.lon, 3, "E", "W")

	gga := fmt.Sprintf("GPGGA,%s,%s,%s,%s,%s,1,%02d,%.1f,12.0,M,0.0,M,,", hms, lat, ns, lon, ew, 6+s.rng.IntN(6), s.hdop)
	rmc := fmt.Sprintf("GPRMC,%s,A,%s,%s,%s,%s,000.5,000.0,%s,000.0,E", hms, lat, ns, lon, ew, now.Format("020106"))

	var b strings.Builder
	for _, body := range []string{gga, rmc} {
		b.WriteString(serialmux.FrameSentence(body))
		b.WriteString("\r\n")
	}
	return []byte(b.String())
}

// Position returns the current point of the walk.
func (s *Simulator) Position() (lat, lon float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lat, s.lon
}

func nmeaCoord(v float64, degWidth int, pos, neg string) (string, string) {
	hemi := pos
	if v < 0 {
		hemi = neg
		v = -v
	}
	deg := math.Floor(v)
	minutes := (v - deg) * 60
	return fmt.Sprintf("%0*d%07.4f", degWidth, int(deg), minutes), hemi
}
