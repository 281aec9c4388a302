// Package gnss drives a serial NMEA 0183 GNSS receiver as the tracker's
// position sensor.
package gnss

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/banshee-data/position.report/internal/location"
	"github.com/banshee-data/position.report/internal/monitoring"
	"github.com/banshee-data/position.report/internal/serialmux"
	"github.com/banshee-data/position.report/internal/timeutil"
)

// DefaultUERE is the user equivalent range error, in meters, assumed for an
// uncorrected consumer receiver.
const DefaultUERE = 5.0

// ErrStreamEnded is reported as a sensor failure when the receiver stops
// producing data without being asked to.
var ErrStreamEnded = errors.New("gnss: receiver stream ended")

// Config describes how to reach the receiver.
type Config struct {
	Path         string
	Options      serialmux.PortOptions
	UERE         float64
	InitCommands []string

	// Open defaults to serialmux.RealOpener.
	Open  serialmux.Opener
	Clock timeutil.Clock
	Logf  location.Logger
}

// Status is a diagnostic snapshot of the receiver.
type Status struct {
	Path        string    `json:"path"`
	Streaming   bool      `json:"streaming"`
	Opens       uint64    `json:"opens"`
	Sentences   uint64    `json:"sentences"`
	ParseErrors uint64    `json:"parse_errors"`
	Fixes       uint64    `json:"fixes"`
	Batches     uint64    `json:"batches"`
	Delivered   uint64    `json:"delivered"`
	Filtered    uint64    `json:"distance_filtered"`
	LastHDOP    float64   `json:"last_hdop"`
	LastFixAt   time.Time `json:"last_fix_at,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

type stream struct {
	mux       serialmux.SerialMuxInterface
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	epoch   time.Time
	pending []location.Sample
}

func (s *stream) close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.mux.Close()
	})
}

// Receiver implements location.SensorHandle over a serial NMEA receiver. The
// port is opened when streaming starts and closed when it stops. Samples are
// delivered once per receiver epoch, when a sentence for a later fix time
// arrives. The last epoch of a stream is delivered from the reader goroutine
// after the port closes.
type Receiver struct {
	cfg   Config
	clock timeutil.Clock
	logf  location.Logger

	mu        sync.Mutex
	onSamples func([]location.Sample)
	onFailure func(error)

	distanceFilter float64
	accuracy       location.Accuracy
	activity       location.ActivityType
	hints          location.StreamHints

	stream *stream
	last   *location.Sample // reference point for the distance filter
	status Status

	readers sync.WaitGroup
}

var _ location.SensorHandle = (*Receiver)(nil)

// NewReceiver returns a stopped receiver.
func NewReceiver(cfg Config) *Receiver {
	if cfg.Open == nil {
		cfg.Open = serialmux.RealOpener
	}
	if cfg.UERE <= 0 {
		cfg.UERE = DefaultUERE
	}
	r := &Receiver{
		cfg:            cfg,
		clock:          cfg.Clock,
		logf:           cfg.Logf,
		distanceFilter: location.DistanceFilterNone,
		accuracy:       location.AccuracyBest,
		activity:       location.ActivityOther,
	}
	if r.clock == nil {
		r.clock = timeutil.RealClock{}
	}
	if r.logf == nil {
		r.logf = monitoring.Prefixed("[gnss] ")
	}
	r.status.Path = cfg.Path
	return r
}

// Bind registers the sample and failure callbacks. Callbacks are never
// invoked with the receiver's lock held.
func (r *Receiver) Bind(onSamples func([]location.Sample), onFailure func(error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onSamples = onSamples
	r.onFailure = onFailure
}

// StartStreaming opens the port, sends the init sentences and starts
// reading. It is a no-op while a stream is already running.
func (r *Receiver) StartStreaming(h location.StreamHints) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.hints = h
	if r.stream != nil {
		return nil
	}

	mux, err := r.cfg.Open(r.cfg.Path, r.cfg.Options)
	if err != nil {
		r.status.LastError = err.Error()
		return err
	}
	if err := mux.Initialize(r.cfg.InitCommands); err != nil {
		mux.Close()
		r.status.LastError = err.Error()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &stream{mux: mux, ctx: ctx, cancel: cancel}
	_, lines := mux.Subscribe()
	r.stream = s
	r.status.Opens++
	r.status.Streaming = true
	monitoring.Debugf("gnss stream %d opened on %s", r.status.Opens, r.cfg.Path)

	r.readers.Add(1)
	go r.run(s, lines)
	return nil
}

// StopStreaming closes the port. It does not wait for the reader to exit, as
// the caller may hold a lock the reader's callbacks need.
func (r *Receiver) StopStreaming() {
	r.mu.Lock()
	s := r.stream
	r.stream = nil
	r.status.Streaming = false
	r.mu.Unlock()

	if s != nil {
		s.close()
	}
}

// Close stops streaming and waits for the reader goroutine to exit.
func (r *Receiver) Close() {
	r.StopStreaming()
	r.readers.Wait()
}

func (r *Receiver) run(s *stream, lines <-chan string) {
	defer r.readers.Done()

	monitorErr := make(chan error, 1)
	go func() { monitorErr <- s.mux.Monitor(s.ctx) }()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			r.handleLine(s, line)
		case err := <-monitorErr:
			stopped := s.ctx.Err() != nil
			// Closing the mux closes lines, so the drain ends.
			s.close()
			if lines != nil {
				for line := range lines {
					r.handleLine(s, line)
				}
			}
			r.flush(s)
			r.streamEnded(s, err, stopped)
			return
		}
	}
}

func (r *Receiver) handleLine(s *stream, line string) {
	reading, err := ParseSentence(line, r.clock.Now())

	r.mu.Lock()
	r.status.Sentences++
	if err != nil {
		if !errors.Is(err, ErrUnsupported) {
			r.status.ParseErrors++
			monitoring.Debugf("gnss: %v: %q", err, line)
		}
		r.mu.Unlock()
		return
	}
	if reading.HDOP > 0 {
		r.status.LastHDOP = reading.HDOP
	}
	if !reading.HasPosition {
		r.mu.Unlock()
		return
	}
	if reading.Fix {
		r.status.Fixes++
		r.status.LastFixAt = reading.Time
	}

	var ready []location.Sample
	if !reading.Time.Equal(s.epoch) {
		ready = r.takePending(s)
	}
	s.epoch = reading.Time
	s.pending = append(s.pending, reading.Sample(r.cfg.UERE, r.status.LastHDOP))
	deliver := r.onSamples
	r.mu.Unlock()

	if len(ready) > 0 && deliver != nil {
		deliver(ready)
	}
}

// flush delivers the stream's unfinished epoch.
func (r *Receiver) flush(s *stream) {
	r.mu.Lock()
	ready := r.takePending(s)
	deliver := r.onSamples
	r.mu.Unlock()

	if len(ready) > 0 && deliver != nil {
		deliver(ready)
	}
}

// takePending filters and clears the pending epoch. Callers hold r.mu.
func (r *Receiver) takePending(s *stream) []location.Sample {
	if len(s.pending) == 0 {
		return nil
	}
	ready := r.applyDistanceFilter(s.pending)
	s.pending = nil
	if len(ready) > 0 {
		r.status.Batches++
		r.status.Delivered += uint64(len(ready))
	}
	return ready
}

// applyDistanceFilter drops fixes closer than the distance filter to the
// last delivered fix. No-fix samples pass through for the tracker to reject.
func (r *Receiver) applyDistanceFilter(batch []location.Sample) []location.Sample {
	out := batch
	if r.distanceFilter > 0 {
		out = batch[:0:0]
		for _, smp := range batch {
			if r.last != nil && smp.HorizontalAccuracy > 0 &&
				distanceMeters(*r.last, smp) < r.distanceFilter {
				r.status.Filtered++
				continue
			}
			out = append(out, smp)
		}
	}
	for i := range out {
		if out[i].HorizontalAccuracy > 0 {
			smp := out[i]
			r.last = &smp
		}
	}
	return out
}

func (r *Receiver) streamEnded(s *stream, err error, stopped bool) {
	r.mu.Lock()
	current := r.stream == s
	if current {
		r.stream = nil
		r.status.Streaming = false
	}
	if err == nil || errors.Is(err, context.Canceled) {
		err = ErrStreamEnded
	}
	if !stopped {
		r.status.LastError = err.Error()
	}
	onFailure := r.onFailure
	r.mu.Unlock()

	if current && !stopped {
		r.logf("receiver on %s failed: %v", r.cfg.Path, err)
		if onFailure != nil {
			onFailure(err)
		}
	}
}

// Status returns a diagnostic snapshot.
func (r *Receiver) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Hints returns the hints passed to the most recent StartStreaming.
func (r *Receiver) Hints() location.StreamHints {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hints
}

func (r *Receiver) DistanceFilter() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.distanceFilter
}

func (r *Receiver) SetDistanceFilter(meters float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.distanceFilter = meters
}

func (r *Receiver) DesiredAccuracy() location.Accuracy {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.accuracy
}

func (r *Receiver) SetDesiredAccuracy(a location.Accuracy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accuracy = a
}

func (r *Receiver) ActivityType() location.ActivityType {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activity
}

func (r *Receiver) SetActivityType(a location.ActivityType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activity = a
}

const earthRadiusMeters = 6371008.8

// distanceMeters is the haversine great-circle distance between two samples.
func distanceMeters(a, b location.Sample) float64 {
	rad := math.Pi / 180
	lat1, lat2 := a.Latitude*rad, b.Latitude*rad
	dLat := (b.Latitude - a.Latitude) * rad
	dLon := (b.Longitude - a.Longitude) * rad
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}
