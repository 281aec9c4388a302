package location

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/banshee-data/position.report/internal/timeutil"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeSensor struct {
	mu        sync.Mutex
	onSamples func([]Sample)
	onFailure func(error)
	streaming bool
	starts    []time.Duration
	stops     []time.Duration
	hints     []StreamHints
	startErr  error
	clock     *timeutil.MockClock

	distanceFilter float64
	accuracy       Accuracy
	activity       ActivityType
}

func newFakeSensor(clock *timeutil.MockClock) *fakeSensor {
	return &fakeSensor{clock: clock}
}

func (f *fakeSensor) Bind(onSamples func([]Sample), onFailure func(error)) {
	f.onSamples = onSamples
	f.onFailure = onFailure
}

func (f *fakeSensor) StartStreaming(h StreamHints) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, f.elapsed())
	f.hints = append(f.hints, h)
	if f.startErr != nil {
		return f.startErr
	}
	f.streaming = true
	return nil
}

func (f *fakeSensor) StopStreaming() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops = append(f.stops, f.elapsed())
	f.streaming = false
}

func (f *fakeSensor) DistanceFilter() float64        { return f.distanceFilter }
func (f *fakeSensor) SetDistanceFilter(m float64)    { f.distanceFilter = m }
func (f *fakeSensor) DesiredAccuracy() Accuracy      { return f.accuracy }
func (f *fakeSensor) SetDesiredAccuracy(a Accuracy)  { f.accuracy = a }
func (f *fakeSensor) ActivityType() ActivityType     { return f.activity }
func (f *fakeSensor) SetActivityType(a ActivityType) { f.activity = a }

func (f *fakeSensor) elapsed() time.Duration {
	if f.clock == nil {
		return 0
	}
	return f.clock.Since(testEpoch)
}

func (f *fakeSensor) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.starts)
}

func (f *fakeSensor) deliver(batch ...Sample) { f.onSamples(batch) }
func (f *fakeSensor) fail(err error)          { f.onFailure(err) }

func (f *fakeSensor) isStreaming() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streaming
}

type fakeTokens struct {
	mu             sync.Mutex
	next           int
	held           map[Token]bool
	acquired       int
	released       int
	doubleReleases int
}

func newFakeTokens() *fakeTokens {
	return &fakeTokens{held: make(map[Token]bool)}
}

func (f *fakeTokens) Acquire() Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	tok := Token(fmt.Sprintf("tok-%d", f.next))
	f.held[tok] = true
	f.acquired++
	return tok
}

func (f *fakeTokens) Release(tok Token) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.held[tok] {
		f.doubleReleases++
		return
	}
	delete(f.held, tok)
	f.released++
}

func (f *fakeTokens) heldCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.held)
}

type fakeAuth struct {
	enabled bool
	status  AuthorizationStatus
}

func (a fakeAuth) LocationServicesEnabled() bool            { return a.enabled }
func (a fakeAuth) AuthorizationStatus() AuthorizationStatus { return a.status }

var allowed = fakeAuth{enabled: true, status: AuthorizationAuthorized}

var errSensor = errors.New("kCLErrorLocationUnknown")

type harness struct {
	clock   *timeutil.MockClock
	sensor  *fakeSensor
	tokens  *fakeTokens
	tracker *Tracker
	events  []Event
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{clock: timeutil.NewMockClock(testEpoch)}
	h.sensor = newFakeSensor(h.clock)
	h.tokens = newFakeTokens()
	base := []Option{
		WithClock(h.clock),
		WithLogger(t.Logf),
		WithEventSink(func(e Event) { h.events = append(h.events, e) }),
	}
	h.tracker = NewTracker(h.sensor, h.tokens, allowed, append(base, opts...)...)
	t.Cleanup(h.tracker.Stop)
	return h
}

func (h *harness) sampleAt(ago time.Duration, lat, lon, acc float64) Sample {
	return Sample{
		Latitude:           lat,
		Longitude:          lon,
		HorizontalAccuracy: acc,
		Timestamp:          h.clock.Now().Add(-ago),
	}
}

func (h *harness) eventKinds() []EventKind {
	kinds := make([]EventKind, 0, len(h.events))
	for _, e := range h.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}
