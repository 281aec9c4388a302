package location

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/position.report/internal/monitoring"
	"github.com/banshee-data/position.report/internal/timeutil"
)

// Tracker is the public face of the tracking loop. It owns the best-sample
// cell and the update callback, and delegates scheduling to a Controller.
type Tracker struct {
	ctrl   *Controller
	sensor SensorHandle
	auth   AuthorizationQuery
	logf   Logger

	best     atomic.Pointer[Sample]
	onUpdate atomic.Pointer[func(Sample)]

	sinksMu sync.Mutex
	sinks   []SampleSink
}

// Option customises a Tracker at construction.
type Option func(*Tracker)

// WithClock replaces the real clock, mainly for tests.
func WithClock(clock timeutil.Clock) Option {
	return func(t *Tracker) { t.ctrl.clock = clock }
}

// WithLogger replaces the default monitoring logger.
func WithLogger(logf Logger) Option {
	return func(t *Tracker) {
		if logf == nil {
			logf = func(string, ...interface{}) {}
		}
		t.logf = logf
		t.ctrl.logf = logf
	}
}

// WithRestartPolicy replaces the constant one-minute restart delay.
func WithRestartPolicy(p *RestartPolicy) Option {
	return func(t *Tracker) {
		if p != nil {
			t.ctrl.restart = p
		}
	}
}

// WithEventSink registers a receiver for controller transitions.
func WithEventSink(sink EventSink) Option {
	return func(t *Tracker) { t.ctrl.events = sink }
}

// NewTracker composes a tracker around an injected sensor. The sensor's
// callbacks are bound here, once, and its hints are set to best-for-
// navigation accuracy, no distance filter and other-navigation activity.
func NewTracker(sensor SensorHandle, tokens TokenProvider, auth AuthorizationQuery, opts ...Option) *Tracker {
	logf := Logger(monitoring.Prefixed("[tracker] "))
	t := &Tracker{
		sensor: sensor,
		auth:   auth,
		logf:   logf,
		ctrl:   newController(timeutil.RealClock{}, sensor, tokens, logf),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.ctrl.accept = t.publish

	sensor.SetActivityType(ActivityOtherNavigation)
	sensor.SetDesiredAccuracy(AccuracyBestForNavigation)
	sensor.SetDistanceFilter(DistanceFilterNone)
	sensor.Bind(t.ctrl.HandleSamples, t.ctrl.HandleFailure)
	return t
}

// Configure replaces the scheduling parameters for the next cycle. An
// invalid config is rejected and the previous one kept.
func (t *Tracker) Configure(cfg TrackerConfig) error {
	if err := cfg.Validate(); err != nil {
		t.logf("configure rejected: %v", err)
		return err
	}
	t.ctrl.SetConfig(cfg)
	t.logf("configured: window %gs, interval %gs", cfg.ActiveWindowSeconds, cfg.SleepIntervalSeconds)
	return nil
}

// Config returns the configuration the next cycle will use.
func (t *Tracker) Config() TrackerConfig {
	return t.ctrl.Config()
}

// Start begins tracking. When location services are off or authorization is
// denied or restricted it logs and returns the matching error without doing
// anything else; the caller must call Start again once that changes.
func (t *Tracker) Start() error {
	if !t.auth.LocationServicesEnabled() {
		t.logf("start skipped: location services disabled")
		return ErrServicesDisabled
	}
	switch status := t.auth.AuthorizationStatus(); status {
	case AuthorizationDenied:
		t.logf("start skipped: authorization %s", status)
		return ErrPermissionDenied
	case AuthorizationRestricted:
		t.logf("start skipped: authorization %s", status)
		return ErrPermissionRestricted
	}
	if t.ctrl.Start() {
		t.logf("tracking started")
	}
	return nil
}

// Stop ends tracking. Calling it when already stopped does nothing.
func (t *Tracker) Stop() {
	t.ctrl.Stop()
}

// EnterBackground delivers the host's "entered background" event.
func (t *Tracker) EnterBackground() {
	t.ctrl.EnterBackground()
}

// LastSample returns the most recently accepted sample.
func (t *Tracker) LastSample() (Sample, bool) {
	s := t.best.Load()
	if s == nil {
		return Sample{}, false
	}
	return *s, true
}

// OnUpdate registers the callback invoked for each accepted sample,
// replacing any earlier one. Pass nil to clear it. The callback runs on the
// tracking path and must not block.
func (t *Tracker) OnUpdate(fn func(Sample)) {
	if fn == nil {
		t.onUpdate.Store(nil)
		return
	}
	t.onUpdate.Store(&fn)
}

// AddSink registers an additional receiver for accepted samples.
func (t *Tracker) AddSink(sink SampleSink) {
	t.sinksMu.Lock()
	defer t.sinksMu.Unlock()
	t.sinks = append(t.sinks, sink)
}

// Phase returns the controller's current phase.
func (t *Tracker) Phase() Phase {
	return t.ctrl.Phase()
}

// Status describes the tracker for diagnostics.
type Status struct {
	ControllerStatus
	LastSample *Sample `json:"last_sample,omitempty"`
}

// Status returns a snapshot of the controller and the last sample.
func (t *Tracker) Status() Status {
	st := Status{ControllerStatus: t.ctrl.Status()}
	if s, ok := t.LastSample(); ok {
		st.LastSample = &s
	}
	return st
}

func (t *Tracker) String() string {
	st := t.ctrl.Status()
	return fmt.Sprintf("Tracker{phase=%s session=%s cycles=%d}", st.Phase, st.SessionID, st.Cycles)
}

// DistanceFilter forwards to the sensor.
func (t *Tracker) DistanceFilter() float64 { return t.sensor.DistanceFilter() }

// SetDistanceFilter forwards to the sensor.
func (t *Tracker) SetDistanceFilter(meters float64) { t.sensor.SetDistanceFilter(meters) }

// DesiredAccuracy forwards to the sensor.
func (t *Tracker) DesiredAccuracy() Accuracy { return t.sensor.DesiredAccuracy() }

// SetDesiredAccuracy forwards to the sensor.
func (t *Tracker) SetDesiredAccuracy(a Accuracy) { t.sensor.SetDesiredAccuracy(a) }

// ActivityType forwards to the sensor.
func (t *Tracker) ActivityType() ActivityType { return t.sensor.ActivityType() }

// SetActivityType forwards to the sensor.
func (t *Tracker) SetActivityType(a ActivityType) { t.sensor.SetActivityType(a) }

// publish runs under the controller lock.
func (t *Tracker) publish(sessionID string, s Sample) {
	t.best.Store(&s)
	if fn := t.onUpdate.Load(); fn != nil {
		(*fn)(s)
	}

	t.sinksMu.Lock()
	sinks := t.sinks
	t.sinksMu.Unlock()
	for _, sink := range sinks {
		sink(sessionID, s)
	}
}
