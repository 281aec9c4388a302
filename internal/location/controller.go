package location

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/position.report/internal/timeutil"
)

// timerHandle identifies one arming of a timer. Callbacks compare their own
// handle against the controller's current one, so a callback that lost a
// race with cancellation does nothing.
type timerHandle struct {
	timer timeutil.Timer
}

func (h *timerHandle) cancel() {
	if h != nil && h.timer != nil {
		h.timer.Stop()
	}
}

// Controller is the duty-cycle state machine. Every mutation happens under
// mu: sensor callbacks, timer callbacks and the public transitions all
// serialize on it. Readers never take mu; they load the snapshot stored at
// the end of each transition, so accepted-sample callbacks may read state.
type Controller struct {
	mu   sync.Mutex
	snap atomic.Pointer[ControllerStatus]

	clock   timeutil.Clock
	sensor  SensorHandle
	tokens  TokenProvider
	logf    Logger
	restart *RestartPolicy
	events  EventSink
	accept  func(sessionID string, s Sample)

	pending TrackerConfig // applies from the next cycle start
	cycle   TrackerConfig // snapshot taken at the current cycle start

	phase   Phase
	session string
	token   Token

	stopTimer  *timerHandle
	sleepTimer *timerHandle
	restarting bool // sleepTimer was armed by the failure path

	cycles      uint64
	failures    uint64
	accepted    uint64
	lastFailure string
	lastCycle   time.Time
}

// ControllerStatus is a point-in-time view of the controller.
type ControllerStatus struct {
	Phase              Phase         `json:"phase"`
	SessionID          string        `json:"session_id,omitempty"`
	Config             TrackerConfig `json:"config"`
	CycleConfig        TrackerConfig `json:"cycle_config"`
	TokenHeld          bool          `json:"token_held"`
	StopTimerPending   bool          `json:"stop_timer_pending"`
	SleepTimerPending  bool          `json:"sleep_timer_pending"`
	RestartPending     bool          `json:"restart_pending"`
	Cycles             uint64        `json:"cycles"`
	Failures           uint64        `json:"failures"`
	Accepted           uint64        `json:"accepted"`
	LastFailure        string        `json:"last_failure,omitempty"`
	LastCycleStartedAt time.Time     `json:"last_cycle_started_at,omitempty"`
}

func newController(clock timeutil.Clock, sensor SensorHandle, tokens TokenProvider, logf Logger) *Controller {
	c := &Controller{
		clock:   clock,
		sensor:  sensor,
		tokens:  tokens,
		logf:    logf,
		restart: ConstantRestart(DefaultRestartDelay),
		pending: DefaultTrackerConfig(),
		accept:  func(string, Sample) {},
	}
	c.snapshot()
	return c
}

// SetConfig stores cfg for the next cycle start. Validation is the caller's
// job.
func (c *Controller) SetConfig(cfg TrackerConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.snapshot()
	c.pending = cfg
}

// Config returns the configuration the next cycle will use.
func (c *Controller) Config() TrackerConfig {
	return c.Status().Config
}

// Phase returns the current phase.
func (c *Controller) Phase() Phase {
	return c.Status().Phase
}

// Status returns the state as of the last completed transition.
func (c *Controller) Status() ControllerStatus {
	return *c.snap.Load()
}

// snapshot publishes the current state for lock-free readers. Callers hold mu.
func (c *Controller) snapshot() {
	c.snap.Store(&ControllerStatus{
		Phase:              c.phase,
		SessionID:          c.session,
		Config:             c.pending,
		CycleConfig:        c.cycle,
		TokenHeld:          c.token != "",
		StopTimerPending:   c.stopTimer != nil,
		SleepTimerPending:  c.sleepTimer != nil && !c.restarting,
		RestartPending:     c.sleepTimer != nil && c.restarting,
		Cycles:             c.cycles,
		Failures:           c.failures,
		Accepted:           c.accepted,
		LastFailure:        c.lastFailure,
		LastCycleStartedAt: c.lastCycle,
	})
}

// Start leaves Idle and begins the first cycle of a new session. It returns
// false if tracking was already running.
func (c *Controller) Start() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.snapshot()

	if c.phase != PhaseIdle {
		c.logf("start ignored: already %s (session %s)", c.phase, c.session)
		return false
	}
	c.session = uuid.NewString()
	c.restart.Reset()
	c.beginCycle(EventStarted)
	return true
}

// Stop cancels every timer, stops the sensor and releases the token. It is
// safe to call repeatedly.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.snapshot()

	c.cancelStopTimer()
	c.cancelSleepTimer()

	if c.phase == PhaseIdle && c.token == "" {
		return
	}
	c.phase = PhaseIdle
	c.sensor.StopStreaming()
	c.releaseToken()
	c.emit(EventStopped, "")
	c.logf("tracking stopped (session %s)", c.session)
}

// EnterBackground restarts the current cycle when the host moves to the
// background. It has no effect while Idle.
func (c *Controller) EnterBackground() {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.snapshot()

	if c.phase == PhaseIdle {
		c.logf("entered background while idle, ignoring")
		return
	}
	c.logf("entered background, restarting cycle")
	c.beginCycle(EventBackground)
}

// HandleSamples is bound to the sensor's sample callback.
func (c *Controller) HandleSamples(batch []Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.snapshot()

	if c.phase == PhaseIdle {
		c.logf("dropping %d late samples: tracking stopped", len(batch))
		return
	}
	best, ok := Select(c.clock.Now(), batch)
	if !ok {
		c.logf("no usable sample in batch of %d", len(batch))
		return
	}
	c.logf("accepted sample %s", best)
	c.accepted++
	c.restart.Reset()
	c.snapshot()
	c.accept(c.session, best)
}

// HandleFailure is bound to the sensor's failure callback.
func (c *Controller) HandleFailure(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.snapshot()

	c.failures++
	c.lastFailure = errString(err)
	if c.phase == PhaseIdle {
		c.logf("sensor failure while idle, ignoring: %v", err)
		return
	}
	c.scheduleRestart(err)
}

// beginCycle is the start sequence shared by Start, the sleep timer, the
// restart timer and the background event.
func (c *Controller) beginCycle(kind EventKind) {
	c.cycle = c.pending
	c.cycles++
	c.lastCycle = c.clock.Now()
	c.acquireToken()
	c.phase = PhaseActive

	c.armStopTimer(c.cycle.ActiveWindow())
	c.armSleepTimer(c.cycle.SleepInterval(), false)
	c.emit(kind, "")
	c.logf("cycle %d started: window %v, interval %v", c.cycles, c.cycle.ActiveWindow(), c.cycle.SleepInterval())

	if err := c.sensor.StartStreaming(c.hints()); err != nil {
		c.failures++
		c.lastFailure = errString(err)
		c.scheduleRestart(err)
	}
}

// scheduleRestart replaces any pending sleep timer with a one-shot restart.
// A running sensor stream is left alone.
func (c *Controller) scheduleRestart(err error) {
	delay := c.restart.Next()
	c.logf("sensor failure: %v; restarting in %v", err, delay)
	c.emit(EventFailure, errString(err))

	c.acquireToken()
	c.armSleepTimer(delay, true)
	c.emit(EventRestartScheduled, delay.String())
}

func (c *Controller) hints() StreamHints {
	return StreamHints{
		Accuracy:       c.sensor.DesiredAccuracy(),
		DistanceFilter: c.sensor.DistanceFilter(),
		Activity:       c.sensor.ActivityType(),
	}
}

// acquireToken takes a fresh token before releasing the held one, so the
// process is never left without a token between the two.
func (c *Controller) acquireToken() {
	next := c.tokens.Acquire()
	if c.token != "" {
		c.tokens.Release(c.token)
	}
	c.token = next
}

func (c *Controller) releaseToken() {
	if c.token == "" {
		return
	}
	c.tokens.Release(c.token)
	c.token = ""
}

func (c *Controller) armStopTimer(d time.Duration) {
	c.cancelStopTimer()
	h := &timerHandle{}
	h.timer = c.clock.AfterFunc(d, func() { c.onStopTimer(h) })
	c.stopTimer = h
}

func (c *Controller) armSleepTimer(d time.Duration, restarting bool) {
	c.cancelSleepTimer()
	h := &timerHandle{}
	h.timer = c.clock.AfterFunc(d, func() { c.onSleepTimer(h) })
	c.sleepTimer = h
	c.restarting = restarting
}

func (c *Controller) cancelStopTimer() {
	h := c.stopTimer
	c.stopTimer = nil
	h.cancel()
}

func (c *Controller) cancelSleepTimer() {
	h := c.sleepTimer
	c.sleepTimer = nil
	c.restarting = false
	h.cancel()
}

func (c *Controller) onStopTimer(h *timerHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.snapshot()

	if c.stopTimer != h {
		return
	}
	c.stopTimer = nil
	c.sensor.StopStreaming()
	c.phase = PhaseSleeping
	c.emit(EventWindowClosed, "")
	c.logf("sensor stopped after %v window", c.cycle.ActiveWindow())
}

func (c *Controller) onSleepTimer(h *timerHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.snapshot()

	if c.sleepTimer != h {
		return
	}
	c.sleepTimer = nil
	c.restarting = false
	c.beginCycle(EventCycleRestart)
}

func (c *Controller) emit(kind EventKind, detail string) {
	if c.events == nil {
		return
	}
	c.events(Event{
		Kind:      kind,
		SessionID: c.session,
		Phase:     c.phase,
		At:        c.clock.Now(),
		Detail:    detail,
	})
}

func errString(err error) string {
	if err == nil {
		return "unknown failure"
	}
	return err.Error()
}
