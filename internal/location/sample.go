package location

import (
	"fmt"
	"math"
	"time"
)

// Sample is one raw position reading. HorizontalAccuracy is the radius of
// uncertainty in meters and is only meaningful when positive.
type Sample struct {
	Latitude           float64   `json:"latitude"`
	Longitude          float64   `json:"longitude"`
	HorizontalAccuracy float64   `json:"horizontal_accuracy"`
	Timestamp          time.Time `json:"timestamp"`
}

func (s Sample) String() string {
	return fmt.Sprintf("(%.6f, %.6f) ±%.1fm @ %s",
		s.Latitude, s.Longitude, s.HorizontalAccuracy, s.Timestamp.Format(time.RFC3339))
}

// Phase is the duty-cycle state of the controller.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseActive
	PhaseSleeping
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseActive:
		return "active"
	case PhaseSleeping:
		return "sleeping"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// MarshalText renders the phase by name in JSON and logs.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Default scheduling parameters.
const (
	DefaultActiveWindowSeconds  = 4.0
	DefaultSleepIntervalSeconds = 60.0
)

// TrackerConfig holds the duty-cycle parameters. The sensor runs for
// ActiveWindowSeconds at the start of every SleepIntervalSeconds period.
type TrackerConfig struct {
	ActiveWindowSeconds  float64 `json:"active_window_seconds"`
	SleepIntervalSeconds float64 `json:"sleep_interval_seconds"`
}

// DefaultTrackerConfig returns the 4s window / 60s cycle configuration.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		ActiveWindowSeconds:  DefaultActiveWindowSeconds,
		SleepIntervalSeconds: DefaultSleepIntervalSeconds,
	}
}

// Validate checks that both intervals are positive and finite.
func (c TrackerConfig) Validate() error {
	if !validSeconds(c.ActiveWindowSeconds) {
		return fmt.Errorf("%w: active window must be > 0 seconds, got %v", ErrInvalidConfig, c.ActiveWindowSeconds)
	}
	if !validSeconds(c.SleepIntervalSeconds) {
		return fmt.Errorf("%w: sleep interval must be > 0 seconds, got %v", ErrInvalidConfig, c.SleepIntervalSeconds)
	}
	return nil
}

// maxSeconds is the largest whole number of seconds a time.Duration holds.
const maxSeconds = float64(math.MaxInt64 / int64(time.Second))

func validSeconds(v float64) bool {
	return v > 0 && v <= maxSeconds
}

// ActiveWindow returns the active window as a time.Duration.
func (c TrackerConfig) ActiveWindow() time.Duration {
	return secondsToDuration(c.ActiveWindowSeconds)
}

// SleepInterval returns the sleep interval as a time.Duration.
func (c TrackerConfig) SleepInterval() time.Duration {
	return secondsToDuration(c.SleepIntervalSeconds)
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
