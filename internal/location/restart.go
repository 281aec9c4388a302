package location

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// DefaultRestartDelay is the wait between a sensor failure and the next
// attempt to start the sensor.
const DefaultRestartDelay = time.Minute

// RestartPolicy yields the delay before restarting after a sensor failure.
// It never gives up: a backoff that signals Stop is reset and consulted
// again. The policy is reset whenever a sample is accepted.
type RestartPolicy struct {
	b backoff.BackOff
}

// NewRestartPolicy wraps an arbitrary backoff.
func NewRestartPolicy(b backoff.BackOff) *RestartPolicy {
	return &RestartPolicy{b: b}
}

// ConstantRestart waits the same delay after every failure.
func ConstantRestart(delay time.Duration) *RestartPolicy {
	return NewRestartPolicy(backoff.NewConstantBackOff(delay))
}

// ExponentialRestart doubles the delay after each consecutive failure, from
// initial up to maxInterval, without jitter.
func ExponentialRestart(initial, maxInterval time.Duration) *RestartPolicy {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = maxInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.Reset()
	return NewRestartPolicy(b)
}

// Next returns the delay for the next restart.
func (p *RestartPolicy) Next() time.Duration {
	d := p.b.NextBackOff()
	if d == backoff.Stop {
		p.b.Reset()
		d = p.b.NextBackOff()
	}
	if d < 0 {
		return DefaultRestartDelay
	}
	return d
}

// Reset restarts the delay sequence.
func (p *RestartPolicy) Reset() {
	p.b.Reset()
}
