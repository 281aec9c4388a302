// Package keepalive hands out the tokens that keep the process from being
// suspended while the tracker is between cycles.
package keepalive

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/position.report/internal/location"
	"github.com/banshee-data/position.report/internal/monitoring"
	"github.com/banshee-data/position.report/internal/timeutil"
)

// DefaultLifetime is how long a token stays valid if nobody releases it.
const DefaultLifetime = 180 * time.Second

type lease struct {
	acquiredAt time.Time
	expiry     timeutil.Timer
}

// Manager implements location.TokenProvider. Each token expires after its
// lifetime; an expired token is released by the manager itself and any later
// Release of it is a logged no-op.
type Manager struct {
	mu       sync.Mutex
	clock    timeutil.Clock
	lifetime time.Duration
	logf     location.Logger
	leases   map[location.Token]*lease

	acquired uint64
	released uint64
	expired  uint64
	unknown  uint64
}

// Stats summarises token activity.
type Stats struct {
	Held     int       `json:"held"`
	Acquired uint64    `json:"acquired"`
	Released uint64    `json:"released"`
	Expired  uint64    `json:"expired"`
	Unknown  uint64    `json:"unknown_releases"`
	Oldest   time.Time `json:"oldest,omitempty"`
}

// NewManager returns a manager whose tokens live for lifetime. A
// non-positive lifetime selects DefaultLifetime and a nil clock the real one.
func NewManager(clock timeutil.Clock, lifetime time.Duration) *Manager {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}
	return &Manager{
		clock:    clock,
		lifetime: lifetime,
		logf:     monitoring.Prefixed("[keepalive] "),
		leases:   make(map[location.Token]*lease),
	}
}

// SetLogger replaces the manager's logger; nil mutes it.
func (m *Manager) SetLogger(logf location.Logger) {
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	m.mu.Lock()
	m.logf = logf
	m.mu.Unlock()
}

// Acquire issues a new token.
func (m *Manager) Acquire() location.Token {
	tok := location.Token(uuid.NewString())

	m.mu.Lock()
	defer m.mu.Unlock()
	m.leases[tok] = &lease{
		acquiredAt: m.clock.Now(),
		expiry:     m.clock.AfterFunc(m.lifetime, func() { m.expire(tok) }),
	}
	m.acquired++
	monitoring.Debugf("keepalive token %s acquired (%d held)", tok, len(m.leases))
	return tok
}

// Release returns tok. Releasing an unknown or already released token only
// logs.
func (m *Manager) Release(tok location.Token) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.leases[tok]
	if !ok {
		m.unknown++
		m.logf("release of unknown token %s ignored", tok)
		return
	}
	l.expiry.Stop()
	delete(m.leases, tok)
	m.released++
}

func (m *Manager) expire(tok location.Token) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.leases[tok]
	if !ok {
		return
	}
	delete(m.leases, tok)
	m.expired++
	m.logf("token %s expired after %v, force-released", tok, m.clock.Since(l.acquiredAt))
}

// Held reports whether tok is currently held.
func (m *Manager) Held(tok location.Token) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.leases[tok]
	return ok
}

// Tokens returns the held tokens, oldest first.
func (m *Manager) Tokens() []location.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	toks := make([]location.Token, 0, len(m.leases))
	for tok := range m.leases {
		toks = append(toks, tok)
	}
	sort.Slice(toks, func(i, j int) bool {
		a, b := m.leases[toks[i]].acquiredAt, m.leases[toks[j]].acquiredAt
		if a.Equal(b) {
			return toks[i] < toks[j]
		}
		return a.Before(b)
	})
	return toks
}

// Stats returns a snapshot of token activity.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Stats{
		Held:     len(m.leases),
		Acquired: m.acquired,
		Released: m.released,
		Expired:  m.expired,
		Unknown:  m.unknown,
	}
	for _, l := range m.leases {
		if st.Oldest.IsZero() || l.acquiredAt.Before(st.Oldest) {
			st.Oldest = l.acquiredAt
		}
	}
	return st
}

// Close cancels every pending expiry and drops all tokens.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for tok, l := range m.leases {
		l.expiry.Stop()
		delete(m.leases, tok)
	}
}
