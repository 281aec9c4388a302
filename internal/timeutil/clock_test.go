package timeutil

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", now, before, after)
	}
}

func TestRealClock_Since(t *testing.T) {
	clock := RealClock{}
	past := time.Now().Add(-time.Second)
	d := clock.Since(past)

	if d < time.Second {
		t.Errorf("Since() returned %v, expected >= 1s", d)
	}
}

func TestRealClock_NewTimer(t *testing.T) {
	clock := RealClock{}
	timer := clock.NewTimer(10 * time.Millisecond)
	defer timer.Stop()

	select {
	case <-timer.C():
	case <-time.After(time.Second):
		t.Error("timer did not fire")
	}
}

func TestRealClock_AfterFunc(t *testing.T) {
	clock := RealClock{}
	done := make(chan struct{})
	clock.AfterFunc(10*time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("AfterFunc callback did not run")
	}
}

func TestRealClock_AfterFunc_Stop(t *testing.T) {
	clock := RealClock{}
	var called atomic.Bool
	timer := clock.AfterFunc(20*time.Millisecond, func() { called.Store(true) })

	if !timer.Stop() {
		t.Fatal("Stop should report an active timer")
	}
	time.Sleep(50 * time.Millisecond)
	if called.Load() {
		t.Error("stopped AfterFunc callback ran")
	}
}

func TestMockClock_Now(t *testing.T) {
	fixedTime := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)
	clock := NewMockClock(fixedTime)

	if now := clock.Now(); !now.Equal(fixedTime) {
		t.Errorf("got %v, want %v", now, fixedTime)
	}
}

func TestMockClock_Set(t *testing.T) {
	clock := NewMockClock(time.Time{})
	newTime := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	clock.Set(newTime)

	if !clock.Now().Equal(newTime) {
		t.Errorf("got %v, want %v", clock.Now(), newTime)
	}
}

func TestMockClock_Advance(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)
	clock.Advance(time.Hour)

	if expected := start.Add(time.Hour); !clock.Now().Equal(expected) {
		t.Errorf("got %v, want %v", clock.Now(), expected)
	}
}

func TestMockClock_Since(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := NewMockClock(now)

	if d := clock.Since(now.Add(-5 * time.Minute)); d != 5*time.Minute {
		t.Errorf("got %v, want 5m", d)
	}
}

func TestMockClock_Timer(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)
	timer := clock.NewTimer(5 * time.Minute)

	select {
	case <-timer.C():
		t.Error("timer fired too early")
	default:
	}

	clock.Advance(6 * time.Minute)

	select {
	case got := <-timer.C():
		if want := start.Add(5 * time.Minute); !got.Equal(want) {
			t.Errorf("timer delivered %v, want deadline %v", got, want)
		}
	default:
		t.Error("timer did not fire after advance")
	}
}

func TestMockClock_Timer_Stop(t *testing.T) {
	clock := NewMockClock(time.Now())
	timer := clock.NewTimer(time.Minute)

	if !timer.Stop() {
		t.Error("Stop should return true for active timer")
	}
	if timer.Stop() {
		t.Error("second Stop should return false")
	}

	clock.Advance(2 * time.Minute)

	select {
	case <-timer.C():
		t.Error("stopped timer should not fire")
	default:
	}
}

func TestMockClock_AfterFunc_FiresInDeadlineOrder(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)

	var order []time.Duration
	clock.AfterFunc(60*time.Second, func() { order = append(order, clock.Since(start)) })
	clock.AfterFunc(4*time.Second, func() { order = append(order, clock.Since(start)) })

	clock.Advance(90 * time.Second)

	if len(order) != 2 {
		t.Fatalf("got %d callbacks, want 2", len(order))
	}
	if order[0] != 4*time.Second || order[1] != 60*time.Second {
		t.Errorf("callbacks observed %v, want [4s 1m0s]", order)
	}
	if got := clock.Since(start); got != 90*time.Second {
		t.Errorf("clock at %v after advance, want 1m30s", got)
	}
}

func TestMockClock_AfterFunc_ChainedWithinAdvance(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)

	var fires []time.Duration
	var arm func()
	arm = func() {
		clock.AfterFunc(10*time.Second, func() {
			fires = append(fires, clock.Since(start))
			arm()
		})
	}
	arm()

	clock.Advance(35 * time.Second)

	want := []time.Duration{10 * time.Second, 20 * time.Second, 30 * time.Second}
	if len(fires) != len(want) {
		t.Fatalf("got fires %v, want %v", fires, want)
	}
	for i := range want {
		if fires[i] != want[i] {
			t.Errorf("fire %d at %v, want %v", i, fires[i], want[i])
		}
	}
	if clock.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", clock.Pending())
	}
}

func TestMockClock_AfterFunc_StopBeforeDeadline(t *testing.T) {
	clock := NewMockClock(time.Now())
	called := false
	timer := clock.AfterFunc(time.Minute, func() { called = true })

	clock.Advance(30 * time.Second)
	timer.Stop()
	clock.Advance(time.Minute)

	if called {
		t.Error("stopped callback ran")
	}
	if clock.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", clock.Pending())
	}
}

func TestMockTimer_Reset(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)
	timer := clock.NewTimer(time.Minute).(*MockTimer)

	clock.Advance(20 * time.Second)
	timer.Stop()
	timer.Reset(30 * time.Second)

	if want := start.Add(50 * time.Second); !timer.Deadline().Equal(want) {
		t.Errorf("Deadline() = %v, want %v", timer.Deadline(), want)
	}

	clock.Advance(20 * time.Second)
	select {
	case <-timer.C():
		t.Error("timer fired too early after reset")
	default:
	}

	clock.Advance(10 * time.Second)
	select {
	case <-timer.C():
	default:
		t.Error("timer did not fire at reset deadline")
	}
}

func TestMockTimer_ResetAfterFire(t *testing.T) {
	clock := NewMockClock(time.Now())
	count := 0
	timer := clock.AfterFunc(time.Second, func() { count++ })

	clock.Advance(time.Second)
	if timer.Reset(time.Second) {
		t.Error("Reset on fired timer should report inactive")
	}
	clock.Advance(time.Second)

	if count != 2 {
		t.Errorf("callback ran %d times, want 2", count)
	}
}
