package game

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestTimerStartsOnceAndFreezes(t *testing.T) {
	clock := newFakeClock()
	tm := NewTimer(clock.Now)

	if tm.Elapsed() != 0 || tm.Running() {
		t.Fatalf("fresh timer should read 0 and be stopped")
	}
	if !tm.Start() {
		t.Fatalf("first start should succeed")
	}
	clock.Advance(1500 * time.Millisecond)
	if got := tm.Elapsed(); got != 1 {
		t.Fatalf("expected whole seconds, got %d", got)
	}
	if tm.Start() {
		t.Fatalf("second start must be refused")
	}

	clock.Advance(3 * time.Second)
	tm.Stop()
	frozen := tm.Elapsed()
	clock.Advance(time.Minute)
	if tm.Elapsed() != frozen || frozen != 4 {
		t.Fatalf("stopped timer moved: frozen=%d now=%d", frozen, tm.Elapsed())
	}
	if tm.Start() {
		t.Fatalf("a stopped timer is not restarted within the same game")
	}

	tm.Reset()
	if tm.Elapsed() != 0 || tm.Started() {
		t.Fatalf("reset should zero the timer")
	}
	if !tm.Start() {
		t.Fatalf("start after reset should succeed")
	}
}

func TestTimerRestore(t *testing.T) {
	clock := newFakeClock()
	tm := NewTimer(clock.Now)

	tm.Restore(30, true)
	clock.Advance(5 * time.Second)
	if got := tm.Elapsed(); got != 35 {
		t.Fatalf("expected 35, got %d", got)
	}
	if tm.Start() {
		t.Fatalf("restored running timer counts as started")
	}

	tm.Restore(12, false)
	clock.Advance(time.Hour)
	if got := tm.Elapsed(); got != 12 || tm.Running() {
		t.Fatalf("restored stopped timer should stay at 12, got %d", got)
	}

	tm.Restore(-4, false)
	if tm.Elapsed() != 0 {
		t.Fatalf("negative restore should clamp to zero")
	}
}

func TestTimerTickStopsWithTimer(t *testing.T) {
	var ticks atomic.Int32
	tm := NewTimer(nil)
	tm.OnTick(2*time.Millisecond, func(int) { ticks.Add(1) })
	tm.Start()

	deadline := time.Now().Add(2 * time.Second)
	for ticks.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("tick never fired")
		}
		time.Sleep(time.Millisecond)
	}

	tm.Stop()
	time.Sleep(20 * time.Millisecond)
	settled := ticks.Load()
	time.Sleep(30 * time.Millisecond)
	if ticks.Load() != settled {
		t.Fatalf("ticks continued after stop")
	}
	tm.Close()
}

func TestTimerNoTickAfterStopReturns(t *testing.T) {
	for i := 0; i < 50; i++ {
		var ticks atomic.Int32
		tm := NewTimer(nil)
		tm.OnTick(time.Millisecond, func(int) { ticks.Add(1) })
		tm.Start()

		deadline := time.Now().Add(2 * time.Second)
		for ticks.Load() == 0 {
			if time.Now().After(deadline) {
				t.Fatalf("tick never fired")
			}
			time.Sleep(100 * time.Microsecond)
		}

		tm.Stop()
		atStop := ticks.Load()
		time.Sleep(5 * time.Millisecond)
		if got := ticks.Load(); got != atStop {
			t.Fatalf("round %d: %d tick(s) delivered after Stop returned", i, got-atStop)
		}
	}
}
