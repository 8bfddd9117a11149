package kernel_test

import (
	"testing"

	"github.com/rv64vm/sandbox/internal/kernel"
)

func fakeClock(real, mono *int64) func() (int64, int64) {
	return func() (int64, int64) { return *real, *mono }
}

func TestMonotonicNeverDecreases(t *testing.T) {
	real, mono := int64(1000), int64(1000)
	timer := kernel.NewTimer(fakeClock(&real, &mono))

	first := timer.MonotonicNS()

	mono -= 500 // simulate a clock source that jitters backwards.

	second := timer.MonotonicNS()
	if second < first {
		t.Fatalf("MonotonicNS went backwards: %d then %d", first, second)
	}
}

func TestRealtimeIsBootTimePlusMonotonic(t *testing.T) {
	real, mono := int64(5000), int64(1000)
	timer := kernel.NewTimer(fakeClock(&real, &mono))

	mono += 250

	if got, want := timer.RealtimeNS(), int64(5000+250); got != want {
		t.Fatalf("RealtimeNS() = %d, want %d", got, want)
	}
}

func TestSetTimerAndExpired(t *testing.T) {
	real, mono := int64(0), int64(0)
	timer := kernel.NewTimer(fakeClock(&real, &mono))

	timer.SetTimer(100)
	if timer.Expired() {
		t.Fatalf("Expired() before the target time, want false")
	}

	mono = 100

	if !timer.Expired() {
		t.Fatalf("Expired() at the target time, want true")
	}
}
