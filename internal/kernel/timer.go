package kernel

import "time"

// timer.go implements spec §4.9's Timer: a monotonic clock anchored at
// kernel boot plus the wall-clock offset computed from it.

// Timer tracks monotonic and real time since the kernel booted.
type Timer struct {
	bootRealNS int64 // wall-clock time at init, captured once.
	bootMonoNS int64 // monotonic reading at init, used to compute offsets.
	lastNS     int64 // most recent monotonic reading returned, for the non-decreasing guarantee.
	targetNS   int64 // set_timer's most recent target.

	now func() (realNS, monoNS int64)
}

// NewTimer returns a Timer anchored at the current wall-clock/monotonic
// time. now overrides the clock source for tests; nil uses the real
// clock.
func NewTimer(now func() (realNS, monoNS int64)) *Timer {
	if now == nil {
		now = systemClock
	}

	real, mono := now()

	return &Timer{bootRealNS: real, bootMonoNS: mono, lastNS: 0, now: now}
}

// clockOrigin anchors systemClock's monotonic readings.
var clockOrigin = time.Now()

func systemClock() (int64, int64) {
	t := time.Now()
	return t.UnixNano(), int64(t.Sub(clockOrigin))
}

// MonotonicNS returns nanoseconds since kernel boot. It never returns a
// value smaller than a prior call's result within the same process.
func (t *Timer) MonotonicNS() int64 {
	_, mono := t.now()

	elapsed := mono - t.bootMonoNS
	if elapsed < t.lastNS {
		elapsed = t.lastNS
	}

	t.lastNS = elapsed

	return elapsed
}

// RealtimeNS returns boot_time_ns + MonotonicNS(), per §3's Timer data
// model.
func (t *Timer) RealtimeNS() int64 {
	return t.bootRealNS + t.MonotonicNS()
}

// SetTimer records ns as the pending timer target.
func (t *Timer) SetTimer(ns int64) {
	t.targetNS = ns
}

// TargetNS returns the most recently set timer target.
func (t *Timer) TargetNS() int64 {
	return t.targetNS
}

// Expired reports whether the current monotonic time has reached the
// timer's target.
func (t *Timer) Expired() bool {
	return t.MonotonicNS() >= t.targetNS
}
