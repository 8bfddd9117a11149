package kernel

import (
	"fmt"
	"time"
)

// boot.go implements spec §4.10: bring subsystems up in a fixed forward
// phase order, asserting the completion invariants before marking the
// kernel ready.

// BootPhase is one stage of the boot sequence. Phases only ever advance
// forward; Boot panics if called twice on the same Kernel.
type BootPhase uint8

const (
	PhaseEarly BootPhase = iota
	PhaseTimer
	PhaseInterrupt
	PhaseMemory
	PhaseScheduler
	PhaseStorage
	PhaseChannels
	PhaseUsers
	PhaseComplete
)

func (p BootPhase) String() string {
	names := [...]string{
		"early", "timer", "interrupt", "memory", "scheduler",
		"storage", "channels", "users", "complete",
	}

	if int(p) < len(names) {
		return names[p]
	}

	return fmt.Sprintf("phase(%d)", uint8(p))
}

// User is the minimal user-table entry the boot sequence's completion
// invariant checks: user[0].uid == 0, the conventional superuser slot.
type User struct {
	UID uint32
}

// BootReport records when the boot sequence started and finished.
type BootReport struct {
	Phase     BootPhase
	StartedAt time.Time
	EndedAt   time.Time
}

// Duration is the wall-clock time the boot sequence took.
func (r BootReport) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// Boot runs the kernel's subsystems up in phase order and returns a
// report of when it started and finished. It is not idempotent: calling
// Boot twice on an already-booted Kernel panics, matching the "phases
// advance strictly forward" invariant -- there is no going back to an
// earlier phase to re-run it.
func (k *Kernel) Boot() BootReport {
	if k.phase != PhaseEarly || k.booted {
		panic("kernel: Boot called more than once")
	}

	report := BootReport{StartedAt: time.Now()}

	k.advance(PhaseTimer)
	k.Timer = NewTimer(nil)

	k.advance(PhaseInterrupt)
	k.Interrupts = NewInterruptController()

	k.advance(PhaseMemory)
	// Memory itself is owned by the embedding loop (guest.Memory); the
	// kernel's memory phase only confirms its HostEnvironment binding is
	// present.
	if k.Env == nil {
		panic("kernel: Boot requires a HostEnvironment")
	}

	k.advance(PhaseScheduler)
	k.Processes = NewProcessTable()

	k.advance(PhaseStorage)
	k.Storage = NewStorage()

	k.advance(PhaseChannels)
	k.Channels = NewChannels()

	k.advance(PhaseUsers)
	k.users = []User{{UID: 0}}

	if k.Timer == nil || k.Interrupts == nil || k.Processes == nil || len(k.users) == 0 || k.users[0].UID != 0 {
		panic("kernel: boot completion invariants not met")
	}

	k.advance(PhaseComplete)
	k.booted = true

	report.Phase = k.phase
	report.EndedAt = time.Now()

	return report
}

func (k *Kernel) advance(to BootPhase) {
	if to <= k.phase && k.phase != PhaseEarly {
		panic(fmt.Sprintf("kernel: boot phase regressed from %s to %s", k.phase, to))
	}

	k.phase = to
}

// Ready reports whether the boot sequence has reached PhaseComplete.
func (k *Kernel) Ready() bool {
	return k.phase == PhaseComplete && k.booted
}

// Users returns the user table populated by the boot sequence's "users"
// phase.
func (k *Kernel) Users() []User {
	return k.users
}
