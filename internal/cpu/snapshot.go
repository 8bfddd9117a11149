package cpu

import (
	"errors"
	"fmt"

	"github.com/rv64vm/sandbox/internal/guest"
)

// Snapshot is a serialized copy of a Machine's state, sufficient to restore
// subsequent identical execution. Registers occupy slots 0-31; slot 32 is
// the program counter, per the spec's "PC in slot 32" convention.
type Snapshot struct {
	Regs  [guest33]uint64
	State State

	Stats ExceptionStats
	Perf  Performance

	// Memory is nil for a diagnostic (read-only) snapshot. A full snapshot
	// holds exactly Machine.Mem.Size() bytes.
	Memory []byte
}

const guest33 = 33 // 32 general-purpose registers plus PC.

// ErrInvalidState is returned when a snapshot's state tag is outside
// {Halted, Running, Errored}.
var ErrInvalidState = errors.New("cpu: invalid snapshot state")

func validState(s State) bool {
	return s == Halted || s == Running || s == Errored
}

// Save captures a full snapshot, copying guest memory into dst. dst must be
// exactly m.Mem.Size() bytes.
func (m *Machine) Save(dst []byte) (*Snapshot, error) {
	if len(dst) != m.Mem.Size() {
		return nil, fmt.Errorf("cpu: snapshot buffer is %d bytes, want %d", len(dst), m.Mem.Size())
	}

	copy(dst, m.Mem.Raw())

	snap := m.diagnostic()
	snap.Memory = dst

	return snap, nil
}

// Diagnostic captures a read-only snapshot of everything except memory.
func (m *Machine) Diagnostic() *Snapshot {
	return m.diagnostic()
}

func (m *Machine) diagnostic() *Snapshot {
	snap := &Snapshot{
		State: m.State,
		Stats: m.Stats,
		Perf:  m.Perf,
	}

	for i := 0; i < guest.NumRegisters; i++ {
		snap.Regs[i] = m.Regs.Get(uint8(i))
	}

	snap.Regs[32] = m.PC

	return snap
}

// Restore overwrites the machine's entire state -- registers, PC, run state,
// exception stats, performance counters, and (if present) memory -- from a
// snapshot. After Restore, m.Stats.Total equals snap.Stats.Total.
func (m *Machine) Restore(snap *Snapshot) error {
	if !validState(snap.State) {
		return ErrInvalidState
	}

	if snap.Memory != nil {
		if err := m.Mem.RestoreRaw(snap.Memory); err != nil {
			return err
		}
	}

	for i := 0; i < guest.NumRegisters; i++ {
		m.Regs.Set(uint8(i), snap.Regs[i])
	}

	m.PC = snap.Regs[32]
	m.State = snap.State
	m.Stats = snap.Stats
	m.Perf = snap.Perf

	return nil
}
