package cpu_test

import (
	"testing"

	"github.com/rv64vm/sandbox/internal/cpu"
	"github.com/rv64vm/sandbox/internal/guest"
)

// TestSnapshotRestoreRoundTrip reproduces the snapshot scenario: step once
// (x1 becomes 42, PC advances by 4), snapshot, mutate the live machine,
// restore, and verify the mutation is undone while the exception total
// carried over unchanged.
func TestSnapshotRestoreRoundTrip(t *testing.T) {
	m := newRunning(t)

	storeWord(t, m, m.PC, 0x02A00093) // addi x1, x0, 42
	if ex := m.Step(); ex != nil {
		t.Fatalf("step: %v", ex)
	}

	m.Stats.Total = 3 // stand in for prior recorded exceptions.

	buf := make([]byte, m.Mem.Size())
	snap, err := m.Save(buf)
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	// Mutate the live machine after the snapshot was taken.
	m.Regs.Set(1, 999)
	m.PC = guest.DefaultBase + 100
	m.Stats.Total = 50

	if err := m.Restore(snap); err != nil {
		t.Fatalf("restore: %v", err)
	}

	if got := m.Regs.Get(1); got != 42 {
		t.Fatalf("x1 = %d, want 42", got)
	}

	if m.PC != guest.DefaultBase+4 {
		t.Fatalf("PC = %#x, want %#x", m.PC, guest.DefaultBase+4)
	}

	if m.Stats.Total != 3 {
		t.Fatalf("Stats.Total = %d, want 3", m.Stats.Total)
	}
}

// TestRestoreRejectsInvalidState guards the snapshot state tag: a Snapshot
// whose State is out of range must not silently corrupt the machine.
func TestRestoreRejectsInvalidState(t *testing.T) {
	m := newRunning(t)

	snap := m.Diagnostic()
	snap.State = cpu.State(99)

	if err := m.Restore(snap); err != cpu.ErrInvalidState {
		t.Fatalf("restore with invalid state = %v, want ErrInvalidState", err)
	}
}

// TestDiagnosticSnapshotHasNoMemory verifies Diagnostic captures registers
// and stats without cloning the (potentially large) memory buffer.
func TestDiagnosticSnapshotHasNoMemory(t *testing.T) {
	m := newRunning(t)

	snap := m.Diagnostic()
	if snap.Memory != nil {
		t.Fatalf("diagnostic snapshot has non-nil Memory, want nil")
	}

	if snap.Regs[32] != m.PC {
		t.Fatalf("snap.Regs[32] = %#x, want PC %#x", snap.Regs[32], m.PC)
	}
}

// TestSaveRejectsWrongSizedBuffer verifies Save validates the caller-owned
// destination buffer before copying into it.
func TestSaveRejectsWrongSizedBuffer(t *testing.T) {
	m := newRunning(t)

	_, err := m.Save(make([]byte, 4))
	if err == nil {
		t.Fatalf("save into undersized buffer succeeded, want error")
	}
}
