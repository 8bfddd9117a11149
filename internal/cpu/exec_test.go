package cpu_test

import (
	"testing"

	"github.com/rv64vm/sandbox/internal/cpu"
	"github.com/rv64vm/sandbox/internal/guest"
	"github.com/rv64vm/sandbox/internal/trap"
)

func newRunning(t *testing.T) *cpu.Machine {
	t.Helper()

	mem := guest.NewMemory(guest.StandaloneSize, guest.DefaultBase)
	if err := mem.Pages.Map(mem.Base(), uint64(mem.Size()), guest.PermRead|guest.PermWrite|guest.PermExec); err != nil {
		t.Fatalf("map: %v", err)
	}

	m := cpu.New(mem)
	m.Start()

	return m
}

func storeWord(t *testing.T, m *cpu.Machine, addr uint64, word uint32) {
	t.Helper()

	if ex := m.Mem.Store32(addr, word); ex != nil {
		t.Fatalf("store32 %#x: %v", addr, ex)
	}
}

// TestAddImmediate reproduces the ADDI smoke test: `addi x1, x0, 42`
// encodes to the little-endian bytes 93 00 A0 02, and after one step x1
// holds 42 and the PC has advanced by 4.
func TestAddImmediate(t *testing.T) {
	m := newRunning(t)

	storeWord(t, m, m.PC, 0x02A00093)

	if ex := m.Step(); ex != nil {
		t.Fatalf("step: %v", ex)
	}

	if got := m.Regs.Get(1); got != 42 {
		t.Fatalf("x1 = %d, want 42", got)
	}

	if m.PC != guest.DefaultBase+4 {
		t.Fatalf("PC = %#x, want %#x", m.PC, guest.DefaultBase+4)
	}
}

// TestIllegalInstructionIsFatal reproduces the fatal-trap scenario: the
// all-ones word is not a valid RV64I encoding, so Step returns
// illegal_instruction, the exception-stats counter for cause 2 increments,
// and the cause's exit status is 128+2 == 130.
func TestIllegalInstructionIsFatal(t *testing.T) {
	m := newRunning(t)

	storeWord(t, m, m.PC, 0xFFFFFFFF)

	ex := m.Step()
	if ex == nil {
		t.Fatalf("step on all-ones word succeeded, want illegal_instruction")
	}

	if ex.Cause != trap.IllegalInstruction {
		t.Fatalf("cause = %v, want illegal_instruction", ex.Cause)
	}

	if !ex.Cause.Fatal() {
		t.Fatalf("illegal_instruction.Fatal() = false, want true")
	}

	if ex.Cause.ExitStatus() != 130 {
		t.Fatalf("exit status = %d, want 130", ex.Cause.ExitStatus())
	}

	m.Fault(ex)
	m.Stats.Record(ex.Cause)

	if m.Stats.Counts[trap.IllegalInstruction] != 1 {
		t.Fatalf("illegal_instruction count = %d, want 1", m.Stats.Counts[trap.IllegalInstruction])
	}

	if m.Stats.Total != 1 {
		t.Fatalf("total = %d, want 1", m.Stats.Total)
	}

	if m.State != cpu.Errored {
		t.Fatalf("state = %v, want errored", m.State)
	}
}

// TestBranchTakenAdvancesByOffset exercises a BEQ that is taken: x0 == x0
// is always true, so the PC should move by the branch immediate rather
// than by 4.
func TestBranchTakenAdvancesByOffset(t *testing.T) {
	m := newRunning(t)

	// beq x0, x0, 8
	storeWord(t, m, m.PC, 0x00000463)

	if ex := m.Step(); ex != nil {
		t.Fatalf("step: %v", ex)
	}

	if m.PC != guest.DefaultBase+8 {
		t.Fatalf("PC = %#x, want %#x", m.PC, guest.DefaultBase+8)
	}
}

// TestBranchNotTakenFallsThrough exercises a BNE that is not taken: x0 !=
// x0 is always false.
func TestBranchNotTakenFallsThrough(t *testing.T) {
	m := newRunning(t)

	// bne x0, x0, 8
	storeWord(t, m, m.PC, 0x00001463)

	if ex := m.Step(); ex != nil {
		t.Fatalf("step: %v", ex)
	}

	if m.PC != guest.DefaultBase+4 {
		t.Fatalf("PC = %#x, want %#x", m.PC, guest.DefaultBase+4)
	}
}

// TestLoadUpperImmediate exercises LUI, which writes bits [31:12] of the
// immediate into rd, zeroing the low bits.
func TestLoadUpperImmediate(t *testing.T) {
	m := newRunning(t)

	// lui x1, 0x12345
	storeWord(t, m, m.PC, 0x123450B7)

	if ex := m.Step(); ex != nil {
		t.Fatalf("step: %v", ex)
	}

	if got, want := m.Regs.Get(1), uint64(0x12345000); got != want {
		t.Fatalf("x1 = %#x, want %#x", got, want)
	}
}

// TestDivisionByZeroIsUnsignedMax reproduces the RISC-V M-extension's
// defined behavior for integer division by zero: DIV returns -1, not a
// trap.
func TestDivisionByZeroIsUnsignedMax(t *testing.T) {
	m := newRunning(t)

	m.Regs.Set(1, 5) // x1 = 5 (dividend)
	m.Regs.Set(2, 0) // x2 = 0 (divisor)

	// div x3, x1, x2
	storeWord(t, m, m.PC, 0x0220C1B3)

	if ex := m.Step(); ex != nil {
		t.Fatalf("step: %v", ex)
	}

	if got := int64(m.Regs.Get(3)); got != -1 {
		t.Fatalf("x3 = %d, want -1", got)
	}
}

// TestShiftImmediateWithHighShamtBit verifies that RV64I's I-type 64-bit
// shift-immediates (SLLI/SRLI/SRAI) decode shamt values 32-63 correctly --
// bit 25 of the word is the shift-immediate's high shamt bit, not part of
// the mode field, so it must not be compared against funct7's f7Base/f7Alt.
func TestShiftImmediateWithHighShamtBit(t *testing.T) {
	t.Run("srli", func(t *testing.T) {
		m := newRunning(t)
		m.Regs.Set(1, ^uint64(0))

		// srli x1, x1, 40
		storeWord(t, m, m.PC, 0x0280D093)

		if ex := m.Step(); ex != nil {
			t.Fatalf("step: %v", ex)
		}

		if got, want := m.Regs.Get(1), uint64(1)<<24-1; got != want {
			t.Fatalf("x1 = %#x, want %#x", got, want)
		}
	})

	t.Run("slli", func(t *testing.T) {
		m := newRunning(t)
		m.Regs.Set(1, 1)

		// slli x1, x1, 40
		storeWord(t, m, m.PC, 0x02809093)

		if ex := m.Step(); ex != nil {
			t.Fatalf("step: %v", ex)
		}

		if got, want := m.Regs.Get(1), uint64(1)<<40; got != want {
			t.Fatalf("x1 = %#x, want %#x", got, want)
		}
	})

	t.Run("srai", func(t *testing.T) {
		m := newRunning(t)
		neg := int64(-8)
		m.Regs.Set(1, uint64(neg))

		// srai x1, x1, 40
		storeWord(t, m, m.PC, 0x4280D093)

		if ex := m.Step(); ex != nil {
			t.Fatalf("step: %v", ex)
		}

		if got := int64(m.Regs.Get(1)); got != -1 {
			t.Fatalf("x1 = %d, want -1", got)
		}
	})
}

// TestStepOnUnmappedFetchRecordsFlow verifies that a faulting fetch still
// records an execution-flow entry for the attempted PC, matching Step's
// documented "always updates ... win or lose" bookkeeping contract.
func TestStepOnUnmappedFetchRecordsFlow(t *testing.T) {
	mem := guest.NewMemory(guest.StandaloneSize, guest.DefaultBase)
	m := cpu.New(mem)
	m.Start()

	ex := m.Step()
	if ex == nil {
		t.Fatalf("step with no mapped pages succeeded, want a fault")
	}

	recent := m.Flow.Recent()
	if len(recent) != 1 || recent[0] != mem.Base() {
		t.Fatalf("Flow.Recent() = %v, want [%#x]", recent, mem.Base())
	}
}
