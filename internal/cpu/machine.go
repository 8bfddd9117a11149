// Package cpu implements the RV64I interpreter: register file, decode,
// execute, and the per-step bookkeeping (exception stats, error log,
// performance counters) that the kernel and snapshot facility build on.
package cpu

import (
	"fmt"

	"github.com/rv64vm/sandbox/internal/guest"
	"github.com/rv64vm/sandbox/internal/log"
	"github.com/rv64vm/sandbox/internal/trap"
)

// State is the run state of a Machine.
type State uint8

const (
	Halted State = iota
	Running
	Errored
)

func (s State) String() string {
	switch s {
	case Halted:
		return "halted"
	case Running:
		return "running"
	case Errored:
		return "errored"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Machine is an RV64I interpreter over a guest.Memory. It is a large,
// boxed aggregate -- per the design notes, always construct it with New and
// pass it around by pointer; never copy it onto a caller's stack.
type Machine struct {
	Regs guest.RegisterFile
	PC   uint64

	Mem *guest.Memory

	State     State
	LastError *trap.Exception

	Stats ExceptionStats
	Log   *ErrorLog

	Perf     Performance
	Instr    InstructionStats
	Flow     ExecutionFlow
	MemStats MemoryStats

	log *log.Logger
}

// Option configures a Machine at construction.
type Option func(*Machine)

// WithLogger overrides the machine's logger.
func WithLogger(l *log.Logger) Option {
	return func(m *Machine) { m.log = l }
}

// New allocates and initializes a Machine over mem. The stack pointer (x2)
// is initialized to mem.StackTop(), the first byte of the last page, per the spec's reserved-stack
// convention; the program counter starts at mem's base address.
func New(mem *guest.Memory, opts ...Option) *Machine {
	m := &Machine{
		Mem:   mem,
		State: Halted,
		Log:   newErrorLog(),
		log:   log.DefaultLogger(),
	}

	m.Regs.Set(2, mem.StackTop()) // x2 == sp
	m.PC = mem.Base()

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Start transitions the machine to Running, clearing any prior error. It is
// the only way back to Running from Errored.
func (m *Machine) Start() {
	m.State = Running
	m.LastError = nil
}

// Halt transitions the machine to Halted.
func (m *Machine) Halt() {
	m.State = Halted
}

// Fault transitions the machine to Errored, recording the cause.
func (m *Machine) Fault(ex *trap.Exception) {
	m.State = Errored
	m.LastError = ex
}

// Step fetches, decodes, and executes one instruction. It always updates the
// performance counters, instruction histogram, and execution-flow ring, win
// or lose; the memory-access counters change only when a load or store
// completes. On a trap, it returns the Exception
// without advancing the PC or committing the offending instruction's
// register/memory writes that came after the fault point.
func (m *Machine) Step() *trap.Exception {
	pc := m.PC

	word, ex := m.Mem.FetchInstruction(pc)
	if ex != nil {
		m.recordStep(pc, 0)
		return ex
	}

	d := decode(word)

	next, ex := m.execute(pc, word, d)

	m.recordStep(pc, word)

	if ex != nil {
		return ex
	}

	m.PC = next

	return nil
}

// AdvancePC moves the program counter forward by delta. kernel.Dispatch
// calls this after servicing an ecall, and the embedding loop calls it to
// resume past a non-fatal trap such as ebreak, since Step never advances
// the PC on a trap.
func (m *Machine) AdvancePC(delta uint64) {
	m.PC += delta
}

func (m *Machine) recordStep(pc uint64, word uint32) {
	m.Perf.InstructionsExecuted++
	m.Perf.CyclesSimulated++
	m.Instr.record(word)
	m.Flow.record(pc)
}
