package kernel

import (
	"github.com/rv64vm/sandbox/internal/cpu"
	"github.com/rv64vm/sandbox/internal/trap"
)

// trapdispatch.go implements spec §4.4: the kernel's entry point for an
// exception raised by the interpreter. It decides fatal vs. non-fatal
// using the data table in package trap (trap.Cause.Fatal), then -- for
// fatal causes -- terminates the scheduler's current process. Per §9's
// one-way-dependency redesign, TrapDispatch takes the machine as an
// argument rather than holding one: the embedding loop owns both and
// wires them together each step.

// HandleTrap services an exception raised by m.Step(). It always records
// the cause into m.Stats; anomalous causes (everything but the two ecall
// causes and breakpoint) also get an error-log entry. Fatal causes mark
// the scheduler's current process exited with exit_status = 128+cause and
// clear the scheduler's current PID; the machine itself transitions to
// Errored. Non-fatal causes leave the machine Running so the embedding
// loop can resume at the next PC.
func HandleTrap(m *cpu.Machine, pt *ProcessTable, ex *trap.Exception) {
	m.Stats.Record(ex.Cause)

	if ex.Cause != trap.Breakpoint && ex.Cause != trap.EnvironmentCallFromUMode && ex.Cause != trap.EnvironmentCallFromSMode {
		m.Log.Append(ex.Cause, ex.Error(), ex.Aux)
	}

	if !ex.Cause.Fatal() {
		return
	}

	m.Fault(ex)

	if pid := pt.Current; pid != 0 {
		pt.Exit(pid, ex.Cause.ExitStatus())
	}
}
