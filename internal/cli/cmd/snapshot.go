package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/rv64vm/sandbox/internal/cli"
	"github.com/rv64vm/sandbox/internal/cpu"
	"github.com/rv64vm/sandbox/internal/guest"
	"github.com/rv64vm/sandbox/internal/kernel"
	"github.com/rv64vm/sandbox/internal/log"
	"github.com/rv64vm/sandbox/internal/trap"
)

// Snapshot is the command that boots the kernel, spawns an ELF image,
// steps it a fixed number of instructions, and prints a diagnostic
// snapshot of the machine (state, PC, counters, registers) plus the
// scheduler's current PID -- a read-only look built on cpu.Machine.Diagnostic,
// without writing a binary checkpoint to disk.
func Snapshot() cli.Command {
	return &snapshotCmd{memSize: guest.StandaloneSize, steps: 1000}
}

type snapshotCmd struct {
	memSize int
	steps   int
}

func (snapshotCmd) Description() string {
	return "run an ELF image for N steps and print a diagnostic snapshot"
}

func (snapshotCmd) Usage(out io.Writer) error {
	_, err := fmt.Fprintln(out, `snapshot [-mem bytes] [-steps n] image.elf

Step image.elf n times (default 1000) and print the machine state and the
scheduler's current PID, without committing a binary checkpoint.`)

	return err
}

func (s *snapshotCmd) FlagSet() *cli.FlagSet {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	fs.IntVar(&s.memSize, "mem", s.memSize, "guest memory size in `bytes`")
	fs.IntVar(&s.steps, "steps", s.steps, "number of instructions to step before snapshotting")

	return fs
}

func (s *snapshotCmd) Run(ctx context.Context, args []string, out io.Writer, logger *log.Logger) int {
	if len(args) != 1 {
		logger.Error("snapshot requires exactly one ELF image argument")
		return 1
	}

	raw, err := os.ReadFile(args[0])
	if err != nil {
		logger.Error("reading image", "err", err)
		return 1
	}

	mem := guest.NewMemory(s.memSize, guest.DefaultBase)

	k := kernel.New(kernel.NewMachineEnvironment(mem), kernel.WithLogger(logger))
	k.Boot()

	m := cpu.New(mem, cpu.WithLogger(logger))
	m.Start()

	scratch := mem.Base() + uint64(s.memSize) - guest.PageSize*2
	if err := mem.Pages.Map(scratch, guest.PageSize, guest.PermRead|guest.PermWrite); err != nil {
		logger.Error("mapping bootstrap page", "err", err)
		return 1
	}

	if err := mem.WriteBytes(scratch, raw); err != nil {
		logger.Error("writing image", "err", err)
		return 1
	}

	m.Regs.Set(17, kernel.SyscallSpawn)
	m.Regs.Set(10, scratch)
	m.Regs.Set(11, uint64(len(raw)))
	k.Dispatch(m)

	if tag := m.Regs.Get(11); tag != 0 {
		logger.Error("spawn failed", "err", trap.ErrorKind(m.Regs.Get(10)))
		return 1
	}

	for i := 0; i < s.steps && m.State == cpu.Running; i++ {
		ex := m.Step()
		if ex != nil {
			switch ex.Cause {
			case trap.EnvironmentCallFromUMode, trap.EnvironmentCallFromSMode:
				k.Dispatch(m)
			default:
				kernel.HandleTrap(m, k.Processes, ex)

				if m.State == cpu.Running {
					m.AdvancePC(4)
				}
			}
		}
	}

	diag := m.Diagnostic()

	fmt.Fprintf(out, "state:        %s\n", diag.State)
	fmt.Fprintf(out, "pc:           %#016x\n", diag.Regs[32])
	fmt.Fprintf(out, "instructions: %d\n", m.Perf.InstructionsExecuted)
	fmt.Fprintf(out, "exceptions:   %d\n", diag.Stats.Total)
	fmt.Fprintf(out, "scheduler pid: %d\n", k.Processes.Current)

	for r := 1; r < 32; r++ {
		fmt.Fprintf(out, "x%-2d = %#016x\n", r, diag.Regs[r])
	}

	return 0
}
