package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/x/ansi"
	"github.com/pkg/profile"

	"github.com/rv64vm/sandbox/internal/cli"
	"github.com/rv64vm/sandbox/internal/config"
	"github.com/rv64vm/sandbox/internal/cpu"
	"github.com/rv64vm/sandbox/internal/guest"
	"github.com/rv64vm/sandbox/internal/kernel"
	"github.com/rv64vm/sandbox/internal/log"
	"github.com/rv64vm/sandbox/internal/trap"
	"github.com/rv64vm/sandbox/internal/tty"
)

// consoleFile is the well-known name of the console's console-file entry:
// the guest reads and writes it through the ordinary open/read/write/close
// syscalls, and -tty mirrors it to the host terminal between steps.
const consoleFile = "console"

// Run is the command that boots the kernel, spawns an ELF image, and steps
// the interpreter to completion.
func Run() cli.Command {
	return &run{memSize: guest.StandaloneSize, maxSteps: 10_000_000}
}

type run struct {
	memSize     int
	maxSteps    int
	debug       bool
	profile     bool
	interactive bool
	configPath  string

	lastConsole string
}

func (run) Description() string {
	return "run an ELF image to completion"
}

func (run) Usage(out io.Writer) error {
	_, err := fmt.Fprintln(out, `run [-mem bytes] [-debug] [-profile] [-tty] [-config file] image.elf

Boot the kernel, spawn image.elf as the first process, and step the
interpreter until the process exits or raises a fatal trap.`)

	return err
}

func (r *run) FlagSet() *cli.FlagSet {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	fs.IntVar(&r.memSize, "mem", r.memSize, "guest memory size in `bytes`")
	fs.IntVar(&r.maxSteps, "steps", r.maxSteps, "maximum instructions to step before giving up")
	fs.BoolVar(&r.debug, "debug", false, "enable debug logging")
	fs.BoolVar(&r.profile, "profile", false, "wrap the run loop in a CPU profile (writes ./profile.pb.gz)")
	fs.BoolVar(&r.interactive, "tty", false, "relay the guest console through the host terminal")
	fs.StringVar(&r.configPath, "config", "", "optional YAML sidecar overriding -mem")

	return fs
}

func (r *run) Run(ctx context.Context, args []string, out io.Writer, logger *log.Logger) int {
	if len(args) != 1 {
		logger.Error("run requires exactly one ELF image argument")
		return 1
	}

	if r.debug {
		log.LogLevel.Set(log.Debug)
	}

	memSize := r.memSize

	if r.configPath != "" {
		cfg, err := config.Load(r.configPath)
		if err != nil {
			logger.Error("loading config", "err", err)
			return 1
		}

		memSize = cfg.MemorySize

		if cfg.Debug {
			log.LogLevel.Set(log.Debug)
		}
	}

	if r.profile {
		stop := profile.Start(profile.CPUProfile, profile.Quiet)
		defer stop.Stop()
	}

	raw, err := os.ReadFile(args[0])
	if err != nil {
		logger.Error("reading image", "err", err)
		return 1
	}

	mem := guest.NewMemory(memSize, guest.DefaultBase)

	k := kernel.New(kernel.NewMachineEnvironment(mem), kernel.WithLogger(logger))
	k.Boot()

	m := cpu.New(mem, cpu.WithLogger(logger))
	m.Start()

	// Host-privileged bootstrap: plant the raw ELF bytes in a scratch page
	// the spawn syscall can read, then invoke spawn through the same ABI a
	// guest program would use -- see internal/kernel/syscall_test.go.
	scratch := mem.Base() + uint64(memSize) - guest.PageSize*2
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

	var console *tty.Console

	var consoleIdx uint32

	if r.interactive {
		console, consoleIdx, err = r.attachConsole(k, logger)
		if err != nil {
			logger.Error("attaching console", "err", err)
			return 1
		}

		defer console.Restore()
	}

	for step := 0; step < r.maxSteps; step++ {
		select {
		case <-ctx.Done():
			logger.Warn("run cancelled")
			return 2
		default:
		}

		ex := m.Step()
		if ex != nil {
			switch ex.Cause {
			case trap.EnvironmentCallFromUMode, trap.EnvironmentCallFromSMode:
				k.Dispatch(m)
			default:
				kernel.HandleTrap(m, k.Processes, ex)

				// Non-fatal causes leave the machine Running so execution
				// can resume past the trapping instruction; HandleTrap
				// itself never moves the PC (see its doc comment), so the
				// embedding loop does it here, mirroring the ecall case.
				if m.State == cpu.Running {
					m.AdvancePC(4)
				}
			}
		}

		if console != nil {
			r.pumpConsole(k, console, consoleIdx)
		}

		if m.State != cpu.Running {
			break
		}
	}

	if m.State == cpu.Errored {
		logger.Error("machine errored", "cause", m.LastError.Cause, "exit_status", m.LastError.Cause.ExitStatus())
		return int(m.LastError.Cause.ExitStatus())
	}

	logger.Info("run complete", "instructions", m.Perf.InstructionsExecuted)

	return 0
}

func (r *run) attachConsole(k *kernel.Kernel, logger *log.Logger) (*tty.Console, uint32, error) {
	console, err := tty.NewConsole(os.Stdin, os.Stdout)
	if err != nil {
		return nil, 0, err
	}

	idx := k.Storage.CreateFile(consoleFile)
	if idx == 0 {
		idx = k.Storage.FindFile(consoleFile)
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	go console.ReadKeys(ctx, cancel)

	go func() {
		<-ctx.Done()
		logger.Debug("console reader stopped", "err", context.Cause(ctx))
	}()

	return console, idx, nil
}

// pumpConsole drains any keys the host terminal has buffered into the
// console file, and mirrors the console file's current content to the
// terminal. Storage has no stream notion -- each write replaces the
// file's content outright -- so this is a half-duplex relay, not a true
// character device.
func (r *run) pumpConsole(k *kernel.Kernel, console *tty.Console, idx uint32) {
	var pending []byte

drain:
	for {
		select {
		case b := <-console.Keys():
			pending = append(pending, b)
		default:
			break drain
		}
	}

	if len(pending) > 0 {
		k.Storage.Write(idx, pending)
	}

	buf := make([]byte, kernel.MaxFileSize)

	n, kind := k.Storage.Read(idx, buf)
	if kind != trap.Success || n == 0 {
		return
	}

	if current := string(buf[:n]); current != r.lastConsole {
		r.lastConsole = current

		w := console.Writer()
		io.WriteString(w, ansi.EraseEntireScreen+ansi.CursorHomePosition)
		w.Write(buf[:n])
	}
}
