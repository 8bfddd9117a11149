package kernel

import "github.com/rv64vm/sandbox/internal/guest"

// HostEnvironment is the kernel's only window onto guest memory. Spec §9
// flags the source's ambient "VM memory reader" function pointer and
// raw-IO toggle as patterns that need re-architecting in a systems
// rewrite; this interface is that re-architecture: the embedding loop
// constructs one binding to a *guest.Memory and passes it to New, and the
// kernel never imports cpu or holds a reference to a Machine. Every
// syscall that touches guest memory goes through it, so pointer faults
// surface as an ErrorKind to user space (§4.5) rather than a VM trap.
type HostEnvironment interface {
	// ReadGuest copies len(dst) bytes from addr into dst. It reports
	// whether every byte was readable.
	ReadGuest(addr uint64, dst []byte) bool

	// WriteGuest copies src into guest memory at addr. It reports
	// whether every byte was writable.
	WriteGuest(addr uint64, src []byte) bool

	// MapPages installs a page-table entry covering [addr, addr+size)
	// with the given permissions.
	MapPages(addr, size uint64, perm guest.Perm) error

	// StackTop returns the guest address a newly spawned process's stack
	// pointer should start at.
	StackTop() uint64
}

// machineEnvironment adapts a *guest.Memory to HostEnvironment. It is the
// binding the embedding loop normally uses; tests may supply their own
// HostEnvironment instead to exercise the kernel without a live machine.
type machineEnvironment struct {
	mem *guest.Memory
}

// NewMachineEnvironment wraps mem as a HostEnvironment.
func NewMachineEnvironment(mem *guest.Memory) HostEnvironment {
	return &machineEnvironment{mem: mem}
}

func (e *machineEnvironment) ReadGuest(addr uint64, dst []byte) bool {
	return e.mem.ReadBytes(addr, dst) == nil
}

func (e *machineEnvironment) WriteGuest(addr uint64, src []byte) bool {
	return e.mem.WriteBytes(addr, src) == nil
}

func (e *machineEnvironment) MapPages(addr, size uint64, perm guest.Perm) error {
	return e.mem.Pages.Map(addr, size, perm)
}

func (e *machineEnvironment) StackTop() uint64 {
	return e.mem.StackTop()
}
