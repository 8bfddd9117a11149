// Package guest implements the flat byte-addressable memory, page-table
// permission checks, and register file of the emulated machine. It has no
// notion of instructions or syscalls; it is the leaf memory subsystem the
// interpreter and kernel are built on.
package guest

import (
	"encoding/binary"
	"fmt"

	"github.com/rv64vm/sandbox/internal/trap"
)

// DefaultBase is the guest virtual address of the first byte of memory. It
// follows the conventional load address for bare-metal RV64 images (the same
// address QEMU's "virt" machine maps RAM at), which is also the address used
// throughout the spec's worked examples.
const DefaultBase = 0x8000_0000

// Reference memory sizes from the spec: 4 MiB for the standalone
// interpreter, 8 MiB once the kernel is snapshotting alongside it.
const (
	StandaloneSize = 4 << 20
	KernelizedSize = 8 << 20
)

// Memory is the guest's flat backing store plus the page table that guards
// it. A single Memory is not safe for concurrent use -- the spec's
// concurrency model is single-threaded cooperative (see §5).
type Memory struct {
	base  uint64
	bytes []byte
	Pages *PageTable
}

// NewMemory allocates a Memory of size bytes, addressed starting at base.
// size must be a multiple of PageSize.
func NewMemory(size int, base uint64) *Memory {
	if size%PageSize != 0 {
		panic(fmt.Sprintf("guest: memory size %d is not page-aligned", size))
	}

	return &Memory{
		base:  base,
		bytes: make([]byte, size),
		Pages: NewPageTable(),
	}
}

// Size returns the number of addressable bytes.
func (m *Memory) Size() int { return len(m.bytes) }

// Base returns the guest address of byte 0.
func (m *Memory) Base() uint64 { return m.base }

// StackTop is the initial stack pointer: the first byte of the last page.
func (m *Memory) StackTop() uint64 {
	return m.base + uint64(len(m.bytes)) - PageSize
}

func (m *Memory) offset(addr uint64) (int, bool) {
	if addr < m.base {
		return 0, false
	}

	off := addr - m.base
	if off >= uint64(len(m.bytes)) {
		return 0, false
	}

	return int(off), true
}

// samePage reports whether the len bytes starting at addr lie within a
// single page. Accesses that straddle a page boundary are rejected with the
// misaligned cause rather than checked against two page-table entries.
func samePage(addr uint64, size uint64) bool {
	if size == 0 {
		return true
	}

	return addr/PageSize == (addr+size-1)/PageSize
}

func (m *Memory) check(addr uint64, size uint64, want Perm, misaligned, accessFault trap.Cause) *trap.Exception {
	if !samePage(addr, size) {
		return trap.New(misaligned, addr, addr)
	}

	if _, ok := m.offset(addr); !ok {
		return trap.New(accessFault, addr, addr)
	}

	if _, ok := m.offset(addr + size - 1); !ok {
		return trap.New(accessFault, addr, addr)
	}

	flags, present := m.Pages.Lookup(addr)
	if !present || flags&want != want {
		return trap.New(accessFault, addr, addr)
	}

	return nil
}

// Load8 reads one byte. A single byte access can never straddle a page, so
// the only faults are access faults.
func (m *Memory) Load8(addr uint64) (uint8, *trap.Exception) {
	if ex := m.check(addr, 1, PermRead, trap.LoadAddressMisaligned, trap.LoadAccessFault); ex != nil {
		return 0, ex
	}

	off, _ := m.offset(addr)

	return m.bytes[off], nil
}

// Load16 reads a little-endian halfword.
func (m *Memory) Load16(addr uint64) (uint16, *trap.Exception) {
	if ex := m.check(addr, 2, PermRead, trap.LoadAddressMisaligned, trap.LoadAccessFault); ex != nil {
		return 0, ex
	}

	off, _ := m.offset(addr)

	return binary.LittleEndian.Uint16(m.bytes[off:]), nil
}

// Load32 reads a little-endian word.
func (m *Memory) Load32(addr uint64) (uint32, *trap.Exception) {
	if ex := m.check(addr, 4, PermRead, trap.LoadAddressMisaligned, trap.LoadAccessFault); ex != nil {
		return 0, ex
	}

	off, _ := m.offset(addr)

	return binary.LittleEndian.Uint32(m.bytes[off:]), nil
}

// Load64 reads a little-endian doubleword.
func (m *Memory) Load64(addr uint64) (uint64, *trap.Exception) {
	if ex := m.check(addr, 8, PermRead, trap.LoadAddressMisaligned, trap.LoadAccessFault); ex != nil {
		return 0, ex
	}

	off, _ := m.offset(addr)

	return binary.LittleEndian.Uint64(m.bytes[off:]), nil
}

// Store8 writes one byte.
func (m *Memory) Store8(addr uint64, v uint8) *trap.Exception {
	if ex := m.check(addr, 1, PermWrite, trap.StoreAddressMisaligned, trap.StoreAccessFault); ex != nil {
		return ex
	}

	off, _ := m.offset(addr)
	m.bytes[off] = v

	return nil
}

// Store16 writes a little-endian halfword.
func (m *Memory) Store16(addr uint64, v uint16) *trap.Exception {
	if ex := m.check(addr, 2, PermWrite, trap.StoreAddressMisaligned, trap.StoreAccessFault); ex != nil {
		return ex
	}

	off, _ := m.offset(addr)
	binary.LittleEndian.PutUint16(m.bytes[off:], v)

	return nil
}

// Store32 writes a little-endian word.
func (m *Memory) Store32(addr uint64, v uint32) *trap.Exception {
	if ex := m.check(addr, 4, PermWrite, trap.StoreAddressMisaligned, trap.StoreAccessFault); ex != nil {
		return ex
	}

	off, _ := m.offset(addr)
	binary.LittleEndian.PutUint32(m.bytes[off:], v)

	return nil
}

// Store64 writes a little-endian doubleword.
func (m *Memory) Store64(addr uint64, v uint64) *trap.Exception {
	if ex := m.check(addr, 8, PermWrite, trap.StoreAddressMisaligned, trap.StoreAccessFault); ex != nil {
		return ex
	}

	off, _ := m.offset(addr)
	binary.LittleEndian.PutUint64(m.bytes[off:], v)

	return nil
}

// FetchInstruction reads the 4-byte word at pc for execution. pc must be
// 4-byte aligned and lie in an executable, mapped page.
func (m *Memory) FetchInstruction(pc uint64) (uint32, *trap.Exception) {
	if pc&0b11 != 0 {
		return 0, trap.New(trap.InstructionAddressMisaligned, pc, pc)
	}

	if ex := m.check(pc, 4, PermExec, trap.InstructionAddressMisaligned, trap.InstructionAccessFault); ex != nil {
		return 0, ex
	}

	off, _ := m.offset(pc)

	return binary.LittleEndian.Uint32(m.bytes[off:]), nil
}

// ReadBytes copies len(dst) bytes starting at addr, used by the kernel to
// pull bulk data (syscall arguments, ELF segments) out of guest memory. Every
// byte must lie in a page with read permission; it need not be a single
// page.
func (m *Memory) ReadBytes(addr uint64, dst []byte) *trap.Exception {
	for i := range dst {
		b, ex := m.Load8(addr + uint64(i))
		if ex != nil {
			return ex
		}

		dst[i] = b
	}

	return nil
}

// WriteBytes copies src into guest memory starting at addr. Every byte must
// lie in a page with write permission.
func (m *Memory) WriteBytes(addr uint64, src []byte) *trap.Exception {
	for i, b := range src {
		if ex := m.Store8(addr+uint64(i), b); ex != nil {
			return ex
		}
	}

	return nil
}

// Raw returns the full backing buffer for snapshotting. Callers must not
// retain a reference past the snapshot call.
func (m *Memory) Raw() []byte { return m.bytes }

// RestoreRaw overwrites the entire backing buffer from a snapshot. It
// bypasses the page table's permission checks -- restoring state is a
// host-privileged operation, not a guest memory access.
func (m *Memory) RestoreRaw(data []byte) error {
	if len(data) != len(m.bytes) {
		return fmt.Errorf("guest: snapshot memory size %d != memory size %d", len(data), len(m.bytes))
	}

	copy(m.bytes, data)

	return nil
}
