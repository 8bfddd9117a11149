package kernel_test

import "github.com/rv64vm/sandbox/internal/guest"

// fakeEnv is a minimal HostEnvironment over a plain byte slice, used so
// kernel tests don't need a live cpu.Machine. It ignores permissions
// entirely -- MapPages just records the call -- since the syscall layer
// itself never consults them; the interpreter's guest.Memory enforces
// them on the real path.
type fakeEnv struct {
	bytes []byte
	maps  []mapCall
}

type mapCall struct {
	addr, size uint64
	perm       guest.Perm
}

func newFakeEnv(size int) *fakeEnv {
	return &fakeEnv{bytes: make([]byte, size)}
}

func (e *fakeEnv) ReadGuest(addr uint64, dst []byte) bool {
	if addr+uint64(len(dst)) > uint64(len(e.bytes)) {
		return false
	}

	copy(dst, e.bytes[addr:])

	return true
}

func (e *fakeEnv) WriteGuest(addr uint64, src []byte) bool {
	if addr+uint64(len(src)) > uint64(len(e.bytes)) {
		return false
	}

	copy(e.bytes[addr:], src)

	return true
}

func (e *fakeEnv) MapPages(addr, size uint64, perm guest.Perm) error {
	e.maps = append(e.maps, mapCall{addr: addr, size: size, perm: perm})
	return nil
}

func (e *fakeEnv) StackTop() uint64 {
	return uint64(len(e.bytes)) - guest.PageSize
}
