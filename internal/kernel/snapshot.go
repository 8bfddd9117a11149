package kernel

import "github.com/rv64vm/sandbox/internal/cpu"

// snapshot.go extends cpu.Snapshot with the kernel-owned tables, giving
// checkpoint/rewind over the whole sandbox rather than just the CPU --
// the natural consequence, once a kernel exists, of spec §4.11's
// snapshot/restore contract.

// Snapshot is a serialized copy of both the machine and every kernel
// table.
type Snapshot struct {
	Machine *cpu.Snapshot

	Processes ProcessTable
	Channels  Channels
	Storage   Storage
	Timer     Timer
}

// Save captures a kernel snapshot nesting a full machine snapshot (memory
// copied into dst).
func (k *Kernel) Save(m *cpu.Machine, dst []byte) (*Snapshot, error) {
	msnap, err := m.Save(dst)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		Machine:   msnap,
		Processes: *k.Processes,
		Channels:  *k.Channels,
		Storage:   *k.Storage,
		Timer:     *k.Timer,
	}, nil
}

// Restore overwrites the machine and every kernel table from snap.
func (k *Kernel) Restore(m *cpu.Machine, snap *Snapshot) error {
	if err := m.Restore(snap.Machine); err != nil {
		return err
	}

	*k.Processes = snap.Processes
	*k.Channels = snap.Channels
	*k.Storage = snap.Storage
	*k.Timer = snap.Timer

	return nil
}
