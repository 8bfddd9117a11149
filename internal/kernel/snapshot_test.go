package kernel_test

import (
	"testing"

	"github.com/rv64vm/sandbox/internal/cpu"
	"github.com/rv64vm/sandbox/internal/guest"
	"github.com/rv64vm/sandbox/internal/kernel"
)

func TestKernelSnapshotRestoresEveryTable(t *testing.T) {
	mem := guest.NewMemory(guest.StandaloneSize, guest.DefaultBase)

	k := kernel.New(kernel.NewMachineEnvironment(mem))
	k.Boot()

	m := cpu.New(mem)
	m.Start()

	pid := k.Processes.Spawn(mem.Base(), mem.Base(), mem.StackTop())

	cid := k.Channels.Create()
	if kind := k.Channels.Send(cid, []byte("before")); kind != 0 {
		t.Fatalf("send before snapshot: %v", kind)
	}

	idx := k.Storage.CreateFile("note")
	k.Storage.Write(idx, []byte("frozen"))

	k.Timer.SetTimer(1000)

	dst := make([]byte, mem.Size())
	snap, err := k.Save(m, dst)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Mutate everything the snapshot captured.
	k.Processes.Exit(pid, 7)
	k.Channels.Send(cid, []byte("after"))
	k.Storage.Write(idx, []byte("mutated"))
	k.Timer.SetTimer(2000)

	if err := k.Restore(m, snap); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	if p := k.Processes.Lookup(pid); p == nil || p.State != kernel.ProcessRunning {
		t.Fatalf("process %d after restore = %+v, want still running", pid, p)
	}

	buf := make([]byte, 32)
	n, _ := k.Channels.Receive(cid, buf)
	if string(buf[:n]) != "before" {
		t.Fatalf("channel contents after restore = %q, want %q", buf[:n], "before")
	}

	fbuf := make([]byte, 32)
	n, _ = k.Storage.Read(idx, fbuf)
	if string(fbuf[:n]) != "frozen" {
		t.Fatalf("file contents after restore = %q, want %q", fbuf[:n], "frozen")
	}

	if got := k.Timer.TargetNS(); got != 1000 {
		t.Fatalf("timer target after restore = %d, want 1000", got)
	}
}

func TestKernelRestoreRejectsMachineSnapshotMismatch(t *testing.T) {
	mem := guest.NewMemory(guest.StandaloneSize, guest.DefaultBase)

	k := kernel.New(kernel.NewMachineEnvironment(mem))
	k.Boot()

	m := cpu.New(mem)
	m.Start()

	dst := make([]byte, mem.Size())
	snap, err := k.Save(m, dst)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	snap.Machine.State = 99 // corrupt the nested machine snapshot's state tag.

	if err := k.Restore(m, snap); err == nil {
		t.Fatalf("Restore with a corrupted machine snapshot returned nil error")
	}
}
