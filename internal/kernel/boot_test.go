package kernel_test

import (
	"testing"

	"github.com/rv64vm/sandbox/internal/kernel"
)

func TestBootReachesCompleteAndInitializesSubsystems(t *testing.T) {
	k := kernel.New(newFakeEnv(4096))

	k.Boot()

	if !k.Ready() {
		t.Fatalf("Ready() after Boot = false, want true")
	}

	if k.Timer == nil || k.Interrupts == nil || k.Processes == nil {
		t.Fatalf("Boot left a nil subsystem: timer=%v interrupts=%v processes=%v",
			k.Timer, k.Interrupts, k.Processes)
	}

	users := k.Users()
	if len(users) == 0 || users[0].UID != 0 {
		t.Fatalf("users[0] = %+v, want UID 0", users)
	}
}

func TestBootTwiceOnSameKernelPanics(t *testing.T) {
	k := kernel.New(newFakeEnv(4096))
	k.Boot()

	defer func() {
		if recover() == nil {
			t.Fatalf("second Boot() did not panic")
		}
	}()

	k.Boot()
}
