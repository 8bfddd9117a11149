package kernel_test

import (
	"testing"

	"github.com/rv64vm/sandbox/internal/kernel"
	"github.com/rv64vm/sandbox/internal/trap"
)

// TestChannelFIFO reproduces spec scenario 3: two sends, then two
// matching receives in order, then a third receive fails would_block.
func TestChannelFIFO(t *testing.T) {
	ch := kernel.NewChannels()

	cid := ch.Create()
	if cid == 0 {
		t.Fatalf("create failed")
	}

	if kind := ch.Send(cid, []byte("Message 1")); kind != trap.Success {
		t.Fatalf("send 1 = %v, want success", kind)
	}

	if kind := ch.Send(cid, []byte("Message 2")); kind != trap.Success {
		t.Fatalf("send 2 = %v, want success", kind)
	}

	buf := make([]byte, 32)

	n, kind := ch.Receive(cid, buf)
	if kind != trap.Success || string(buf[:n]) != "Message 1" {
		t.Fatalf("recv 1 = %q, %v, want Message 1", buf[:n], kind)
	}

	n, kind = ch.Receive(cid, buf)
	if kind != trap.Success || string(buf[:n]) != "Message 2" {
		t.Fatalf("recv 2 = %q, %v, want Message 2", buf[:n], kind)
	}

	if _, kind := ch.Receive(cid, buf); kind != trap.WouldBlock {
		t.Fatalf("recv 3 on an empty channel = %v, want would_block", kind)
	}
}

// TestChannelInvalid reproduces spec scenario 4: sending to a nonexistent
// channel fails not_found; receiving from a valid but empty channel fails
// would_block.
func TestChannelInvalid(t *testing.T) {
	ch := kernel.NewChannels()

	if kind := ch.Send(999, []byte("x")); kind != trap.NotFound {
		t.Fatalf("send to unknown channel = %v, want not_found", kind)
	}

	cid := ch.Create()

	if _, kind := ch.Receive(cid, make([]byte, 8)); kind != trap.WouldBlock {
		t.Fatalf("recv on empty valid channel = %v, want would_block", kind)
	}
}

func TestChannelCapacityEnforced(t *testing.T) {
	ch := kernel.NewChannels()
	cid := ch.Create()

	for i := 0; i < kernel.ChannelCapacity; i++ {
		if kind := ch.Send(cid, []byte{byte(i)}); kind != trap.Success {
			t.Fatalf("send %d = %v, want success", i, kind)
		}
	}

	if kind := ch.Send(cid, []byte{0}); kind != trap.WouldBlock {
		t.Fatalf("send past capacity = %v, want would_block", kind)
	}
}

func TestChannelSendZeroLengthSucceeds(t *testing.T) {
	ch := kernel.NewChannels()
	cid := ch.Create()

	if kind := ch.Send(cid, nil); kind != trap.Success {
		t.Fatalf("zero-length send = %v, want success", kind)
	}

	n, kind := ch.Receive(cid, nil)
	if kind != trap.Success || n != 0 {
		t.Fatalf("recv into zero-length buffer = %d, %v, want 0, success", n, kind)
	}
}
