package kernel

import "github.com/rv64vm/sandbox/internal/trap"

// channels.go implements the bounded IPC mailboxes of spec §4.7: FIFO,
// non-blocking, fixed message capacity.

// ChannelCapacity is the maximum number of queued, unread messages per
// channel.
const ChannelCapacity = 32

// MaxMessageSize bounds a single message's payload.
const MaxMessageSize = 256

// MaxChannels bounds the channel table.
const MaxChannels = 64

type message struct {
	data []byte
}

// Channel is one bounded FIFO mailbox.
type Channel struct {
	ID        uint32
	Allocated bool

	queue    [ChannelCapacity]message
	readPos  int
	writePos int
	count    int
}

// Channels is the channel table.
type Channels struct {
	slots  [MaxChannels]Channel
	nextID uint32
}

// NewChannels returns an empty channel table.
func NewChannels() *Channels {
	return &Channels{nextID: 1}
}

// Create allocates a channel and returns its id, or 0 if the table is
// full.
func (c *Channels) Create() uint32 {
	for i := range c.slots {
		if c.slots[i].Allocated {
			continue
		}

		id := c.nextID
		c.nextID++

		c.slots[i] = Channel{ID: id, Allocated: true}

		return id
	}

	return 0
}

func (c *Channels) find(id uint32) *Channel {
	if id == 0 {
		return nil
	}

	for i := range c.slots {
		if c.slots[i].Allocated && c.slots[i].ID == id {
			return &c.slots[i]
		}
	}

	return nil
}

// Send appends data to channel id's queue. It fails not_found if the
// channel doesn't exist, invalid_argument if data exceeds MaxMessageSize,
// and would_block if the queue is full.
func (c *Channels) Send(id uint32, data []byte) trap.ErrorKind {
	ch := c.find(id)
	if ch == nil {
		return trap.NotFound
	}

	if len(data) > MaxMessageSize {
		return trap.InvalidArgument
	}

	if ch.count >= ChannelCapacity {
		return trap.WouldBlock
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	ch.queue[ch.writePos] = message{data: buf}
	ch.writePos = (ch.writePos + 1) % ChannelCapacity
	ch.count++

	return trap.Success
}

// Receive copies the head message of channel id into dst (truncating if
// dst is shorter than the message) and returns the number of bytes
// copied. It fails
// not_found if the channel doesn't exist, would_block if empty.
func (c *Channels) Receive(id uint32, dst []byte) (int, trap.ErrorKind) {
	ch := c.find(id)
	if ch == nil {
		return 0, trap.NotFound
	}

	if ch.count == 0 {
		return 0, trap.WouldBlock
	}

	msg := ch.queue[ch.readPos]
	ch.queue[ch.readPos] = message{}
	ch.readPos = (ch.readPos + 1) % ChannelCapacity
	ch.count--

	n := copy(dst, msg.data)

	return n, trap.Success
}
