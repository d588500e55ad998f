package worker

import (
	"context"

	"github.com/labstreaming/lsltools/internal/control"
)

// Mailbox is a worker's inbound control-message queue: MPSC, the parent (or
// Supervisor dispatcher) produces, the worker consumes.
type Mailbox interface {
	// Recv blocks until a message arrives, the mailbox is closed (ok=false)
	// or ctx is cancelled.
	Recv(ctx context.Context) (msg control.Message, ok bool)
	// TryRecv returns immediately: a message if one was queued, else ok=false.
	TryRecv() (msg control.Message, ok bool)
}

// ChanMailbox is the in-process Mailbox used by simulate/tests and by the
// subprocess IPC layer (internal/ipc feeds one from the child's stdin).
type ChanMailbox struct {
	ch chan control.Message
}

// NewChanMailbox creates a buffered channel-backed mailbox.
func NewChanMailbox(depth int) *ChanMailbox {
	if depth <= 0 {
		depth = 8
	}
	return &ChanMailbox{ch: make(chan control.Message, depth)}
}

// Send enqueues a message; blocks if the mailbox is full (backpressure is
// intentional: a slow worker should not silently drop control transitions).
func (m *ChanMailbox) Send(msg control.Message) { m.ch <- msg }

// Close signals no more messages will be sent.
func (m *ChanMailbox) Close() { close(m.ch) }

func (m *ChanMailbox) Recv(ctx context.Context) (control.Message, bool) {
	select {
	case msg, ok := <-m.ch:
		return msg, ok
	case <-ctx.Done():
		return control.Message{}, false
	}
}

func (m *ChanMailbox) TryRecv() (control.Message, bool) {
	select {
	case msg, ok := <-m.ch:
		return msg, ok
	default:
		return control.Message{}, false
	}
}
