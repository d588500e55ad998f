package control

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/labstreaming/lsltools/internal/lsl"
)

// TimestampedMessage attaches the receiver-observed time_stamp to a
// Message.
type TimestampedMessage struct {
	Message
	ReceivedAt float64
}

// Receiver resolves a named LSL marker stream and decodes JSON state
// messages, forwarding state changes to subscribers.
type Receiver struct {
	resolver *lsl.Resolver
	name     string
	out      chan TimestampedMessage

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewReceiver starts resolving name in the background.
func NewReceiver(resolver *lsl.Resolver, name string, queueDepth int) *Receiver {
	if queueDepth <= 0 {
		queueDepth = 16
	}
	r := &Receiver{
		resolver: resolver,
		name:     name,
		out:      make(chan TimestampedMessage, queueDepth),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go r.run()
	return r
}

// Out returns the bounded queue of observed state changes, forwarded to
// subscribers as they arrive.
func (r *Receiver) Out() <-chan TimestampedMessage { return r.out }

func (r *Receiver) run() {
	defer close(r.doneCh)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-r.stopCh
		cancel()
	}()

	var lastState State
	haveLast := false

	for {
		select {
		case <-r.stopCh:
			return
		default:
		}

		infos, err := r.resolver.ResolveByPredicate(ctx, lsl.NameEquals(r.name), 500*time.Millisecond)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			continue // resolver empty: transient, retry
		}

		inlet, err := lsl.OpenInlet(infos[0], lsl.InletOptions{
			MaxBuflen: 1, MaxChunklen: 1, Recover: false, ProcessingFlags: lsl.ProcessingAll,
		})
		if err != nil {
			log.Printf("control: receiver open inlet: %v", err)
			continue
		}

		r.pullUntilLost(ctx, inlet, &lastState, &haveLast)
		inlet.Close()
	}
}

func (r *Receiver) pullUntilLost(ctx context.Context, inlet *lsl.Inlet, lastState *State, haveLast *bool) {
	for {
		select {
		case <-r.stopCh:
			return
		default:
		}
		frame, err := inlet.PullSample(ctx, 500*time.Millisecond)
		if err != nil {
			if errors.Is(err, lsl.ErrLost) {
				return
			}
			continue // timeout or resolve: retry
		}
		msg, err := Decode(frame.Value)
		if err != nil {
			log.Printf("control: %v", err)
			continue
		}
		if *haveLast && msg.State == *lastState {
			continue // only forward on state change
		}
		*lastState = msg.State
		*haveLast = true

		tm := TimestampedMessage{Message: msg, ReceivedAt: frame.Timestamp}
		select {
		case r.out <- tm:
		default:
			log.Printf("control: receiver output queue full, dropping %s", msg.State)
		}
		if msg.State == Stop {
			// STOP also terminates the receiver.
			r.stopOnce.Do(func() { close(r.stopCh) })
			return
		}
	}
}

// Stop terminates the receiver. Idempotent: a second call is a no-op.
func (r *Receiver) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	<-r.doneCh
}
