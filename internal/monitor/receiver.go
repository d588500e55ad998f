package monitor

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/labstreaming/lsltools/internal/lsl"
)

// Message is one enriched heartbeat, decoded from a monitor stream's raw
// JSON payload and tagged with the identity of the stream it came from.
type Message struct {
	SourceID string          `json:"source_id"`
	Hostname string          `json:"hostname"`
	Name     string          `json:"name"`
	Raw      json.RawMessage `json:"message"`
	At       float64         `json:"-"`
}

// Receiver tracks every live "_monitor_*" stream discovered by a resolver
// and fans their decoded heartbeats into a single channel.
type Receiver struct {
	resolver *lsl.Resolver
	out      chan Message

	mu      sync.Mutex
	tracked map[string]context.CancelFunc

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewReceiver starts polling resolver for streams matching
// lsl.MonitorAggregationPredicate and spawns one reader goroutine per
// discovered stream.
func NewReceiver(resolver *lsl.Resolver, queueDepth int) *Receiver {
	if queueDepth <= 0 {
		queueDepth = 64
	}
	r := &Receiver{
		resolver: resolver,
		out:      make(chan Message, queueDepth),
		tracked:  make(map[string]context.CancelFunc),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go r.run()
	return r
}

// Out returns the channel of decoded, enriched heartbeats.
func (r *Receiver) Out() <-chan Message { return r.out }

func (r *Receiver) run() {
	defer close(r.doneCh)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	matches := r.resolver.ResolveContinuous(ctx, lsl.MonitorAggregationPredicate(), 1*time.Second)

	for {
		select {
		case <-r.stopCh:
			r.mu.Lock()
			for _, c := range r.tracked {
				c()
			}
			r.mu.Unlock()
			return
		case infos, ok := <-matches:
			if !ok {
				return
			}
			r.mu.Lock()
			for _, info := range infos {
				key := info.UID
				if _, ok := r.tracked[key]; ok {
					continue
				}
				childCtx, childCancel := context.WithCancel(ctx)
				r.tracked[key] = childCancel
				go r.readStream(childCtx, info)
			}
			r.mu.Unlock()
		}
	}
}

func (r *Receiver) readStream(ctx context.Context, info lsl.StreamInfo) {
	inlet, err := lsl.OpenInlet(info, lsl.InletOptions{MaxBuflen: 1, MaxChunklen: 1, ProcessingFlags: lsl.ProcessingAll})
	if err != nil {
		log.Printf("monitor: open inlet for %s: %v", info.Descriptor.Name, err)
		return
	}
	defer inlet.Close()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		frame, err := inlet.PullSample(ctx, 1*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		msg := decodePayload(frame.Value, info)
		msg.At = frame.Timestamp
		select {
		case r.out <- msg:
		default:
			log.Printf("monitor: dropping heartbeat for %s: queue full", info.Descriptor.Name)
		}
	}
}

func decodePayload(raw string, info lsl.StreamInfo) Message {
	msg := Message{SourceID: info.Descriptor.SourceID, Hostname: info.Descriptor.Hostname, Name: info.Descriptor.Name}
	if json.Valid([]byte(raw)) {
		msg.Raw = json.RawMessage(raw)
		return msg
	}
	wrapped, _ := json.Marshal(map[string]string{"message": raw})
	msg.Raw = json.RawMessage(wrapped)
	return msg
}

// Stop halts all stream readers and waits for the dispatch loop to exit.
func (r *Receiver) Stop() {
	close(r.stopCh)
	<-r.doneCh
}
