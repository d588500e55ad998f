package lsl

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"
)

// ProcessingFlag mirrors liblsl's inlet post-processing flags; only ALL
// (clock sync + jitter correction) is meaningful to this stand-in.
type ProcessingFlag int

const (
	ProcessingNone ProcessingFlag = 0
	ProcessingAll  ProcessingFlag = 1
)

// InletOptions configures an inlet.
type InletOptions struct {
	MaxBuflen       int
	MaxChunklen     int
	Recover         bool
	ProcessingFlags ProcessingFlag
}

type inletResult struct {
	f   Frame
	err error
}

// Inlet pulls samples from a resolved stream's TCP connection. A single
// background goroutine owns the decoder; PullSample only ever reads from
// the resulting channel, so repeated timeouts never race two decodes
// against the same connection.
type Inlet struct {
	info StreamDescriptor
	conn net.Conn
	opts InletOptions

	results chan inletResult

	mu     sync.Mutex
	closed bool
}

// OpenInlet dials the resolved StreamInfo's TCP endpoint.
func OpenInlet(info StreamInfo, opts InletOptions) (*Inlet, error) {
	conn, err := net.DialTimeout("tcp4", fmt.Sprintf("%s:%d", info.Host, info.Port), 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("lsl: open inlet %s: %w", info.Descriptor.Name, err)
	}
	buflen := opts.MaxBuflen
	if buflen <= 0 {
		buflen = 1
	}
	in := &Inlet{
		info:    info.Descriptor,
		conn:    conn,
		opts:    opts,
		results: make(chan inletResult, buflen),
	}
	go in.readLoop()
	return in, nil
}

func (in *Inlet) readLoop() {
	dec := json.NewDecoder(bufio.NewReader(in.conn))
	for {
		var f Frame
		err := dec.Decode(&f)
		// Drop the oldest buffered sample if the consumer is behind: this
		// inlet never grows unbounded.
		select {
		case in.results <- inletResult{f, err}:
		default:
			select {
			case <-in.results:
			default:
			}
			in.results <- inletResult{f, err}
		}
		if err != nil {
			return
		}
	}
}

// Descriptor returns the upstream descriptor this inlet is attached to.
func (in *Inlet) Descriptor() StreamDescriptor { return in.info }

// PullSample reads the next frame, blocking up to timeout. Returns ErrLost
// if the connection is closed by the peer, ErrTimeout if nothing arrived in
// time. With ProcessingAll, the timestamp is taken verbatim from the frame
// (already clock-synced by the sender); without it, the local arrival time
// is substituted.
func (in *Inlet) PullSample(ctx context.Context, timeout time.Duration) (Frame, error) {
	var timerCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timerCh = timer.C
	}
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case <-timerCh:
		return Frame{}, ErrTimeout
	case r := <-in.results:
		if r.err != nil {
			return Frame{}, fmt.Errorf("%w: %v", ErrLost, r.err)
		}
		if in.opts.ProcessingFlags != ProcessingAll {
			r.f.Timestamp = LocalClock()
		}
		return r.f, nil
	}
}

// Close releases the underlying connection. Inlets MUST be closed from the
// execution context that opened them.
func (in *Inlet) Close() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return nil
	}
	in.closed = true
	return in.conn.Close()
}
