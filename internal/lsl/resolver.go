package lsl

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// beaconTTL is how long a seen beacon stays in the resolver's table without
// a refresh before it is considered gone.
const beaconTTL = 5 * time.Second

type seenEntry struct {
	info     StreamInfo
	lastSeen time.Time
}

// Resolver listens on the discovery multicast group and maintains a table
// of live stream announcements, evaluated against caller predicates.
type Resolver struct {
	mc *multicastConn

	mu   sync.Mutex
	seen map[string]seenEntry // uid -> entry

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewResolver joins the discovery multicast group and starts listening for
// beacons in the background. Call Close when done.
func NewResolver(addr string) (*Resolver, error) {
	if addr == "" {
		addr = DefaultMulticastAddr
	}
	mc, err := joinMulticast(addr)
	if err != nil {
		return nil, err
	}
	r := &Resolver{
		mc:     mc,
		seen:   make(map[string]seenEntry),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go r.listen()
	return r, nil
}

func (r *Resolver) listen() {
	defer close(r.doneCh)
	buf := make([]byte, 8192)
	_ = r.mc.raw.SetReadDeadline(time.Time{})
	for {
		select {
		case <-r.stopCh:
			return
		default:
		}
		_ = r.mc.raw.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, _, err := r.mc.raw.ReadFrom(buf)
		if err != nil {
			continue
		}
		var b beacon
		if err := json.Unmarshal(buf[:n], &b); err != nil {
			continue
		}
		r.mu.Lock()
		r.seen[b.UID] = seenEntry{
			info: StreamInfo{
				UID:        b.UID,
				Host:       b.Host,
				Port:       b.Port,
				Descriptor: b.Descriptor,
			},
			lastSeen: time.Now(),
		}
		r.mu.Unlock()
	}
}

// snapshot returns the currently live (non-expired) stream infos matching
// pred.
func (r *Resolver) snapshot(pred Predicate) []StreamInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	var out []StreamInfo
	for uid, e := range r.seen {
		if now.Sub(e.lastSeen) > beaconTTL {
			delete(r.seen, uid)
			continue
		}
		if pred == nil || pred(e.Descriptor()) {
			out = append(out, e.info)
		}
	}
	return out
}

func (e seenEntry) Descriptor() StreamDescriptor { return e.info.Descriptor }

// ResolveByPredicate blocks up to timeout waiting for at least one match.
// Returns ErrResolveEmpty if nothing matched within timeout.
func (r *Resolver) ResolveByPredicate(ctx context.Context, pred Predicate, timeout time.Duration) ([]StreamInfo, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if matches := r.snapshot(pred); len(matches) > 0 {
			return matches, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrResolveEmpty
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// ResolveContinuous emits the current match set on every tick interval
// until ctx is cancelled, powering a supervisor's resolver loop.
func (r *Resolver) ResolveContinuous(ctx context.Context, pred Predicate, tick time.Duration) <-chan []StreamInfo {
	out := make(chan []StreamInfo)
	go func() {
		defer close(out)
		ticker := time.NewTicker(tick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				matches := r.snapshot(pred)
				select {
				case out <- matches:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Close stops the resolver's background listener and releases the socket.
func (r *Resolver) Close() error {
	r.stopOnce.Do(func() { close(r.stopCh) })
	<-r.doneCh
	return r.mc.close()
}
