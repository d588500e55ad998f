// Package monitor implements the lightweight heartbeat stream: every
// Stream/Relay Worker periodically publishes a small JSON status message on
// a "_monitor_<name>" outlet, which one or more aggregators discover and
// merge, generalized from the marker-stream Sender/Receiver pair (the
// monitor stream is the same "irregular-rate string channel" shape, just a
// different payload and a rate limit to keep it from ever building
// backlog).
package monitor

import (
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/labstreaming/lsltools/internal/lsl"
)

func secondsToDuration(s float64) time.Duration {
	if s <= 0 {
		return time.Second
	}
	return time.Duration(s * float64(time.Second))
}

// Sender publishes JSON-encoded status payloads on a monitor outlet. Sends
// are rate-limited rather than queued: the first heartbeat of a burst is
// pushed and the rest of the burst within the interval is dropped.
type Sender struct {
	outlet  *lsl.Outlet
	limiter *rate.Sometimes
}

// NewSender opens a "_monitor_<name>" outlet. minInterval bounds how often
// Send actually emits; calls in between are silently dropped.
func NewSender(name string, multicastAddr string, minInterval float64) (*Sender, error) {
	desc := lsl.StreamDescriptor{
		Name:          MonitorName(name),
		ContentType:   "Markers",
		ChannelCount:  1,
		NominalSRate:  lsl.IrregularRate,
		ChannelFormat: lsl.FormatString,
		SourceID:      MonitorName(name),
	}
	outlet, err := lsl.NewOutlet(desc, lsl.OutletOptions{ChunkSize: 1, MaxBuffered: 1}, multicastAddr)
	if err != nil {
		return nil, fmt.Errorf("monitor: open outlet: %w", err)
	}
	interval := secondsToDuration(minInterval)
	return &Sender{outlet: outlet, limiter: &rate.Sometimes{Interval: interval}}, nil
}

// Send marshals payload to JSON and pushes it, subject to the sender's rate
// limit. Marshal errors are reported; rate-limited drops are not — a
// dropped heartbeat is not an error.
func (s *Sender) Send(payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("monitor: marshal payload: %w", err)
	}
	s.limiter.Do(func() {
		s.outlet.PushSample(lsl.Frame{Timestamp: lsl.LocalClock(), Value: string(raw)})
	})
	return nil
}

// Close releases the underlying outlet.
func (s *Sender) Close() { s.outlet.Close() }

// MonitorName is the "_monitor_<name>" naming convention.
func MonitorName(name string) string { return "_monitor_" + name }
