package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/labstreaming/lsltools/internal/lsl"
)

// RelayOutletPrefix and RelayMonitorPrefix are the relay stream naming
// conventions: relay outlets are "_relay_<upstream_name>", monitor outlets
// are "_monitor_<upstream_name>".
const (
	RelayOutletPrefix  = "_relay_"
	RelayMonitorPrefix = "_monitor_"
)

// RelayWorker is the Stream Worker specialisation that relays an upstream
// stream: it owns both an upstream inlet and a downstream outlet,
// optionally re-encoding timestamps on receipt.
type RelayWorker struct {
	spec      Spec
	resolver  *lsl.Resolver
	heartbeat func(Status)

	upstream lsl.StreamInfo
	outlet   *lsl.Outlet
}

// NewRelayWorker resolves spec's upstream and builds a relay worker around
// it. spec.IsRelay() must be true. The upstream must be resolved before the
// downstream outlet is opened: the relayed descriptor's channel metadata is
// copied verbatim from the upstream, and Outlet has no way to change its
// descriptor once announcing, so the outlet can only be built from a
// descriptor that already reflects the real upstream.
func NewRelayWorker(ctx context.Context, spec Spec, resolver *lsl.Resolver, heartbeat func(Status)) (*RelayWorker, error) {
	if !spec.IsRelay() {
		return nil, fmt.Errorf("worker: spec is not a relay spec")
	}

	upstream, err := resolveUpstream(ctx, resolver, spec)
	if err != nil {
		return nil, fmt.Errorf("worker: relay resolve upstream %s: %w", spec.RelayUpstreamName, err)
	}

	// Copy upstream desc verbatim rather than rewriting channel
	// labels/units.
	relayDesc := upstream.Descriptor
	relayDesc.Name = RelayOutletPrefix + spec.RelayUpstreamName

	outlet, err := lsl.NewOutlet(relayDesc, lsl.OutletOptions{ChunkSize: 1}, spec.MulticastAddr)
	if err != nil {
		return nil, fmt.Errorf("worker: relay outlet: %w", err)
	}

	return &RelayWorker{
		spec:      spec,
		resolver:  resolver,
		heartbeat: heartbeat,
		upstream:  upstream,
		outlet:    outlet,
	}, nil
}

// upstreamPredicate resolves the relay's upstream by name, content type,
// channel count, and hostname.
func upstreamPredicate(spec Spec) lsl.Predicate {
	preds := []lsl.Predicate{lsl.NameEquals(spec.RelayUpstreamName)}
	if spec.RelayUpstreamContentType != "" {
		preds = append(preds, lsl.TypeEquals(spec.RelayUpstreamContentType))
	}
	if spec.Descriptor.ChannelCount > 0 {
		preds = append(preds, lsl.ChannelCountEquals(spec.Descriptor.ChannelCount))
	}
	if spec.RelayUpstreamHostname != "" {
		preds = append(preds, lsl.HostnameEquals(spec.RelayUpstreamHostname))
	}
	return lsl.And(preds...)
}

func resolveUpstream(ctx context.Context, resolver *lsl.Resolver, spec Spec) (lsl.StreamInfo, error) {
	infos, err := resolver.ResolveByPredicate(ctx, upstreamPredicate(spec), 5*time.Second)
	if err != nil {
		return lsl.StreamInfo{}, err
	}
	return infos[0], nil
}

// Run opens an inlet onto the already-resolved upstream and relays samples
// until the upstream is lost or ctx is cancelled. It returns nil on a clean
// stop and lsl.ErrLost when the upstream disconnected (the supervisor may
// respawn on the next resolver tick).
func (rw *RelayWorker) Run(ctx context.Context) error {
	defer rw.outlet.Close()

	inletOpts := lsl.InletOptions{MaxBuflen: 1, MaxChunklen: 1, ProcessingFlags: lsl.ProcessingAll}
	if rw.spec.RelayReEncodeTimestamps {
		// Chunk size is forced to 1 when re-encoding timestamps.
		inletOpts.MaxChunklen = 1
	}
	inlet, err := lsl.OpenInlet(rw.upstream, inletOpts)
	if err != nil {
		return fmt.Errorf("worker: relay open inlet: %w", err)
	}
	defer inlet.Close()

	monitorEvery := monitorSampleInterval(rw.spec)
	var count int64
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		frame, err := inlet.PullSample(ctx, 500*time.Millisecond)
		if err != nil {
			if errors.Is(err, lsl.ErrLost) {
				return lsl.ErrLost
			}
			continue // timeout: retry suspension points
		}
		if rw.spec.RelayReEncodeTimestamps {
			frame.Timestamp = lsl.LocalClock()
		}
		rw.outlet.PushSample(frame)
		count++
		if monitorEvery > 0 && count%monitorEvery == 0 {
			rw.emitHeartbeat(count)
		}
	}
}

func (rw *RelayWorker) emitHeartbeat(count int64) {
	if rw.heartbeat == nil {
		return
	}
	rw.heartbeat(Status{
		Name:        rw.spec.Descriptor.Name,
		Phase:       PhaseRunning,
		SampleCount: count,
	})
}

// monitorSampleInterval computes how many samples elapse between monitor
// heartbeats: every monitor_interval seconds, expressed as a sample count
// via nominal_srate*monitor_interval.
func monitorSampleInterval(spec Spec) int64 {
	if spec.MonitorInterval <= 0 {
		return 0
	}
	if spec.Descriptor.NominalSRate > 0 {
		n := int64(spec.Descriptor.NominalSRate * spec.MonitorInterval)
		if n > 0 {
			return n
		}
	}
	return 1
}

// MonitorOutletName is the monitor stream name for a relay's upstream.
func MonitorOutletName(upstreamName string) string {
	return RelayMonitorPrefix + upstreamName
}
