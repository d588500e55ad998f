package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labstreaming/lsltools/internal/lsl"
)

// Testable Property #7: a relay's downstream descriptor carries the
// upstream's channel metadata verbatim, and a sample pushed upstream
// reaches the downstream outlet unchanged.
func TestRelayWorker_ForwardsDescriptorAndSamples(t *testing.T) {
	const multicastAddr = "239.255.2.2:19101"

	upstreamDesc := lsl.StreamDescriptor{
		Name:          "eeg-raw",
		ContentType:   "EEG",
		ChannelCount:  2,
		NominalSRate:  0,
		ChannelFormat: lsl.FormatDouble64,
		SourceID:      "eeg-raw-src",
		ChannelLabels: []string{"Fp1", "Fp2"},
		ChannelTypes:  []string{"EEG", "EEG"},
		ChannelUnits:  []string{"microvolts", "microvolts"},
		Desc:          map[string]string{"manufacturer": "test-rig"},
	}
	upstream, err := lsl.NewOutlet(upstreamDesc, lsl.OutletOptions{ChunkSize: 1}, multicastAddr)
	require.NoError(t, err)
	defer upstream.Close()

	resolver, err := lsl.NewResolver(multicastAddr)
	require.NoError(t, err)
	defer resolver.Close()

	spec := Spec{
		Descriptor:               lsl.StreamDescriptor{ChannelCount: 2},
		RelayUpstreamName:        upstreamDesc.Name,
		RelayUpstreamContentType: upstreamDesc.ContentType,
		MulticastAddr:            multicastAddr,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rw, err := NewRelayWorker(ctx, spec, resolver, nil)
	require.NoError(t, err)

	runDone := make(chan error, 1)
	go func() { runDone <- rw.Run(ctx) }()

	relayName := RelayOutletPrefix + upstreamDesc.Name
	infos, err := resolver.ResolveByPredicate(ctx, lsl.NameEquals(relayName), 5*time.Second)
	require.NoError(t, err)
	require.Len(t, infos, 1)

	relayed := infos[0].Descriptor
	assert.Equal(t, upstreamDesc.ChannelLabels, relayed.ChannelLabels)
	assert.Equal(t, upstreamDesc.ChannelTypes, relayed.ChannelTypes)
	assert.Equal(t, upstreamDesc.ChannelUnits, relayed.ChannelUnits)
	assert.Equal(t, upstreamDesc.Desc, relayed.Desc)

	downstream, err := lsl.OpenInlet(infos[0], lsl.InletOptions{MaxBuflen: 1, ProcessingFlags: lsl.ProcessingAll})
	require.NoError(t, err)
	defer downstream.Close()

	// give the relay's own inlet time to attach to the upstream outlet
	time.Sleep(100 * time.Millisecond)
	upstream.PushSample(lsl.Frame{Timestamp: 3.25, Values: []float64{10, 20}})

	pullCtx, pullCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer pullCancel()
	frame, err := downstream.PullSample(pullCtx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 3.25, frame.Timestamp)
	assert.Equal(t, []float64{10, 20}, frame.Values)

	cancel()
	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("relay worker did not stop")
	}
}

// Testable Property #8 variant: timestamp re-encoding replaces the
// upstream timestamp with the relay's own local clock reading.
func TestRelayWorker_ReEncodesTimestamps(t *testing.T) {
	const multicastAddr = "239.255.2.2:19102"

	upstreamDesc := lsl.StreamDescriptor{
		Name: "marker-raw", ContentType: "Markers", ChannelCount: 1,
		ChannelFormat: lsl.FormatString,
	}
	upstream, err := lsl.NewOutlet(upstreamDesc, lsl.OutletOptions{ChunkSize: 1}, multicastAddr)
	require.NoError(t, err)
	defer upstream.Close()

	resolver, err := lsl.NewResolver(multicastAddr)
	require.NoError(t, err)
	defer resolver.Close()

	spec := Spec{
		Descriptor:              lsl.StreamDescriptor{ChannelCount: 1},
		RelayUpstreamName:       upstreamDesc.Name,
		RelayReEncodeTimestamps: true,
		MulticastAddr:           multicastAddr,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rw, err := NewRelayWorker(ctx, spec, resolver, nil)
	require.NoError(t, err)
	go rw.Run(ctx)

	relayName := RelayOutletPrefix + upstreamDesc.Name
	infos, err := resolver.ResolveByPredicate(ctx, lsl.NameEquals(relayName), 5*time.Second)
	require.NoError(t, err)

	downstream, err := lsl.OpenInlet(infos[0], lsl.InletOptions{MaxBuflen: 1, ProcessingFlags: lsl.ProcessingAll})
	require.NoError(t, err)
	defer downstream.Close()

	time.Sleep(100 * time.Millisecond)
	upstream.PushSample(lsl.Frame{Timestamp: 1.0, Value: "marker"})

	pullCtx, pullCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer pullCancel()
	frame, err := downstream.PullSample(pullCtx, time.Second)
	require.NoError(t, err)
	assert.NotEqual(t, 1.0, frame.Timestamp)
	assert.Equal(t, "marker", frame.Value)
}
