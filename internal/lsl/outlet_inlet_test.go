package lsl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOutletInletRoundTrip(t *testing.T) {
	desc := StreamDescriptor{
		Name: "unit-test-stream", ContentType: "EEG", ChannelCount: 2,
		NominalSRate: 100, ChannelFormat: FormatDouble64, SourceID: "s1", Hostname: "h1",
	}
	outlet, err := NewOutlet(desc, OutletOptions{ChunkSize: 1, MaxBuffered: 4}, "239.255.0.1:17571")
	require.NoError(t, err)
	defer outlet.Close()

	info := StreamInfo{UID: "test", Host: "127.0.0.1", Port: outlet.port(), Descriptor: desc}
	inlet, err := OpenInlet(info, InletOptions{MaxBuflen: 1, ProcessingFlags: ProcessingAll})
	require.NoError(t, err)
	defer inlet.Close()

	// give the accept loop a moment to register the subscriber
	time.Sleep(50 * time.Millisecond)

	outlet.PushSample(Frame{Timestamp: 1.5, Values: []float64{1, 2}})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	f, err := inlet.PullSample(ctx, time.Second)
	require.NoError(t, err)
	require.Equal(t, 1.5, f.Timestamp)
	require.Equal(t, []float64{1, 2}, f.Values)
}

func TestInletPullTimeout(t *testing.T) {
	desc := StreamDescriptor{Name: "timeout-stream", ChannelCount: 1, ChannelFormat: FormatString}
	outlet, err := NewOutlet(desc, OutletOptions{}, "239.255.0.2:17572")
	require.NoError(t, err)
	defer outlet.Close()

	info := StreamInfo{UID: "test2", Host: "127.0.0.1", Port: outlet.port(), Descriptor: desc}
	inlet, err := OpenInlet(info, InletOptions{})
	require.NoError(t, err)
	defer inlet.Close()

	_, err = inlet.PullSample(context.Background(), 100*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)
}

func TestInletPullLost(t *testing.T) {
	desc := StreamDescriptor{Name: "lost-stream", ChannelCount: 1, ChannelFormat: FormatString}
	outlet, err := NewOutlet(desc, OutletOptions{}, "239.255.0.3:17573")
	require.NoError(t, err)

	info := StreamInfo{UID: "test3", Host: "127.0.0.1", Port: outlet.port(), Descriptor: desc}
	inlet, err := OpenInlet(info, InletOptions{})
	require.NoError(t, err)
	defer inlet.Close()

	require.NoError(t, outlet.Close())

	_, err = inlet.PullSample(context.Background(), time.Second)
	require.ErrorIs(t, err, ErrLost)
}
