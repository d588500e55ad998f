package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labstreaming/lsltools/internal/control"
	"github.com/labstreaming/lsltools/internal/lsl"
	"github.com/labstreaming/lsltools/internal/pacer"
	"github.com/labstreaming/lsltools/internal/sample"
)

type fakeClock struct{ t float64 }

func (c *fakeClock) Now() float64 { return c.t }

type fakeSleeper struct{ clock *fakeClock }

func (s fakeSleeper) SleepUntil(clock pacer.Clock, deadline float64) {
	if s.clock.t < deadline {
		s.clock.t = deadline
	}
}

func newTestOutlet(t *testing.T, name string, channelCount int) *lsl.Outlet {
	t.Helper()
	desc := lsl.StreamDescriptor{Name: name, ChannelCount: channelCount, ChannelFormat: lsl.FormatDouble64}
	o, err := lsl.NewOutlet(desc, lsl.OutletOptions{}, "239.255.2.1:19001")
	require.NoError(t, err)
	return o
}

// Invariant 3: count correctness. Under max_samples=M the worker emits
// exactly M samples before terminating.
func TestWorker_MaxSamples(t *testing.T) {
	clk := &fakeClock{}
	mb := NewChanMailbox(4)
	outlet := newTestOutlet(t, "counter-stream", 1)
	defer outlet.Close()

	spec := Spec{
		Descriptor: lsl.StreamDescriptor{Name: "counter-stream", ChannelCount: 1, NominalSRate: 100},
		ChannelFns: []sample.Tag{sample.TagCounter},
		MaxSamples: 5,
	}
	w := New(spec, 0, mb, clk, fakeSleeper{clk}, outlet, nil)

	mb.Send(control.NewStart(0, 0))

	done := make(chan State, 1)
	go func() { done <- w.Run(context.Background(), nil) }()

	select {
	case st := <-done:
		assert.Equal(t, int64(5), st.SampleCount)
		assert.Equal(t, PhaseTerminal, st.Phase)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not terminate")
	}
}

// Invariant 4: idempotent STOP — a second STOP to a stopped worker is a
// no-op and does not raise.
func TestWorker_IdempotentStop(t *testing.T) {
	clk := &fakeClock{}
	mb := NewChanMailbox(4)
	outlet := newTestOutlet(t, "stop-stream", 1)
	defer outlet.Close()

	spec := Spec{Descriptor: lsl.StreamDescriptor{Name: "stop-stream", ChannelCount: 1}}
	w := New(spec, 0, mb, clk, fakeSleeper{clk}, outlet, nil)

	mb.Send(control.NewStop(0))
	st := w.Run(context.Background(), nil)
	assert.Equal(t, PhaseTerminal, st.Phase)

	assert.NotPanics(t, func() {
		mb2 := NewChanMailbox(1)
		mb2.Send(control.NewStop(0))
		outlet2 := newTestOutlet(t, "stop-stream-2", 1)
		defer outlet2.Close()
		w2 := New(spec, 0, mb2, clk, fakeSleeper{clk}, outlet2, nil)
		w2.Run(context.Background(), nil)
	})
}

// S5: pause then resume. START at T, PAUSE at T+1 (sent at T+0.8), sample
// count at PAUSE == nominal_srate*1; START at T+2 resumes emission at
// logical T+2, not T+1.
func TestWorker_PauseThenResume_S5(t *testing.T) {
	clk := &fakeClock{t: 0}
	mb := NewChanMailbox(4)
	outlet := newTestOutlet(t, "pause-stream", 1)
	defer outlet.Close()

	spec := Spec{
		Descriptor: lsl.StreamDescriptor{Name: "pause-stream", ChannelCount: 1, NominalSRate: 100},
		ChannelFns: []sample.Tag{sample.TagCounter},
	}
	w := New(spec, 0, mb, clk, fakeSleeper{clk}, outlet, nil)

	mb.Send(control.NewStart(0, 0))
	// PAUSE scheduled for logical T+1; sent "early" (mailbox delivers
	// immediately in this synchronous test, modeling jitter-free arrival of
	// a message whose effect is still deferred to its own time_stamp).
	pauseTS := 1.0
	mb.Send(control.NewPause(pauseTS))

	runDone := make(chan State, 1)
	go func() { runDone <- w.runUntilPaused(context.Background()) }()

	select {
	case st := <-runDone:
		require.Equal(t, PhasePaused, st.Phase)
		assert.Equal(t, int64(100), st.SampleCount)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not pause")
	}

	mb.Send(control.NewStart(2.0, 0))
	st2 := w.runUntilPaused(context.Background())
	assert.Equal(t, PhaseRunning, st2.Phase)
	assert.Equal(t, 2.0, *st2.StartTime)
}

// runUntilPaused drives the state machine exactly like Run but returns as
// soon as the worker reaches Paused or Running after a resume, so the test
// can assert mid-lifecycle state without tearing down the outlet.
func (w *Worker) runUntilPaused(ctx context.Context) State {
	for {
		switch w.state.Phase {
		case PhaseIdle:
			w.runIdle(ctx)
		case PhaseRunning:
			before := w.state.Phase
			w.runRunning(ctx)
			if w.state.Phase != before {
				return w.state
			}
		case PhasePaused:
			if w.state.StartTime == nil {
				return w.state
			}
			w.runPaused(ctx)
			return w.state
		case PhaseTerminal:
			return w.state
		}
	}
}
