package worker

import (
	"context"
	"fmt"

	"github.com/labstreaming/lsltools/internal/control"
	"github.com/labstreaming/lsltools/internal/lsl"
	"github.com/labstreaming/lsltools/internal/pacer"
	"github.com/labstreaming/lsltools/internal/sample"
)

// ErrStopped is returned by operations attempted against an already-
// terminated worker.
var ErrStopped = fmt.Errorf("worker: stopped")

// Worker is a single data or marker stream: it owns an outlet, runs the
// Clock & Pacer, consumes control messages from its Mailbox, and emits
// monitor heartbeats.
type Worker struct {
	spec      Spec
	streamIdx int
	mailbox   Mailbox
	clock     pacer.Clock
	sleeper   pacer.Sleeper
	outlet    *lsl.Outlet
	heartbeat func(Status)

	state State
	pacer *pacer.Pacer

	pauseRequested bool
}

// New constructs a Worker. heartbeat, if non-nil, is invoked on every phase
// transition and, while a regular-rate stream is running, every
// spec.MonitorInterval seconds; irregular-rate streams get no periodic
// heartbeat.
func New(spec Spec, streamIdx int, mailbox Mailbox, clock pacer.Clock, sleeper pacer.Sleeper, outlet *lsl.Outlet, heartbeat func(Status)) *Worker {
	return &Worker{
		spec:      spec,
		streamIdx: streamIdx,
		mailbox:   mailbox,
		clock:     clock,
		sleeper:   sleeper,
		outlet:    outlet,
		heartbeat: heartbeat,
		state:     State{Phase: PhaseIdle},
	}
}

func resolveTimestamp(msg control.Message, clock pacer.Clock) float64 {
	if msg.TimeStamp != nil {
		return *msg.TimeStamp
	}
	return clock.Now()
}

func (w *Worker) emit(status Status) {
	if w.heartbeat != nil {
		status.Name = w.spec.Descriptor.Name
		status.SampleCount = w.state.SampleCount
		status.LogicalTime = w.state.LogicalTime
		status.Phase = w.state.Phase
		w.heartbeat(status)
	}
}

// Run executes the worker's full lifecycle (idle -> running/paused ->
// terminal) until the mailbox closes or a STOP is observed. If barrier is
// non-nil, the worker rendezvous with the other participants before
// entering its main loop.
func (w *Worker) Run(ctx context.Context, barrier *Barrier) State {
	if barrier != nil {
		barrier.Wait()
	}
	w.emit(Status{Ready: true})

	for w.state.Phase != PhaseTerminal {
		select {
		case <-ctx.Done():
			w.state.Phase = PhaseTerminal
			continue
		default:
		}
		switch w.state.Phase {
		case PhaseIdle:
			w.runIdle(ctx)
		case PhaseRunning:
			w.runRunning(ctx)
		case PhasePaused:
			w.runPaused(ctx)
		default:
			w.state.Phase = PhaseTerminal
		}
	}

	w.outlet.Close()
	if w.heartbeat != nil {
		w.heartbeat(Status{}) // empty monitor sentinel on stopping/terminal
	}
	return w.state
}

func (w *Worker) runIdle(ctx context.Context) {
	msg, ok := w.mailbox.Recv(ctx)
	if !ok {
		w.state.Phase = PhaseTerminal
		return
	}
	switch msg.State {
	case control.Start:
		w.beginRun(msg)
	case control.Stop:
		w.state.Phase = PhaseTerminal
	case control.Pause:
		// ignored in idle
	}
}

func (w *Worker) beginRun(msg control.Message) {
	startTime := resolveTimestamp(msg, w.clock)
	latency := w.spec.Latency
	if msg.Latency != nil {
		latency = *msg.Latency
	}
	w.state.StartTime = &startTime
	w.state.Latency = latency
	w.state.LogicalTime = startTime
	w.state.Phase = PhaseRunning
	w.state.StopTime = nil
	w.pauseRequested = false
	if w.spec.Descriptor.NominalSRate > 0 {
		w.pacer = pacer.New(w.spec.Descriptor.NominalSRate, latency, startTime, w.clock, w.sleeper)
	} else {
		w.pacer = nil
	}
	w.emit(Status{})
}

func (w *Worker) resumeRun(msg control.Message) {
	startTime := resolveTimestamp(msg, w.clock)
	latency := w.spec.Latency
	if msg.Latency != nil {
		latency = *msg.Latency
	}
	w.state.StartTime = &startTime
	w.state.Latency = latency
	w.state.LogicalTime = startTime
	w.state.Phase = PhaseRunning
	w.state.StopTime = nil
	w.pauseRequested = false
	if w.pacer != nil {
		w.pacer.Reset(startTime)
	} else if w.spec.Descriptor.NominalSRate > 0 {
		w.pacer = pacer.New(w.spec.Descriptor.NominalSRate, latency, startTime, w.clock, w.sleeper)
	}
	w.emit(Status{})
}

func (w *Worker) runPaused(ctx context.Context) {
	msg, ok := w.mailbox.Recv(ctx)
	if !ok {
		w.state.Phase = PhaseTerminal
		return
	}
	switch msg.State {
	case control.Start:
		w.resumeRun(msg)
	case control.Stop:
		w.state.Phase = PhaseTerminal
	case control.Pause:
		// already paused; no-op
	}
}

func (w *Worker) capReached() bool {
	if w.spec.MaxSamples > 0 && w.state.SampleCount >= w.spec.MaxSamples {
		return true
	}
	if w.spec.MaxTime > 0 && w.state.ElapsedTime >= w.spec.MaxTime {
		return true
	}
	return false
}

func (w *Worker) runRunning(ctx context.Context) {
	if w.capReached() {
		w.state.Phase = PhaseTerminal
		return
	}

	// Non-blocking mailbox check on each tick.
	if w.state.StopTime == nil {
		if msg, ok := w.mailbox.TryRecv(); ok {
			switch msg.State {
			case control.Stop:
				st := resolveTimestamp(msg, w.clock)
				w.state.StopTime = &st
				w.pauseRequested = false
			case control.Pause:
				st := resolveTimestamp(msg, w.clock)
				w.state.StopTime = &st
				w.pauseRequested = true
			case control.Start:
				// already running; re-arms start_time without leaving
				// PhaseRunning.
				startTime := resolveTimestamp(msg, w.clock)
				w.state.StartTime = &startTime
			}
		}
	}

	// Once stop_time is recorded the worker keeps emitting while
	// logical_time < stop_time and transitions as soon as
	// logical_time >= stop_time, so the sample landing exactly on stop_time
	// is not emitted; peek the next logical_time before deciding.
	if w.state.StopTime != nil && w.nextLogicalTime() >= *w.state.StopTime {
		if w.pauseRequested {
			w.state.Phase = PhasePaused
		} else {
			w.state.Phase = PhaseTerminal
		}
		w.state.StopTime = nil
		w.pauseRequested = false
		w.emit(Status{})
		return
	}

	w.emitSample()
}

// nextLogicalTime reports the timestamp the next sample would carry
// without side effects.
func (w *Worker) nextLogicalTime() float64 {
	if w.pacer != nil {
		return w.pacer.LogicalTime()
	}
	return w.clock.Now()
}

func (w *Worker) emitSample() float64 {
	var ts float64
	if w.pacer != nil {
		ts = w.pacer.Tick()
	} else {
		ts = w.clock.Now()
	}
	elapsed := ts
	if w.state.StartTime != nil {
		elapsed = ts - *w.state.StartTime
	}
	values, err := sample.Vector(w.streamIdx, int(w.state.SampleCount), w.spec.Descriptor.ChannelCount, w.spec.ChannelFns, elapsed, w.spec.Descriptor.NominalSRate)
	if err != nil {
		// a malformed channel fn is a configuration error caught at spawn
		// time in practice; degrade to zeros rather than crash the worker.
		values = make([]float64, w.spec.Descriptor.ChannelCount)
	}
	w.outlet.PushSample(lsl.Frame{Timestamp: ts, Values: values})
	w.state.SampleCount++
	w.state.LogicalTime = ts
	w.state.ElapsedTime = elapsed

	if w.spec.MonitorInterval > 0 && w.state.SampleCount > 0 {
		interval := w.spec.MonitorInterval
		if w.spec.Descriptor.NominalSRate > 0 {
			samplesPerTick := int64(w.spec.Descriptor.NominalSRate * interval)
			if samplesPerTick > 0 && w.state.SampleCount%samplesPerTick == 0 {
				w.emit(Status{})
			}
		}
	}
	return ts
}
