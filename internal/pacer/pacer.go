// Package pacer implements the clock and pacer mechanism: translate a
// logical sample index to a logical timestamp on the shared clock, sleep
// to avoid drift, and detect lateness.
package pacer

import (
	"log"
	"time"

	"golang.org/x/time/rate"
)

// Clock abstracts "local_clock" reading so tests can supply a
// deterministic fake instead of real wall time.
type Clock interface {
	Now() float64
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() float64

func (f ClockFunc) Now() float64 { return f() }

// Sleeper abstracts blocking until a wall-clock deadline so tests never
// actually wait on real time.
type Sleeper interface {
	SleepUntil(clock Clock, deadline float64)
}

// RealSleeper busy-waits in short increments until the clock reaches
// deadline. Adequate for sub-millisecond pacing without requiring an OS
// timer keyed to a moving target.
type RealSleeper struct{}

func (RealSleeper) SleepUntil(clock Clock, deadline float64) {
	for {
		now := clock.Now()
		remaining := deadline - now
		if remaining <= 0 {
			return
		}
		sleepSeconds(remaining)
	}
}

// Pacer paces emission of a regular-rate stream at nominal_srate Hz with a
// latency offset. Irregular-rate streams (nominal_srate == 0) do not use a
// Pacer; callers timestamp each sample with clock.Now directly.
type Pacer struct {
	delta       float64
	latency     float64
	logicalTime float64
	clock       Clock
	sleeper     Sleeper
	lateLimiter *rate.Sometimes
}

// New creates a Pacer for nominalSRate Hz (> 0) with the given latency
// offset (seconds), starting logical_time at startTime.
func New(nominalSRate, latency, startTime float64, clock Clock, sleeper Sleeper) *Pacer {
	if sleeper == nil {
		sleeper = RealSleeper{}
	}
	return &Pacer{
		delta:       1 / nominalSRate,
		latency:     latency,
		logicalTime: startTime,
		clock:       clock,
		sleeper:     sleeper,
		lateLimiter: &rate.Sometimes{Interval: time.Second},
	}
}

// LogicalTime returns the timestamp the next sample should be stamped with.
func (p *Pacer) LogicalTime() float64 { return p.logicalTime }

// Reset reinitialises logical_time, e.g. on a resumed START after PAUSE.
func (p *Pacer) Reset(startTime float64) { p.logicalTime = startTime }

// Tick returns the timestamp to stamp the current sample with, advances
// logical_time by delta, then sleeps until the wall clock has reached the
// returned timestamp minus latency. It emits a rate-limited "LATE"
// diagnostic (at most once per second, via golang.org/x/time/rate.Sometimes)
// if the deficit exceeds latency.
func (p *Pacer) Tick() float64 {
	ts := p.logicalTime
	p.logicalTime += p.delta

	deadline := ts - p.latency
	now := p.clock.Now()
	if deficit := ts - now; deficit < -p.latency {
		p.lateLimiter.Do(func() {
			log.Printf("pacer: LATE by %.6fs (logical=%.6f local=%.6f)", -deficit-p.latency, ts, now)
		})
	}
	p.sleeper.SleepUntil(p.clock, deadline)
	return ts
}
