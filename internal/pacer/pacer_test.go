package pacer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// fakeClock/fakeSleeper let tests advance time deterministically instead of
// waiting on the wall clock.
type fakeClock struct{ t float64 }

func (c *fakeClock) Now() float64 { return c.t }

type fakeSleeper struct{ clock *fakeClock }

func (s fakeSleeper) SleepUntil(clock Clock, deadline float64) {
	if s.clock.t < deadline {
		s.clock.t = deadline
	}
}

// Invariant 1: monotone timestamps, ts(j)-ts(i) == (j-i)/srate.
func TestPacer_MonotoneTimestamps(t *testing.T) {
	clk := &fakeClock{t: 0}
	p := New(100, 0.1, 0, clk, fakeSleeper{clk})
	var stamps []float64
	for i := 0; i < 10; i++ {
		stamps = append(stamps, p.Tick())
	}
	for i := 1; i < len(stamps); i++ {
		assert.InDelta(t, 0.01, stamps[i]-stamps[i-1], 1e-9)
	}
}

func TestPacer_StartTimeSeedsLogicalTime(t *testing.T) {
	clk := &fakeClock{t: 5.0}
	p := New(100, 0, 5.0, clk, fakeSleeper{clk})
	assert.Equal(t, 5.0, p.LogicalTime())
	ts := p.Tick()
	assert.Equal(t, 5.0, ts)
	assert.InDelta(t, 5.01, p.LogicalTime(), 1e-9)
}

func TestPacer_Reset(t *testing.T) {
	clk := &fakeClock{t: 0}
	p := New(10, 0, 0, clk, fakeSleeper{clk})
	p.Tick()
	p.Reset(100)
	assert.Equal(t, 100.0, p.LogicalTime())
}

func TestPacer_LateDoesNotPanic(t *testing.T) {
	clk := &fakeClock{t: 1000}
	p := New(100, 0.01, 0, clk, fakeSleeper{clk})
	assert.NotPanics(t, func() { p.Tick() })
}
