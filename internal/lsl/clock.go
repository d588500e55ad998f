package lsl

import "time"

var processEpoch = time.Now()

// LocalClock returns a monotonic float-seconds reading shared in spirit by
// every process on the LAN. Every process that imports this package
// measures from its own start, which is fine for the invariants this
// module cares about (relative deltas within one worker, and cross-process
// agreement on a START time_stamp that is computed once by a single
// sender and propagated verbatim).
func LocalClock() float64 {
	return time.Since(processEpoch).Seconds()
}
