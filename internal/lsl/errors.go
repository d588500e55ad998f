package lsl

import "errors"

// ErrLost is returned by Inlet.PullSample when the upstream outlet has
// disconnected "Upstream lost".
var ErrLost = errors.New("lsl: stream lost")

// ErrResolveEmpty is returned by ResolveByPredicate when no stream matched
// within the timeout "Resolver empty" (transient, retried).
var ErrResolveEmpty = errors.New("lsl: resolve: no match")

// ErrTimeout is returned by PullSample when no sample arrived within the
// requested timeout; not an error condition, callers retry.
var ErrTimeout = errors.New("lsl: pull: timeout")
