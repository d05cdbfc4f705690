package preprocess

import "sync/atomic"

// atomicInt is a small int-typed wrapper around atomic.Int64, used for
// the pool's busy/backlog counters so callers don't need to cast.
type atomicInt struct {
	v atomic.Int64
}

func (a *atomicInt) Add(delta int) {
	a.v.Add(int64(delta))
}

func (a *atomicInt) Load() int {
	return int(a.v.Load())
}
