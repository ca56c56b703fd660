// Package keygen produces strictly monotonic, duplicate-free composite
// keys used to order buffered log entries.
package keygen

import (
	"fmt"
	"sync/atomic"

	timecache "github.com/agilira/go-timecache"
)

// Key is a composite (epoch, monotonic_ns, counter) triple. Keys are
// ordered lexicographically: first by Epoch, then by MonotonicNS, then by
// Counter. Two keys produced by a single Generator are never equal.
//
// Epoch is zero for every in-process Generator; it exists so a persistent
// buffer backend can prefix keys with a boot epoch (spec §9: "Implementers
// MAY prefix keys with a boot epoch to guarantee strict cross-restart
// order") and have that ordering fall out of the same Compare/Less used
// everywhere else, rather than bolting cross-restart order on separately.
type Key struct {
	Epoch       uint64
	MonotonicNS int64
	Counter     uint64
}

// Compare returns -1, 0 or 1 as k sorts before, equal to, or after other.
func (k Key) Compare(other Key) int {
	switch {
	case k.Epoch < other.Epoch:
		return -1
	case k.Epoch > other.Epoch:
		return 1
	case k.MonotonicNS < other.MonotonicNS:
		return -1
	case k.MonotonicNS > other.MonotonicNS:
		return 1
	case k.Counter < other.Counter:
		return -1
	case k.Counter > other.Counter:
		return 1
	default:
		return 0
	}
}

// Less reports whether k sorts strictly before other.
func (k Key) Less(other Key) bool { return k.Compare(other) < 0 }

func (k Key) String() string {
	return fmt.Sprintf("%020d.%020d.%020d", k.Epoch, k.MonotonicNS, k.Counter)
}

// Generator produces Keys satisfying the contract: for any two calls A and
// B where A returns before B starts, Next(A) < Next(B). The monotonic
// component never moves backward during the Generator's lifetime, even if
// the underlying clock source reports a stale or lower reading than a
// prior call (which the cached clock it is built on can do under heavy
// load or after a system clock adjustment).
type Generator struct {
	lastNS  atomic.Int64
	counter atomic.Uint64
}

// New returns a Generator seeded from the current time. The counter always
// starts at zero and is never persisted across process restarts (by
// design: cross-restart ordering is the buffer backend's responsibility,
// see internal/buffer/disk.go's boot-epoch prefix).
func New() *Generator {
	g := &Generator{}
	g.lastNS.Store(timecache.CachedTimeNano())
	return g
}

// Next returns the next key. Safe for concurrent use by any number of
// callers.
func (g *Generator) Next() Key {
	now := timecache.CachedTimeNano()
	for {
		last := g.lastNS.Load()
		if now <= last {
			now = last
			break
		}
		if g.lastNS.CompareAndSwap(last, now) {
			break
		}
	}
	return Key{MonotonicNS: now, Counter: g.counter.Add(1)}
}
