package signal

import "math/bits"

// Mask is a 64-bit per-thread signal mask / pending set (spec.md §3:
// "Per-thread: 64-bit mask"). Bit (s-1) corresponds to Signal s.
type Mask uint64

func bit(s Signal) uint64 { return uint64(1) << uint(s-1) }

// Has reports whether s is set in m.
func (m Mask) Has(s Signal) bool { return m&Mask(bit(s)) != 0 }

// Add returns m with s set. SIGKILL/SIGSTOP are silently excluded: they
// can never be masked (spec.md §4.C invariant); callers that need to
// reject this explicitly with EINVAL should check Signal.Uncatchable
// first.
func (m Mask) Add(s Signal) Mask {
	if s.Uncatchable() {
		return m
	}

	return m | Mask(bit(s))
}

// Remove returns m with s cleared.
func (m Mask) Remove(s Signal) Mask {
	return m &^ Mask(bit(s))
}

// Union returns the bitwise union of m and o, still excluding SIGKILL/SIGSTOP.
func (m Mask) Union(o Mask) Mask {
	return (m | o) &^ (Mask(bit(SIGKILL)) | Mask(bit(SIGSTOP)))
}

// lowestSet returns the lowest-numbered signal set in m and true, or
// (0, false) if m is empty. A 64-bit pending mask serves as the "min-heap
// of pending signals" spec.md's data model calls for: popping the
// lowest-numbered set bit is O(1) and always yields priority order
// (spec.md §4.C: "pop the highest-priority signal (lowest signum wins)"),
// which is exactly what a real min-heap keyed by signum would produce.
func (m Mask) lowestSet() (Signal, bool) {
	if m == 0 {
		return 0, false
	}

	tz := bits.TrailingZeros64(uint64(m))

	return Signal(tz + 1), true
}
