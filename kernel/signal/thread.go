package signal

import "sync"

// Waker is the minimal wake-up handle kernel/signal needs; kernel/task's
// *task.Waker satisfies it, but this package stays independent of
// kernel/task so it can be unit tested without a scheduler.
type Waker interface {
	Wake()
}

// ThreadSignals is spec.md §3's per-thread signal state: "64-bit mask,
// min-heap of pending signals". TID is used only to break ties
// deterministically when Raise picks among candidate threads (spec.md
// §4.C: "iteration order is defined to be deterministic by tid").
type ThreadSignals struct {
	TID uint64

	mu      sync.Mutex
	mask    Mask
	pending Mask
	waker   Waker
}

// NewThreadSignals returns empty signal state for a thread.
func NewThreadSignals(tid uint64) *ThreadSignals {
	return &ThreadSignals{TID: tid}
}

// SetWaker registers the waker that Raise/push fires whenever a signal
// becomes pending, whether or not it is masked (spec.md §3's signal_waker).
func (t *ThreadSignals) SetWaker(w Waker) {
	t.mu.Lock()
	t.waker = w
	t.mu.Unlock()
}

// Mask returns the thread's current signal mask.
func (t *ThreadSignals) Mask() Mask {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.mask
}

// SetMask installs a new mask verbatim (used by sigprocmask and by
// Deliver/SigReturn's mask stacking).
func (t *ThreadSignals) SetMask(m Mask) {
	t.mu.Lock()
	t.mask = m
	t.mu.Unlock()
}

// Pending returns the thread's currently pending signals.
func (t *ThreadSignals) Pending() Mask {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.pending
}

// accepts reports whether this thread's mask does not block sig — the
// predicate Raise uses to pick a candidate thread.
func (t *ThreadSignals) accepts(sig Signal) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return !t.mask.Has(sig)
}

// push adds sig to the pending set and fires the signal_waker. Internal:
// only called by Raise, which has already decided sig is deliverable to
// this thread (not ignored).
func (t *ThreadSignals) push(sig Signal) {
	t.mu.Lock()
	t.pending = t.pending.Add(sig)
	w := t.waker
	t.mu.Unlock()

	if w != nil {
		w.Wake()
	}
}

// NextDeliverable pops and returns the lowest-numbered pending signal if
// it is not currently masked, per spec.md §4.C's delivery path: "pop
// the highest-priority signal (lowest signum wins). If masked, re-push
// and stop." A masked lowest signal stays pending and nothing is
// returned, even when a higher-numbered pending signal is unmasked.
// Pending signals other than the one popped are left in place for the
// next delivery attempt.
func (t *ThreadSignals) NextDeliverable() (Signal, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	sig, ok := t.pending.lowestSet()
	if !ok || t.mask.Has(sig) {
		return 0, false
	}

	t.pending = t.pending.Remove(sig)

	return sig, true
}

// HasUnmasked reports whether any pending signal is currently deliverable,
// without consuming it — used by kernel/task's interruptible-sleep wakeup
// check (spec.md §5: "interruptible...return EINTR when the thread has a
// pending unmasked signal").
func (t *ThreadSignals) HasUnmasked() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	remaining := t.pending
	for {
		sig, ok := remaining.lowestSet()
		if !ok {
			return false
		}

		if !t.mask.Has(sig) {
			return true
		}

		remaining = remaining.Remove(sig)
	}
}
