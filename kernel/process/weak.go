// Package process implements spec.md §4.B's Thread/Process/ProcessGroup/
// Session entities: fork/clone/execve/exit/wait, the process-group and
// session graph, and setsid/setpgid/getsid/getpgid.
package process

import "sync"

// Weak is a deterministic stand-in for original_source's Arc::downgrade
// weak back-edges (parent->children is owning down, weak up; pgroup
// membership is owning down via the process list, weak up to the
// group/session, etc. — spec.md §8 "Back-references").
//
// Go's garbage collector would keep the referent alive for as long as
// any Weak[T] holds a raw pointer to it, defeating the whole point of a
// weak reference (and Go 1.24's weak.Pointer[T] ties collection to GC
// cycles, which makes upgrade-after-drop timing nondeterministic and
// hard to reason about against spec.md's "upgrade returns None" teardown
// invariant). So Weak[T] here is explicit: a process's Invalidate is
// called exactly once, by ProcessList.reap, at the same point
// original_source drops the last strong Arc, and Upgrade reports
// (nil, false) forever after — deterministic, not GC-timed.
type Weak[T any] struct {
	mu  sync.Mutex
	ptr *T
}

// NewWeak wraps v in a not-yet-invalidated weak reference.
func NewWeak[T any](v *T) *Weak[T] {
	return &Weak[T]{ptr: v}
}

// Upgrade returns the referent and true, or (nil, false) once Invalidate
// has been called — mirroring Arc::Weak::upgrade's Option.
func (w *Weak[T]) Upgrade() (*T, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.ptr, w.ptr != nil
}

// Invalidate permanently clears the reference. Idempotent.
func (w *Weak[T]) Invalidate() {
	w.mu.Lock()
	w.ptr = nil
	w.mu.Unlock()
}
