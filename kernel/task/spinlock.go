package task

import "sync"

// SpinLock is spec.md §5's spin lock: "used in interrupt-reachable paths
// (ready queues, free-lists, process-list mutation-internal guards). Never
// held across a suspension point." Go has no busy-wait primitive cheaper
// than a mutex at this level, so SpinLock is a thin sync.Mutex; its value
// is the documented contract, not a different wait strategy — callers
// must not call BlockOn/YieldNow/Schedule while holding one.
type SpinLock struct {
	mu sync.Mutex
}

func (l *SpinLock) Lock()   { l.mu.Lock() }
func (l *SpinLock) Unlock() { l.mu.Unlock() }

// IRQSpinLock additionally disables this task's CPU's IRQ-disabled count
// for the duration of the critical section, for paths also reachable from
// (simulated) interrupt context, e.g. a Waker fired from an I/O completion
// callback rather than from another task.
type IRQSpinLock struct {
	inner SpinLock
}

// LockIRQSave acquires the lock and disables IRQs on t's CPU, returning the
// token RestoreIRQs needs.
func (l *IRQSpinLock) LockIRQSave(s *Scheduler, t *Task) int32 {
	prev := s.DisableIRQsSave(t)
	l.inner.Lock()

	return prev
}

// UnlockIRQRestore releases the lock and restores the prior IRQ-disabled
// count.
func (l *IRQSpinLock) UnlockIRQRestore(s *Scheduler, t *Task, prev int32) {
	l.inner.Unlock()
	s.RestoreIRQs(t, prev)
}
