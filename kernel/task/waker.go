package task

import "sync"

// Waker is an opaque handle that, when invoked, re-enqueues the task
// waiting on a future onto the ready queue of the CPU the task last ran
// on (Scheduler.wake). The CPU, if any, of the goroutine calling Wake
// plays no part in that choice.
type Waker struct {
	mu    sync.Mutex
	sched *Scheduler
	task  *Task
}

func newWaker(sched *Scheduler, t *Task) *Waker {
	return &Waker{sched: sched, task: t}
}

// Wake re-enqueues the owning task if it is currently asleep. Safe to call
// multiple times, from any goroutine, including after the task has already
// been woken or has exited; those calls are no-ops.
func (w *Waker) Wake() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.task == nil {
		return
	}

	w.sched.wake(w.task)
}
