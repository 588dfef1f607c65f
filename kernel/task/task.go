// Package task implements the cooperative task executor and per-CPU
// scheduler described in spec.md §4.A: ready queues, an idle task per CPU,
// wake-by-Waker semantics and a preempt-count gate. spec.md §9 notes tasks
// are expressed as futures polled to completion; since Go has no portable
// way to save/restore an arbitrary stack, each Task here is backed by a
// real goroutine that blocks on a handoff channel whenever it is not the
// one the scheduler has chosen to run — the goroutine's own stack plays
// the role of the kernel stack spec.md's data model calls out, and the
// handoff channel is the context switch.
package task

import (
	"sync/atomic"
)

// State is a Task's runnable state (spec.md §3 Task).
type State int32

const (
	StateRunning State = iota
	StateInterruptibleSleep
	StateUninterruptibleSleep
	StateZombie
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateInterruptibleSleep:
		return "interruptible-sleep"
	case StateUninterruptibleSleep:
		return "uninterruptible-sleep"
	case StateZombie:
		return "zombie"
	default:
		return "unknown"
	}
}

// KernelStackSize is the minimum kernel-stack size spec.md §3 requires
// ("≥64KB, aligned"). Kept as a documented constant even though the real
// stack here is the backing goroutine's, which Go grows on demand.
const KernelStackSize = 64 * 1024

// ID uniquely identifies a Task for the lifetime of the scheduler.
type ID uint64

// Runnable is the body a Task executes. It receives the Task so it can
// call YieldNow/BlockOn on itself at its own suspension points.
type Runnable func(t *Task)

// Task is a schedulable unit of execution.
type Task struct {
	ID   ID
	Idle bool

	state   atomic.Int32
	onReady atomic.Bool
	cpuID   atomic.Int32

	waker atomic.Pointer[Waker]
	dead  atomic.Bool

	runnable Runnable
	resume   chan struct{}
	yielded  chan struct{}
	done     chan struct{}

	sched *Scheduler
}

func newTask(sched *Scheduler, id ID, cpu int, r Runnable) *Task {
	t := &Task{
		ID:       id,
		runnable: r,
		resume:   make(chan struct{}),
		yielded:  make(chan struct{}),
		done:     make(chan struct{}),
		sched:    sched,
	}
	t.cpuID.Store(int32(cpu))
	t.state.Store(int32(StateRunning))

	return t
}

// State returns the task's current runnable state.
func (t *Task) State() State { return State(t.state.Load()) }

// CPU returns the id of the CPU this task last ran, or is assigned to.
func (t *Task) CPU() int { return int(t.cpuID.Load()) }

// OnReadyQueue reports whether the task is currently linked into a ready
// queue (spec.md §3's "on-ready-queue flag").
func (t *Task) OnReadyQueue() bool { return t.onReady.Load() }

// Dead reports whether the task has been marked for cancellation (spec.md
// §4.A "Cancellation"): "a thread marked dead is polled to completion".
func (t *Task) Dead() bool { return t.dead.Load() }

// MarkDead sets the dead flag; the task's own Runnable is responsible for
// observing it (via Dead()) and exiting its loop.
func (t *Task) MarkDead() { t.dead.Store(true) }

// goroutineMain is the body of the real goroutine backing this task. It
// blocks until the scheduler first hands it the CPU, runs the Runnable to
// completion, then marks the task a zombie.
func (t *Task) goroutineMain() {
	<-t.resume
	t.runnable(t)
	t.state.Store(int32(StateZombie))
	close(t.done)
}

// yieldToScheduler is the only place a Task gives control back to its CPU's
// scheduling loop short of finishing. Called by YieldNow and BlockOn.
func (t *Task) yieldToScheduler() {
	t.yielded <- struct{}{}
	<-t.resume
}

// sleep transitions the task into the given sleep state. Must be called
// from the task's own goroutine, immediately before yieldToScheduler, so
// that the CPU loop observes the new state when it decides whether to
// re-enqueue.
func (t *Task) sleep(s State) {
	t.state.Store(int32(s))
}

// setWaker records the Waker that will re-enqueue this task. Overwrites
// any previous registration, matching spec.md's "Tasks may hold a Waker".
func (t *Task) setWaker(w *Waker) { t.waker.Store(w) }
