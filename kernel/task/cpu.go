package task

import "sync"

// cpu owns one ready queue and runs exactly one task at a time (spec.md
// §5: "A task is guaranteed not to run concurrently on two CPUs"). The
// preempt and irq counters are per-CPU per spec.md §5 ("Preemption is
// gated by a per-CPU preempt_count").
type cpu struct {
	id    int
	sched *Scheduler

	mu    sync.Mutex
	cond  *sync.Cond
	ready []*Task

	current *Task
	idle    *Task

	preemptCount int32
	irqDisabled  int32

	stopped bool
}

func newCPU(id int, sched *Scheduler) *cpu {
	c := &cpu{id: id, sched: sched}
	c.cond = sync.NewCond(&c.mu)
	c.idle = &Task{ID: 0, Idle: true}
	c.idle.cpuID.Store(int32(id))
	c.idle.state.Store(int32(StateRunning))

	return c
}

// enqueue pushes t onto this CPU's ready queue, unless it is already on one.
func (c *cpu) enqueue(t *Task) {
	if t.Idle {
		return // idle tasks are never enqueued (spec.md §3 Task)
	}

	if !t.onReady.CompareAndSwap(false, true) {
		return
	}

	t.cpuID.Store(int32(c.id))

	c.mu.Lock()
	c.ready = append(c.ready, t)
	c.cond.Signal()
	c.mu.Unlock()
}

// popReady blocks until either a ready task is available or the CPU is
// stopped, in which case it returns nil.
func (c *cpu) popReady() *Task {
	c.mu.Lock()
	defer c.mu.Unlock()

	for len(c.ready) == 0 && !c.stopped {
		c.cond.Wait()
	}

	if c.stopped && len(c.ready) == 0 {
		return nil
	}

	t := c.ready[0]
	c.ready = c.ready[1:]
	t.onReady.Store(false)

	return t
}

func (c *cpu) stop() {
	c.mu.Lock()
	c.stopped = true
	c.cond.Broadcast()
	c.mu.Unlock()
}

// preemptDisable/preemptEnable implement spec.md §4.A's preempt-count
// gate. Not goroutine-reentrant-safe across different tasks concurrently
// (by construction only the task currently running on this CPU calls
// these), matching the single-runner-per-CPU invariant.
func (c *cpu) preemptDisable() {
	c.mu.Lock()
	c.preemptCount++
	c.mu.Unlock()
}

func (c *cpu) preemptEnable() {
	c.mu.Lock()
	if c.preemptCount == 0 {
		c.mu.Unlock()
		panic("task: preempt_enable without matching preempt_disable")
	}

	c.preemptCount--
	c.mu.Unlock()
}

func (c *cpu) preemptible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.preemptCount == 0
}

// disableIRQsSave/restore model spec.md §4.A's "scoped acquisition of
// IRQ-disabled state; restore guaranteed on all exit paths". There are no
// real interrupts in this userspace simulation; the counter is kept per
// CPU and irqsDisabled reports it, but no code path checks it.
func (c *cpu) disableIRQsSave() int32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.irqDisabled
	c.irqDisabled++

	return prev
}

func (c *cpu) restoreIRQs(prev int32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.irqDisabled = prev
}

func (c *cpu) irqsDisabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.irqDisabled > 0
}
