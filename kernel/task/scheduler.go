package task

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/eonix-go/eonix/kernel/logger"
)

// Scheduler owns one cpu per simulated CPU core and the monotonic task-id
// counter (spec.md §3: "Unique TaskId").
type Scheduler struct {
	log    logger.Logger
	cpus   []*cpu
	nextID atomic.Uint64

	group  *errgroup.Group
	cancel context.CancelFunc
}

// New constructs a Scheduler with nCPU simulated cores. Call Start to
// begin running ready queues.
func New(nCPU int, log logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Nop
	}

	s := &Scheduler{log: log}
	s.cpus = make([]*cpu, nCPU)
	for i := range s.cpus {
		s.cpus[i] = newCPU(i, s)
	}

	return s
}

// NumCPU returns the number of simulated CPUs.
func (s *Scheduler) NumCPU() int { return len(s.cpus) }

// Start launches one goroutine per CPU, each draining that CPU's ready
// queue, using golang.org/x/sync/errgroup the way
// lxd/storage/backend_lxd.go fans work out across an errgroup.Group.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	g, ctx := errgroup.WithContext(ctx)
	s.group = g

	for _, c := range s.cpus {
		c := c
		g.Go(func() error {
			s.runLoop(ctx, c)
			return nil
		})
	}
}

// Shutdown stops every CPU loop and waits for them to exit.
func (s *Scheduler) Shutdown() error {
	if s.cancel != nil {
		s.cancel()
	}

	for _, c := range s.cpus {
		c.stop()
	}

	if s.group == nil {
		return nil
	}

	return s.group.Wait()
}

func (s *Scheduler) runLoop(ctx context.Context, c *cpu) {
	for {
		if ctx.Err() != nil {
			return
		}

		t := c.popReady()
		if t == nil {
			return // stopped with nothing left runnable
		}

		s.runOnce(c, t)
	}
}

// runOnce hands the CPU to t for one slice: resumes its goroutine (or
// starts it, the first time) and waits for it to either yield (give the
// CPU back, possibly re-enqueueing itself) or finish.
func (s *Scheduler) runOnce(c *cpu, t *Task) {
	c.mu.Lock()
	c.current = t
	c.mu.Unlock()

	t.cpuID.Store(int32(c.id))

	select {
	case t.resume <- struct{}{}:
	default:
		// First activation: the goroutine hasn't been started yet.
		go t.goroutineMain()
		t.resume <- struct{}{}
	}

	select {
	case <-t.yielded:
		c.mu.Lock()
		c.current = nil
		c.mu.Unlock()

		if State(t.state.Load()) == StateRunning {
			c.enqueue(t)
		}
	case <-t.done:
		c.mu.Lock()
		c.current = nil
		c.mu.Unlock()
	}
}

// Spawn allocates a task with its own backing goroutine and pushes it onto
// cpuHint's ready queue (spec.md §4.A spawn: "push onto current CPU's
// ready queue"; today the only supported hint is the creator's CPU, per
// spec.md §5's migration rule).
func (s *Scheduler) Spawn(cpuHint int, r Runnable) *Task {
	if cpuHint < 0 || cpuHint >= len(s.cpus) {
		panic(fmt.Sprintf("task: spawn on out-of-range cpu %d", cpuHint))
	}

	id := ID(s.nextID.Add(1))
	t := newTask(s, id, cpuHint, r)
	s.cpus[cpuHint].enqueue(t)

	return t
}

// wake re-enqueues t on the CPU it last ran on if it is currently asleep;
// the waking caller's CPU is not considered.
func (s *Scheduler) wake(t *Task) {
	for {
		cur := t.state.Load()
		if cur != int32(StateInterruptibleSleep) && cur != int32(StateUninterruptibleSleep) {
			return
		}

		if t.state.CompareAndSwap(cur, int32(StateRunning)) {
			break
		}
	}

	s.cpus[t.CPU()].enqueue(t)
}

// NewWaker creates a Waker bound to t, registers it on t, and returns it.
func (s *Scheduler) NewWaker(t *Task) *Waker {
	w := newWaker(s, t)
	t.setWaker(w)

	return w
}

// PreemptDisable/PreemptEnable operate on the CPU t is currently running
// on (spec.md §4.A).
func (s *Scheduler) PreemptDisable(t *Task) { s.cpus[t.CPU()].preemptDisable() }
func (s *Scheduler) PreemptEnable(t *Task)  { s.cpus[t.CPU()].preemptEnable() }
func (s *Scheduler) Preemptible(t *Task) bool { return s.cpus[t.CPU()].preemptible() }

// DisableIRQsSave/RestoreIRQs implement spec.md §4.A's scoped IRQ-disable
// primitive for the CPU t is running on.
func (s *Scheduler) DisableIRQsSave(t *Task) int32 { return s.cpus[t.CPU()].disableIRQsSave() }
func (s *Scheduler) RestoreIRQs(t *Task, prev int32) { s.cpus[t.CPU()].restoreIRQs(prev) }

// Schedule must be called with the calling task's CPU preempt-count ≥ 1
// (spec.md §4.A). It yields the CPU back to the scheduling loop, which
// re-enqueues the caller if it is still runnable.
func (s *Scheduler) Schedule(t *Task) {
	if s.Preemptible(t) {
		panic("task: schedule() called with preempt_count == 0")
	}

	t.yieldToScheduler()
}

// YieldNow returns control to the scheduler exactly once, re-enqueueing
// the caller, matching spec.md's "returns Pending exactly once then
// Ready; re-enqueues self".
func (s *Scheduler) YieldNow(t *Task) {
	s.PreemptDisable(t)
	defer s.PreemptEnable(t)

	t.state.Store(int32(StateRunning))
	s.Schedule(t)
}

// Poller is a future-shaped callback: it returns (value, true) once ready,
// or (_, false) if the caller should keep sleeping. register is invoked
// exactly once, before the first sleep, with the Waker that must be fired
// to re-poll; wiring it into the underlying event source is the caller's
// job (spec.md's "registers the task's Waker in the future's wake path").
type Poller[T any] struct {
	Poll     func() (T, bool)
	Register func(w *Waker)
}

// BlockOn polls p until ready, sleeping the task interruptibly between
// polls (spec.md §4.A block_on). interruptedBy, if non-nil, is checked
// after every wake and aborts the block with ok=false if it reports true
// (used by kernel/signal to implement EINTR on unmasked-signal wakeups).
func BlockOn[T any](s *Scheduler, t *Task, p Poller[T], interruptedBy func() bool) (T, bool) {
	var zero T

	if v, ready := p.Poll(); ready {
		return v, true
	}

	w := s.NewWaker(t)
	if p.Register != nil {
		p.Register(w)
	}

	for {
		t.sleep(StateInterruptibleSleep)
		s.PreemptDisable(t)
		s.Schedule(t)
		s.PreemptEnable(t)

		if interruptedBy != nil && interruptedBy() {
			return zero, false
		}

		if v, ready := p.Poll(); ready {
			return v, true
		}
	}
}
