package process

import (
	"context"
	"fmt"
	"sync"

	"github.com/eonix-go/eonix/kernel/errno"
	"github.com/eonix-go/eonix/kernel/fd"
	"github.com/eonix-go/eonix/kernel/mm"
	"github.com/eonix-go/eonix/kernel/signal"
	"github.com/eonix-go/eonix/kernel/trace"
	"github.com/eonix-go/eonix/kernel/vfs"
)

// State is a Process's coarse scheduling state, spec.md §4.B's
// Running/Stopped/Zombie/Reaped state machine.
type State int

const (
	StateRunning State = iota
	StateStopped
	StateZombie
	StateReaped
)

// Process is spec.md §3's Process entity: an address space (exclusive
// unless CLONE_VM), a parent/pgroup/session ancestry (all weak, all
// required to be present for every process but init), the set of
// children and threads it owns, its wait queue, and its own capability
// set and signal disposition table.
type Process struct {
	pid  uint32
	self *Weak[Process]

	MM *mm.MMList

	parent  *Weak[Process]
	pgroup  *Weak[ProcessGroup]
	session *Weak[Session]

	Signals    *signal.ProcessSignals
	exitSignal signal.Signal
	caps       *CapSet

	mu       sync.Mutex
	uid      uint32
	state    State
	children map[uint32]*Weak[Process]
	threads  map[uint32]*Weak[Thread]

	waitMu      sync.Mutex
	waitQueue   []WaitObject
	waitReadyCh chan struct{}
}

// PID returns the process id.
func (p *Process) PID() uint32 { return p.pid }

// PPID returns the parent's pid, or 0 if this is init (whose parent
// reference is never upgradeable).
func (p *Process) PPID() uint32 {
	if parent, ok := p.parent.Upgrade(); ok {
		return parent.pid
	}

	return 0
}

// State returns the process's current scheduling state.
func (p *Process) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state
}

// Pgid returns the process group id, and false only if the pgroup has
// already been torn down (which never happens while the process is
// alive, per spec.md's invariant).
func (p *Process) Pgid() (uint32, bool) {
	pg, ok := p.pgroup.Upgrade()
	if !ok {
		return 0, false
	}

	return pg.pgid, true
}

// Sid returns the session id, with the same liveness caveat as Pgid.
func (p *Process) Sid() (uint32, bool) {
	sess, ok := p.session.Upgrade()
	if !ok {
		return 0, false
	}

	return sess.sid, true
}

func (p *Process) addChild(child *Process) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.children[child.pid]; exists {
		panic("process: pid already a child of this process")
	}

	p.children[child.pid] = child.self
}

func (p *Process) removeChild(pid uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.children, pid)
}

func (p *Process) hasChildren() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.children) > 0
}

func (p *Process) addThread(t *Thread) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.threads[t.tid]; exists {
		panic("process: tid already registered on this process")
	}

	p.threads[t.tid] = t.self
}

// threadExited removes t from the thread-group table and reports
// whether it was the last live thread in the process.
func (p *Process) threadExited(t *Thread) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.threads, t.tid)

	return len(p.threads) == 0
}

// Raise delivers sig to the thread group, mirroring process.rs's raise:
// Signal.Raise already implements the "lowest-tid unmasked, else queue
// on lowest tid" selection, so this just gathers live candidates.
func (p *Process) Raise(sig signal.Signal) {
	p.mu.Lock()
	candidates := make([]*signal.ThreadSignals, 0, len(p.threads))
	for _, w := range p.threads {
		if th, ok := w.Upgrade(); ok {
			candidates = append(candidates, th.Signals)
		}
	}
	p.mu.Unlock()

	trace.Record(trace.ClassSignalRaise, p.pid, map[string]any{"sig": sig})

	signal.Raise(p.Signals, candidates, sig)
}

// notify pushes result onto the wait queue, wakes any blocked wait(2),
// and raises sig (normally SIGCHLD) at the parent, matching process.rs's
// notify/NotifyBatch.
func (p *Process) notify(result WaitObject, sig signal.Signal) {
	p.waitMu.Lock()
	p.waitQueue = append(p.waitQueue, result)
	old := p.waitReadyCh
	p.waitReadyCh = make(chan struct{})
	p.waitMu.Unlock()

	close(old)

	if sig != 0 {
		p.Raise(sig)
	}
}

func (p *Process) reparent(newParent *Process) {
	p.mu.Lock()
	p.parent = newParent.self
	p.mu.Unlock()

	newParent.addChild(p)
}

// Exit implements spec.md §4.B's exit(status) for thread t: the thread
// dies; if it was the process's last live thread, the process becomes a
// zombie carrying result, its own children are reparented to init, its
// address space is dropped, and its parent is notified. PID 1 must
// never exit.
func Exit(t *Thread, result WaitObject) {
	t.dead.Store(true)

	proc := t.Process
	if !proc.threadExited(t) {
		return
	}

	trace.Record(trace.ClassExit, proc.pid, map[string]any{"exitCode": result.ExitCode, "sig": result.Sig})

	if proc.pid == 1 {
		panic("process: init (pid 1) must never exit")
	}

	proc.mu.Lock()
	proc.state = StateZombie
	proc.MM = nil

	children := make([]*Weak[Process], 0, len(proc.children))
	for _, w := range proc.children {
		children = append(children, w)
	}
	proc.children = make(map[uint32]*Weak[Process])
	proc.mu.Unlock()

	result.Pid = proc.pid

	if init, ok := Global().Init(); ok {
		for _, w := range children {
			if child, ok := w.Upgrade(); ok {
				child.reparent(init)
			}
		}
	}

	if parent, ok := proc.parent.Upgrade(); ok {
		parent.notify(result, proc.exitSignal)
	}
}

// Stop implements the default action for a stop signal (spec.md §4.C
// OutcomeDefaultStop): the process becomes Stopped and its parent is
// notified (always via SIGCHLD, regardless of the signal that caused
// the stop).
func (p *Process) Stop(sig signal.Signal) {
	p.mu.Lock()
	p.state = StateStopped
	p.mu.Unlock()

	trace.Record(trace.ClassStop, p.pid, map[string]any{"sig": sig})

	if parent, ok := p.parent.Upgrade(); ok {
		parent.notify(WaitObject{Pid: p.pid, Kind: WaitStopped, Sig: sig}, signal.SIGCHLD)
	}
}

// Continue implements SIGCONT's default action (OutcomeDefaultContinue):
// the process resumes Running and its parent is notified.
func (p *Process) Continue() {
	p.mu.Lock()
	p.state = StateRunning
	p.mu.Unlock()

	trace.Record(trace.ClassContinue, p.pid, nil)

	if parent, ok := p.parent.Upgrade(); ok {
		parent.notify(WaitObject{Pid: p.pid, Kind: WaitContinued}, signal.SIGCHLD)
	}
}

// Wait implements spec.md §4.B's wait(id, options): it blocks (unless
// WNOHANG is set) until a child matching id changes state, returns
// ECHILD if the caller has no children left at all, and reaps
// (removes from every table) an Exited/Signaled result before returning
// it — Stopped/Continued results are consumed from the queue but leave
// the live child in place. sig, if non-nil, lets a blocked wait return
// EINTR the same way a blocked read does (spec.md: "EINTR on
// non-restarting-signal interruption").
func Wait(ctx context.Context, requester *Process, id WaitID, options WaitOptions, sig *signal.ThreadSignals) (*WaitObject, error) {
	pl := Global()

	for {
		requester.waitMu.Lock()

		idx := -1
		for i, w := range requester.waitQueue {
			if w.Kind == WaitStopped && !options.has(WUNTRACED) {
				continue
			}
			if w.Kind == WaitContinued && !options.has(WCONTINUED) {
				continue
			}
			if proc, ok := pl.Get(w.Pid); ok && !id.matches(proc) {
				continue
			}

			idx = i

			break
		}

		if idx >= 0 {
			result := requester.waitQueue[idx]
			requester.waitQueue = append(requester.waitQueue[:idx], requester.waitQueue[idx+1:]...)
			requester.waitMu.Unlock()

			if result.Kind == WaitExited || result.Kind == WaitSignaled {
				if proc, ok := pl.Get(result.Pid); ok {
					pl.reap(proc)
				}
			}

			return &result, nil
		}

		if !requester.hasChildren() {
			requester.waitMu.Unlock()

			return nil, errno.Wrap(errno.ECHILD, "wait", nil)
		}

		if options.has(WNOHANG) {
			requester.waitMu.Unlock()

			return nil, nil
		}

		ready := requester.waitReadyCh
		requester.waitMu.Unlock()

		select {
		case <-ready:
		case <-ctx.Done():
			return nil, errno.Wrap(errno.EINTR, "wait", ctx.Err())
		}

		if sig != nil && sig.HasUnmasked() {
			return nil, errno.Wrap(errno.EINTR, "wait", nil)
		}
	}
}

// Setsid implements spec.md §4.B's setsid(): EPERM if pid already names
// a session (including the caller's own, i.e. it is already a leader),
// otherwise the process becomes the leader of a brand new session and
// process group, leaving its old group.
func (pl *ProcessList) Setsid(p *Process) (uint32, error) {
	if _, exists := pl.GetSession(p.pid); exists {
		return 0, errno.Wrap(errno.EPERM, "setsid", nil)
	}

	oldPgroup, hadOld := p.pgroup.Upgrade()

	sess := newSession(pl, p)
	pg := newProcessGroup(pl, p, sess)

	p.mu.Lock()
	p.session = sess.self
	p.pgroup = pg.self
	p.mu.Unlock()

	if hadOld {
		pl.removeFromGroup(oldPgroup, p.pid)
	}

	return pg.pgid, nil
}

// Setpgid implements spec.md §4.B's setpgid(pid, pgid) for the already-
// resolved target process: a session leader can never leave its own
// group; moving into an existing group requires it to be in the same
// session; pgid == 0 means "new group led by target", which requires
// pgid to already equal target's pid once defaulted.
func (pl *ProcessList) Setpgid(target *Process, pgid uint32) error {
	sess, ok := target.session.Upgrade()
	if !ok {
		return errno.Wrap(errno.ESRCH, "setpgid", nil)
	}

	if sess.sid == target.pid {
		return errno.Wrap(errno.EPERM, "setpgid", nil)
	}

	if pgid == 0 {
		pgid = target.pid
	}

	oldPgroup, hadOld := target.pgroup.Upgrade()

	var newPgroup *ProcessGroup
	if existing, ok := pl.GetPgroup(pgid); ok {
		existingSess, ok := existing.session.Upgrade()
		if !ok || existingSess.sid != sess.sid {
			return errno.Wrap(errno.EPERM, "setpgid", nil)
		}

		if hadOld && existing.pgid == oldPgroup.pgid {
			return nil
		}

		existing.addMember(target)
		newPgroup = existing
	} else {
		if pgid != target.pid {
			return errno.Wrap(errno.EPERM, "setpgid", nil)
		}

		newPgroup = newProcessGroup(pl, target, sess)
	}

	target.mu.Lock()
	target.pgroup = newPgroup.self
	target.mu.Unlock()

	if hadOld {
		pl.removeFromGroup(oldPgroup, target.pid)
	}

	return nil
}

// Getsid implements getsid(2).
func Getsid(p *Process) (uint32, error) {
	sess, ok := p.session.Upgrade()
	if !ok {
		return 0, errno.Wrap(errno.ESRCH, "getsid", nil)
	}

	return sess.sid, nil
}

// Getpgid implements getpgid(2).
func Getpgid(p *Process) (uint32, error) {
	pg, ok := p.pgroup.Upgrade()
	if !ok {
		return 0, errno.Wrap(errno.ESRCH, "getpgid", nil)
	}

	return pg.pgid, nil
}

// Execve implements spec.md §4.B's execve() for the calling thread: the
// address space is replaced by newMM, CLOEXEC-flagged descriptors are
// closed, and non-ignored signal dispositions reset to default — pid,
// ppid, pgid and sid are left untouched.
func (t *Thread) Execve(newMM *mm.MMList) {
	t.Process.mu.Lock()
	t.Process.MM = newMM
	t.Process.mu.Unlock()

	t.Files.OnExec()
	t.Process.Signals.ResetNonIgnored()

	trace.Record(trace.ClassExec, t.Process.pid, nil)
}

// Bootstrap creates PID 1 (init): its own brand new session and process
// group, and no parent — the one process spec.md §4.B allows to have no
// ancestor (it is the ancestor). Must be called exactly once, before any
// Clone/Fork/Vfork.
func Bootstrap(memory *mm.MMList, fsctx *vfs.FsContext) (*Thread, error) {
	pl := Global()

	pid := pl.allocPid()
	if pid != 1 {
		return nil, fmt.Errorf("process: Bootstrap must run before any other process is created")
	}

	proc := &Process{
		pid:         pid,
		MM:          memory,
		parent:      NewWeak[Process](nil),
		Signals:     signal.NewProcessSignals(),
		exitSignal:  signal.SIGCHLD,
		caps:        newRootCapSet(),
		children:    make(map[uint32]*Weak[Process]),
		threads:     make(map[uint32]*Weak[Thread]),
		state:       StateRunning,
		waitReadyCh: make(chan struct{}),
	}
	proc.self = NewWeak(proc)

	pl.addProcess(proc)

	sess := newSession(pl, proc)
	pg := newProcessGroup(pl, proc, sess)

	proc.session = sess.self
	proc.pgroup = pg.self

	sig := signal.NewThreadSignals(uint64(pid))
	t := newThread(pid, proc, fd.NewTable(), fsctx, sig)
	proc.addThread(t)

	return t, nil
}
