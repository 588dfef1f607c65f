package process

import (
	"encoding/binary"

	"github.com/eonix-go/eonix/kernel/errno"
	"github.com/eonix-go/eonix/kernel/fd"
	"github.com/eonix-go/eonix/kernel/signal"
	"github.com/eonix-go/eonix/kernel/trace"
)

// CloneFlags are the clone(2) CLONE_* bits, matching Linux's numbering
// (original_source's clone.rs's CloneFlags bitflags).
type CloneFlags uint64

const (
	CloneVM            CloneFlags = 0x00000100
	CloneFS            CloneFlags = 0x00000200
	CloneFiles         CloneFlags = 0x00000400
	CloneSighand       CloneFlags = 0x00000800
	ClonePidfd         CloneFlags = 0x00001000
	ClonePtrace        CloneFlags = 0x00002000
	CloneVfork         CloneFlags = 0x00004000
	CloneParent        CloneFlags = 0x00008000
	CloneThread        CloneFlags = 0x00010000
	CloneNewns         CloneFlags = 0x00020000
	CloneSysvsem       CloneFlags = 0x00040000
	CloneSettls        CloneFlags = 0x00080000
	CloneParentSettid  CloneFlags = 0x00100000
	CloneChildCleartid CloneFlags = 0x00200000
	CloneDetached      CloneFlags = 0x00400000
	CloneUntraced      CloneFlags = 0x00800000
	CloneChildSettid   CloneFlags = 0x01000000
	CloneNewcgroup     CloneFlags = 0x02000000
	CloneNewuts        CloneFlags = 0x04000000
	CloneNewipc        CloneFlags = 0x08000000
	CloneNewuser       CloneFlags = 0x10000000
	CloneNewpid        CloneFlags = 0x20000000
	CloneNewnet        CloneFlags = 0x40000000
	CloneIO            CloneFlags = 0x80000000
)

func (f CloneFlags) has(bit CloneFlags) bool { return f&bit != 0 }

// CloneArgs is spec.md §4.B's clone(args): which resources to share
// versus deep-copy, the child's initial stack pointer, the signal sent
// to the parent at exit, and the three tid-pointer/TLS extensions.
type CloneArgs struct {
	Flags      CloneFlags
	SP         uint64
	ExitSignal signal.Signal

	SetChildTID   uint64
	ClearChildTID uint64
	ParentTIDPtr  uint64
	TLS           uint64
}

// ForFork returns fork(2)'s args: clone(flags=SIGCHLD), sharing nothing.
func ForFork() CloneArgs {
	return CloneArgs{ExitSignal: signal.SIGCHLD}
}

// ForVfork returns vfork(2)'s args:
// clone(CLONE_VM|CLONE_VFORK|SIGCHLD).
func ForVfork() CloneArgs {
	return CloneArgs{Flags: CloneVM | CloneVfork, ExitSignal: signal.SIGCHLD}
}

// Clone implements spec.md §4.B's clone(args): a monotonic pid is
// allocated; MMList/fs-context/file-array/signal-dispositions/TLS are
// each independently shared or deep-copied per flag; CLONE_THREAD joins
// the caller's process (same pid, new tid) instead of creating a child
// process; the new trap context is a copy of the caller's with the
// return-value register zeroed and SP overridden if CloneArgs.SP is
// set.
func Clone(parent *Thread, args CloneArgs) (*Thread, error) {
	pl := Global()
	newPid := pl.allocPid()

	files := parent.Files
	if !args.Flags.has(CloneFiles) {
		files = fd.NewCloned(parent.Files)
	}

	fsctx := parent.FSContext
	if !args.Flags.has(CloneFS) {
		fsctx = parent.FSContext.Clone()
	}

	sig := signal.NewThreadSignals(uint64(newPid))

	var child *Thread

	if args.Flags.has(CloneThread) {
		proc := parent.Process
		child = newThread(newPid, proc, files, fsctx, sig)
		proc.addThread(child)
	} else {
		parentProc := parent.Process

		actualParent := parentProc
		if args.Flags.has(CloneParent) {
			if gp, ok := parentProc.parent.Upgrade(); ok {
				actualParent = gp
			}
		}

		pg, _ := parentProc.pgroup.Upgrade()
		sess, _ := parentProc.session.Upgrade()

		procSignals := parentProc.Signals
		if !args.Flags.has(CloneSighand) {
			procSignals = parentProc.Signals.Clone()
		}

		newMM := parentProc.MM.NewCloned()
		if args.Flags.has(CloneVM) {
			newMM = parentProc.MM.NewShared()
		}

		exitSignal := args.ExitSignal

		newProc := &Process{
			pid:         newPid,
			MM:          newMM,
			parent:      actualParent.self,
			pgroup:      pg.self,
			session:     sess.self,
			Signals:     procSignals,
			exitSignal:  exitSignal,
			caps:        parentProc.caps.Clone(),
			uid:         parentProc.UID(),
			children:    make(map[uint32]*Weak[Process]),
			threads:     make(map[uint32]*Weak[Thread]),
			state:       StateRunning,
			waitReadyCh: make(chan struct{}),
		}
		newProc.self = NewWeak(newProc)

		pl.addProcess(newProc)
		actualParent.addChild(newProc)
		pg.addMember(newProc)

		child = newThread(newPid, newProc, files, fsctx, sig)
		newProc.addThread(child)
	}

	if err := finalizeClone(child, parent, args); err != nil {
		return nil, err
	}

	trace.Record(cloneClass(args.Flags), child.Process.pid, map[string]any{"ppid": parent.Process.pid})

	return child, nil
}

// cloneClass labels the ring entry by which libc-level call the flags
// correspond to, purely for readability of kernel/trace's output —
// Clone itself does not branch on this.
func cloneClass(flags CloneFlags) trace.Class {
	switch {
	case flags.has(CloneVfork):
		return trace.ClassVfork
	case flags == 0:
		return trace.ClassFork
	default:
		return trace.ClassClone
	}
}

// finalizeClone applies the parts of clone(2) that touch the new
// thread's register state and the tid-pointer extensions, regardless of
// which branch above built it.
func finalizeClone(child, parent *Thread, args CloneArgs) error {
	child.trap = parent.trap
	child.trap.Regs[signal.RetValReg] = 0

	if args.SP != 0 {
		child.trap.SP = args.SP
	}

	copy(child.fpu, parent.fpu)

	if args.Flags.has(CloneSettls) {
		child.tls = args.TLS
	}

	if args.Flags.has(CloneChildSettid) {
		child.setChildTID = args.SetChildTID
	}

	if args.Flags.has(CloneChildCleartid) {
		child.clearChildTID = args.ClearChildTID
	}

	if args.Flags.has(CloneParentSettid) && args.ParentTIDPtr != 0 {
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], child.tid)

		if err := parent.Process.MM.WriteAt(args.ParentTIDPtr, buf[:]); err != nil {
			return errno.Wrap(errno.EFAULT, "clone", err)
		}
	}

	return nil
}

// Fork implements fork(2).
func Fork(parent *Thread) (*Thread, error) { return Clone(parent, ForFork()) }

// Vfork implements vfork(2).
func Vfork(parent *Thread) (*Thread, error) { return Clone(parent, ForVfork()) }
