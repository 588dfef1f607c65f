package process

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/eonix-go/eonix/kernel/fd"
	"github.com/eonix-go/eonix/kernel/signal"
	"github.com/eonix-go/eonix/kernel/vfs"
)

// Thread is spec.md §3's Thread entity: a schedulable unit owning a tid,
// a file table and fs-context that may or may not be shared with
// siblings (CLONE_FILES/CLONE_FS), a per-thread pending-signal record
// (shared on CLONE_SIGHAND at the process level, not here), the saved
// user-mode register file and FPU state, and the set_child_tid/
// clear_child_tid pointers clone(2) and exit(2) consult.
//
// Only the goroutine currently running this thread touches trap/fpu/tls,
// the same way only the owning CPU touches a real thread's register
// file; dead is read cross-goroutine (by a reaper or by wait()) so it is
// atomic.
type Thread struct {
	tid  uint32
	self *Weak[Thread]

	Process *Process

	Files     *fd.Table
	FSContext *vfs.FsContext
	Signals   *signal.ThreadSignals

	trap signal.TrapContext
	fpu  []byte
	tls  uint64

	setChildTID   uint64
	clearChildTID uint64

	dead atomic.Bool
}

func newThread(tid uint32, proc *Process, files *fd.Table, fsctx *vfs.FsContext, sig *signal.ThreadSignals) *Thread {
	t := &Thread{
		tid:       tid,
		Process:   proc,
		Files:     files,
		FSContext: fsctx,
		Signals:   sig,
		fpu:       make([]byte, signal.FPUStateSize),
	}
	t.self = NewWeak(t)

	return t
}

// TID returns the thread id.
func (t *Thread) TID() uint32 { return t.tid }

// Dead reports whether exit(2) has already been called on this thread.
func (t *Thread) Dead() bool { return t.dead.Load() }

// TrapContext returns the thread's saved user-mode register file, for
// the syscall/signal-delivery path to read and mutate in place.
func (t *Thread) TrapContext() *signal.TrapContext { return &t.trap }

// FPUState returns the thread's saved FPU save area.
func (t *Thread) FPUState() []byte { return t.fpu }

// WriteChildTID implements spec.md §4.B's CLONE_CHILD_SETTID: "the child
// writes its tid to the user pointer immediately after entering user
// space." A no-op if the flag wasn't set on clone.
func (t *Thread) WriteChildTID() error {
	if t.setChildTID == 0 {
		return nil
	}

	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], t.tid)

	return t.Process.MM.WriteAt(t.setChildTID, buf[:])
}

// ClearChildTID implements CLONE_CHILD_CLEARTID's exit-time half: zero
// the user word at the registered address. The matching futex wake
// original_source performs alongside this has no counterpart here: this
// kernel has no futex subsystem to wake waiters through.
func (t *Thread) ClearChildTID() error {
	if t.clearChildTID == 0 {
		return nil
	}

	var buf [4]byte

	return t.Process.MM.WriteAt(t.clearChildTID, buf[:])
}
