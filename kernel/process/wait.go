package process

import "github.com/eonix-go/eonix/kernel/signal"

// WaitKind tags a WaitObject's result, spec.md §4.B's WaitType sum type.
type WaitKind int

const (
	WaitExited WaitKind = iota
	WaitSignaled
	WaitStopped
	WaitContinued
)

// WaitObject is one entry on a process's wait queue: a finished or
// state-changed child, waiting to be collected by wait(2).
type WaitObject struct {
	Pid  uint32
	Kind WaitKind

	ExitCode int
	Sig      signal.Signal
}

// WStatus encodes w the way wait(2)'s wstatus out-parameter does,
// per spec.md §6.
func (w WaitObject) WStatus() uint32 {
	switch w.Kind {
	case WaitExited:
		return uint32(w.ExitCode&0xff) << 8
	case WaitSignaled:
		status := uint32(w.Sig)
		if w.Sig.Coredump() {
			status |= 0x80
		}

		return status
	case WaitStopped:
		return 0x7f | (uint32(w.Sig) << 8)
	case WaitContinued:
		return 0xffff
	default:
		return 0
	}
}

// WaitID selects which children wait(2) considers, spec.md §4.B's
// id ∈ {Any, Pid(p), Pgid(g)}.
type WaitID struct {
	Any  bool
	Pid  uint32
	Pgid uint32
}

// WaitAny matches any child.
func WaitAny() WaitID { return WaitID{Any: true} }

// WaitForPid matches only the child with this pid.
func WaitForPid(pid uint32) WaitID { return WaitID{Pid: pid} }

// WaitForPgid matches any child in this process group.
func WaitForPgid(pgid uint32) WaitID { return WaitID{Pgid: pgid} }

func (id WaitID) matches(p *Process) bool {
	switch {
	case id.Any:
		return true
	case id.Pid != 0:
		return p.pid == id.Pid
	case id.Pgid != 0:
		pg, ok := p.pgroup.Upgrade()
		return ok && pg.pgid == id.Pgid
	default:
		return false
	}
}

// WaitOptions are wait(2)'s option bits.
type WaitOptions uint32

const (
	WNOHANG    WaitOptions = 1 << 0
	WUNTRACED  WaitOptions = 1 << 1
	WCONTINUED WaitOptions = 1 << 2
)

func (o WaitOptions) has(bit WaitOptions) bool { return o&bit != 0 }
