package process

import (
	"sync"
	"sync/atomic"
)

// ProcessList is the single global process-table lock spec.md §5 names
// ("global process-list rwlock"): every pid/pgid/sid table, and every
// parent/pgroup/session graph mutation, is serialized through it.
type ProcessList struct {
	mu sync.RWMutex

	processes map[uint32]*Process
	pgroups   map[uint32]*ProcessGroup
	sessions  map[uint32]*Session

	nextPid atomic.Uint32
}

// global is the kernel's single process list, matching original_source's
// ProcessList::get() singleton.
var global = &ProcessList{
	processes: make(map[uint32]*Process),
	pgroups:   make(map[uint32]*ProcessGroup),
	sessions:  make(map[uint32]*Session),
}

// Global returns the kernel-wide process list.
func Global() *ProcessList { return global }

// allocPid returns the next monotonic pid, starting at 1 (init) and
// never reusing or returning zero, matching spec.md §4.B's clone().
func (pl *ProcessList) allocPid() uint32 {
	return pl.nextPid.Add(1)
}

func (pl *ProcessList) addProcess(p *Process) {
	pl.mu.Lock()
	pl.processes[p.pid] = p
	pl.mu.Unlock()
}

func (pl *ProcessList) addPgroup(g *ProcessGroup) {
	pl.mu.Lock()
	pl.pgroups[g.pgid] = g
	pl.mu.Unlock()
}

func (pl *ProcessList) addSession(s *Session) {
	pl.mu.Lock()
	pl.sessions[s.sid] = s
	pl.mu.Unlock()
}

// Get returns the live process for pid, if any.
func (pl *ProcessList) Get(pid uint32) (*Process, bool) {
	pl.mu.RLock()
	defer pl.mu.RUnlock()

	p, ok := pl.processes[pid]

	return p, ok
}

// GetSession returns the live session for sid, if any.
func (pl *ProcessList) GetSession(sid uint32) (*Session, bool) {
	pl.mu.RLock()
	defer pl.mu.RUnlock()

	s, ok := pl.sessions[sid]

	return s, ok
}

// GetPgroup returns the live process group for pgid, if any.
func (pl *ProcessList) GetPgroup(pgid uint32) (*ProcessGroup, bool) {
	pl.mu.RLock()
	defer pl.mu.RUnlock()

	g, ok := pl.pgroups[pgid]

	return g, ok
}

// Init returns PID 1, which must exist once Bootstrap has run.
func (pl *ProcessList) Init() (*Process, bool) {
	return pl.Get(1)
}

// reap removes p from the global process table, its parent's children
// map, and its process group, cascading to remove empty groups from
// their session and empty sessions from the global table, per spec.md
// §4.B's teardown invariant. Must be called exactly once, when p
// transitions Zombie -> Reaped.
func (pl *ProcessList) reap(p *Process) {
	pl.mu.Lock()
	delete(pl.processes, p.pid)
	pl.mu.Unlock()

	if parent, ok := p.parent.Upgrade(); ok {
		parent.removeChild(p.pid)
	}

	if pg, ok := p.pgroup.Upgrade(); ok {
		pl.removeFromGroup(pg, p.pid)
	}

	p.self.Invalidate()
}

// removeFromGroup drops pid from pg; if pg becomes empty, it is removed
// from its session, and an empty session is removed from the global
// table, matching process_group.rs/session.rs's cascading remove_member.
func (pl *ProcessList) removeFromGroup(pg *ProcessGroup, pid uint32) {
	pg.mu.Lock()
	delete(pg.members, pid)
	empty := len(pg.members) == 0
	pg.mu.Unlock()

	if !empty {
		return
	}

	pl.mu.Lock()
	delete(pl.pgroups, pg.pgid)
	pl.mu.Unlock()

	sess, ok := pg.session.Upgrade()
	if !ok {
		return
	}

	sess.mu.Lock()
	delete(sess.groups, pg.pgid)
	emptySess := len(sess.groups) == 0
	sess.mu.Unlock()

	if emptySess {
		pl.mu.Lock()
		delete(pl.sessions, sess.sid)
		pl.mu.Unlock()
	}
}
