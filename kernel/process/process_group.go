package process

import (
	"sync"

	"github.com/eonix-go/eonix/kernel/signal"
)

// ProcessGroup is spec.md §3's ProcessGroup entity, grounded on
// original_source's process_group.rs: a pgid, a weak back-reference to
// its leader and session, and the set of member processes.
type ProcessGroup struct {
	pgid    uint32
	leader  *Weak[Process]
	session *Weak[Session]
	self    *Weak[ProcessGroup]

	mu      sync.Mutex
	members map[uint32]*Weak[Process]
}

// newProcessGroup builds pg rooted at leader, adds it to the global
// process list, and registers it as a member of session, mirroring
// process_group.rs's ProcessGroupBuilder.
func newProcessGroup(pl *ProcessList, leader *Process, session *Session) *ProcessGroup {
	pg := &ProcessGroup{
		pgid:    leader.pid,
		leader:  leader.self,
		session: session.self,
		members: map[uint32]*Weak[Process]{leader.pid: leader.self},
	}
	pg.self = NewWeak(pg)

	pl.addPgroup(pg)
	session.addMember(pg)

	return pg
}

// PGID returns the process group id.
func (pg *ProcessGroup) PGID() uint32 { return pg.pgid }

// addMember registers process as a member of pg. process must not
// already belong to pg.
func (pg *ProcessGroup) addMember(p *Process) {
	pg.mu.Lock()
	defer pg.mu.Unlock()

	if _, exists := pg.members[p.pid]; exists {
		panic("process: pid already a member of this group")
	}

	pg.members[p.pid] = p.self
}

// Raise delivers signal to every live member of pg, mirroring
// process_group.rs's raise.
func (pg *ProcessGroup) Raise(sig signal.Signal) {
	pg.mu.Lock()
	members := make([]*Weak[Process], 0, len(pg.members))
	for _, w := range pg.members {
		members = append(members, w)
	}
	pg.mu.Unlock()

	for _, w := range members {
		if p, ok := w.Upgrade(); ok {
			p.Raise(sig)
		}
	}
}
