package process

import (
	"sync"

	"github.com/eonix-go/eonix/kernel/errno"
	"github.com/eonix-go/eonix/kernel/signal"
	"github.com/eonix-go/eonix/kernel/terminal"
)

// Session is spec.md §3's Session entity, grounded on original_source's
// session.rs: a sid, a weak back-reference to its leader, the set of
// member process groups, and job-control state (foreground group and an
// optional controlling terminal).
type Session struct {
	sid    uint32
	leader *Weak[Process]
	self   *Weak[Session]

	mu              sync.Mutex
	groups          map[uint32]*Weak[ProcessGroup]
	foreground      *Weak[ProcessGroup]
	controlTerminal *terminal.Terminal
}

// newSession creates a session led by leader, with sid == leader.pid
// (matching session.rs's Session::new), and registers it globally.
func newSession(pl *ProcessList, leader *Process) *Session {
	sess := &Session{
		sid:    leader.pid,
		leader: leader.self,
		groups: make(map[uint32]*Weak[ProcessGroup]),
	}
	sess.self = NewWeak(sess)

	pl.addSession(sess)

	return sess
}

// SID returns the session id.
func (s *Session) SID() uint32 { return s.sid }

// addMember registers pg as a member of this session, matching
// session.rs's add_member.
func (s *Session) addMember(pg *ProcessGroup) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.groups[pg.pgid]; exists {
		panic("process: pgid already a member of this session")
	}

	s.groups[pg.pgid] = pg.self
}

// hasGroup reports whether pgid names a live member of this session.
func (s *Session) hasGroup(pgid uint32) (*Weak[ProcessGroup], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.groups[pgid]

	return w, ok
}

// Foreground returns the session's current foreground process group, if
// any is set, mirroring session.rs's foreground().
func (s *Session) Foreground() (*ProcessGroup, bool) {
	s.mu.Lock()
	fg := s.foreground
	s.mu.Unlock()

	if fg == nil {
		return nil, false
	}

	return fg.Upgrade()
}

// ForegroundPGID implements terminal.ForegroundGroup.
func (s *Session) ForegroundPGID() (uint32, bool) {
	pg, ok := s.Foreground()
	if !ok {
		return 0, false
	}

	return pg.pgid, true
}

// SetForegroundPGID sets the foreground process group to pgid, which
// must already be a member of this session, matching session.rs's
// set_foreground_pgid. Implements terminal.ForegroundGroup.
func (s *Session) SetForegroundPGID(pgid uint32) error {
	w, ok := s.hasGroup(pgid)
	if !ok {
		return errno.Wrap(errno.EPERM, "setpgrp", nil)
	}

	s.mu.Lock()
	s.foreground = w
	s.mu.Unlock()

	return nil
}

// SetControlTerminal binds term as this session's controlling terminal,
// only session leaders may call this (the caller must have already
// checked that), mirroring session.rs's set_control_terminal: refuses
// (EPERM) if a different session's terminal is already bound, is a
// no-op success if the same terminal is already bound, and otherwise
// claims term and sets the foreground group to leaderGroup.
func (s *Session) SetControlTerminal(term *terminal.Terminal, forced bool, leaderGroup *ProcessGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.controlTerminal != nil {
		if existing := term.Session(); existing != nil {
			if sess, ok := existing.(*Session); ok && sess.sid == s.sid {
				return nil
			}
		}

		return errno.Wrap(errno.EPERM, "tiocsctty", nil)
	}

	if err := term.SetSession(s, forced); err != nil {
		return err
	}

	s.controlTerminal = term
	s.foreground = leaderGroup.self

	return nil
}

// DropControlTerminal releases this session's controlling terminal
// reference without touching the terminal's own session field, matching
// session.rs's drop_control_terminal.
func (s *Session) DropControlTerminal() *terminal.Terminal {
	s.mu.Lock()
	defer s.mu.Unlock()

	term := s.controlTerminal
	s.foreground = nil
	s.controlTerminal = nil

	return term
}

// RaiseForeground delivers sig to the foreground process group, if one
// is set, matching session.rs's raise_foreground. Implements
// terminal.ForegroundGroup.
func (s *Session) RaiseForeground(sig signal.Signal) {
	if fg, ok := s.Foreground(); ok {
		fg.Raise(sig)
	}
}
