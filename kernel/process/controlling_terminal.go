package process

import (
	"github.com/moby/sys/capability"

	"github.com/eonix-go/eonix/kernel/errno"
	"github.com/eonix-go/eonix/kernel/terminal"
)

// SetControllingTerminal implements spec.md §4.G's TIOCSCTTY: binds term
// as p's session's controlling terminal, with p's own process group
// becoming the foreground group (session.rs's set_control_terminal).
// Forcing a steal away from a terminal already bound to a different
// session requires CAP_SYS_TTY_CONFIG, replacing original_source's
// implicit root-only assumption (SPEC_FULL.md 2.5).
func (p *Process) SetControllingTerminal(term *terminal.Terminal, force bool) error {
	sess, ok := p.session.Upgrade()
	if !ok {
		return errno.Wrap(errno.ESRCH, "tiocsctty", nil)
	}

	pg, ok := p.pgroup.Upgrade()
	if !ok {
		return errno.Wrap(errno.ESRCH, "tiocsctty", nil)
	}

	if force && !p.HasCap(capability.CAP_SYS_TTY_CONFIG) {
		return errno.Wrap(errno.EPERM, "tiocsctty", nil)
	}

	return sess.SetControlTerminal(term, force, pg)
}

// DropControllingTerminal implements spec.md §4.G's vhangup/disconnect
// path: the session gives up its controlling terminal without touching
// the terminal's own session field (session.rs's drop_control_terminal).
func (p *Process) DropControllingTerminal() *terminal.Terminal {
	sess, ok := p.session.Upgrade()
	if !ok {
		return nil
	}

	return sess.DropControlTerminal()
}
