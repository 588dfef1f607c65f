package process

import (
	"sync"

	"github.com/moby/sys/capability"

	"github.com/eonix-go/eonix/kernel/errno"
	"github.com/eonix-go/eonix/kernel/signal"
)

// privilegedCaps is the narrow POSIX capability namespace this kernel
// tracks per process, grounded on SPEC_FULL.md's 2.5: original_source
// only ever checks uid==0 for privileged operations (procops.rs), but a
// bare root check doesn't generalize to "this process may signal across
// a session boundary" vs "this process may steal a controlling
// terminal" being independently grantable, so we keep a small bit-set
// instead, backed by moby/sys/capability's Cap type.
var privilegedCaps = []capability.Cap{
	capability.CAP_KILL,
	capability.CAP_SYS_ADMIN,
	capability.CAP_SETUID,
	capability.CAP_SYS_TTY_CONFIG,
}

// CapSet is a process's held capabilities. It is a plain in-kernel bit
// set, not backed by any real OS credential: there is nothing underneath
// this kernel to call capability.NewPid2 against.
type CapSet struct {
	mu   sync.Mutex
	caps map[capability.Cap]bool
}

// newRootCapSet returns a set holding every tracked capability, for the
// init process created at Bootstrap (uid 0's traditional "can do
// anything" still holds here, just expressed as a full bit set).
func newRootCapSet() *CapSet {
	c := &CapSet{caps: make(map[capability.Cap]bool, len(privilegedCaps))}
	for _, cp := range privilegedCaps {
		c.caps[cp] = true
	}

	return c
}

// Has reports whether the set holds cp.
func (c *CapSet) Has(cp capability.Cap) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.caps[cp]
}

// Drop removes cp from the set, e.g. after a setuid(2) away from root.
func (c *CapSet) Drop(cp capability.Cap) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.caps, cp)
}

// Clone returns an independent copy, for inheriting across clone(2).
func (c *CapSet) Clone() *CapSet {
	c.mu.Lock()
	defer c.mu.Unlock()

	clone := &CapSet{caps: make(map[capability.Cap]bool, len(c.caps))}
	for cp, held := range c.caps {
		clone.caps[cp] = held
	}

	return clone
}

// HasCap reports whether p currently holds cp.
func (p *Process) HasCap(cp capability.Cap) bool {
	return p.caps.Has(cp)
}

// Kill implements kill(2)'s permission check: a process may always
// signal itself; signalling another process requires CAP_KILL, taking
// the place of original_source's uid==0-or-same-uid test (spec.md
// §4.C/§8).
func (p *Process) Kill(target *Process, sig signal.Signal) error {
	if target.pid != p.pid && !p.HasCap(capability.CAP_KILL) {
		return errno.Wrap(errno.EPERM, "kill", nil)
	}

	target.Raise(sig)

	return nil
}

// Setuid drops p's held root-only capabilities once it gives up uid 0,
// matching the real kernel's "capabilities are derived from credentials
// at setuid time" behavior closely enough for this kernel's purposes: a
// process without CAP_SETUID can only "change" to its own uid.
func (p *Process) Setuid(uid uint32) error {
	p.mu.Lock()
	current := p.uid
	p.mu.Unlock()

	if uid != current && !p.HasCap(capability.CAP_SETUID) {
		return errno.Wrap(errno.EPERM, "setuid", nil)
	}

	p.mu.Lock()
	p.uid = uid
	p.mu.Unlock()

	if uid != 0 {
		p.caps.Drop(capability.CAP_KILL)
		p.caps.Drop(capability.CAP_SYS_ADMIN)
		p.caps.Drop(capability.CAP_SETUID)
		p.caps.Drop(capability.CAP_SYS_TTY_CONFIG)
	}

	return nil
}

// UID returns the process's current user id.
func (p *Process) UID() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.uid
}
