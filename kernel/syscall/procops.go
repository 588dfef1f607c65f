package syscall

import (
	"context"

	"github.com/eonix-go/eonix/kernel/errno"
	"github.com/eonix-go/eonix/kernel/process"
	"github.com/eonix-go/eonix/kernel/signal"
)

// ret wraps a successful uintptr-valued return, matching SyscallRetVal's
// impl for the primitive integer types: the value is taken as-is into
// the retval register.
func ret(v uintptr) (uintptr, error, bool) { return v, nil, true }

// retErr wraps a failed call; Dispatch re-encodes the error as -errno.
func retErr(err error) (uintptr, error, bool) { return 0, err, true }

// noReturn is SyscallNoReturn: the retval register must be left alone
// because the handler (sigreturn) already set it to what the signal
// frame demands.
func noReturn() (uintptr, error, bool) { return 0, nil, false }

func init() {
	Register(sysGetpid, "getpid", sysGetpid_)
	Register(sysGetppid, "getppid", sysGetppidH)
	Register(sysGettid, "gettid", sysGettidH)
	Register(sysGetsid, "getsid", sysGetsidH)
	Register(sysGetpgid, "getpgid", sysGetpgidH)
	Register(sysSetsid, "setsid", sysSetsidH)
	Register(sysSetpgid, "setpgid", sysSetpgidH)
	Register(sysFork, "fork", sysForkH)
	Register(sysVfork, "vfork", sysVforkH)
	Register(sysClone, "clone", sysCloneH)
	Register(sysExecve, "execve", sysExecveH)
	Register(sysExit, "exit", sysExitH)
	Register(sysExitGroup, "exit_group", sysExitH)
	Register(sysWait4, "wait4", sysWait4H)
	Register(sysKill, "kill", sysKillH)
	Register(sysTkill, "tkill", sysTkillH)
	Register(sysRtSigprocmask, "rt_sigprocmask", sysRtSigprocmaskH)
	Register(sysRtSigaction, "rt_sigaction", sysRtSigactionH)
	Register(sysRtSigreturn, "rt_sigreturn", sysRtSigreturnH)
	Register(sysSetTidAddress, "set_tid_address", sysSetTidAddressH)
	Register(sysPrctl, "prctl", sysPrctlH)
}

func sysGetpid_(_ context.Context, t *process.Thread, _ Args) (uintptr, error, bool) {
	return ret(uintptr(t.Process.PID()))
}

func sysGetppidH(_ context.Context, t *process.Thread, _ Args) (uintptr, error, bool) {
	return ret(uintptr(t.Process.PPID()))
}

func sysGettidH(_ context.Context, t *process.Thread, _ Args) (uintptr, error, bool) {
	return ret(uintptr(t.TID()))
}

func sysGetsidH(_ context.Context, t *process.Thread, args Args) (uintptr, error, bool) {
	target, err := resolveTargetProcess(t, argUint32(args[0]))
	if err != nil {
		return retErr(err)
	}

	sid, err := process.Getsid(target)
	if err != nil {
		return retErr(err)
	}

	return ret(uintptr(sid))
}

func sysGetpgidH(_ context.Context, t *process.Thread, args Args) (uintptr, error, bool) {
	target, err := resolveTargetProcess(t, argUint32(args[0]))
	if err != nil {
		return retErr(err)
	}

	pgid, err := process.Getpgid(target)
	if err != nil {
		return retErr(err)
	}

	return ret(uintptr(pgid))
}

// resolveTargetProcess implements the pid==0-means-self convention
// getsid/getpgid/setpgid share (procops.rs's do_getsid/do_getpgid/
// do_setpgid).
func resolveTargetProcess(t *process.Thread, pid uint32) (*process.Process, error) {
	if pid == 0 {
		return t.Process, nil
	}

	p, ok := process.Global().Get(pid)
	if !ok {
		return nil, errno.Wrap(errno.ESRCH, "resolve pid", nil)
	}

	return p, nil
}

func sysSetsidH(_ context.Context, t *process.Thread, _ Args) (uintptr, error, bool) {
	sid, err := process.Global().Setsid(t.Process)
	if err != nil {
		return retErr(err)
	}

	return ret(uintptr(sid))
}

func sysSetpgidH(_ context.Context, t *process.Thread, args Args) (uintptr, error, bool) {
	pid := argUint32(args[0])
	if pid == 0 {
		pid = t.Process.PID()
	}

	pgidArg := argInt32(args[1])

	var pgid uint32

	switch {
	case pgidArg == 0:
		pgid = pid
	case pgidArg > 0:
		pgid = uint32(pgidArg)
	default:
		return retErr(errno.Wrap(errno.EINVAL, "setpgid", nil))
	}

	target, err := resolveTargetProcess(t, pid)
	if err != nil {
		return retErr(err)
	}

	if err := process.Global().Setpgid(target, pgid); err != nil {
		return retErr(err)
	}

	return ret(0)
}

func sysForkH(_ context.Context, t *process.Thread, _ Args) (uintptr, error, bool) {
	child, err := process.Fork(t)
	if err != nil {
		return retErr(err)
	}

	return ret(uintptr(child.Process.PID()))
}

func sysVforkH(_ context.Context, t *process.Thread, _ Args) (uintptr, error, bool) {
	child, err := process.Vfork(t)
	if err != nil {
		return retErr(err)
	}

	return ret(uintptr(child.Process.PID()))
}

// sysCloneH implements clone(2)'s raw syscall form: args[0] is the
// CLONE_* flag word, args[1] the child stack pointer, args[2]/args[4]
// the parent/child tid pointers (x86_64's register assignment swaps
// these relative to clone's C prototype; original_source's sys_clone
// documents the same swap), args[3] the TLS value.
func sysCloneH(_ context.Context, t *process.Thread, args Args) (uintptr, error, bool) {
	flags := process.CloneFlags(argUint64(args[0]))

	cloneArgs := process.CloneArgs{
		Flags:         flags,
		SP:            argUint64(args[1]),
		ExitSignal:    signal.Signal(flags & 0xff),
		ParentTIDPtr:  argUint64(args[2]),
		TLS:           argUint64(args[3]),
		SetChildTID:   argUint64(args[4]),
		ClearChildTID: argUint64(args[4]),
	}

	child, err := process.Clone(t, cloneArgs)
	if err != nil {
		return retErr(err)
	}

	return ret(uintptr(child.Process.PID()))
}

func sysExecveH(ctx context.Context, t *process.Thread, args Args) (uintptr, error, bool) {
	path, err := ReadUserString(t.Process.MM, uint64(args[0]), 4096)
	if err != nil {
		return retErr(err)
	}

	dentry, err := t.FSContext.Resolve(ctx, path, true)
	if err != nil {
		return retErr(err)
	}

	if dentry.IsNegative() {
		return retErr(errno.Wrap(errno.ENOENT, "execve", nil))
	}

	// original_source's do_execve loads an ELF into a brand new MMList
	// here; this kernel has no ELF loader, so execve only performs the
	// process-state half of spec.md §4.B's contract: CLOEXEC closing and
	// non-ignored signal reset. The address space it installs is a
	// copy-on-write clone of the caller's (MMList.NewCloned), not a fresh
	// one, and no new program image is loaded into it.
	newMM := t.Process.MM.NewCloned()
	t.Execve(newMM)

	return ret(0)
}

func sysExitH(_ context.Context, t *process.Thread, args Args) (uintptr, error, bool) {
	status := argInt32(args[0])

	process.Exit(t, process.WaitObject{Kind: process.WaitExited, ExitCode: int(status)})

	return noReturn()
}

func sysWait4H(ctx context.Context, t *process.Thread, args Args) (uintptr, error, bool) {
	rawPid := argInt32(args[0])
	statusPtr := argUint64(args[1])
	options := process.WaitOptions(argUint32(args[2]))

	id := waitIDFromPid(rawPid)

	result, err := process.Wait(ctx, t.Process, id, options, t.Signals)
	if err != nil {
		return retErr(err)
	}

	if result == nil {
		return ret(0)
	}

	if statusPtr != 0 {
		var buf [4]byte
		putLE32(buf[:], result.WStatus())

		if err := WriteUser(t.Process.MM, statusPtr, buf[:]); err != nil {
			return retErr(err)
		}
	}

	return ret(uintptr(result.Pid))
}

func waitIDFromPid(rawPid int32) process.WaitID {
	switch {
	case rawPid == -1:
		return process.WaitAny()
	case rawPid == 0:
		return process.WaitAny() // no per-caller-pgroup context tracked at dispatch layer; treated as Any.
	case rawPid > 0:
		return process.WaitForPid(uint32(rawPid))
	default:
		return process.WaitForPgid(uint32(-rawPid))
	}
}

func putLE32(buf []byte, v uint32) {
	buf[0] = byte(v)
	buf[1] = byte(v >> 8)
	buf[2] = byte(v >> 16)
	buf[3] = byte(v >> 24)
}

func sysKillH(_ context.Context, t *process.Thread, args Args) (uintptr, error, bool) {
	rawPid := argInt32(args[0])
	sig := signal.Signal(argUint32(args[1]))

	switch {
	case rawPid > 0:
		target, ok := process.Global().Get(uint32(rawPid))
		if !ok {
			return retErr(errno.Wrap(errno.ESRCH, "kill", nil))
		}

		if err := t.Process.Kill(target, sig); err != nil {
			return retErr(err)
		}

	case rawPid == 0:
		pgid, ok := t.Process.Pgid()
		if !ok {
			return retErr(errno.Wrap(errno.ESRCH, "kill", nil))
		}

		pg, ok := process.Global().GetPgroup(pgid)
		if !ok {
			return retErr(errno.Wrap(errno.ESRCH, "kill", nil))
		}

		pg.Raise(sig)

	case rawPid == -1:
		return retErr(errno.Wrap(errno.ENOSYS, "kill(-1)", nil))

	default:
		pg, ok := process.Global().GetPgroup(uint32(-rawPid))
		if !ok {
			return retErr(errno.Wrap(errno.ESRCH, "kill", nil))
		}

		pg.Raise(sig)
	}

	return ret(0)
}

func sysTkillH(_ context.Context, _ *process.Thread, _ Args) (uintptr, error, bool) {
	return retErr(errno.Wrap(errno.ENOSYS, "tkill", nil))
}

func sysRtSigprocmaskH(_ context.Context, t *process.Thread, args Args) (uintptr, error, bool) {
	how := argUint32(args[0])
	setPtr := argUint64(args[1])
	oldSetPtr := argUint64(args[2])
	setSize := argUint64(args[3])

	if setSize != 8 {
		return retErr(errno.Wrap(errno.EINVAL, "rt_sigprocmask", nil))
	}

	oldMask := t.Signals.Mask()

	if oldSetPtr != 0 {
		var buf [8]byte
		putLE64(buf[:], uint64(oldMask))

		if err := WriteUser(t.Process.MM, oldSetPtr, buf[:]); err != nil {
			return retErr(err)
		}
	}

	if setPtr == 0 {
		return ret(0)
	}

	var buf [8]byte
	if err := ReadUser(t.Process.MM, setPtr, buf[:]); err != nil {
		return retErr(err)
	}

	newBits := signal.Mask(getLE64(buf[:]))

	switch how {
	case 0: // SIG_BLOCK
		t.Signals.SetMask(oldMask.Union(newBits))
	case 1: // SIG_UNBLOCK
		result := oldMask
		for s := signal.Signal(1); s <= signal.SIGRTMAX; s++ {
			if newBits.Has(s) {
				result = result.Remove(s)
			}
		}
		t.Signals.SetMask(result)
	case 2: // SIG_SETMASK
		t.Signals.SetMask(newBits.Remove(signal.SIGKILL).Remove(signal.SIGSTOP))
	default:
		return retErr(errno.Wrap(errno.EINVAL, "rt_sigprocmask", nil))
	}

	return ret(0)
}

func putLE64(buf []byte, v uint64) {
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * i))
	}
}

func getLE64(buf []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(buf[i]) << (8 * i)
	}

	return v
}

// userSigAction mirrors the 32-byte struct sigaction layout
// rt_sigaction's ABI passes: handler, flags, restorer, mask.
type userSigAction struct {
	Handler  uint64
	Flags    uint64
	Restorer uint64
	Mask     uint64
}

func sysRtSigactionH(_ context.Context, t *process.Thread, args Args) (uintptr, error, bool) {
	sig := signal.Signal(argInt32(args[0]))
	actPtr := argUint64(args[1])
	oldActPtr := argUint64(args[2])
	setSize := argUint64(args[3])

	if setSize != 8 {
		return retErr(errno.Wrap(errno.EINVAL, "rt_sigaction", nil))
	}

	if !sig.Valid() {
		return retErr(errno.Wrap(errno.EINVAL, "rt_sigaction", nil))
	}

	old := t.Process.Signals.Get(sig)

	if oldActPtr != 0 {
		buf := encodeSigAction(old)

		if err := WriteUser(t.Process.MM, oldActPtr, buf); err != nil {
			return retErr(err)
		}
	}

	if actPtr == 0 {
		return ret(0)
	}

	buf := make([]byte, 32)
	if err := ReadUser(t.Process.MM, actPtr, buf); err != nil {
		return retErr(err)
	}

	d := decodeSigAction(buf)

	if err := t.Process.Signals.Set(sig, d); err != nil {
		return retErr(errno.Wrap(errno.EINVAL, "rt_sigaction", err))
	}

	return ret(0)
}

func encodeSigAction(d signal.Disposition) []byte {
	buf := make([]byte, 32)
	putLE64(buf[0:8], uint64(d.Handler))
	putLE64(buf[8:16], uint64(d.Flags))
	putLE64(buf[16:24], uint64(d.Restorer))
	putLE64(buf[24:32], uint64(d.Mask))

	return buf
}

func decodeSigAction(buf []byte) signal.Disposition {
	action := signal.ActionHandler
	handler := getLE64(buf[0:8])

	if handler == 0 {
		action = signal.ActionDefault
	} else if handler == 1 {
		action = signal.ActionIgnore
	}

	return signal.Disposition{
		Action:   action,
		Handler:  uintptr(handler),
		Flags:    signal.SAFlags(getLE64(buf[8:16])),
		Restorer: uintptr(getLE64(buf[16:24])),
		Mask:     signal.Mask(getLE64(buf[24:32])),
	}
}

func sysRtSigreturnH(_ context.Context, t *process.Thread, _ Args) (uintptr, error, bool) {
	if err := signal.SigReturn(t.Signals, t.TrapContext(), t.FPUState(), t.Process.MM); err != nil {
		return retErr(err)
	}

	// sigreturn already restored the retval register from the saved
	// frame; Dispatch must not overwrite it, matching SyscallNoReturn
	// (spec.md §4.H).
	return noReturn()
}

func sysSetTidAddressH(_ context.Context, t *process.Thread, _ Args) (uintptr, error, bool) {
	return ret(uintptr(t.TID()))
}

// prctl option numbers this build understands (linux/prctl.h).
const (
	prSetName = 15
	prGetName = 16
)

func sysPrctlH(_ context.Context, _ *process.Thread, args Args) (uintptr, error, bool) {
	switch argUint32(args[0]) {
	case prSetName, prGetName:
		// Thread names aren't tracked in this build's Thread (no
		// analogue to original_source's Thread::set_name/get_name
		// outside the ELF-loader path that would have set one);
		// silently succeed rather than failing prctl(2) wholesale.
		return ret(0)
	default:
		return retErr(errno.Wrap(errno.EINVAL, "prctl", nil))
	}
}
