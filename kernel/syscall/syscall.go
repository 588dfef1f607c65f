// Package syscall implements spec.md §4.H's dispatch layer: a table of
// (number -> handler) pairs built at init time, argument decoding driven
// by a FromSyscallArg-style contract, and the post-return signal check
// that feeds into kernel/signal's delivery path (§4.C).
//
// original_source/src/kernel/syscall.rs builds SYSCALL_HANDLERS from a
// linker-section trick: every syscall/*.rs file emits a RawSyscallHandler
// marker record the linker collects into one contiguous array, found by
// name at startup. Go has no equivalent linker-section mechanism, so
// each handler file here registers itself the same way database/sql
// drivers or image decoders do: a package-level init() calling Register.
package syscall

import (
	"context"

	"github.com/eonix-go/eonix/kernel/errno"
	"github.com/eonix-go/eonix/kernel/process"
	"github.com/eonix-go/eonix/kernel/signal"
)

// MaxSyscallNo bounds the dispatch table, mirroring original_source's
// MAX_SYSCALL_NO (unenforced here beyond documentation: Go's map has no
// fixed-size array to size against).
const MaxSyscallNo = 512

// Args is the trap context's fixed 6-wide argument register array,
// spec.md §4.H: "the trap context carries arguments in a fixed 6-wide
// register array."
type Args [6]uintptr

// Handler is a syscall implementation: it decodes its own arguments out
// of args via the FromSyscallArg-style helpers in arg.go, and returns
// either a user-visible return value or an error to encode as -errno.
// A handler that returns (_, nil, false) is SyscallNoReturn — the retval
// register must be left untouched (used by sigreturn, which already
// restored it explicitly).
type Handler func(ctx context.Context, t *process.Thread, args Args) (retval uintptr, err error, touchesRetval bool)

type entry struct {
	name    string
	handler Handler
}

var table = make(map[uintptr]*entry, MaxSyscallNo)

// Register adds a handler under syscall number no. Called from init()
// in each syscall/* file below, mirroring original_source's per-file
// handler registration — just done through Go's init ordering instead
// of a linker section.
func Register(no uintptr, name string, h Handler) {
	if _, exists := table[no]; exists {
		panic("syscall: duplicate registration for " + name)
	}

	table[no] = &entry{name: name, handler: h}
}

// Lookup returns the registered handler for no, if any.
func Lookup(no uintptr) (name string, h Handler, ok bool) {
	e, ok := table[no]
	if !ok {
		return "", nil, false
	}

	return e.name, e.handler, true
}

// Dispatch implements spec.md §4.H's syscall entry/return path: look up
// the handler for the trap context's syscall number, run it, encode its
// result as a raw return value, and — if the thread now has pending
// unmasked signals — invoke the delivery path (4.C) before the caller
// returns to user space. An unregistered syscall number yields -ENOSYS,
// matching original_source's behavior for a missing SYSCALL_HANDLERS
// slot.
func Dispatch(ctx context.Context, t *process.Thread, no uintptr, args Args) uintptr {
	_, h, ok := Lookup(no)
	if !ok {
		return encodeErrno(errno.ENOSYS)
	}

	retval, err, touches := h(ctx, t, args)

	if touches {
		if err != nil {
			retval = encodeErrno(errno.Code(err))
		}

		trap := t.TrapContext()
		trap.Regs[signal.RetValReg] = uint64(retval)
	}

	deliverPendingSignal(t)

	return retval
}

// encodeErrno implements the -errno convention spec.md §6 names: a
// negative return value is -errno reinterpreted as an unsigned machine
// word, exactly as the ABI expects it in the retval register.
func encodeErrno(code errno.Errno) uintptr {
	return uintptr(int64(-code))
}

// deliverPendingSignal runs kernel/signal's delivery path if t has
// unmasked pending signals, per spec.md §4.H's "On syscall return: if
// the thread has pending unmasked signals, invoke the delivery path
// (4.C) before returning to user."
func deliverPendingSignal(t *process.Thread) {
	if !t.Signals.HasUnmasked() {
		return
	}

	result, err := signal.Deliver(t.Signals, t.Process.Signals, t.TrapContext(), t.FPUState(), t.Process.MM)
	if err != nil {
		return
	}

	switch result.Outcome {
	case signal.OutcomeDefaultTerminate:
		process.Exit(t, process.WaitObject{Kind: process.WaitSignaled, Sig: result.Signal})
	case signal.OutcomeDefaultStop:
		t.Process.Stop(result.Signal)
	case signal.OutcomeDefaultContinue:
		t.Process.Continue()
	}
}
