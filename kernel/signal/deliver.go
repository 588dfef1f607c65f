package signal

import (
	"encoding/binary"
	"fmt"
)

// NumRegs is the size of the architecture-generic general-purpose
// register file carried in a TrapContext. Real per-arch layouts (x86_64
// vs riscv64, spec.md §6) are a concern of kernel/syscall's ABI tables;
// here we only need enough to save/restore across a signal frame and to
// carry the first handler argument and the syscall return-value register.
const NumRegs = 32

// ArgReg is the register index a handler's first argument (the signal
// number, spec.md §4.C) is written to on entry.
const ArgReg = 0

// RetValReg is the register index holding a syscall's return value, which
// SigReturn must restore without letting the signal-delivery machinery
// overwrite it (spec.md §4.C sigreturn: "return the original user-mode
// syscall return value so that the interrupted return register is not
// clobbered").
const RetValReg = 0

// TrapContext is the saved user-mode register file spec.md §3 calls out
// on Thread ("trap context (user-mode saved registers)").
type TrapContext struct {
	PC   uint64
	SP   uint64
	Regs [NumRegs]uint64
}

// FPUStateSize is a fixed FPU save-area size (comparable to an x86 FXSAVE
// area), enough to round-trip opaque FPU state without this package
// needing to know its internal layout.
const FPUStateSize = 512

// UserMemory is the narrow user-address-space access spec.md §4.H
// describes ("User-pointer operations... a fault during copy returns
// EFAULT"). kernel/mm's MMList satisfies this against real backing pages;
// kernel/signal only depends on the interface so it has no import cycle
// on kernel/mm.
type UserMemory interface {
	WriteAt(addr uint64, p []byte) error
	ReadAt(addr uint64, p []byte) error
}

// frameSize is the fixed, serialized size of a saved signal frame: mask
// (8) + trap context (8+8+NumRegs*8) + restorer (8) + fpu (FPUStateSize).
const frameSize = 8 + 16 + NumRegs*8 + 8 + FPUStateSize

func alignDown(v uint64, align uint64) uint64 {
	return v &^ (align - 1)
}

func encodeFrame(mask Mask, trap *TrapContext, restorer uint64, fpu []byte) []byte {
	buf := make([]byte, frameSize)
	off := 0

	binary.LittleEndian.PutUint64(buf[off:], uint64(mask))
	off += 8

	binary.LittleEndian.PutUint64(buf[off:], trap.PC)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], trap.SP)
	off += 8

	for i := range trap.Regs {
		binary.LittleEndian.PutUint64(buf[off:], trap.Regs[i])
		off += 8
	}

	binary.LittleEndian.PutUint64(buf[off:], restorer)
	off += 8

	copy(buf[off:off+FPUStateSize], fpu)

	return buf
}

func decodeFrame(buf []byte) (mask Mask, trap TrapContext, restorer uint64, fpu []byte) {
	off := 0

	mask = Mask(binary.LittleEndian.Uint64(buf[off:]))
	off += 8

	trap.PC = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	trap.SP = binary.LittleEndian.Uint64(buf[off:])
	off += 8

	for i := range trap.Regs {
		trap.Regs[i] = binary.LittleEndian.Uint64(buf[off:])
		off += 8
	}

	restorer = binary.LittleEndian.Uint64(buf[off:])
	off += 8

	fpu = append([]byte(nil), buf[off:off+FPUStateSize]...)

	return mask, trap, restorer, fpu
}

// Outcome classifies what Deliver did.
type Outcome int

const (
	// OutcomeNone: nothing pending and deliverable right now.
	OutcomeNone Outcome = iota
	// OutcomeHandler: a user handler was invoked; trap was rewritten to
	// enter it and the caller should simply return to user mode.
	OutcomeHandler
	// OutcomeDefaultStop: SIG_DFL stop signal (SIGSTOP/SIGTSTP/SIGTTIN/
	// SIGTTOU); the caller must mark the process Stopped and notify the
	// parent (spec.md §4.C).
	OutcomeDefaultStop
	// OutcomeDefaultContinue: SIG_DFL SIGCONT; caller must clear the stop
	// waker and resume the process.
	OutcomeDefaultContinue
	// OutcomeDefaultTerminate: SIG_DFL fatal signal; caller must tear down
	// the whole process with WaitType Signaled(Signal).
	OutcomeDefaultTerminate
)

// Result is Deliver's report of what happened.
type Result struct {
	Outcome Outcome
	Signal  Signal
}

// Deliver implements spec.md §4.C's delivery path for one thread: pop the
// highest-priority pending signal unless it is masked (then OutcomeNone)
// and either invoke a handler
// (mutating trap/mask in place; the frame address is not returned) or
// report the default action for the caller to apply.
func Deliver(ts *ThreadSignals, proc *ProcessSignals, trap *TrapContext, fpu []byte, um UserMemory) (Result, error) {
	sig, ok := ts.NextDeliverable()
	if !ok {
		return Result{Outcome: OutcomeNone}, nil
	}

	d := proc.Get(sig)

	switch d.Action {
	case ActionHandler:
		if err := pushHandlerFrame(ts, trap, fpu, um, sig, d); err != nil {
			return Result{}, err
		}

		return Result{Outcome: OutcomeHandler, Signal: sig}, nil

	case ActionIgnore:
		// A signal can be masked when raised, installed as SIG_IGN later,
		// then unmasked: drop it silently, same as the raise-time check.
		return Result{Outcome: OutcomeNone}, nil

	default: // ActionDefault
		switch {
		case sig.StopSignal():
			return Result{Outcome: OutcomeDefaultStop, Signal: sig}, nil
		case sig == SIGCONT:
			return Result{Outcome: OutcomeDefaultContinue, Signal: sig}, nil
		case sig.DefaultIgnore():
			return Result{Outcome: OutcomeNone}, nil
		default:
			return Result{Outcome: OutcomeDefaultTerminate, Signal: sig}, nil
		}
	}
}

func pushHandlerFrame(ts *ThreadSignals, trap *TrapContext, fpu []byte, um UserMemory, sig Signal, d Disposition) error {
	preMask := ts.Mask()

	saveAddr := alignDown(trap.SP-128, 16)
	if saveAddr < frameSize {
		return fmt.Errorf("signal: user stack underflow saving frame for signal %d", sig)
	}

	saveAddr -= frameSize

	buf := encodeFrame(preMask, trap, uint64(d.Restorer), fpu)
	if err := um.WriteAt(saveAddr, buf); err != nil {
		return fmt.Errorf("signal: write handler frame: %w", err)
	}

	trap.PC = uint64(d.Handler)
	trap.SP = saveAddr
	trap.Regs[ArgReg] = uint64(sig)

	ts.SetMask(preMask.Union(d.Mask).Add(sig))

	return nil
}

// SigReturn implements spec.md §4.C's return path: read the saved mask,
// FPU state and trap context back from the user stack at the position
// Deliver wrote them, restore the mask, and overwrite trap in place so
// the original interrupted-syscall return value is preserved (spec.md:
// "return the original user-mode syscall return value so that the
// interrupted return register is not clobbered" — achieved here simply by
// restoring the exact register file that was saved, return-value register
// included).
func SigReturn(ts *ThreadSignals, trap *TrapContext, fpuOut []byte, um UserMemory) error {
	buf := make([]byte, frameSize)
	if err := um.ReadAt(trap.SP, buf); err != nil {
		return fmt.Errorf("signal: read sigreturn frame: %w", err)
	}

	mask, savedTrap, _, fpu := decodeFrame(buf)

	ts.SetMask(mask)
	*trap = savedTrap

	if fpuOut != nil {
		copy(fpuOut, fpu)
	}

	return nil
}
