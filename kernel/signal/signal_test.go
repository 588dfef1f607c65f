package signal_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eonix-go/eonix/kernel/signal"
)

type fakeWaker struct{ woken int }

func (f *fakeWaker) Wake() { f.woken++ }

type fakeUserMemory struct {
	mem map[uint64][]byte
}

func newFakeUserMemory() *fakeUserMemory { return &fakeUserMemory{mem: map[uint64][]byte{}} }

func (f *fakeUserMemory) WriteAt(addr uint64, p []byte) error {
	buf := make([]byte, len(p))
	copy(buf, p)
	f.mem[addr] = buf

	return nil
}

func (f *fakeUserMemory) ReadAt(addr uint64, p []byte) error {
	buf, ok := f.mem[addr]
	if !ok || len(buf) < len(p) {
		return errNotFound{}
	}

	copy(p, buf)

	return nil
}

type errNotFound struct{}

func (errNotFound) Error() string { return "not found" }

func TestRaisePicksFirstUnmaskedThreadByTID(t *testing.T) {
	proc := signal.NewProcessSignals()

	blocked := signal.NewThreadSignals(1)
	blocked.SetMask(signal.Mask(0).Add(signal.SIGUSR1))

	accepting := signal.NewThreadSignals(2)

	delivered := signal.Raise(proc, []*signal.ThreadSignals{accepting, blocked}, signal.SIGUSR1)
	require.Same(t, accepting, delivered)
	require.True(t, accepting.HasUnmasked())
	require.False(t, blocked.HasUnmasked())
}

func TestRaiseDropsDefaultIgnoredSignal(t *testing.T) {
	proc := signal.NewProcessSignals()
	th := signal.NewThreadSignals(1)

	delivered := signal.Raise(proc, []*signal.ThreadSignals{th}, signal.SIGCHLD)
	require.Nil(t, delivered)
	require.False(t, th.HasUnmasked())
}

func TestRaiseDropsSigIgn(t *testing.T) {
	proc := signal.NewProcessSignals()
	require.NoError(t, proc.Set(signal.SIGTERM, signal.Disposition{Action: signal.ActionIgnore}))

	th := signal.NewThreadSignals(1)
	delivered := signal.Raise(proc, []*signal.ThreadSignals{th}, signal.SIGTERM)
	require.Nil(t, delivered)
}

func TestSetDispositionRejectsSigkillSigstop(t *testing.T) {
	proc := signal.NewProcessSignals()
	require.ErrorIs(t, proc.Set(signal.SIGKILL, signal.Disposition{Action: signal.ActionIgnore}), signal.ErrInvalidDisposition)
	require.ErrorIs(t, proc.Set(signal.SIGSTOP, signal.Disposition{Action: signal.ActionIgnore}), signal.ErrInvalidDisposition)
}

func TestDeliverDefaultTerminate(t *testing.T) {
	proc := signal.NewProcessSignals()
	th := signal.NewThreadSignals(1)
	signal.Raise(proc, []*signal.ThreadSignals{th}, signal.SIGTERM)

	res, err := signal.Deliver(th, proc, &signal.TrapContext{}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, signal.OutcomeDefaultTerminate, res.Outcome)
	require.Equal(t, signal.SIGTERM, res.Signal)
}

func TestDeliverHandlerThenSigReturnRoundTrips(t *testing.T) {
	proc := signal.NewProcessSignals()
	require.NoError(t, proc.Set(signal.SIGUSR1, signal.Disposition{
		Action:  signal.ActionHandler,
		Handler: 0x4010_0000,
		Mask:    signal.Mask(0).Add(signal.SIGUSR2),
	}))

	th := signal.NewThreadSignals(1)
	preMask := signal.Mask(0).Add(signal.SIGTERM)
	th.SetMask(preMask)

	signal.Raise(proc, []*signal.ThreadSignals{th}, signal.SIGUSR1)

	um := newFakeUserMemory()
	trap := &signal.TrapContext{PC: 0x1000, SP: 0x7fff_0000}
	trap.Regs[signal.RetValReg] = 42

	originalTrap := *trap
	fpu := make([]byte, signal.FPUStateSize)
	fpu[0] = 0xAB

	res, err := signal.Deliver(th, proc, trap, fpu, um)
	require.NoError(t, err)
	require.Equal(t, signal.OutcomeHandler, res.Outcome)
	require.Equal(t, uint64(0x4010_0000), trap.PC)
	require.Equal(t, uint64(signal.SIGUSR1), trap.Regs[signal.ArgReg])

	newMask := th.Mask()
	require.True(t, newMask.Has(signal.SIGUSR1))
	require.True(t, newMask.Has(signal.SIGUSR2))
	require.True(t, newMask.Has(signal.SIGTERM))

	fpuOut := make([]byte, signal.FPUStateSize)
	require.NoError(t, signal.SigReturn(th, trap, fpuOut, um))

	require.Equal(t, originalTrap, *trap)
	require.Equal(t, preMask, th.Mask())
	require.Equal(t, byte(0xAB), fpuOut[0])
}
