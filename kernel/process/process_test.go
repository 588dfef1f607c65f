package process_test

import (
	"context"
	"testing"

	"github.com/moby/sys/capability"
	"github.com/stretchr/testify/require"

	"github.com/eonix-go/eonix/kernel/errno"
	"github.com/eonix-go/eonix/kernel/logger"
	"github.com/eonix-go/eonix/kernel/mm"
	"github.com/eonix-go/eonix/kernel/process"
	"github.com/eonix-go/eonix/kernel/signal"
	"github.com/eonix-go/eonix/kernel/vfs"
	"github.com/eonix-go/eonix/kernel/vfs/memfs"
)

func rootContext(t *testing.T) *vfs.FsContext {
	t.Helper()

	fs := memfs.New(nil, 1)
	placeholder := vfs.NewDentry(nil, "mnt-"+t.Name(), nil)

	mount, err := fs.CreateMount("none", 0, placeholder)
	require.NoError(t, err)

	return vfs.NewFsContext(mount.Root())
}

// bootstrap always allocates PID 1, so every test that calls Bootstrap
// needs a fresh process list. Tests run sequentially, so a package-level
// counter sanity-checking "first call" would be redundant; each test
// simply calls Bootstrap once and only once, which is all the global
// list supports.
func bootstrap(t *testing.T) *process.Thread {
	t.Helper()

	init, err := process.Bootstrap(mm.New(logger.Nop), rootContext(t))
	require.NoError(t, err)

	return init
}

func TestBootstrapCreatesInitAsItsOwnAncestor(t *testing.T) {
	init := bootstrap(t)

	require.Equal(t, uint32(1), init.Process.PID())
	require.Equal(t, uint32(0), init.Process.PPID())

	pgid, ok := init.Process.Pgid()
	require.True(t, ok)
	require.Equal(t, uint32(1), pgid)

	sid, ok := init.Process.Sid()
	require.True(t, ok)
	require.Equal(t, uint32(1), sid)
}

func TestForkCreatesChildInheritingPgroupAndSession(t *testing.T) {
	init := bootstrap(t)

	child, err := process.Fork(init)
	require.NoError(t, err)

	require.NotEqual(t, init.Process.PID(), child.Process.PID())
	require.Equal(t, init.Process.PID(), child.Process.PPID())

	childPgid, ok := child.Process.Pgid()
	require.True(t, ok)
	initPgid, _ := init.Process.Pgid()
	require.Equal(t, initPgid, childPgid)

	childSid, ok := child.Process.Sid()
	require.True(t, ok)
	initSid, _ := init.Process.Sid()
	require.Equal(t, initSid, childSid)

	require.NotSame(t, init.Files, child.Files)
	require.NotSame(t, init.FSContext, child.FSContext)
}

func TestCloneThreadJoinsSameProcess(t *testing.T) {
	init := bootstrap(t)

	sibling, err := process.Clone(init, process.CloneArgs{Flags: process.CloneThread | process.CloneFiles | process.CloneFS})
	require.NoError(t, err)

	require.Equal(t, init.Process.PID(), sibling.Process.PID())
	require.NotEqual(t, init.TID(), sibling.TID())
	require.Same(t, init.Files, sibling.Files)
}

func TestExitZombifiesAndNotifiesParent(t *testing.T) {
	init := bootstrap(t)

	child, err := process.Fork(init)
	require.NoError(t, err)

	process.Exit(child, process.WaitObject{Kind: process.WaitExited, ExitCode: 7})

	require.Equal(t, process.StateZombie, child.Process.State())

	result, err := process.Wait(context.Background(), init.Process, process.WaitAny(), 0, nil)
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Equal(t, child.Process.PID(), result.Pid)
	require.Equal(t, process.WaitExited, result.Kind)
	require.Equal(t, uint32(7)<<8, result.WStatus())
}

func TestWaitReturnsECHILDWithNoChildren(t *testing.T) {
	init := bootstrap(t)

	_, err := process.Wait(context.Background(), init.Process, process.WaitAny(), process.WNOHANG, nil)
	require.Error(t, err)
	require.Equal(t, errno.ECHILD, errno.Code(err))
}

func TestExitReparentsChildrenToInit(t *testing.T) {
	init := bootstrap(t)

	mid, err := process.Fork(init)
	require.NoError(t, err)

	grandchild, err := process.Fork(mid)
	require.NoError(t, err)

	process.Exit(mid, process.WaitObject{Kind: process.WaitExited})

	require.Equal(t, init.Process.PID(), grandchild.Process.PPID())
}

func TestSetsidAndSetpgid(t *testing.T) {
	init := bootstrap(t)

	a, err := process.Fork(init)
	require.NoError(t, err)

	_, err = process.Global().Setsid(a.Process)
	require.NoError(t, err)

	// A session leader can't change its own group.
	err = process.Global().Setpgid(a.Process, a.Process.PID())
	require.Error(t, err)

	b, err := process.Fork(a)
	require.NoError(t, err)

	err = process.Global().Setpgid(b.Process, b.Process.PID())
	require.NoError(t, err)

	bpgid, _ := b.Process.Pgid()
	require.Equal(t, b.Process.PID(), bpgid)
}

func TestKillRequiresCapKillForOtherProcesses(t *testing.T) {
	init := bootstrap(t)

	child, err := process.Fork(init)
	require.NoError(t, err)
	require.NoError(t, child.Process.Setuid(1000))

	err = child.Process.Kill(init.Process, signal.SIGTERM)
	require.Error(t, err)

	require.NoError(t, init.Process.Kill(child.Process, signal.SIGTERM))
	require.True(t, init.Process.HasCap(capability.CAP_KILL))
}
