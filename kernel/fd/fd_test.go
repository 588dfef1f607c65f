package fd_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eonix-go/eonix/kernel/errno"
	"github.com/eonix-go/eonix/kernel/fd"
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

func TestOpenAllocatesLowestAvailableFd(t *testing.T) {
	ctx := context.Background()
	fc := rootContext(t)
	require.NoError(t, fc.FSRoot.Inode().Create(ctx, "a", vfs.Mode(0o644)))

	table := fd.NewTable()
	dentry, err := fc.Resolve(ctx, "/a", false)
	require.NoError(t, err)

	f0, err := table.Open(ctx, dentry, fd.ORdWr)
	require.NoError(t, err)
	require.Equal(t, fd.FD(0), f0)

	f1, err := table.Open(ctx, dentry, fd.ORdWr)
	require.NoError(t, err)
	require.Equal(t, fd.FD(1), f1)

	require.NoError(t, table.Close(f0))

	// fd_min_avail drops back to 0, so the next open reuses it instead of
	// growing the table.
	f2, err := table.Open(ctx, dentry, fd.ORdWr)
	require.NoError(t, err)
	require.Equal(t, fd.FD(0), f2)
}

func TestDupAndDup2Semantics(t *testing.T) {
	ctx := context.Background()
	fc := rootContext(t)
	require.NoError(t, fc.FSRoot.Inode().Create(ctx, "a", vfs.Mode(0o644)))
	require.NoError(t, fc.FSRoot.Inode().Create(ctx, "b", vfs.Mode(0o644)))

	table := fd.NewTable()
	da, err := fc.Resolve(ctx, "/a", false)
	require.NoError(t, err)
	db, err := fc.Resolve(ctx, "/b", false)
	require.NoError(t, err)

	original, err := table.Open(ctx, da, fd.ORdWr)
	require.NoError(t, err)

	dupped, err := table.Dup(original)
	require.NoError(t, err)
	require.NotEqual(t, original, dupped)

	other, err := table.Open(ctx, db, fd.ORdWr)
	require.NoError(t, err)

	// dup2-style rebind: other now aliases original's file, closing its
	// previous binding rather than erroring with EBADF/EEXIST.
	rebound, err := table.DupTo(original, other, 0)
	require.NoError(t, err)
	require.Equal(t, other, rebound)

	f, err := table.Get(rebound)
	require.NoError(t, err)

	n, err := f.Write(ctx, []byte("hi"))
	require.NoError(t, err)
	require.Equal(t, 2, n)

	buf := make([]byte, 2)
	_, err = f.Seek(ctx, 0, fd.SeekSet)
	require.NoError(t, err)
	n, err = f.Read(ctx, buf)
	require.NoError(t, err)
	require.Equal(t, "hi", string(buf[:n]))
}

func TestFcntlDupFDCloexecAndFlags(t *testing.T) {
	ctx := context.Background()
	fc := rootContext(t)
	require.NoError(t, fc.FSRoot.Inode().Create(ctx, "a", vfs.Mode(0o644)))

	table := fd.NewTable()
	dentry, err := fc.Resolve(ctx, "/a", false)
	require.NoError(t, err)

	f, err := table.Open(ctx, dentry, fd.ORdWr)
	require.NoError(t, err)

	ret, err := table.Fcntl(f, fd.FDupFDCloexec, 10)
	require.NoError(t, err)
	newFD := fd.FD(ret)
	require.GreaterOrEqual(t, int(newFD), 10)

	flags, err := table.Fcntl(newFD, fd.FGetFD, 0)
	require.NoError(t, err)
	require.Equal(t, uintptr(fd.FDCloexec), flags)

	table.OnExec()
	_, err = table.Get(newFD)
	require.Error(t, err)
	require.Equal(t, errno.EBADF, errno.Code(err))

	// original fd survives exec since it was never marked CLOEXEC.
	_, err = table.Get(f)
	require.NoError(t, err)

	_, err = table.Fcntl(f, fd.FSetFL, uintptr(fd.OAppend|fd.OCreat))
	require.NoError(t, err)

	got, err := table.Fcntl(f, fd.FGetFL, 0)
	require.NoError(t, err)
	// O_CREAT must never stick via F_SETFL, only O_APPEND does.
	require.Equal(t, fd.OAppend|fd.ORdWr, fd.OpenFlags(got))
}

func TestPipeBlocksThenDrainsAndEOFs(t *testing.T) {
	ctx := context.Background()
	table := fd.NewTable()

	readFD, writeFD, err := table.Pipe(0, nil)
	require.NoError(t, err)

	writer, err := table.Get(writeFD)
	require.NoError(t, err)
	reader, err := table.Get(readFD)
	require.NoError(t, err)

	n, err := writer.Write(ctx, []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, 5, n)

	buf := make([]byte, 5)
	n, err = reader.Read(ctx, buf)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf[:n]))

	require.NoError(t, table.Close(writeFD))

	n, err = reader.Read(ctx, buf)
	require.NoError(t, err)
	require.Equal(t, 0, n) // EOF once write end closed and buffer drained
}

func TestPipeWriteToClosedReadEndRaisesAndEPIPEs(t *testing.T) {
	ctx := context.Background()
	table := fd.NewTable()

	_, writeFD, err := table.Pipe(0, nil)
	require.NoError(t, err)

	raised := false
	raiseFn := func() { raised = true }
	// Rebuild with the SIGPIPE hook wired, mirroring how kernel/process
	// would construct the pipe for a real thread.
	readFD2, writeFD2, err := table.Pipe(0, raiseFn)
	require.NoError(t, err)

	require.NoError(t, table.Close(readFD2))

	writer, err := table.Get(writeFD2)
	require.NoError(t, err)

	_, err = writer.Write(ctx, []byte("x"))
	require.Error(t, err)
	require.Equal(t, errno.EPIPE, errno.Code(err))
	require.True(t, raised)

	require.NoError(t, table.Close(writeFD))
}

func TestPipeWriterBlocksUntilReaderDrains(t *testing.T) {
	ctx := context.Background()
	table := fd.NewTable()

	readFD, writeFD, err := table.Pipe(0, nil)
	require.NoError(t, err)

	writer, err := table.Get(writeFD)
	require.NoError(t, err)
	reader, err := table.Get(readFD)
	require.NoError(t, err)

	big := make([]byte, 4096)
	n, err := writer.Write(ctx, big)
	require.NoError(t, err)
	require.Equal(t, 4096, n)

	done := make(chan struct{})

	go func() {
		_, werr := writer.Write(ctx, []byte("more"))
		require.NoError(t, werr)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("write should have blocked on a full pipe")
	case <-time.After(50 * time.Millisecond):
	}

	buf := make([]byte, 4096)
	_, err = reader.Read(ctx, buf)
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("write never unblocked after reader drained the pipe")
	}
}

func TestFileArrayNewClonedIsIndependentTable(t *testing.T) {
	ctx := context.Background()
	fc := rootContext(t)
	require.NoError(t, fc.FSRoot.Inode().Create(ctx, "a", vfs.Mode(0o644)))

	parent := fd.NewTable()
	dentry, err := fc.Resolve(ctx, "/a", false)
	require.NoError(t, err)

	f, err := parent.Open(ctx, dentry, fd.ORdWr)
	require.NoError(t, err)

	child := fd.NewCloned(parent)
	require.NoError(t, child.Close(f))

	// Closing in the clone must not affect the parent's table.
	_, err = parent.Get(f)
	require.NoError(t, err)

	shared := fd.NewShared(parent)
	require.NoError(t, shared.Close(f))

	_, err = parent.Get(f)
	require.Error(t, err)
}
