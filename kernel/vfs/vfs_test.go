package vfs_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eonix-go/eonix/kernel/errno"
	"github.com/eonix-go/eonix/kernel/vfs"
	"github.com/eonix-go/eonix/kernel/vfs/memfs"
)

func mountRoot(t *testing.T) *vfs.FsContext {
	t.Helper()

	// Each test builds its own memfs root directly from the Mount
	// returned by CreateMount rather than going through the process-wide
	// DoMount/dcache path, so concurrently run tests never share a
	// dentry-cache namespace.
	fs := memfs.New(nil, 1)
	placeholder := vfs.NewDentry(nil, "mountpoint-"+t.Name(), nil)

	mount, err := fs.CreateMount("none", 0, placeholder)
	require.NoError(t, err)

	return vfs.NewFsContext(mount.Root())
}

func TestMkdirLookupAndCreate(t *testing.T) {
	fc := mountRoot(t)
	ctx := context.Background()

	require.NoError(t, fc.FSRoot.Inode().Mkdir(ctx, "etc", vfs.Mode(0o755)))

	etc, err := fc.Resolve(ctx, "/etc", false)
	require.NoError(t, err)
	require.True(t, etc.IsDir())

	require.NoError(t, etc.Inode().Create(ctx, "passwd", vfs.Mode(0o644)))

	passwd, err := fc.Resolve(ctx, "/etc/passwd", false)
	require.NoError(t, err)
	require.False(t, passwd.IsDir())

	n, err := passwd.Inode().WriteAt(ctx, []byte("root:x:0:0"), 0, false)
	require.NoError(t, err)
	require.Equal(t, 10, n)

	buf := make([]byte, 10)
	n, err = passwd.Inode().ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	require.Equal(t, "root:x:0:0", string(buf[:n]))
}

func TestLookupMissReportsENOENT(t *testing.T) {
	fc := mountRoot(t)
	ctx := context.Background()

	_, err := fc.Resolve(ctx, "/nope", false)
	require.Error(t, err)
	require.Equal(t, errno.ENOENT, errno.Code(err))
}

func TestDotDotStaysAtRoot(t *testing.T) {
	fc := mountRoot(t)
	ctx := context.Background()

	d, err := fc.Resolve(ctx, "/../../..", false)
	require.NoError(t, err)
	require.True(t, d.IsDir())
}

func TestSymlinkFollowAndELOOP(t *testing.T) {
	fc := mountRoot(t)
	ctx := context.Background()

	require.NoError(t, fc.FSRoot.Inode().Mkdir(ctx, "target", vfs.Mode(0o755)))
	require.NoError(t, fc.FSRoot.Inode().Symlink(ctx, "link", "/target"))

	resolved, err := fc.Resolve(ctx, "/link", true)
	require.NoError(t, err)
	require.True(t, resolved.IsDir())

	notFollowed, err := fc.Resolve(ctx, "/link", false)
	require.NoError(t, err)
	require.True(t, notFollowed.IsSymlink())

	// A self-referential symlink must ELOOP rather than hang.
	require.NoError(t, fc.FSRoot.Inode().Symlink(ctx, "loop", "/loop"))
	_, err = fc.Resolve(ctx, "/loop", true)
	require.Error(t, err)
	require.Equal(t, errno.ELOOP, errno.Code(err))
}

func TestRenameReplaceNoReplaceExchange(t *testing.T) {
	fc := mountRoot(t)
	ctx := context.Background()
	root := fc.FSRoot.Inode()

	require.NoError(t, root.Create(ctx, "a", vfs.Mode(0o644)))
	require.NoError(t, root.Create(ctx, "b", vfs.Mode(0o644)))

	require.NoError(t, vfs.Rename(ctx, fc.FSRoot, fc.FSRoot, "a", "c", vfs.RenameReplace))

	_, err := fc.Resolve(ctx, "/a", false)
	require.Error(t, err)

	_, err = fc.Resolve(ctx, "/c", false)
	require.NoError(t, err)

	err = vfs.Rename(ctx, fc.FSRoot, fc.FSRoot, "c", "b", vfs.RenameNoReplace)
	require.Error(t, err)
	require.Equal(t, errno.EEXIST, errno.Code(err))

	cBefore, err := fc.Resolve(ctx, "/c", false)
	require.NoError(t, err)
	bBefore, err := fc.Resolve(ctx, "/b", false)
	require.NoError(t, err)
	cIno, bIno := cBefore.Inode().Data().Ino(), bBefore.Inode().Data().Ino()

	require.NoError(t, vfs.Rename(ctx, fc.FSRoot, fc.FSRoot, "c", "b", vfs.RenameExchange))

	cAfter, err := fc.Resolve(ctx, "/c", false)
	require.NoError(t, err)
	require.Equal(t, bIno, cAfter.Inode().Data().Ino())

	bAfter, err := fc.Resolve(ctx, "/b", false)
	require.NoError(t, err)
	require.Equal(t, cIno, bAfter.Inode().Data().Ino())
}

func TestUnmountRestoresOriginalBinding(t *testing.T) {
	require.NoError(t, vfs.RegisterFilesystem("memfs-unmount", memfs.New(nil, 2)))

	fc := mountRoot(t)
	ctx := context.Background()
	require.NoError(t, fc.FSRoot.Inode().Mkdir(ctx, "mnt", vfs.Mode(0o755)))

	mnt, err := fc.Resolve(ctx, "/mnt", false)
	require.NoError(t, err)

	require.NoError(t, vfs.DoMount(mnt, "none", "/tmp-unmount", "memfs-unmount", 0))
	require.NoError(t, vfs.Unmount("/tmp-unmount"))

	opts := vfs.ProcMounts()
	require.NotContains(t, opts, "/tmp-unmount")

	restored, err := fc.Resolve(ctx, "/mnt", false)
	require.NoError(t, err)
	require.Same(t, mnt, restored)
}
