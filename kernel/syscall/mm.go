package syscall

import (
	"context"

	"github.com/eonix-go/eonix/kernel/errno"
	"github.com/eonix-go/eonix/kernel/fd"
	"github.com/eonix-go/eonix/kernel/mm"
	"github.com/eonix-go/eonix/kernel/process"
	"github.com/eonix-go/eonix/kernel/vfs"
)

func init() {
	Register(sysMmap, "mmap", sysMmapH)
	Register(sysMunmap, "munmap", sysMunmapH)
	Register(sysBrk, "brk", sysBrkH)
	Register(sysMprotect, "mprotect", sysMprotectH)
}

// mmap prot/flags bits, matching original_source's UserMmapProtocol/
// UserMmapFlags (kernel/constants.rs).
const (
	protRead  = 0x1
	protWrite = 0x2
	protExec  = 0x4

	mapShared    = 0x01
	mapPrivate   = 0x02
	mapFixed     = 0x10
	mapAnonymous = 0x20
)

const pageSize = 0x1000

func alignPage(v uint64) uint64 { return (v + pageSize - 1) &^ (pageSize - 1) }

// inodeFileBacking adapts a vfs.Inode to mm.FileBacking. The two
// interfaces disagree on ReadAt's argument order (vfs.Inode fixes
// ReadAt(ctx, buf, offset) so every inode implementation, not just a
// file-backed mapping's, shares one signature; mm.FileBacking wants
// ReadAt(ctx, offset, buf) to read as "read at this offset into p"), so
// no inode can satisfy both directly — this wrapper is the seam instead
// of forcing one interface to bend to the other.
type inodeFileBacking struct {
	inode vfs.Inode
}

func (b inodeFileBacking) ReadAt(ctx context.Context, offset int64, p []byte) (int, error) {
	return b.inode.ReadAt(ctx, p, offset)
}

func (b inodeFileBacking) Size() int64 { return b.inode.FileSize() }

// sysMmapH implements mmap(2)'s raw syscall form (byte offset, not the
// mmap2/mmap_pgoff page-offset variant original_source's mmap_pgoff
// handles) since golang.org/x/sys/unix.SYS_MMAP on amd64 is the byte-
// offset entry point. Only MAP_PRIVATE is supported (anonymous or
// file-backed), the same restriction original_source's mmap_pgoff
// enforces (check_impl against MAP_ANONYMOUS/MAP_PRIVATE); MAP_SHARED
// isn't. A file-backed mapping uses kernel/mm's demand-paging fault path
// directly against the fd's inode, reading straight off it rather than
// through a page cache this build doesn't have.
func sysMmapH(ctx context.Context, t *process.Thread, args Args) (uintptr, error, bool) {
	addr := argUint64(args[0])
	length := argUint64(args[1])
	prot := argUint32(args[2])
	flags := argUint32(args[3])
	fdNum := argInt32(args[4])
	fileOffset := argUint64(args[5])

	if addr%pageSize != 0 && addr != 0 {
		return retErr(errno.Wrap(errno.EINVAL, "mmap", nil))
	}

	if length == 0 {
		return retErr(errno.Wrap(errno.EINVAL, "mmap", nil))
	}

	length = alignPage(length)

	if flags&mapPrivate == 0 {
		return retErr(errno.Wrap(errno.EINVAL, "mmap", nil))
	}

	var mapping mm.Mapping

	if flags&mapAnonymous != 0 {
		if fdNum != -1 {
			return retErr(errno.Wrap(errno.EINVAL, "mmap", nil))
		}

		mapping = mm.Mapping{Kind: mm.MappingAnonymous, Length: length}
	} else {
		if fileOffset%pageSize != 0 {
			return retErr(errno.Wrap(errno.EINVAL, "mmap", nil))
		}

		f, err := t.Files.Get(fd.FD(fdNum))
		if err != nil {
			return retErr(err)
		}

		inodeFile, ok := f.(*fd.InodeFile)
		if !ok {
			return retErr(errno.Wrap(errno.ENODEV, "mmap: fd is not a regular file", nil))
		}

		mapping = mm.Mapping{
			Kind:   mm.MappingFile,
			File:   inodeFileBacking{inode: inodeFile.Dentry().Inode()},
			Offset: fileOffset,
			Length: length,
		}
	}

	perm := mm.Permission{
		Write:   prot&protWrite != 0,
		Execute: prot&protExec != 0,
	}

	result, err := t.Process.MM.Mmap(addr, length, mapping, perm, flags&mapFixed != 0)
	if err != nil {
		return retErr(err)
	}

	return ret(uintptr(result))
}

func sysMunmapH(_ context.Context, t *process.Thread, args Args) (uintptr, error, bool) {
	addr := argUint64(args[0])
	length := argUint64(args[1])

	if addr%pageSize != 0 || length == 0 {
		return retErr(errno.Wrap(errno.EINVAL, "munmap", nil))
	}

	if err := t.Process.MM.Unmap(addr, alignPage(length)); err != nil {
		return retErr(err)
	}

	return ret(0)
}

func sysBrkH(_ context.Context, t *process.Thread, args Args) (uintptr, error, bool) {
	addr := argUint64(args[0])

	if addr == 0 {
		return ret(uintptr(t.Process.MM.BreakPos()))
	}

	return ret(uintptr(t.Process.MM.SetBreak(addr)))
}

// sysMprotectH is unimplemented: MMArea's permission is fixed at mmap
// time in this build (no per-area Protect/Reprotect entry point exists
// in kernel/mm yet), so mprotect(2) succeeds as a no-op against an
// existing mapping rather than failing calls that expect it to exist,
// matching madvise's keep_alive stub treatment in original_source.
func sysMprotectH(_ context.Context, t *process.Thread, args Args) (uintptr, error, bool) {
	addr := argUint64(args[0])
	length := argUint64(args[1])

	if addr%pageSize != 0 || length == 0 {
		return retErr(errno.Wrap(errno.EINVAL, "mprotect", nil))
	}

	found := false
	for _, area := range t.Process.MM.Areas() {
		if area.Range.Contains(addr) {
			found = true
			break
		}
	}

	if !found {
		return retErr(errno.Wrap(errno.ENOMEM, "mprotect", nil))
	}

	return ret(0)
}
