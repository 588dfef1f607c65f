package syscall

import (
	"context"
	"encoding/binary"

	"github.com/eonix-go/eonix/kernel/errno"
	"github.com/eonix-go/eonix/kernel/fd"
	"github.com/eonix-go/eonix/kernel/process"
	"github.com/eonix-go/eonix/kernel/signal"
	"github.com/eonix-go/eonix/kernel/vfs"
)

func init() {
	Register(sysRead, "read", sysReadH)
	Register(sysWrite, "write", sysWriteH)
	Register(sysOpenat, "openat", sysOpenatH)
	Register(sysClose, "close", sysCloseH)
	Register(sysLseek, "lseek", sysLseekH)
	Register(sysFcntl, "fcntl", sysFcntlH)
	Register(sysDup, "dup", sysDupH)
	Register(sysDup3, "dup3", sysDup3H)
	Register(sysPipe2, "pipe2", sysPipe2H)
	Register(sysFtruncate, "ftruncate", sysFtruncateH)
	Register(sysChdir, "chdir", sysChdirH)
	Register(sysGetcwd, "getcwd", sysGetcwdH)
	Register(sysMkdirat, "mkdirat", sysMkdiratH)
	Register(sysUnlinkat, "unlinkat", sysUnlinkatH)
	Register(sysUmask, "umask", sysUmaskH)
	Register(sysNewfstatat, "newfstatat", sysNewfstatatH)
	Register(sysMount, "mount", sysMountH)
	Register(sysUmount2, "umount2", sysUmount2H)
	Register(sysIoctl, "ioctl", sysIoctlH)
	Register(sysGetdents64, "getdents64", sysGetdents64H)
}

// resolvePathAt implements a reduced form of original_source's
// dentry_from: dirfd is honored only as AtFDCWD (resolve relative to the
// caller's cwd) or as an absolute path, since kernel/vfs's FsContext.
// Resolve has no "start walking from this arbitrary dentry" entry point
// (walk.go's resolveComponents always starts at FSRoot or CWD). A real
// dirfd other than AtFDCWD is reported ENOSYS rather than silently
// resolved against the wrong root.
func resolvePathAt(ctx context.Context, t *process.Thread, dirfd fd.FD, path string, followSymlink bool) (*vfs.Dentry, error) {
	if dirfd != fd.AtFDCWD && len(path) > 0 && path[0] != '/' {
		return nil, errno.Wrap(errno.ENOSYS, "openat with non-AT_FDCWD dirfd", nil)
	}

	return t.FSContext.Resolve(ctx, path, followSymlink)
}

func sysReadH(ctx context.Context, t *process.Thread, args Args) (uintptr, error, bool) {
	fdNum := fd.FD(argInt32(args[0]))
	bufAddr := argUint64(args[1])
	count := argUint64(args[2])

	f, err := t.Files.Get(fdNum)
	if err != nil {
		return retErr(err)
	}

	buf := make([]byte, count)

	n, err := f.Read(ctx, buf)
	if err != nil {
		return retErr(err)
	}

	if err := WriteUser(t.Process.MM, bufAddr, buf[:n]); err != nil {
		return retErr(err)
	}

	return ret(uintptr(n))
}

func sysWriteH(ctx context.Context, t *process.Thread, args Args) (uintptr, error, bool) {
	fdNum := fd.FD(argInt32(args[0]))
	bufAddr := argUint64(args[1])
	count := argUint64(args[2])

	f, err := t.Files.Get(fdNum)
	if err != nil {
		return retErr(err)
	}

	buf := make([]byte, count)
	if err := ReadUser(t.Process.MM, bufAddr, buf); err != nil {
		return retErr(err)
	}

	n, err := f.Write(ctx, buf)
	if err != nil {
		return retErr(err)
	}

	return ret(uintptr(n))
}

func sysOpenatH(ctx context.Context, t *process.Thread, args Args) (uintptr, error, bool) {
	dirfd := fd.FD(argInt32(args[0]))
	pathAddr := argUint64(args[1])
	flags := fd.OpenFlags(argUint32(args[2]))
	mode := vfs.Mode(argUint32(args[3]))

	path, err := ReadUserString(t.Process.MM, pathAddr, 4096)
	if err != nil {
		return retErr(err)
	}

	dentry, err := resolvePathAt(ctx, t, dirfd, path, flags.FollowSymlink())
	if err != nil {
		return retErr(err)
	}

	if dentry.IsNegative() {
		if !flags.Directory() && flagsHasCreat(flags) {
			parent := dentry.Parent()
			if parent == nil || parent.Inode() == nil {
				return retErr(errno.Wrap(errno.ENOENT, "openat", nil))
			}

			if err := parent.Inode().Create(ctx, dentry.Name(), mode.Perm()&^t.FSContext.Umask); err != nil {
				return retErr(err)
			}

			dentry, err = resolvePathAt(ctx, t, dirfd, path, flags.FollowSymlink())
			if err != nil {
				return retErr(err)
			}
		} else {
			return retErr(errno.Wrap(errno.ENOENT, "openat", nil))
		}
	}

	newFD, err := t.Files.Open(ctx, dentry, flags)
	if err != nil {
		return retErr(err)
	}

	return ret(uintptr(newFD))
}

func flagsHasCreat(flags fd.OpenFlags) bool { return flags&fd.OCreat != 0 }

func sysCloseH(_ context.Context, t *process.Thread, args Args) (uintptr, error, bool) {
	if err := t.Files.Close(fd.FD(argInt32(args[0]))); err != nil {
		return retErr(err)
	}

	return ret(0)
}

func sysLseekH(ctx context.Context, t *process.Thread, args Args) (uintptr, error, bool) {
	f, err := t.Files.Get(fd.FD(argInt32(args[0])))
	if err != nil {
		return retErr(err)
	}

	offset := int64(argInt64(args[1]))
	whence := int(argInt32(args[2]))

	newOffset, err := f.Seek(ctx, offset, whence)
	if err != nil {
		return retErr(err)
	}

	return ret(uintptr(newOffset))
}

func sysFcntlH(_ context.Context, t *process.Thread, args Args) (uintptr, error, bool) {
	fdNum := fd.FD(argInt32(args[0]))
	cmd := int(argInt32(args[1]))
	arg := uintptr(args[2])

	result, err := t.Files.Fcntl(fdNum, cmd, arg)
	if err != nil {
		return retErr(err)
	}

	return ret(result)
}

func sysDupH(_ context.Context, t *process.Thread, args Args) (uintptr, error, bool) {
	newFD, err := t.Files.Dup(fd.FD(argInt32(args[0])))
	if err != nil {
		return retErr(err)
	}

	return ret(uintptr(newFD))
}

func sysDup3H(_ context.Context, t *process.Thread, args Args) (uintptr, error, bool) {
	oldFD := fd.FD(argInt32(args[0]))
	newFD := fd.FD(argInt32(args[1]))
	flags := fd.OpenFlags(argUint32(args[2]))

	bound, err := t.Files.DupTo(oldFD, newFD, flags)
	if err != nil {
		return retErr(err)
	}

	return ret(uintptr(bound))
}

func sysPipe2H(_ context.Context, t *process.Thread, args Args) (uintptr, error, bool) {
	pipeFDPtr := argUint64(args[0])
	flags := fd.OpenFlags(argUint32(args[1]))

	readFD, writeFD, err := t.Files.Pipe(flags, func() { t.Process.Raise(signal.SIGPIPE) })
	if err != nil {
		return retErr(err)
	}

	var buf [8]byte
	putLE32(buf[0:4], uint32(readFD))
	putLE32(buf[4:8], uint32(writeFD))

	if err := WriteUser(t.Process.MM, pipeFDPtr, buf[:]); err != nil {
		return retErr(err)
	}

	return ret(0)
}

func sysFtruncateH(ctx context.Context, t *process.Thread, args Args) (uintptr, error, bool) {
	f, err := t.Files.Get(fd.FD(argInt32(args[0])))
	if err != nil {
		return retErr(err)
	}

	inodeFile, ok := f.(*fd.InodeFile)
	if !ok {
		return retErr(errno.Wrap(errno.EINVAL, "ftruncate", nil))
	}

	if err := inodeFile.Dentry().Inode().Truncate(ctx, int64(argUint64(args[1]))); err != nil {
		return retErr(err)
	}

	return ret(0)
}

func sysChdirH(ctx context.Context, t *process.Thread, args Args) (uintptr, error, bool) {
	path, err := ReadUserString(t.Process.MM, uint64(args[0]), 4096)
	if err != nil {
		return retErr(err)
	}

	dentry, err := t.FSContext.Resolve(ctx, path, true)
	if err != nil {
		return retErr(err)
	}

	if dentry.IsNegative() {
		return retErr(errno.Wrap(errno.ENOENT, "chdir", nil))
	}

	if !dentry.IsDir() {
		return retErr(errno.Wrap(errno.ENOTDIR, "chdir", nil))
	}

	t.FSContext.CWD = dentry

	return ret(0)
}

func sysGetcwdH(_ context.Context, t *process.Thread, args Args) (uintptr, error, bool) {
	path := dentryPath(t.FSContext.CWD, t.FSContext.FSRoot)

	bufAddr := argUint64(args[0])
	bufSize := argUint64(args[1])

	buf := append([]byte(path), 0)
	if uint64(len(buf)) > bufSize {
		return retErr(errno.Wrap(errno.ERANGE, "getcwd", nil))
	}

	if err := WriteUser(t.Process.MM, bufAddr, buf); err != nil {
		return retErr(err)
	}

	return ret(uintptr(len(buf)))
}

// dentryPath rebuilds an absolute path by walking Parent() up to root,
// the way original_source's Dentry::get_path descends from the root
// cache instead — our vfs package keeps no name cache by itself, so this
// reconstructs it for getcwd(2)'s sake.
func dentryPath(d, root *vfs.Dentry) string {
	if d == root || d.IsRoot() {
		return "/"
	}

	var names []string
	for cur := d; cur != root && !cur.IsRoot(); cur = cur.Parent() {
		names = append([]string{cur.Name()}, names...)
	}

	out := "/"
	for i, n := range names {
		if i > 0 {
			out += "/"
		}
		out += n
	}

	return out
}

func sysMkdiratH(ctx context.Context, t *process.Thread, args Args) (uintptr, error, bool) {
	dirfd := fd.FD(argInt32(args[0]))
	pathAddr := argUint64(args[1])
	mode := vfs.Mode(argUint32(args[2]))

	path, err := ReadUserString(t.Process.MM, pathAddr, 4096)
	if err != nil {
		return retErr(err)
	}

	dentry, err := resolvePathAt(ctx, t, dirfd, path, false)
	if err != nil {
		return retErr(err)
	}

	if !dentry.IsNegative() {
		return retErr(errno.Wrap(errno.EEXIST, "mkdirat", nil))
	}

	parent := dentry.Parent()
	if parent == nil || parent.Inode() == nil {
		return retErr(errno.Wrap(errno.ENOENT, "mkdirat", nil))
	}

	if err := parent.Inode().Mkdir(ctx, dentry.Name(), mode.Perm()&^t.FSContext.Umask); err != nil {
		return retErr(err)
	}

	return ret(0)
}

func sysUnlinkatH(ctx context.Context, t *process.Thread, args Args) (uintptr, error, bool) {
	dirfd := fd.FD(argInt32(args[0]))
	pathAddr := argUint64(args[1])

	path, err := ReadUserString(t.Process.MM, pathAddr, 4096)
	if err != nil {
		return retErr(err)
	}

	dentry, err := resolvePathAt(ctx, t, dirfd, path, false)
	if err != nil {
		return retErr(err)
	}

	if dentry.IsNegative() {
		return retErr(errno.Wrap(errno.ENOENT, "unlinkat", nil))
	}

	parent := dentry.Parent()
	if parent == nil || parent.Inode() == nil {
		return retErr(errno.Wrap(errno.ENOENT, "unlinkat", nil))
	}

	if err := parent.Inode().Unlink(ctx, dentry.Name()); err != nil {
		return retErr(err)
	}

	return ret(0)
}

func sysUmaskH(_ context.Context, t *process.Thread, args Args) (uintptr, error, bool) {
	next := vfs.Mode(argUint32(args[0])) & 0o777

	old := t.FSContext.Umask
	t.FSContext.Umask = next

	return ret(uintptr(old))
}

const atSymlinkNofollow = 0x100

// encodeStat renders a simplified struct stat: real glibc layout is
// architecture-specific and padding-heavy, so this lays out the fields
// spec.md §4.E's StatInfo carries sequentially as 8/4-byte LE words
// rather than matching glibc's exact byte offsets.
func encodeStat(info vfs.StatInfo) []byte {
	buf := make([]byte, 112)

	putLE64(buf[0:8], uint64(info.Ino))
	putLE32(buf[8:12], uint32(info.Mode))
	putLE32(buf[12:16], info.Nlink)
	putLE32(buf[16:20], info.UID)
	putLE32(buf[20:24], info.GID)
	putLE64(buf[24:32], uint64(info.RDev))
	putLE64(buf[32:40], uint64(info.Size))
	putLE64(buf[40:48], uint64(info.BlkSize))
	putLE64(buf[48:56], uint64(info.Blocks))
	putLE64(buf[56:64], uint64(info.Atime.Unix()))
	putLE64(buf[64:72], uint64(info.Atime.Nanosecond()))
	putLE64(buf[72:80], uint64(info.Mtime.Unix()))
	putLE64(buf[80:88], uint64(info.Mtime.Nanosecond()))
	putLE64(buf[88:96], uint64(info.Ctime.Unix()))
	putLE64(buf[96:104], uint64(info.Ctime.Nanosecond()))
	putLE64(buf[104:112], uint64(info.Dev))

	return buf
}

func sysNewfstatatH(ctx context.Context, t *process.Thread, args Args) (uintptr, error, bool) {
	dirfd := fd.FD(argInt32(args[0]))
	pathAddr := argUint64(args[1])
	statbufAddr := argUint64(args[2])
	flags := argUint32(args[3])

	path, err := ReadUserString(t.Process.MM, pathAddr, 4096)
	if err != nil {
		return retErr(err)
	}

	followSymlink := flags&atSymlinkNofollow == 0

	dentry, err := resolvePathAt(ctx, t, dirfd, path, followSymlink)
	if err != nil {
		return retErr(err)
	}

	if dentry.IsNegative() {
		return retErr(errno.Wrap(errno.ENOENT, "newfstatat", nil))
	}

	info, err := dentry.Inode().Statx(vfs.StatxBasic)
	if err != nil {
		return retErr(err)
	}

	if err := WriteUser(t.Process.MM, statbufAddr, encodeStat(info)); err != nil {
		return retErr(err)
	}

	return ret(0)
}

func sysMountH(ctx context.Context, t *process.Thread, args Args) (uintptr, error, bool) {
	source, err := ReadUserString(t.Process.MM, argUint64(args[0]), 4096)
	if err != nil {
		return retErr(err)
	}

	target, err := ReadUserString(t.Process.MM, argUint64(args[1]), 4096)
	if err != nil {
		return retErr(err)
	}

	fstype, err := ReadUserString(t.Process.MM, argUint64(args[2]), 256)
	if err != nil {
		return retErr(err)
	}

	flags := argUint64(args[3])

	mountpoint, err := t.FSContext.Resolve(ctx, target, true)
	if err != nil {
		return retErr(err)
	}

	if mountpoint.IsNegative() {
		return retErr(errno.Wrap(errno.ENOENT, "mount", nil))
	}

	if err := vfs.DoMount(mountpoint, source, target, fstype, flags); err != nil {
		return retErr(err)
	}

	return ret(0)
}

func sysUmount2H(_ context.Context, t *process.Thread, args Args) (uintptr, error, bool) {
	target, err := ReadUserString(t.Process.MM, argUint64(args[0]), 4096)
	if err != nil {
		return retErr(err)
	}

	if err := vfs.Unmount(target); err != nil {
		return retErr(err)
	}

	return ret(0)
}

// termiosWireSize mirrors kernel/terminal's own termiosWireSize (unexported
// there): IFlag/OFlag/CFlag/LFlag/Line+pad, then a 32-byte CC array.
const termiosWireSize = 2 + 2 + 4 + 2 + 1 + 1 + 32

// ioctlSizes reports how many bytes sysIoctlH must read from the user's
// arg pointer before calling File.Ioctl, and how many bytes of its result
// get written back, keyed by request number. Reading/writing the wrong
// width off a real argument pointer would risk spurious EFAULTs on a
// pointer to a smaller object, so each known request gets its own exact
// pair rather than a single worst-case buffer.
func ioctlSizes(req uint32) (readSize, writeSize int) {
	switch req {
	case fd.IoctlTIOCGPGRP:
		return 0, 4
	case fd.IoctlTIOCSPGRP:
		return 4, 0
	case fd.IoctlTCGETS:
		return 0, termiosWireSize
	case fd.IoctlTCSETS:
		return termiosWireSize, 0
	case fd.IoctlTIOCGWINSZ:
		return 0, 8
	default:
		return 0, 0
	}
}

func sysIoctlH(ctx context.Context, t *process.Thread, args Args) (uintptr, error, bool) {
	fdNum := fd.FD(argInt32(args[0]))
	req := argUint32(args[1])
	argAddr := argUint64(args[2])

	f, err := t.Files.Get(fdNum)
	if err != nil {
		return retErr(err)
	}

	readSize, writeSize := ioctlSizes(req)

	var in []byte
	if readSize > 0 {
		in = make([]byte, readSize)
		if err := ReadUser(t.Process.MM, argAddr, in); err != nil {
			return retErr(err)
		}
	}

	out, err := f.Ioctl(ctx, req, in)
	if err != nil {
		return retErr(err)
	}

	if writeSize > 0 {
		if len(out) < writeSize {
			return retErr(errno.Wrap(errno.EINVAL, "ioctl", nil))
		}

		if err := WriteUser(t.Process.MM, argAddr, out[:writeSize]); err != nil {
			return retErr(err)
		}
	}

	return ret(0)
}

// encodeDirent64 lays out one directory entry in a simplified
// linux_dirent64-shaped record (ino, next-entry offset, record length,
// file type, NUL-terminated name) rather than glibc's byte-aligned
// struct, the same non-ABI-exact precedent encodeStat sets. d_type is
// always DT_UNKNOWN: File.Readdir's yield callback hands back only a
// name and an inode number, not a file type.
func encodeDirent64(ino vfs.Ino, nextOff int64, name string) []byte {
	nameBytes := append([]byte(name), 0)
	reclen := 8 + 8 + 2 + 1 + len(nameBytes)

	buf := make([]byte, reclen)
	putLE64(buf[0:8], uint64(ino))
	putLE64(buf[8:16], uint64(nextOff))
	binary.LittleEndian.PutUint16(buf[16:18], uint16(reclen))
	buf[18] = 0 // DT_UNKNOWN
	copy(buf[19:], nameBytes)

	return buf
}

// sysGetdents64H fills the caller's buffer with as many directory
// entries as fit, resuming from wherever the fd's previous getdents64
// call left off. That position is the fd's own Seek cursor rather than a
// new field on File: Readdir already takes an entry-index offset, and
// lseek(fd, 0, SEEK_CUR)/SEEK_SET on a directory fd is exactly how a real
// kernel lets a caller save and restore a telldir-style cookie.
func sysGetdents64H(ctx context.Context, t *process.Thread, args Args) (uintptr, error, bool) {
	fdNum := fd.FD(argInt32(args[0]))
	bufAddr := argUint64(args[1])
	count := argUint64(args[2])

	f, err := t.Files.Get(fdNum)
	if err != nil {
		return retErr(err)
	}

	pos, err := f.Seek(ctx, 0, fd.SeekCur)
	if err != nil {
		return retErr(err)
	}

	var buf []byte
	entries := 0

	_, err = f.Readdir(ctx, int(pos), func(name string, ino vfs.Ino) bool {
		rec := encodeDirent64(ino, pos+int64(entries)+1, name)
		if uint64(len(buf)+len(rec)) > count {
			return false
		}

		buf = append(buf, rec...)
		entries++

		return true
	})
	if err != nil {
		return retErr(err)
	}

	if entries > 0 {
		if _, err := f.Seek(ctx, pos+int64(entries), fd.SeekSet); err != nil {
			return retErr(err)
		}
	}

	if err := WriteUser(t.Process.MM, bufAddr, buf); err != nil {
		return retErr(err)
	}

	return ret(uintptr(len(buf)))
}
