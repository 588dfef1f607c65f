package fd

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/eonix-go/eonix/kernel/errno"
	"github.com/eonix-go/eonix/kernel/vfs"
)

// FD is a per-process file descriptor number, mirroring original_source's
// FD(u32) newtype. Negative values are reserved for sentinels (AtFDCWD).
type FD int32

// Seek whence values, matching lseek(2).
const (
	SeekSet = 0
	SeekCur = 1
	SeekEnd = 2
)

// File is the open-file-description contract every fd table entry
// implements: an InodeFile, a Pipe end, or a TerminalFile (spec.md §4.F's
// "File variants"). Each concrete type owns its own cursor and open
// flags; dup/dup2 share one File across multiple FDs exactly because
// they share this object rather than copying it.
type File interface {
	Read(ctx context.Context, buf []byte) (int, error)
	Write(ctx context.Context, data []byte) (int, error)
	Seek(ctx context.Context, offset int64, whence int) (int64, error)
	Poll(ctx context.Context, interested PollEvent) (PollEvent, error)
	Readdir(ctx context.Context, offset int, yield func(string, vfs.Ino) bool) (int, error)
	Stat(ctx context.Context) (vfs.StatInfo, error)
	// Ioctl implements ioctl(2): req is the raw request number, arg is
	// whatever bytes the syscall layer already read from the user's
	// argument pointer (empty for a "get"-style request); a non-nil
	// return is written back to that same pointer. Only TerminalFile
	// answers anything; every other variant returns ENOTTY, matching a
	// real kernel's ioctl-on-non-tty behavior.
	Ioctl(ctx context.Context, req uint32, arg []byte) ([]byte, error)
	Flags() OpenFlags
	SetFlags(OpenFlags)
	Close() error
}

// InodeFile is a regular open file or directory backed by a vfs.Dentry,
// mirroring original_source/src/kernel/vfs/file.rs's InodeFile.
type InodeFile struct {
	mu     sync.Mutex
	dentry *vfs.Dentry
	offset int64
	flags  atomic.Uint32
}

// NewInodeFile wraps dentry as an open file description with the given
// open(2) flags.
func NewInodeFile(dentry *vfs.Dentry, flags OpenFlags) *InodeFile {
	f := &InodeFile{dentry: dentry}
	f.flags.Store(uint32(flags))

	return f
}

func (f *InodeFile) Dentry() *vfs.Dentry { return f.dentry }

func (f *InodeFile) Flags() OpenFlags { return OpenFlags(f.flags.Load()) }

// SetFlags implements F_SETFL: only the status flags (append, nonblock)
// are mutable after open, per spec.md §4.F; O_ACCMODE/O_CREAT/O_TRUNC/
// O_EXCL bits in flags are ignored rather than applied.
func (f *InodeFile) SetFlags(flags OpenFlags) {
	const mutable = OAppend | ONonblock

	for {
		old := f.flags.Load()
		next := (old &^ uint32(mutable)) | uint32(flags&mutable)

		if f.flags.CompareAndSwap(old, next) {
			return
		}
	}
}

func (f *InodeFile) Read(ctx context.Context, buf []byte) (int, error) {
	if !f.Flags().Readable() {
		return 0, errno.Wrap(errno.EBADF, "read", nil)
	}

	if f.dentry.IsDir() {
		return 0, errno.Wrap(errno.EISDIR, "read", nil)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	n, err := f.dentry.Inode().ReadAt(ctx, buf, f.offset)
	f.offset += int64(n)

	return n, err
}

func (f *InodeFile) Write(ctx context.Context, data []byte) (int, error) {
	if !f.Flags().Writable() {
		return 0, errno.Wrap(errno.EBADF, "write", nil)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	n, err := f.dentry.Inode().WriteAt(ctx, data, f.offset, f.Flags().Append())
	if err == nil {
		if f.Flags().Append() {
			f.offset = f.dentry.Inode().FileSize()
		} else {
			f.offset += int64(n)
		}
	}

	return n, err
}

func (f *InodeFile) Seek(ctx context.Context, offset int64, whence int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var base int64

	switch whence {
	case SeekSet:
		base = 0
	case SeekCur:
		base = f.offset
	case SeekEnd:
		base = f.dentry.Inode().FileSize()
	default:
		return 0, errno.Wrap(errno.EINVAL, "lseek", nil)
	}

	next := base + offset
	if next < 0 {
		return 0, errno.Wrap(errno.EINVAL, "lseek", nil)
	}

	f.offset = next

	return next, nil
}

// Poll reports a regular file or directory as always ready, matching
// original_source's unconditional POLLIN|POLLOUT for InodeFile.
func (f *InodeFile) Poll(ctx context.Context, interested PollEvent) (PollEvent, error) {
	return interested & (PollReadable | PollWritable), nil
}

func (f *InodeFile) Readdir(ctx context.Context, offset int, yield func(string, vfs.Ino) bool) (int, error) {
	if !f.dentry.IsDir() {
		return 0, errno.Wrap(errno.ENOTDIR, "getdents", nil)
	}

	return f.dentry.Inode().Readdir(ctx, offset, yield)
}

func (f *InodeFile) Stat(ctx context.Context) (vfs.StatInfo, error) {
	return f.dentry.Inode().Statx(vfs.StatxBasic)
}

// Ioctl: a regular file or directory answers no ioctl requests.
func (f *InodeFile) Ioctl(ctx context.Context, req uint32, arg []byte) ([]byte, error) {
	return nil, errno.Wrap(errno.ENOTTY, "ioctl", nil)
}

func (f *InodeFile) Close() error { return nil }
