package vfs

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eonix-go/eonix/kernel/errno"
)

// Ino is an inode number, unique within a single Superblock.
type Ino uint64

// DevID packs (major<<8 | minor), matching original_source's DevId.
type DevID uint64

// StatMask selects which fields Statx populates, mirroring the Linux
// STATX_* bits original_source/src/kernel/vfs/inode/statx.rs checks.
type StatMask uint32

const (
	StatxType   StatMask = 1 << 0
	StatxMode   StatMask = 1 << 1
	StatxNlink  StatMask = 1 << 2
	StatxUID    StatMask = 1 << 3
	StatxGID    StatMask = 1 << 4
	StatxAtime  StatMask = 1 << 5
	StatxMtime  StatMask = 1 << 6
	StatxCtime  StatMask = 1 << 7
	StatxIno    StatMask = 1 << 8
	StatxSize   StatMask = 1 << 9
	StatxBlocks StatMask = 1 << 10
	StatxBasic  StatMask = StatxType | StatxMode | StatxNlink | StatxUID | StatxGID |
		StatxAtime | StatxMtime | StatxCtime | StatxIno | StatxSize | StatxBlocks
)

// StatInfo is the result of Statx, a subset of struct statx.
type StatInfo struct {
	Ino     Ino
	Size    int64
	Nlink   uint32
	UID     uint32
	GID     uint32
	Mode    Mode
	Atime   time.Time
	Mtime   time.Time
	Ctime   time.Time
	Blocks  int64
	BlkSize uint32
	RDev    DevID
	Dev     DevID
}

// RenameData bundles a rename operation's endpoints and flags, mirroring
// original_source/src/kernel/vfs/inode.rs's RenameData.
type RenameData struct {
	OldDir, NewDir     Inode
	OldName, NewName   string
	OldDentry, NewDentry *Dentry
	NoReplace          bool
	IsExchange         bool
}

// Superblock is the per-filesystem contract spec.md §4.E names: block
// size, device identity, and mount-time read-only state.
type Superblock interface {
	IOBlockSize() uint32
	DeviceID() DevID
	ReadOnly() bool
}

// Inode is the operation set spec.md §4.E's filesystems implement.
// BaseInode supplies every method with the original's ENOTDIR/EPERM
// default; concrete filesystems embed BaseInode and override only the
// operations they support.
type Inode interface {
	Kind() Mode
	IsDir() bool
	FileSize() int64
	Data() *InodeData

	Lookup(ctx context.Context, name string) (Inode, error)
	Create(ctx context.Context, name string, mode Mode) error
	Mkdir(ctx context.Context, name string, mode Mode) error
	Mknod(ctx context.Context, name string, mode Mode, dev DevID) error
	Unlink(ctx context.Context, name string) error
	Symlink(ctx context.Context, name string, target string) error
	Rename(ctx context.Context, data RenameData) error
	Readdir(ctx context.Context, offset int, yield func(name string, ino Ino) (cont bool)) (int, error)

	ReadAt(ctx context.Context, buf []byte, offset int64) (int, error)
	WriteAt(ctx context.Context, data []byte, offset int64, appendMode bool) (int, error)
	Readlink(ctx context.Context) (string, error)
	Truncate(ctx context.Context, length int64) error
	DevID() (DevID, error)

	Chmod(mode Mode) error
	Chown(uid, gid uint32) error
	Statx(mask StatMask) (StatInfo, error)
}

// InodeData is the shared, atomically-updated inode state every concrete
// inode embeds via BaseInode, mirroring original_source's InodeData.
type InodeData struct {
	ino Ino

	size  atomic.Int64
	nlink atomic.Uint32
	uid   atomic.Uint32
	gid   atomic.Uint32
	mode  atomic.Uint32

	mu sync.RWMutex // directory/file rwlock discipline (spec.md §4.E)

	atimeMu            sync.Mutex
	atime, mtime, ctime time.Time

	sb Superblock
}

// NewInodeData constructs the shared inode state block.
func NewInodeData(ino Ino, mode Mode, sb Superblock) *InodeData {
	now := time.Now()

	d := &InodeData{ino: ino, sb: sb, atime: now, mtime: now, ctime: now}
	d.mode.Store(uint32(mode))

	return d
}

func (d *InodeData) Lock()    { d.mu.Lock() }
func (d *InodeData) Unlock()  { d.mu.Unlock() }
func (d *InodeData) RLock()   { d.mu.RLock() }
func (d *InodeData) RUnlock() { d.mu.RUnlock() }

func (d *InodeData) Ino() Ino   { return d.ino }
func (d *InodeData) Mode() Mode { return Mode(d.mode.Load()) }

func (d *InodeData) SetMode(m Mode)          { d.mode.Store(uint32(m)) }
func (d *InodeData) Size() int64             { return d.size.Load() }
func (d *InodeData) SetSize(n int64)         { d.size.Store(n) }
func (d *InodeData) Nlink() uint32           { return d.nlink.Load() }
func (d *InodeData) IncNlink()               { d.nlink.Add(1) }
func (d *InodeData) DecNlink()               { d.nlink.Add(^uint32(0)) }
func (d *InodeData) UID() uint32             { return d.uid.Load() }
func (d *InodeData) GID() uint32             { return d.gid.Load() }
func (d *InodeData) SetOwner(uid, gid uint32) { d.uid.Store(uid); d.gid.Store(gid) }

func (d *InodeData) Touch(atime, mtime, ctime bool) {
	d.atimeMu.Lock()
	defer d.atimeMu.Unlock()

	now := time.Now()
	if atime {
		d.atime = now
	}

	if mtime {
		d.mtime = now
	}

	if ctime {
		d.ctime = now
	}
}

func (d *InodeData) times() (a, m, c time.Time) {
	d.atimeMu.Lock()
	defer d.atimeMu.Unlock()

	return d.atime, d.mtime, d.ctime
}

// BaseInode implements Inode with original_source/inode.rs's defaults:
// every operation fails with ENOTDIR on a non-directory or EPERM on a
// directory that does not support it, except the data-path operations
// which fail EISDIR/EINVAL. Concrete filesystems embed BaseInode and
// shadow the methods they actually implement.
type BaseInode struct {
	*InodeData
}

func NewBaseInode(d *InodeData) BaseInode { return BaseInode{InodeData: d} }

func (b BaseInode) Kind() Mode     { return b.Mode().FormatBits() }
func (b BaseInode) IsDir() bool    { return b.Mode().IsDir() }
func (b BaseInode) FileSize() int64 { return b.Size() }
func (b BaseInode) Data() *InodeData { return b.InodeData }

func (b BaseInode) dirOrPerm() error {
	if !b.IsDir() {
		return errno.Wrap(errno.ENOTDIR, "vfs", nil)
	}

	return errno.Wrap(errno.EPERM, "vfs", nil)
}

func (b BaseInode) dataErr() error {
	if b.IsDir() {
		return errno.Wrap(errno.EISDIR, "vfs", nil)
	}

	return errno.Wrap(errno.EINVAL, "vfs", nil)
}

func (b BaseInode) Lookup(context.Context, string) (Inode, error)            { return nil, b.dirOrPerm() }
func (b BaseInode) Create(context.Context, string, Mode) error               { return b.dirOrPerm() }
func (b BaseInode) Mkdir(context.Context, string, Mode) error                { return b.dirOrPerm() }
func (b BaseInode) Mknod(context.Context, string, Mode, DevID) error         { return b.dirOrPerm() }
func (b BaseInode) Unlink(context.Context, string) error                     { return b.dirOrPerm() }
func (b BaseInode) Symlink(context.Context, string, string) error            { return b.dirOrPerm() }
func (b BaseInode) Rename(context.Context, RenameData) error                 { return b.dirOrPerm() }

func (b BaseInode) Readdir(context.Context, int, func(string, Ino) bool) (int, error) {
	return 0, b.dirOrPerm()
}

func (b BaseInode) ReadAt(context.Context, []byte, int64) (int, error)  { return 0, b.dataErr() }
func (b BaseInode) WriteAt(context.Context, []byte, int64, bool) (int, error) {
	return 0, b.dataErr()
}

func (b BaseInode) Readlink(context.Context) (string, error) { return "", b.dataErr() }
func (b BaseInode) Truncate(context.Context, int64) error    { return b.dataErr() }

func (b BaseInode) DevID() (DevID, error) {
	if b.IsDir() {
		return 0, errno.Wrap(errno.EISDIR, "vfs", nil)
	}

	return 0, errno.Wrap(errno.EINVAL, "vfs", nil)
}

func (b BaseInode) Chmod(mode Mode) error {
	b.SetMode(b.Mode().FormatBits() | mode.Perm())
	b.Touch(false, false, true)

	return nil
}

func (b BaseInode) Chown(uid, gid uint32) error {
	b.SetOwner(uid, gid)
	b.Touch(false, false, true)

	return nil
}

// Statx implements original_source's generic statx body: every field the
// mask selects is filled from InodeData; callers needing rdev/blksize
// pass those in via the Inode's own Statx override when it shadows this
// one (block/char devices, and filesystems with a non-default block
// size).
func (b BaseInode) Statx(mask StatMask) (StatInfo, error) {
	var st StatInfo

	atime, mtime, ctime := b.times()

	if mask&StatxIno != 0 {
		st.Ino = b.Ino()
	}

	if mask&StatxSize != 0 {
		st.Size = b.Size()
	}

	if mask&StatxNlink != 0 {
		st.Nlink = b.Nlink()
	}

	if mask&StatxUID != 0 {
		st.UID = b.UID()
	}

	if mask&StatxGID != 0 {
		st.GID = b.GID()
	}

	if mask&StatxMode != 0 || mask&StatxType != 0 {
		st.Mode = b.Mode()
	}

	if mask&StatxAtime != 0 {
		st.Atime = atime
	}

	if mask&StatxMtime != 0 {
		st.Mtime = mtime
	}

	if mask&StatxCtime != 0 {
		st.Ctime = ctime
	}

	if mask&StatxBlocks != 0 {
		st.Blocks = (b.Size() + 511) / 512

		if b.sb != nil {
			st.BlkSize = b.sb.IOBlockSize()
		}
	}

	if b.sb != nil {
		st.Dev = b.sb.DeviceID()
	}

	return st, nil
}
