// Package memfs is the reference in-memory filesystem this repo mounts
// at "/" for tests and the debug CLI (SPEC_FULL.md 2.4): a concrete
// vfs.Superblock/vfs.Inode implementation exercising path resolution,
// the dentry cache, mount and demand paging end-to-end.
package memfs

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/eonix-go/eonix/kernel/errno"
	"github.com/eonix-go/eonix/kernel/logger"
	"github.com/eonix-go/eonix/kernel/vfs"
)

// FS is one memfs instance: its own inode-number space and block-size
// reporting, bound to exactly one mountpoint.
type FS struct {
	log       logger.Logger
	blockSize uint32
	devID     vfs.DevID
	nextIno   atomic.Uint64
}

// New constructs an unmounted memfs instance. devID should be unique
// among mounted filesystems (stat's st_dev).
func New(log logger.Logger, devID vfs.DevID) *FS {
	if log == nil {
		log = logger.Nop
	}

	return &FS{log: log, blockSize: 4096, devID: devID}
}

func (fs *FS) IOBlockSize() uint32  { return fs.blockSize }
func (fs *FS) DeviceID() vfs.DevID  { return fs.devID }
func (fs *FS) ReadOnly() bool       { return false }

func (fs *FS) allocIno() vfs.Ino {
	return vfs.Ino(fs.nextIno.Add(1))
}

// CreateMount implements vfs.MountCreator, adapted from
// lxd/storage/backend_lxd.go's Mount/Unmount start/finished logging
// shape (SPEC_FULL.md 2.4).
func (fs *FS) CreateMount(source string, flags uint64, mountpoint *vfs.Dentry) (*vfs.Mount, error) {
	fs.log.Debug("Mount started", logger.Ctx{"source": source, "fstype": "memfs"})
	defer fs.log.Debug("Mount finished", logger.Ctx{"source": source})

	root := fs.newDir(vfs.ModeDir | 0o755)
	root.Data().IncNlink() // self
	root.Data().IncNlink() // the implicit ".." every directory holds on it

	rootDentry := vfs.NewDentry(mountpoint.RawParent(), mountpoint.Name(), root)

	return vfs.NewMount(fs, rootDentry), nil
}

// Unmount logs an "Unmount started"/"Unmount finished" pair and does
// nothing else; dentry-cache restoration is vfs.Unmount's job, and
// vfs.Unmount does not call this method.
func (fs *FS) Unmount(path string) {
	fs.log.Debug("Unmount started", logger.Ctx{"path": path})
	defer fs.log.Debug("Unmount finished", logger.Ctx{"path": path})
}

func (fs *FS) newInodeData(mode vfs.Mode) *vfs.InodeData {
	return vfs.NewInodeData(fs.allocIno(), mode, fs)
}

func (fs *FS) newDir(mode vfs.Mode) *dirInode {
	return &dirInode{
		BaseInode: vfs.NewBaseInode(fs.newInodeData(vfs.ModeDir | mode.Perm())),
		fs:        fs,
		entries:   make(map[string]vfs.Inode),
	}
}

func (fs *FS) newFile(mode vfs.Mode) *fileInode {
	return &fileInode{BaseInode: vfs.NewBaseInode(fs.newInodeData(vfs.ModeReg | mode.Perm()))}
}

func (fs *FS) newSymlink(target string) *symlinkInode {
	s := &symlinkInode{BaseInode: vfs.NewBaseInode(fs.newInodeData(vfs.ModeLnk | 0o777)), target: target}
	s.Data().SetSize(int64(len(target)))

	return s
}

func (fs *FS) newDevice(mode vfs.Mode, dev vfs.DevID) *deviceInode {
	return &deviceInode{BaseInode: vfs.NewBaseInode(fs.newInodeData(mode)), dev: dev}
}

// dirInode is a memfs directory: a name -> Inode map guarded by its own
// mutex, independent of the generic InodeData rwlock walk.go takes for
// Lookup (spec.md §4.E's "directory's rwlock" is deliberately the
// filesystem's own choice of lock; memfs picks its own sync.RWMutex since it has
// no RCU-style concurrent readers of its own to protect against).
type dirInode struct {
	vfs.BaseInode

	fs      *FS
	mu      sync.RWMutex
	entries map[string]vfs.Inode
}

func (d *dirInode) Lookup(ctx context.Context, name string) (vfs.Inode, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.entries[name], nil
}

func (d *dirInode) Readdir(ctx context.Context, offset int, yield func(string, vfs.Ino) bool) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.entries))
	for name := range d.entries {
		names = append(names, name)
	}

	sort.Strings(names)

	n := 0

	for i, name := range names {
		if i < offset {
			continue
		}

		if !yield(name, d.entries[name].Data().Ino()) {
			break
		}

		n++
	}

	return n, nil
}

func (d *dirInode) Create(ctx context.Context, name string, mode vfs.Mode) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.entries[name]; exists {
		return errno.Wrap(errno.EEXIST, "create", nil)
	}

	file := d.fs.newFile(mode)
	file.Data().IncNlink()
	d.entries[name] = file
	d.Touch(false, true, true)

	return nil
}

func (d *dirInode) Mkdir(ctx context.Context, name string, mode vfs.Mode) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.entries[name]; exists {
		return errno.Wrap(errno.EEXIST, "mkdir", nil)
	}

	child := d.fs.newDir(mode)
	child.Data().IncNlink() // self
	child.Data().IncNlink() // ".."
	d.entries[name] = child
	d.IncNlink() // child's ".." now points at us
	d.Touch(false, true, true)

	return nil
}

func (d *dirInode) Mknod(ctx context.Context, name string, mode vfs.Mode, dev vfs.DevID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.entries[name]; exists {
		return errno.Wrap(errno.EEXIST, "mknod", nil)
	}

	node := d.fs.newDevice(mode, dev)
	node.Data().IncNlink()
	d.entries[name] = node
	d.Touch(false, true, true)

	return nil
}

func (d *dirInode) Symlink(ctx context.Context, name string, target string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.entries[name]; exists {
		return errno.Wrap(errno.EEXIST, "symlink", nil)
	}

	d.entries[name] = d.fs.newSymlink(target)
	d.Touch(false, true, true)

	return nil
}

func (d *dirInode) Unlink(ctx context.Context, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	target, exists := d.entries[name]
	if !exists {
		return errno.Wrap(errno.ENOENT, "unlink", nil)
	}

	if target.IsDir() {
		if dir, ok := target.(*dirInode); ok {
			dir.mu.RLock()
			empty := len(dir.entries) == 0
			dir.mu.RUnlock()

			if !empty {
				return errno.Wrap(errno.ENOTEMPTY, "unlink", nil)
			}
		}

		d.DecNlink() // losing that child's ".."
	}

	delete(d.entries, name)
	target.Data().DecNlink()
	d.Touch(false, true, true)

	return nil
}

func (d *dirInode) Rename(ctx context.Context, data vfs.RenameData) error {
	newDir, ok := data.NewDir.(*dirInode)
	if !ok {
		return errno.Wrap(errno.EXDEV, "rename", nil)
	}

	if newDir != d {
		newDir.mu.Lock()
		defer newDir.mu.Unlock()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	moved, exists := d.entries[data.OldName]
	if !exists {
		return errno.Wrap(errno.ENOENT, "rename", nil)
	}

	target, targetExists := newDir.entries[data.NewName]

	switch {
	case data.IsExchange:
		if !targetExists {
			return errno.Wrap(errno.ENOENT, "rename", nil)
		}

		d.entries[data.OldName] = target
		newDir.entries[data.NewName] = moved

		return nil

	case data.NoReplace && targetExists:
		return errno.Wrap(errno.EEXIST, "rename", nil)
	}

	delete(d.entries, data.OldName)
	newDir.entries[data.NewName] = moved

	if targetExists {
		target.Data().DecNlink()
	}

	return nil
}

// fileInode is a memfs regular file: its bytes live in a plain slice
// guarded by a dedicated mutex (distinct from BaseInode's directory-style
// rwlock, which this type never needs).
type fileInode struct {
	vfs.BaseInode

	mu   sync.RWMutex
	data []byte
}

func (f *fileInode) ReadAt(ctx context.Context, buf []byte, offset int64) (int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if offset >= int64(len(f.data)) {
		return 0, nil
	}

	n := copy(buf, f.data[offset:])

	return n, nil
}

func (f *fileInode) WriteAt(ctx context.Context, p []byte, offset int64, appendMode bool) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if appendMode {
		offset = int64(len(f.data))
	}

	end := offset + int64(len(p))
	if end > int64(len(f.data)) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}

	n := copy(f.data[offset:], p)
	f.Data().SetSize(int64(len(f.data)))
	f.Touch(false, true, true)

	return n, nil
}

func (f *fileInode) Truncate(ctx context.Context, length int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if length <= int64(len(f.data)) {
		f.data = f.data[:length]
	} else {
		grown := make([]byte, length)
		copy(grown, f.data)
		f.data = grown
	}

	f.Data().SetSize(length)
	f.Touch(false, true, true)

	return nil
}

// symlinkInode stores its target as plain text.
type symlinkInode struct {
	vfs.BaseInode

	target string
}

func (s *symlinkInode) Readlink(ctx context.Context) (string, error) {
	return s.target, nil
}

// deviceInode represents a mknod-created block/char/fifo/socket node: no
// data path of its own, just an identity and a DevID.
type deviceInode struct {
	vfs.BaseInode

	dev vfs.DevID
}

func (d *deviceInode) DevID() (vfs.DevID, error) { return d.dev, nil }
