package vfs

import (
	"fmt"
	"sync"

	"github.com/eonix-go/eonix/kernel/errno"
)

// Mount flags, mirroring original_source/src/kernel/vfs/mount.rs's MS_*
// constants and values.
const (
	MSRdOnly     uint64 = 1 << 0
	MSNoSuid     uint64 = 1 << 1
	MSNoDev      uint64 = 1 << 2
	MSNoExec     uint64 = 1 << 3
	MSNoAtime    uint64 = 1 << 10
	MSRelatime   uint64 = 1 << 21
	MSStrictatime uint64 = 1 << 24
	MSLazytime   uint64 = 1 << 25
)

var mountFlagNames = []struct {
	flag uint64
	text string
}{
	{MSNoSuid, ",nosuid"},
	{MSNoDev, ",nodev"},
	{MSNoExec, ",noexec"},
	{MSNoAtime, ",noatime"},
	{MSRelatime, ",relatime"},
	{MSLazytime, ",lazytime"},
}

// Mount is a live filesystem instance bound at a mountpoint.
type Mount struct {
	sb   Superblock
	root *Dentry
}

// NewMount pairs a superblock with the root dentry a MountCreator built.
func NewMount(sb Superblock, root *Dentry) *Mount { return &Mount{sb: sb, root: root} }

func (m *Mount) Root() *Dentry     { return m.root }
func (m *Mount) Superblock() Superblock { return m.sb }

// MountCreator is the per-filesystem-type factory spec.md §4.E's
// Superblock contract names.
type MountCreator interface {
	CreateMount(source string, flags uint64, mountpoint *Dentry) (*Mount, error)
}

type mountPoint struct {
	mount      *Mount
	mountpoint *Dentry
	original   *Dentry
	source     string
	path       string
	fstype     string
	flags      uint64
}

var registry = struct {
	mu       sync.Mutex
	creators map[string]MountCreator
}{creators: make(map[string]MountCreator)}

var mountTable = struct {
	mu   sync.Mutex
	list []*mountPoint
}{}

// RegisterFilesystem makes fstype available to DoMount, mirroring
// original_source's register_filesystem (EEXIST on a duplicate name).
func RegisterFilesystem(fstype string, creator MountCreator) error {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	if _, ok := registry.creators[fstype]; ok {
		return errno.Wrap(errno.EEXIST, "register_filesystem", nil)
	}

	registry.creators[fstype] = creator

	return nil
}

// DoMount implements spec.md §4.E's Mount: the default-relatime flag
// normalization from original_source's do_mount, then overlays the
// chosen filesystem's root onto mountpoint in the dentry cache, recording
// the mountpoint's original binding for Unmount to restore.
func DoMount(mountpoint *Dentry, source, path, fstype string, flags uint64) error {
	if flags&MSNoAtime == 0 {
		flags |= MSRelatime
	}

	if flags&MSStrictatime != 0 {
		flags &^= MSRelatime | MSNoAtime
	}

	if !mountpoint.IsDir() {
		return errno.Wrap(errno.ENOTDIR, "mount", nil)
	}

	registry.mu.Lock()
	creator, ok := registry.creators[fstype]
	registry.mu.Unlock()

	if !ok {
		return errno.Wrap(errno.ENODEV, "mount", nil)
	}

	mount, err := creator.CreateMount(source, flags, mountpoint)
	if err != nil {
		return err
	}

	mountTable.mu.Lock()
	defer mountTable.mu.Unlock()

	dReplace(mountpoint, mount.Root())
	mountTable.list = append(mountTable.list, &mountPoint{
		mount: mount, mountpoint: mountpoint, original: mountpoint,
		source: source, path: path, fstype: fstype, flags: flags,
	})

	return nil
}

// Unmount restores the pre-mount dentry binding for path and removes the
// mount table entry. Returns EINVAL if path is not a mountpoint.
func Unmount(path string) error {
	mountTable.mu.Lock()
	defer mountTable.mu.Unlock()

	for i, mp := range mountTable.list {
		if mp.path != path {
			continue
		}

		dReplace(mp.mountpoint, mp.original)
		mountTable.list = append(mountTable.list[:i], mountTable.list[i+1:]...)

		return nil
	}

	return errno.Wrap(errno.EINVAL, "umount", nil)
}

func mountOpts(flags uint64) string {
	out := "rw"
	if flags&MSRdOnly != 0 {
		out = "ro"
	}

	for _, f := range mountFlagNames {
		if flags&f.flag != 0 {
			out += f.text
		}
	}

	return out
}

// ProcMounts renders the mount table in /proc/mounts text format, the
// same "source mountpoint fstype opts 0 0" shape as original_source's
// dump_mounts.
func ProcMounts() string {
	mountTable.mu.Lock()
	defer mountTable.mu.Unlock()

	var out string

	for _, mp := range mountTable.list {
		out += fmt.Sprintf("%s %s %s %s 0 0\n", mp.source, mp.path, mp.fstype, mountOpts(mp.flags))
	}

	return out
}
