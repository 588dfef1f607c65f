package vfs

import "sync"

// Dentry is a directory-cache entry binding a name under a parent to an
// inode (or nil, for a negative dentry recording a known-absent name),
// mirroring original_source/src/kernel/vfs/dentry.rs's DentryInner.
//
// Go's garbage collector owns a Dentry's lifetime once nothing holds a
// pointer to it; there is no manual refcount (d_get/d_put) to replicate.
type Dentry struct {
	mu sync.RWMutex

	name   string
	parent *Dentry // nil only for the global filesystem root
	inode  Inode   // nil => negative dentry

	// mountedOver is neither set by DoMount nor read by Unmount: a mount
	// rebinds (parent, name) in dcache to the mount's root, and the mount
	// table keeps the original dentry that Unmount restores (spec.md §4.E
	// "Mount").
	mountedOver *Dentry
}

// NewDentry allocates a dentry under parent for name, bound to inode (nil
// for a negative entry).
func NewDentry(parent *Dentry, name string, inode Inode) *Dentry {
	return &Dentry{parent: parent, name: name, inode: inode}
}

func (d *Dentry) Name() string { return d.name }
func (d *Dentry) Parent() *Dentry {
	if d.parent == nil {
		return d
	}

	return d.parent
}

// RawParent returns the actual parent pointer, nil for a filesystem's own
// root dentry, unlike Parent which substitutes itself for ".." walks.
func (d *Dentry) RawParent() *Dentry { return d.parent }

// Inode returns the bound inode, or nil for a negative dentry.
func (d *Dentry) Inode() Inode {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.inode
}

func (d *Dentry) IsNegative() bool { return d.Inode() == nil }

func (d *Dentry) IsDir() bool {
	inode := d.Inode()

	return inode != nil && inode.IsDir()
}

// setInode rebinds a negative dentry after a successful create/mkdir, or
// clears it back to negative after unlink.
func (d *Dentry) setInode(inode Inode) {
	d.mu.Lock()
	d.inode = inode
	d.mu.Unlock()
}

// IsRoot reports whether d has no parent, i.e. it is a filesystem's own
// root dentry (as opposed to the mountpoint it's mounted on).
func (d *Dentry) IsRoot() bool { return d.parent == nil }
