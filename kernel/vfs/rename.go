package vfs

import (
	"context"
	"sync"

	"github.com/eonix-go/eonix/kernel/errno"
)

// renameLock is the global total-order lock spec.md §4.E requires for
// cross-directory rename, acquired before either directory's rwlock.
var renameLock sync.Mutex

// RenameMode selects among spec.md §4.E's three rename variants.
type RenameMode int

const (
	RenameReplace RenameMode = iota
	RenameNoReplace
	RenameExchange
)

// Rename moves oldName under oldDir to newName under newDir. Both
// directory inodes' rwlocks are held exclusively for the duration,
// ordered consistently via renameLock so two concurrent renames that
// cross directories can never deadlock against each other.
func Rename(ctx context.Context, oldDir, newDir *Dentry, oldName, newName string, mode RenameMode) error {
	if oldDir.Inode() == nil || !oldDir.Inode().IsDir() {
		return errno.Wrap(errno.ENOTDIR, "rename", nil)
	}

	if newDir.Inode() == nil || !newDir.Inode().IsDir() {
		return errno.Wrap(errno.ENOTDIR, "rename", nil)
	}

	renameLock.Lock()
	defer renameLock.Unlock()

	oldDirInode, newDirInode := oldDir.Inode(), newDir.Inode()

	oldDirInode.Data().Lock()
	if oldDir != newDir {
		newDirInode.Data().Lock()
		defer newDirInode.Data().Unlock()
	}
	defer oldDirInode.Data().Unlock()

	oldDentry, err := findCachedOrNegative(ctx, oldDir, oldName)
	if err != nil {
		return err
	}

	if oldDentry.IsNegative() {
		return errno.Wrap(errno.ENOENT, "rename", nil)
	}

	newDentry, err := findCachedOrNegative(ctx, newDir, newName)
	if err != nil {
		return err
	}

	switch mode {
	case RenameNoReplace:
		if !newDentry.IsNegative() {
			return errno.Wrap(errno.EEXIST, "rename", nil)
		}
	case RenameExchange:
		if newDentry.IsNegative() {
			return errno.Wrap(errno.ENOENT, "rename", nil)
		}
	}

	data := RenameData{
		OldDir: oldDirInode, NewDir: newDirInode,
		OldName: oldName, NewName: newName,
		OldDentry: oldDentry, NewDentry: newDentry,
		NoReplace: mode == RenameNoReplace, IsExchange: mode == RenameExchange,
	}

	if err := oldDirInode.Rename(ctx, data); err != nil {
		return err
	}

	wasDir := oldDentry.IsDir()

	if mode == RenameExchange {
		dExchange(oldDentry, newDentry)
	} else {
		dRemove(oldDentry)
		newDentry.setInode(oldDentry.Inode())
		oldDentry.setInode(nil)
	}

	// Cross-directory move of a directory updates both parents' nlink
	// (spec.md §4.E "Rename").
	if oldDir != newDir && wasDir {
		oldDirInode.Data().DecNlink()
		newDirInode.Data().IncNlink()
	}

	return nil
}

// findCachedOrNegative resolves a single path component to a dentry,
// returning a negative dentry (not an error) when the name does not
// exist, since rename needs to distinguish "absent" from "lookup failed".
func findCachedOrNegative(ctx context.Context, dir *Dentry, name string) (*Dentry, error) {
	if d, ok := dFindRCU(dir, name); ok {
		return d, nil
	}

	found, err := dir.Inode().Lookup(ctx, name)
	if err != nil {
		return nil, err
	}

	d := NewDentry(dir, name, found)
	dAdd(d)

	return d, nil
}
