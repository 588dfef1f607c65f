package vfs

import (
	"context"
	"strings"

	"github.com/eonix-go/eonix/kernel/errno"
)

// maxSymlinkFollows is spec.md §4.E's MAX_NR_FOLLOWS, grounded on
// original_source/src/kernel/vfs/dentry/walk.rs's walk_recursive.
const maxSymlinkFollows = 16

// FsContext is a resolution context: the filesystem root and current
// working directory a thread resolves relative paths against, mirroring
// original_source's FsContext.
type FsContext struct {
	FSRoot *Dentry
	CWD    *Dentry

	// Umask is the creation-mode mask umask(2)/mkdirat/openat(O_CREAT)
	// apply, carried here rather than on Process since original_source
	// scopes it to FsContext alongside root/cwd.
	Umask Mode
}

// NewFsContext builds a context rooted at and starting in root, with the
// conventional 0o022 default umask.
func NewFsContext(root *Dentry) *FsContext {
	return &FsContext{FSRoot: root, CWD: root, Umask: 0o022}
}

// Clone returns an independent FsContext sharing the same root/cwd
// dentries, for fork (spec.md §4.B: fs_context is inherited, not shared,
// so chdir in the child does not move the parent).
func (fc *FsContext) Clone() *FsContext {
	return &FsContext{FSRoot: fc.FSRoot, CWD: fc.CWD, Umask: fc.Umask}
}

// IsSymlink reports whether d's bound inode is a symlink.
func (d *Dentry) IsSymlink() bool {
	inode := d.Inode()

	return inode != nil && inode.Kind().IsLnk()
}

func splitPath(p string) []string {
	parts := strings.Split(p, "/")
	out := make([]string, 0, len(parts))

	for _, part := range parts {
		if part == "" || part == "." {
			continue
		}

		out = append(out, part)
	}

	return out
}

// Resolve implements spec.md §4.E's path resolution: component iteration
// from fsroot (absolute) or cwd (relative), following non-terminal
// symlinks unconditionally and the terminal component only if
// followSymlink is set.
func (fc *FsContext) Resolve(ctx context.Context, path string, followSymlink bool) (*Dentry, error) {
	if path == "" {
		return nil, errno.Wrap(errno.ENOENT, "resolve", nil)
	}

	start := fc.CWD
	if strings.HasPrefix(path, "/") {
		start = fc.FSRoot
	}

	nrFollows := 0

	return fc.resolveComponents(ctx, start, splitPath(path), followSymlink, &nrFollows)
}

func (fc *FsContext) resolveComponents(ctx context.Context, start *Dentry, comps []string, followTerminal bool, nrFollows *int) (*Dentry, error) {
	current := start

	for i, comp := range comps {
		isLast := i == len(comps)-1

		switch comp {
		case "..":
			if current != fc.FSRoot && !current.IsRoot() {
				current = current.Parent()
			}
		default:
			next, err := fc.findOrLookup(ctx, current, comp)
			if err != nil {
				return nil, err
			}

			current = next
		}

		if current.IsSymlink() && (!isLast || followTerminal) {
			resolved, err := fc.followSymlink(ctx, current, nrFollows)
			if err != nil {
				return nil, err
			}

			current = resolved
		}
	}

	return current, nil
}

func (fc *FsContext) followSymlink(ctx context.Context, symlink *Dentry, nrFollows *int) (*Dentry, error) {
	*nrFollows++
	if *nrFollows > maxSymlinkFollows {
		return nil, errno.Wrap(errno.ELOOP, "resolve", nil)
	}

	target, err := symlink.Inode().Readlink(ctx)
	if err != nil {
		return nil, err
	}

	base := symlink.Parent()
	if strings.HasPrefix(target, "/") {
		base = fc.FSRoot
	}

	// A symlink target is always resolved in full, including any
	// symlinks of its own, before the outer walk continues.
	return fc.resolveComponents(ctx, base, splitPath(target), true, nrFollows)
}

// findOrLookup implements spec.md §4.E's find_rcu/find_slow pair: a
// dcache hit returns immediately (including a cached negative dentry's
// ENOENT); a miss calls the parent inode's Lookup under its rwlock and
// caches whatever it finds, positive or negative.
func (fc *FsContext) findOrLookup(ctx context.Context, parent *Dentry, name string) (*Dentry, error) {
	parentInode := parent.Inode()
	if parentInode == nil {
		return nil, errno.Wrap(errno.ENOENT, "lookup", nil)
	}

	if !parentInode.IsDir() {
		return nil, errno.Wrap(errno.ENOTDIR, "lookup", nil)
	}

	if d, ok := dFindRCU(parent, name); ok {
		if d.IsNegative() {
			return nil, errno.Wrap(errno.ENOENT, "lookup", nil)
		}

		return d, nil
	}

	parentInode.Data().RLock()
	found, err := parentInode.Lookup(ctx, name)
	parentInode.Data().RUnlock()

	if err != nil {
		return nil, err
	}

	d := NewDentry(parent, name, found)
	dAdd(d)

	if found == nil {
		return nil, errno.Wrap(errno.ENOENT, "lookup", nil)
	}

	return d, nil
}
