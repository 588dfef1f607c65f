package fd

import (
	"context"
	"sync"

	"github.com/eonix-go/eonix/kernel/errno"
	"github.com/eonix-go/eonix/kernel/vfs"
)

// openFile pairs an open File with the fd-local flags (currently just
// FD_CLOEXEC) that belong to the descriptor slot rather than the File
// itself, mirroring original_source/filearray.rs's OpenFile.
type openFile struct {
	flags FDFlags
	file  File
}

// Table is a process's file descriptor table (original_source's
// FileArray): lowest-available-fd allocation tracked via a fd_min_avail
// hint so a long-running process doesn't re-scan from 0 on every open.
type Table struct {
	mu         sync.Mutex
	files      map[FD]openFile
	fdMinAvail FD
}

// NewTable builds an empty file descriptor table.
func NewTable() *Table {
	return &Table{files: make(map[FD]openFile)}
}

// NewShared returns other itself: the CLONE_FILES fork case, where
// parent and child observe the same table through one shared pointer.
func NewShared(other *Table) *Table { return other }

// NewCloned deep-copies other's slot map: the non-CLONE_FILES fork case,
// where the child gets its own table seeded with the same open files
// (each File is still shared, matching dup's fd/file-description split).
func NewCloned(other *Table) *Table {
	other.mu.Lock()
	defer other.mu.Unlock()

	clone := &Table{files: make(map[FD]openFile, len(other.files)), fdMinAvail: other.fdMinAvail}
	for fd, of := range other.files {
		clone.files[fd] = of
	}

	return clone
}

func (t *Table) findAvailable(from FD) FD {
	candidate := from

	for {
		if _, occupied := t.files[candidate]; !occupied {
			return candidate
		}

		candidate++
	}
}

// allocateFd implements original_source's allocate_fd: honors the
// fd_min_avail fast path (the common case of opening the lowest free
// fd) and falls back to a linear scan from an explicit minimum
// otherwise (F_DUPFD's "at least this fd").
func (t *Table) allocateFd(from FD) FD {
	if from < t.fdMinAvail {
		from = t.fdMinAvail
	}

	if from == t.fdMinAvail {
		allocated := t.fdMinAvail
		t.fdMinAvail = t.findAvailable(from + 1)

		return allocated
	}

	return t.findAvailable(from)
}

func (t *Table) releaseFd(fd FD) {
	if fd < t.fdMinAvail {
		t.fdMinAvail = fd
	}
}

func (t *Table) nextFd() FD { return t.allocateFd(t.fdMinAvail) }

func (t *Table) doInsert(fd FD, flags FDFlags, file File) {
	t.files[fd] = openFile{flags: flags, file: file}
}

// Get returns the File bound to fd, or EBADF.
func (t *Table) Get(fd FD) (File, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	of, ok := t.files[fd]
	if !ok {
		return nil, errno.Wrap(errno.EBADF, "fd", nil)
	}

	return of.file, nil
}

// Close removes fd from the table, releasing it back for reuse.
func (t *Table) Close(fd FD) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	of, ok := t.files[fd]
	if !ok {
		return errno.Wrap(errno.EBADF, "close", nil)
	}

	delete(t.files, fd)
	t.releaseFd(fd)

	return of.file.Close()
}

// CloseAll drops every open fd, for process exit.
func (t *Table) CloseAll() {
	t.mu.Lock()
	old := t.files
	t.files = make(map[FD]openFile)
	t.fdMinAvail = 0
	t.mu.Unlock()

	for _, of := range old {
		of.file.Close()
	}
}

// OnExec sweeps every FD_CLOEXEC descriptor, per execve's close-on-exec
// contract.
func (t *Table) OnExec() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for fd, of := range t.files {
		if !of.flags.CloseOnExec() {
			continue
		}

		delete(t.files, fd)
		t.releaseFd(fd)
		of.file.Close()
	}
}

// Dup implements dup(2): a fresh lowest-available fd sharing old_fd's
// File and fd flags (minus FD_CLOEXEC, which dup never carries over).
func (t *Table) Dup(oldFD FD) (FD, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	old, ok := t.files[oldFD]
	if !ok {
		return 0, errno.Wrap(errno.EBADF, "dup", nil)
	}

	newFD := t.nextFd()
	t.doInsert(newFD, 0, old.file)

	return newFD, nil
}

// DupTo implements dup2/dup3: binds newFD to oldFD's File, closing
// whatever newFD previously held, per original_source's dup_to.
func (t *Table) DupTo(oldFD, newFD FD, flags OpenFlags) (FD, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	old, ok := t.files[oldFD]
	if !ok {
		return 0, errno.Wrap(errno.EBADF, "dup2", nil)
	}

	fdFlags := flags.AsFDFlags()

	if existing, occupied := t.files[newFD]; occupied {
		t.files[newFD] = openFile{flags: fdFlags, file: old.file}
		existing.file.Close()

		return newFD, nil
	}

	t.files[newFD] = openFile{flags: fdFlags, file: old.file}
	if t.fdMinAvail == newFD {
		t.fdMinAvail = t.findAvailable(newFD + 1)
	}

	return newFD, nil
}

// Pipe implements pipe(2): a fresh fd pair sharing one ring buffer.
// raiseSIGPIPE is wired in by kernel/process so a blocked write to a
// pipe whose read end has closed can actually deliver SIGPIPE.
func (t *Table) Pipe(flags OpenFlags, raiseSIGPIPE func()) (readFD, writeFD FD, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	readFD = t.nextFd()
	t.doInsert(readFD, 0, nil) // placeholder so writeFD's allocation never reuses it
	writeFD = t.nextFd()

	readEnd, writeEnd := NewPipe(raiseSIGPIPE)

	fdFlags := flags.AsFDFlags()
	t.doInsert(readFD, fdFlags, readEnd)
	t.doInsert(writeFD, fdFlags, writeEnd)

	return readFD, writeFD, nil
}

// Open implements open(2) against an already-resolved dentry: directory
// opens require O_DIRECTORY consistency, write opens of a directory are
// rejected, and O_TRUNC on a regular file truncates before the fd is
// handed back, per original_source/filearray.rs's open.
func (t *Table) Open(ctx context.Context, dentry *vfs.Dentry, flags OpenFlags) (FD, error) {
	inode := dentry.Inode()
	if inode == nil {
		return 0, errno.Wrap(errno.ENOENT, "open", nil)
	}

	if flags.Directory() && !inode.IsDir() {
		return 0, errno.Wrap(errno.ENOTDIR, "open", nil)
	}

	if inode.IsDir() && flags.Writable() {
		return 0, errno.Wrap(errno.EISDIR, "open", nil)
	}

	if flags.Truncate() && flags.Writable() && !inode.IsDir() {
		if err := inode.Truncate(ctx, 0); err != nil {
			return 0, err
		}
	}

	file := File(NewInodeFile(dentry, flags))

	t.mu.Lock()
	defer t.mu.Unlock()

	newFD := t.nextFd()
	t.doInsert(newFD, flags.AsFDFlags(), file)

	return newFD, nil
}

// Fcntl implements F_DUPFD/F_DUPFD_CLOEXEC/F_GETFD/F_SETFD/F_GETFL/
// F_SETFL, per original_source/filearray.rs's fcntl.
func (t *Table) Fcntl(fd FD, cmd int, arg uintptr) (uintptr, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	of, ok := t.files[fd]
	if !ok {
		return 0, errno.Wrap(errno.EBADF, "fcntl", nil)
	}

	switch cmd {
	case FDupFD, FDupFDCloexec:
		cloexec := cmd == FDupFDCloexec || of.flags.CloseOnExec()

		var newFlags FDFlags
		if cloexec {
			newFlags = FDCloexec
		}

		newFD := t.allocateFd(FD(arg))
		t.doInsert(newFD, newFlags, of.file)

		return uintptr(newFD), nil

	case FGetFD:
		return uintptr(of.flags), nil

	case FSetFD:
		of.flags = FDFlags(arg)
		t.files[fd] = of

		return 0, nil

	case FGetFL:
		return uintptr(of.file.Flags()), nil

	case FSetFL:
		of.file.SetFlags(OpenFlags(arg))

		return 0, nil

	default:
		return 0, errno.Wrap(errno.EINVAL, "fcntl", nil)
	}
}

// OpenConsole seeds fd 0/1/2 as the controlling terminal, matching
// original_source's open_console used only for the init process.
func (t *Table) OpenConsole(dev TerminalDevice) (stdin, stdout, stderr FD) {
	t.mu.Lock()
	defer t.mu.Unlock()

	stdin, stdout, stderr = t.nextFd(), t.nextFd(), t.nextFd()

	t.doInsert(stdin, FDCloexec, NewTerminalFile(dev, ORdOnly))
	t.doInsert(stdout, FDCloexec, NewTerminalFile(dev, OWrOnly))
	t.doInsert(stderr, FDCloexec, NewTerminalFile(dev, OWrOnly))

	return stdin, stdout, stderr
}
