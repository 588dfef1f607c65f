// Package fd implements the per-process file descriptor table of
// spec.md §4.F: fd allocation with the fd_min_avail hint, fcntl, pipes
// and poll, layered over kernel/vfs's Inode/Dentry.
package fd

// OpenFlags mirrors the O_* bits posix_types::open::OpenFlags carries in
// original_source/src/kernel/vfs/filearray.rs and file.rs.
type OpenFlags uint32

const (
	ORdOnly   OpenFlags = 0
	OWrOnly   OpenFlags = 0o1
	ORdWr     OpenFlags = 0o2
	OAccMode  OpenFlags = 0o3
	OCreat    OpenFlags = 0o100
	OExcl     OpenFlags = 0o200
	OTrunc    OpenFlags = 0o1000
	OAppend   OpenFlags = 0o2000
	ONonblock OpenFlags = 0o4000
	ODirectory OpenFlags = 0o200000
	ONofollow OpenFlags = 0o400000
	OCloexec  OpenFlags = 0o2000000
	OPath     OpenFlags = 0o10000000
)

func (f OpenFlags) Readable() bool  { return f&OAccMode != OWrOnly }
func (f OpenFlags) Writable() bool  { return f&OAccMode != ORdOnly }
func (f OpenFlags) Append() bool    { return f&OAppend != 0 }
func (f OpenFlags) Truncate() bool  { return f&OTrunc != 0 }
func (f OpenFlags) Directory() bool { return f&ODirectory != 0 }
func (f OpenFlags) NoFollow() bool  { return f&ONofollow != 0 }
func (f OpenFlags) Path() bool      { return f&OPath != 0 }

// FollowSymlink reports whether path resolution should follow a trailing
// symlink for this open(2) call (spec.md §6: O_NOFOLLOW suppresses it).
func (f OpenFlags) FollowSymlink() bool { return !f.NoFollow() }

// AsFDFlags extracts the FD-level flags an OpenFlags value implies at
// open time (only FD_CLOEXEC, per spec.md §4.F).
func (f OpenFlags) AsFDFlags() FDFlags {
	if f&OCloexec != 0 {
		return FDCloexec
	}

	return 0
}

// FDFlags are the fd-table-local flags F_GETFD/F_SETFD manipulate.
type FDFlags uint32

const FDCloexec FDFlags = 1

func (f FDFlags) CloseOnExec() bool { return f&FDCloexec != 0 }

// fcntl commands spec.md §4.F names.
const (
	FDupFD       = 0
	FGetFD       = 1
	FSetFD       = 2
	FGetFL       = 3
	FSetFL       = 4
	FDupFDCloexec = 1030
)

// PollEvent is the bitmask passed to and returned from File.Poll.
type PollEvent uint16

const (
	PollReadable PollEvent = 1 << 0
	PollWritable PollEvent = 1 << 1
)

func (e PollEvent) Has(bit PollEvent) bool { return e&bit != 0 }

// AtFDCWD is the sentinel *at fd meaning "resolve relative to cwd",
// matching original_source/src/kernel/vfs/filearray.rs's FD::AT_FDCWD.
const AtFDCWD FD = -100
