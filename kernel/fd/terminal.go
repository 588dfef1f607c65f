package fd

import (
	"context"
	"encoding/binary"
	"sync/atomic"

	"github.com/eonix-go/eonix/kernel/errno"
	"github.com/eonix-go/eonix/kernel/vfs"
)

// TerminalDevice is the contract kernel/terminal's Terminal type
// satisfies structurally, letting fd dispatch reads/writes/polls/ioctls
// to a controlling terminal without fd importing kernel/terminal (the
// same decoupling kernel/mm uses for kernel/signal.UserMemory and
// kernel/vfs/memfs's fileInode uses for mm.FileBacking). The ioctl
// methods trade in plain bytes/uint32 rather than kernel/terminal's own
// Termios/WindowSize types for the same reason.
type TerminalDevice interface {
	ReadLine(ctx context.Context, buf []byte) (int, error)
	WriteOut(ctx context.Context, data []byte) (int, error)
	HasInput() bool

	GetForegroundPgrp() (uint32, error)
	SetForegroundPgrp(pgid uint32) error
	TermiosBytes() []byte
	SetTermiosBytes(data []byte) error
	WindowSizeBytes() []byte
}

// Ioctl request numbers TerminalFile answers, matching the TIOC*/TC*
// values kernel/terminal/ioctl.go dispatches on. Exported so kernel/
// syscall's sysIoctlH can size its user-memory read/write around each
// request without duplicating the numbers.
const (
	IoctlTIOCGPGRP  = 0x540f
	IoctlTIOCSPGRP  = 0x5410
	IoctlTIOCGWINSZ = 0x5413
	IoctlTCGETS     = 0x5401
	IoctlTCSETS     = 0x5402
)

// TerminalFile adapts a TerminalDevice to the File interface a process's
// fd table entries all share.
type TerminalFile struct {
	dev   TerminalDevice
	flags atomic.Uint32
}

func NewTerminalFile(dev TerminalDevice, flags OpenFlags) *TerminalFile {
	f := &TerminalFile{dev: dev}
	f.flags.Store(uint32(flags))

	return f
}

func (f *TerminalFile) Flags() OpenFlags { return OpenFlags(f.flags.Load()) }

func (f *TerminalFile) SetFlags(flags OpenFlags) {
	const mutable = OAppend | ONonblock

	for {
		old := f.flags.Load()
		next := (old &^ uint32(mutable)) | uint32(flags&mutable)

		if f.flags.CompareAndSwap(old, next) {
			return
		}
	}
}

func (f *TerminalFile) Read(ctx context.Context, buf []byte) (int, error) {
	if !f.Flags().Readable() {
		return 0, errno.Wrap(errno.EBADF, "read", nil)
	}

	return f.dev.ReadLine(ctx, buf)
}

func (f *TerminalFile) Write(ctx context.Context, data []byte) (int, error) {
	if !f.Flags().Writable() {
		return 0, errno.Wrap(errno.EBADF, "write", nil)
	}

	return f.dev.WriteOut(ctx, data)
}

func (f *TerminalFile) Seek(ctx context.Context, offset int64, whence int) (int64, error) {
	return 0, errno.Wrap(errno.ESPIPE, "lseek", nil)
}

func (f *TerminalFile) Poll(ctx context.Context, interested PollEvent) (PollEvent, error) {
	var ready PollEvent

	if interested.Has(PollReadable) && f.dev.HasInput() {
		ready |= PollReadable
	}

	if interested.Has(PollWritable) {
		ready |= PollWritable
	}

	return ready, nil
}

func (f *TerminalFile) Readdir(ctx context.Context, offset int, yield func(string, vfs.Ino) bool) (int, error) {
	return 0, errno.Wrap(errno.ENOTDIR, "getdents", nil)
}

func (f *TerminalFile) Stat(ctx context.Context) (vfs.StatInfo, error) {
	return vfs.StatInfo{Mode: vfs.ModeChr | 0o620}, nil
}

// Ioctl implements TIOCGPGRP/TIOCSPGRP (foreground-group job control,
// spec.md §4.G's core operation), TCGETS/TCSETS (termios) and
// TIOCGWINSZ, delegating to the bound TerminalDevice.
func (f *TerminalFile) Ioctl(ctx context.Context, req uint32, arg []byte) ([]byte, error) {
	switch req {
	case IoctlTIOCGPGRP:
		pgid, err := f.dev.GetForegroundPgrp()
		if err != nil {
			return nil, err
		}

		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, pgid)

		return buf, nil

	case IoctlTIOCSPGRP:
		if len(arg) < 4 {
			return nil, errno.Wrap(errno.EINVAL, "ioctl", nil)
		}

		return nil, f.dev.SetForegroundPgrp(binary.LittleEndian.Uint32(arg))

	case IoctlTCGETS:
		return f.dev.TermiosBytes(), nil

	case IoctlTCSETS:
		return nil, f.dev.SetTermiosBytes(arg)

	case IoctlTIOCGWINSZ:
		return f.dev.WindowSizeBytes(), nil

	default:
		return nil, errno.Wrap(errno.ENOTTY, "ioctl", nil)
	}
}

func (f *TerminalFile) Close() error { return nil }
