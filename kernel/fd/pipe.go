package fd

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/eonix-go/eonix/kernel/errno"
	"github.com/eonix-go/eonix/kernel/vfs"
)

// pipeCapacity is the fixed ring buffer size original_source/file.rs's
// Pipe uses (PIPE_BUF's traditional 4096-byte value).
const pipeCapacity = 4096

// pipeCore is the shared ring buffer both ends of a pipe hold a pointer
// to, mirroring original_source's PipeInner guarded by a single mutex
// plus two condvars (one per direction a blocked end waits on).
type pipeCore struct {
	mu sync.Mutex

	buf        [pipeCapacity]byte
	start, len int

	readers, writers int // live end count, for EOF/SIGPIPE detection

	cvRead  sync.Cond // signaled when data becomes available, or write end closes
	cvWrite sync.Cond // signaled when space frees up, or read end closes
}

func newPipeCore() *pipeCore {
	c := &pipeCore{readers: 1, writers: 1}
	c.cvRead = sync.Cond{L: &c.mu}
	c.cvWrite = sync.Cond{L: &c.mu}

	return c
}

func (c *pipeCore) free() int { return pipeCapacity - c.len }

func (c *pipeCore) read(buf []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.len == 0 && c.writers > 0 {
		c.cvRead.Wait()
	}

	if c.len == 0 && c.writers == 0 {
		return 0, nil // EOF: drained and no writer can ever add more
	}

	n := min(len(buf), c.len)
	for i := 0; i < n; i++ {
		buf[i] = c.buf[(c.start+i)%pipeCapacity]
	}

	c.start = (c.start + n) % pipeCapacity
	c.len -= n

	c.cvWrite.Broadcast()

	return n, nil
}

// write blocks until the whole of p fits rather than doing a
// short write, matching PIPE_BUF atomicity and original_source's
// write_atomic. raiseSIGPIPE is invoked (if non-nil) the first time the
// read end is found already closed.
func (c *pipeCore) write(p []byte, raiseSIGPIPE func()) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.readers == 0 {
		if raiseSIGPIPE != nil {
			raiseSIGPIPE()
		}

		return 0, errno.Wrap(errno.EPIPE, "write", nil)
	}

	for c.free() < len(p) {
		c.cvWrite.Wait()

		if c.readers == 0 {
			if raiseSIGPIPE != nil {
				raiseSIGPIPE()
			}

			return 0, errno.Wrap(errno.EPIPE, "write", nil)
		}
	}

	writeAt := (c.start + c.len) % pipeCapacity
	for i, b := range p {
		c.buf[(writeAt+i)%pipeCapacity] = b
	}

	c.len += len(p)

	c.cvRead.Broadcast()

	return len(p), nil
}

func (c *pipeCore) closeRead() {
	c.mu.Lock()
	c.readers--
	c.mu.Unlock()
	c.cvWrite.Broadcast()
}

func (c *pipeCore) closeWrite() {
	c.mu.Lock()
	c.writers--
	c.mu.Unlock()
	c.cvRead.Broadcast()
}

func (c *pipeCore) pollRead(interested PollEvent) PollEvent {
	c.mu.Lock()
	defer c.mu.Unlock()

	var ready PollEvent
	if interested.Has(PollReadable) && (c.len > 0 || c.writers == 0) {
		ready |= PollReadable
	}

	return ready
}

func (c *pipeCore) pollWrite(interested PollEvent) PollEvent {
	c.mu.Lock()
	defer c.mu.Unlock()

	var ready PollEvent
	if interested.Has(PollWritable) && (c.free() > 0 || c.readers == 0) {
		ready |= PollWritable
	}

	return ready
}

// NewPipe builds a connected read end / write end pair, as pipe(2)
// returns. raiseSIGPIPE, if non-nil, is called on the writing thread
// when a write is attempted after the read end has closed.
func NewPipe(raiseSIGPIPE func()) (*PipeReadEnd, *PipeWriteEnd) {
	core := newPipeCore()

	read := &PipeReadEnd{core: core}
	write := &PipeWriteEnd{core: core, raiseSIGPIPE: raiseSIGPIPE}
	read.flags.Store(uint32(ORdOnly))
	write.flags.Store(uint32(OWrOnly))

	return read, write
}

// PipeReadEnd is the read-only File a pipe(2) read fd holds.
type PipeReadEnd struct {
	core   *pipeCore
	flags  atomic.Uint32
	closed atomic.Bool
}

func (p *PipeReadEnd) Flags() OpenFlags { return OpenFlags(p.flags.Load()) }

func (p *PipeReadEnd) SetFlags(flags OpenFlags) {
	const mutable = ONonblock

	for {
		old := p.flags.Load()
		next := (old &^ uint32(mutable)) | uint32(flags&mutable)

		if p.flags.CompareAndSwap(old, next) {
			return
		}
	}
}

func (p *PipeReadEnd) Read(ctx context.Context, buf []byte) (int, error) { return p.core.read(buf) }

func (p *PipeReadEnd) Write(context.Context, []byte) (int, error) {
	return 0, errno.Wrap(errno.EBADF, "write", nil)
}

func (p *PipeReadEnd) Seek(context.Context, int64, int) (int64, error) {
	return 0, errno.Wrap(errno.ESPIPE, "lseek", nil)
}

func (p *PipeReadEnd) Poll(ctx context.Context, interested PollEvent) (PollEvent, error) {
	return p.core.pollRead(interested), nil
}

func (p *PipeReadEnd) Readdir(context.Context, int, func(string, vfs.Ino) bool) (int, error) {
	return 0, errno.Wrap(errno.ENOTDIR, "getdents", nil)
}

func (p *PipeReadEnd) Stat(context.Context) (vfs.StatInfo, error) {
	return vfs.StatInfo{Mode: vfs.ModeFIFO | 0o600}, nil
}

func (p *PipeReadEnd) Ioctl(context.Context, uint32, []byte) ([]byte, error) {
	return nil, errno.Wrap(errno.ENOTTY, "ioctl", nil)
}

func (p *PipeReadEnd) Close() error {
	if p.closed.CompareAndSwap(false, true) {
		p.core.closeRead()
	}

	return nil
}

// PipeWriteEnd is the write-only File a pipe(2) write fd holds.
type PipeWriteEnd struct {
	core         *pipeCore
	flags        atomic.Uint32
	closed       atomic.Bool
	raiseSIGPIPE func()
}

func (p *PipeWriteEnd) Flags() OpenFlags { return OpenFlags(p.flags.Load()) }

func (p *PipeWriteEnd) SetFlags(flags OpenFlags) {
	const mutable = ONonblock

	for {
		old := p.flags.Load()
		next := (old &^ uint32(mutable)) | uint32(flags&mutable)

		if p.flags.CompareAndSwap(old, next) {
			return
		}
	}
}

func (p *PipeWriteEnd) Read(context.Context, []byte) (int, error) {
	return 0, errno.Wrap(errno.EBADF, "read", nil)
}

func (p *PipeWriteEnd) Write(ctx context.Context, data []byte) (int, error) {
	return p.core.write(data, p.raiseSIGPIPE)
}

func (p *PipeWriteEnd) Seek(context.Context, int64, int) (int64, error) {
	return 0, errno.Wrap(errno.ESPIPE, "lseek", nil)
}

func (p *PipeWriteEnd) Poll(ctx context.Context, interested PollEvent) (PollEvent, error) {
	return p.core.pollWrite(interested), nil
}

func (p *PipeWriteEnd) Readdir(context.Context, int, func(string, vfs.Ino) bool) (int, error) {
	return 0, errno.Wrap(errno.ENOTDIR, "getdents", nil)
}

func (p *PipeWriteEnd) Stat(context.Context) (vfs.StatInfo, error) {
	return vfs.StatInfo{Mode: vfs.ModeFIFO | 0o600}, nil
}

func (p *PipeWriteEnd) Ioctl(context.Context, uint32, []byte) ([]byte, error) {
	return nil, errno.Wrap(errno.ENOTTY, "ioctl", nil)
}

func (p *PipeWriteEnd) Close() error {
	if p.closed.CompareAndSwap(false, true) {
		p.core.closeWrite()
	}

	return nil
}
