package terminal

import (
	"bytes"
	"context"
	"sync"

	"github.com/eonix-go/eonix/kernel/errno"
	"github.com/eonix-go/eonix/kernel/signal"
)

// bufferSize is the N_TTY input ring capacity, matching
// original_source/src/kernel/terminal.rs's BUFFER_SIZE.
const bufferSize = 4096

// Device is the byte-output sink a Terminal drives, mirroring
// original_source's TerminalDevice trait (just `putchar`). A real serial
// port or pty master implements this; cmd/eonix's attach subcommand wires
// one backed by golang.org/x/term.
type Device interface {
	PutChar(ch byte)
}

// ForegroundGroup is the session binding a Terminal raises job-control
// signals through. kernel/process's Session satisfies this structurally
// (the same decoupling kernel/mm uses for kernel/signal.UserMemory),
// keeping this package independent of kernel/process.
type ForegroundGroup interface {
	RaiseForeground(sig signal.Signal)
	ForegroundPGID() (pgid uint32, ok bool)
	SetForegroundPGID(pgid uint32) error
}

// Terminal is one controlling terminal: line discipline state, the input
// ring buffer, and the session currently bound to it.
type Terminal struct {
	mu sync.Mutex

	termio  Termios
	session ForegroundGroup
	rbuf    []byte

	device Device

	// readReady is closed and replaced every time new data, EOF, or a
	// read-interrupting condition appears, waking every blocked reader
	// (sync.Cond has no context-cancellation escape hatch, so this
	// channel-generation idiom stands in for CondVar::wait here; no
	// library in the corpus supplies a cancellable condvar either).
	readReady chan struct{}
}

// New constructs a terminal driving device, with standard termios and no
// bound session.
func New(device Device) *Terminal {
	return &Terminal{
		termio:    StandardTermios(),
		device:    device,
		rbuf:      make([]byte, 0, bufferSize),
		readReady: make(chan struct{}),
	}
}

func (t *Terminal) notifyReaders() {
	close(t.readReady)
	t.readReady = make(chan struct{})
}

func (t *Terminal) clearReadBuffer() { t.rbuf = t.rbuf[:0] }

// ShowChar writes one output byte straight to the device (no output
// processing); OPOST translation happens in WriteOut.
func (t *Terminal) ShowChar(ch byte) { t.device.PutChar(ch) }

// erase pops the most recently typed character for backspace/kill
// processing, returning (ch, true) if one was removed. It never crosses
// a line boundary (newline, EOF or EOL characters stop it), matching
// original_source's erase.
func (t *Terminal) erase(echo bool) (byte, bool) {
	if len(t.rbuf) == 0 {
		return 0, false
	}

	back := t.rbuf[len(t.rbuf)-1]
	if back == '\n' || back == t.termio.veof() || back == t.termio.veol() || back == t.termio.veol2() {
		return 0, false
	}

	t.rbuf = t.rbuf[:len(t.rbuf)-1]

	if echo && t.termio.echo() && t.termio.echoe() {
		t.ShowChar(0x08) // backspace
		t.ShowChar(' ')
		t.ShowChar(0x08)
	}

	return back, true
}

func (t *Terminal) echoChar(ch byte) {
	switch {
	case ch == '\t' || ch == '\n' || ch == ctrl('Q') || ch == ctrl('S'):
		t.ShowChar(ch)
	case ch >= 32:
		t.ShowChar(ch)
	case !t.termio.echo() || !t.termio.echoctl() || !t.termio.iexten():
		t.ShowChar(ch)
	default:
		t.ShowChar('^')
		t.ShowChar(ch + 0x40)
	}
}

func (t *Terminal) raiseSignal(sig signal.Signal) {
	if t.session != nil {
		t.session.RaiseForeground(sig)
	}

	if !t.termio.noflsh() {
		t.clearReadBuffer()
	}
}

func (t *Terminal) echoAndSignal(ch byte, sig signal.Signal) {
	t.echoChar(ch)
	t.raiseSignal(sig)
}

func (t *Terminal) commitChar(ch byte) {
	t.rbuf = append(t.rbuf, ch)

	if t.termio.echo() || (ch == '\n' && t.termio.echonl()) {
		t.echoChar(ch)
	}

	if ch == '\n' || !t.termio.icanon() {
		t.notifyReaders()
	}
}

// CommitChar ingests one byte of raw input from the device, applying
// ISIG interrupt/quit/suspend handling, ICANON line editing (erase/kill),
// and CR/NL input translation, matching original_source's commit_char.
func (t *Terminal) CommitChar(ch byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.termio.isig() {
		switch {
		case ch == 0xff:
		case ch == t.termio.vintr():
			t.echoAndSignal(ch, signal.SIGINT)
			return
		case ch == t.termio.vquit():
			t.echoAndSignal(ch, signal.SIGQUIT)
			return
		case ch == t.termio.vsusp():
			t.echoAndSignal(ch, signal.SIGTSTP)
			return
		}
	}

	if t.termio.icanon() {
		switch {
		case ch == 0xff:
		case ch == t.termio.veof():
			t.notifyReaders()
			return
		case ch == t.termio.verase():
			t.erase(true)
			return
		case ch == t.termio.vkill():
			if t.termio.echok() {
				for {
					if _, ok := t.erase(false); !ok {
						break
					}
				}
				t.ShowChar('\n')
			} else if t.termio.echoke() && t.termio.iexten() {
				for {
					if _, ok := t.erase(true); !ok {
						break
					}
				}
			}

			return
		}
	}

	switch {
	case ch == '\r' && t.termio.igncr():
	case ch == '\r' && t.termio.icrnl():
		t.commitChar('\n')
	case ch == '\n' && t.termio.inlcr():
		t.commitChar('\r')
	default:
		t.commitChar(ch)
	}
}

// HasInput reports whether a read would return data immediately, the
// poll(2)/select(2) readable predicate fd.TerminalDevice needs.
func (t *Terminal) HasInput() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.readableLocked()
}

// readableLocked reports whether the buffer holds data a read can take
// without waiting: any byte in raw mode, a complete line in canonical mode.
// t.mu must be held.
func (t *Terminal) readableLocked() bool {
	return len(t.rbuf) > 0 && (!t.termio.icanon() || bytes.IndexByte(t.rbuf, '\n') >= 0)
}

// interruptible is the narrow signal-pending check Read/ReadLine accept
// so a blocked read can return EINTR, satisfied structurally by
// *signal.ThreadSignals without this package importing kernel/task or
// kernel/process.
type interruptible interface {
	HasUnmasked() bool
}

// waitForInput blocks until a read can proceed (raw mode: the buffer is
// non-empty; canonical mode: it holds a complete line, or a VEOF wakeup
// arrives without one, after which the read takes whatever is buffered,
// possibly nothing), ctx is cancelled, or (if sig is non-nil) a pending
// unmasked signal appears.
func (t *Terminal) waitForInput(ctx context.Context, sig interruptible) error {
	for {
		t.mu.Lock()
		if t.readableLocked() {
			t.mu.Unlock()
			return nil
		}

		ready := t.readReady
		t.mu.Unlock()

		select {
		case <-ready:
			if sig != nil && sig.HasUnmasked() {
				return errno.Wrap(errno.EINTR, "read", nil)
			}

			// In canonical mode only a newline or VEOF wakes readers, so a
			// wakeup with no complete line buffered is VEOF.
			t.mu.Lock()
			eof := t.termio.icanon() && bytes.IndexByte(t.rbuf, '\n') < 0
			t.mu.Unlock()

			if eof {
				return nil
			}
		case <-ctx.Done():
			return errno.Wrap(errno.EINTR, "read", nil)
		}
	}
}

// ReadLine implements fd.TerminalDevice's Read contract: in canonical
// mode, returns data up to and including the first newline (or the whole
// buffer if none is present yet but the buffer is non-empty after a VEOF
// wakeup); in raw mode, returns whatever is available up to len(buf).
func (t *Terminal) ReadLine(ctx context.Context, buf []byte) (int, error) {
	return t.ReadLineSignal(ctx, buf, nil)
}

// ReadLineSignal is ReadLine with an explicit interruptible signal-check,
// for callers (kernel/fd via kernel/process) that need EINTR semantics.
func (t *Terminal) ReadLineSignal(ctx context.Context, buf []byte, sig interruptible) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}

	if err := t.waitForInput(ctx, sig); err != nil {
		return 0, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.rbuf) == 0 {
		return 0, nil
	}

	length := len(t.rbuf)
	if t.termio.icanon() {
		length = 0
		for i, ch := range t.rbuf {
			if ch == '\n' {
				length = i + 1
				break
			}
		}

		if length == 0 {
			length = len(t.rbuf)
		}
	}

	if length > len(buf) {
		length = len(buf)
	}

	n := copy(buf, t.rbuf[:length])
	t.rbuf = append(t.rbuf[:0], t.rbuf[length:]...)

	return n, nil
}

// WriteOut applies OPOST output processing (currently just ONLCR: LF ->
// CRLF) and writes the result straight to the device.
func (t *Terminal) WriteOut(ctx context.Context, data []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, ch := range data {
		if ch == '\n' && t.termio.opost() && t.termio.onlcr() {
			t.ShowChar('\r')
		}

		t.ShowChar(ch)
	}

	return len(data), nil
}

// SetSession binds session to this terminal as its controlling session,
// mirroring original_source's set_session: refuses to steal an already
// bound terminal unless forced.
func (t *Terminal) SetSession(session ForegroundGroup, forced bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.session != nil && !forced {
		return errno.Wrap(errno.EPERM, "tiocsctty", nil)
	}

	t.session = session

	return nil
}

func (t *Terminal) DropSession() {
	t.mu.Lock()
	t.session = nil
	t.mu.Unlock()
}

func (t *Terminal) Session() ForegroundGroup {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.session
}
