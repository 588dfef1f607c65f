package terminal

import (
	"encoding/binary"

	"github.com/eonix-go/eonix/kernel/errno"
)

// IOCtl command numbers this terminal answers, matching the Linux TIOC*
// ABI original_source's TerminalIORequest enum dispatches on.
const (
	TIOCGPGRP  = 0x540f
	TIOCSPGRP  = 0x5410
	TIOCGWINSZ = 0x5413
	TCGETS     = 0x5401
	TCSETS     = 0x5402
)

// GetForegroundPgrp implements TIOCGPGRP: ENOTTY if no session (or no
// foreground group) is bound, matching original_source's ioctl handler.
func (t *Terminal) GetForegroundPgrp() (uint32, error) {
	t.mu.Lock()
	session := t.session
	t.mu.Unlock()

	if session == nil {
		return 0, errno.Wrap(errno.ENOTTY, "tiocgpgrp", nil)
	}

	pgid, ok := session.ForegroundPGID()
	if !ok {
		return 0, errno.Wrap(errno.ENOTTY, "tiocgpgrp", nil)
	}

	return pgid, nil
}

// SetForegroundPgrp implements TIOCSPGRP.
func (t *Terminal) SetForegroundPgrp(pgid uint32) error {
	t.mu.Lock()
	session := t.session
	t.mu.Unlock()

	if session == nil {
		return errno.Wrap(errno.ENOTTY, "tiocspgrp", nil)
	}

	return session.SetForegroundPGID(pgid)
}

// GetWindowSize implements TIOCGWINSZ. This kernel has no real console
// geometry to report, so it returns the same fixed 80x40 size
// original_source's placeholder does.
func (t *Terminal) GetWindowSize() WindowSize {
	return WindowSize{Row: 40, Col: 80}
}

// GetTermios implements TCGETS.
func (t *Terminal) GetTermios() Termios {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.termio
}

// SetTermios implements TCSETS.
func (t *Terminal) SetTermios(termio Termios) {
	t.mu.Lock()
	t.termio = termio
	t.mu.Unlock()
}

// termiosWireSize is the flat encoding TermiosBytes/SetTermiosBytes use:
// IFlag, OFlag, CFlag, LFlag, Line (plus one pad byte), then CC. This is
// eonix's own wire format, not glibc's struct termios (which also carries
// c_ispeed/c_ospeed this kernel has no baud rate to report), the same
// non-ABI-exact precedent kernel/syscall's encodeStat sets.
const termiosWireSize = 2 + 2 + 4 + 2 + 1 + 1 + NCC

// TermiosBytes encodes the current termios state in termiosWireSize's
// layout for TCGETS, implementing fd.TerminalDevice without that package
// needing to import kernel/terminal's Termios type.
func (t *Terminal) TermiosBytes() []byte {
	t.mu.Lock()
	termio := t.termio
	t.mu.Unlock()

	buf := make([]byte, termiosWireSize)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(termio.IFlag))
	binary.LittleEndian.PutUint16(buf[2:4], uint16(termio.OFlag))
	binary.LittleEndian.PutUint32(buf[4:8], termio.CFlag)
	binary.LittleEndian.PutUint16(buf[8:10], uint16(termio.LFlag))
	buf[10] = termio.Line
	copy(buf[12:], termio.CC[:])

	return buf
}

// SetTermiosBytes decodes data in TermiosBytes' layout and installs it,
// implementing fd.TerminalDevice for TCSETS.
func (t *Terminal) SetTermiosBytes(data []byte) error {
	if len(data) < termiosWireSize {
		return errno.Wrap(errno.EINVAL, "tcsets", nil)
	}

	var termio Termios
	termio.IFlag = IFlags(binary.LittleEndian.Uint16(data[0:2]))
	termio.OFlag = OFlags(binary.LittleEndian.Uint16(data[2:4]))
	termio.CFlag = binary.LittleEndian.Uint32(data[4:8])
	termio.LFlag = LFlags(binary.LittleEndian.Uint16(data[8:10]))
	termio.Line = data[10]
	copy(termio.CC[:], data[12:12+NCC])

	t.mu.Lock()
	t.termio = termio
	t.mu.Unlock()

	return nil
}

// WindowSizeBytes encodes GetWindowSize as struct winsize's real 4x
// uint16 little-endian layout (ws_row, ws_col, ws_xpixel, ws_ypixel),
// implementing fd.TerminalDevice for TIOCGWINSZ.
func (t *Terminal) WindowSizeBytes() []byte {
	ws := t.GetWindowSize()

	buf := make([]byte, 8)
	binary.LittleEndian.PutUint16(buf[0:2], ws.Row)
	binary.LittleEndian.PutUint16(buf[2:4], ws.Col)
	binary.LittleEndian.PutUint16(buf[4:6], ws.XPixel)
	binary.LittleEndian.PutUint16(buf[6:8], ws.YPixel)

	return buf
}
