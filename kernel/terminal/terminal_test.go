package terminal_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eonix-go/eonix/kernel/errno"
	"github.com/eonix-go/eonix/kernel/signal"
	"github.com/eonix-go/eonix/kernel/terminal"
)

type fakeDevice struct {
	out []byte
}

func newFakeDevice() *fakeDevice { return &fakeDevice{} }

func (d *fakeDevice) PutChar(ch byte) { d.out = append(d.out, ch) }

type fakeSession struct {
	raised []signal.Signal
	pgid   uint32
	hasFg  bool
}

func (s *fakeSession) RaiseForeground(sig signal.Signal) { s.raised = append(s.raised, sig) }
func (s *fakeSession) ForegroundPGID() (uint32, bool)    { return s.pgid, s.hasFg }
func (s *fakeSession) SetForegroundPGID(pgid uint32) error {
	s.pgid, s.hasFg = pgid, true
	return nil
}

func TestCanonicalReadWaitsForNewline(t *testing.T) {
	term := terminal.New(newFakeDevice())

	for _, ch := range []byte("hi") {
		term.CommitChar(ch)
	}

	done := make(chan struct{})
	var n int
	var err error

	buf := make([]byte, 16)

	go func() {
		n, err = term.ReadLine(context.Background(), buf)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("read returned before a newline was committed")
	case <-time.After(30 * time.Millisecond):
	}

	term.CommitChar('\n')

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("read never woke up after newline")
	}

	require.NoError(t, err)
	require.Equal(t, "hi\n", string(buf[:n]))
}

func TestRawModeReturnsAvailableBytesWithoutNewline(t *testing.T) {
	term := terminal.New(newFakeDevice())

	raw := term.GetTermios()
	raw.LFlag &^= terminal.ICANON
	term.SetTermios(raw)

	term.CommitChar('a')
	term.CommitChar('b')

	buf := make([]byte, 16)
	n, err := term.ReadLine(context.Background(), buf)
	require.NoError(t, err)
	require.Equal(t, "ab", string(buf[:n]))
}

func TestEraseRemovesLastCharacterNotAcrossNewline(t *testing.T) {
	dev := newFakeDevice()
	term := terminal.New(dev)

	for _, ch := range []byte("ab") {
		term.CommitChar(ch)
	}

	term.CommitChar(0x7f) // VERASE

	term.CommitChar('\n')

	buf := make([]byte, 16)
	n, err := term.ReadLine(context.Background(), buf)
	require.NoError(t, err)
	require.Equal(t, "a\n", string(buf[:n]))
}

func TestIntrRaisesSIGINTAndClearsBuffer(t *testing.T) {
	term := terminal.New(newFakeDevice())
	session := &fakeSession{}
	require.NoError(t, term.SetSession(session, false))

	for _, ch := range []byte("partial") {
		term.CommitChar(ch)
	}

	term.CommitChar(0x03) // CTRL-C / VINTR

	require.Equal(t, []signal.Signal{signal.SIGINT}, session.raised)
	require.False(t, term.HasInput())
}

func TestSetSessionRefusesToStealWithoutForce(t *testing.T) {
	term := terminal.New(newFakeDevice())
	first := &fakeSession{}
	second := &fakeSession{}

	require.NoError(t, term.SetSession(first, false))

	err := term.SetSession(second, false)
	require.Error(t, err)
	require.Equal(t, errno.EPERM, errno.Code(err))

	require.NoError(t, term.SetSession(second, true))
	require.Equal(t, second, term.Session())
}

func TestIoctlPgrpRoundTrip(t *testing.T) {
	term := terminal.New(newFakeDevice())

	_, err := term.GetForegroundPgrp()
	require.Error(t, err)
	require.Equal(t, errno.ENOTTY, errno.Code(err))

	session := &fakeSession{}
	require.NoError(t, term.SetSession(session, false))

	require.NoError(t, term.SetForegroundPgrp(42))

	pgid, err := term.GetForegroundPgrp()
	require.NoError(t, err)
	require.Equal(t, uint32(42), pgid)
}

func TestWriteAppliesOnlcrTranslation(t *testing.T) {
	dev := newFakeDevice()
	term := terminal.New(dev)

	n, err := term.WriteOut(context.Background(), []byte("a\nb"))
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, "a\r\nb", string(dev.out))
}
