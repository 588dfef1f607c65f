package main

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/eonix-go/eonix/kernel/logger"
	"github.com/eonix-go/eonix/kernel/process"
	"github.com/eonix-go/eonix/kernel/terminal"
)

// bindControlTerminal binds tty as init's session's controlling
// terminal, using Session.SetControlTerminal the way a real TIOCSCTTY
// ioctl would, forced since PID 1's session has no prior terminal to
// conflict with.
func bindControlTerminal(tty *terminal.Terminal, init *process.Process) error {
	sid, ok := init.Sid()
	if !ok {
		return fmt.Errorf("eonix attach: init has no session")
	}

	sess, ok := process.Global().GetSession(sid)
	if !ok {
		return fmt.Errorf("eonix attach: session %d not found", sid)
	}

	pgid, ok := init.Pgid()
	if !ok {
		return fmt.Errorf("eonix attach: init has no process group")
	}

	pg, ok := process.Global().GetPgroup(pgid)
	if !ok {
		return fmt.Errorf("eonix attach: process group %d not found", pgid)
	}

	return sess.SetControlTerminal(tty, true, pg)
}

// stdoutDevice satisfies terminal.Device by writing straight to the
// host's stdout, the real-TTY counterpart to whatever in-memory Device a
// unit test wires up instead.
type stdoutDevice struct{ out *os.File }

func (d stdoutDevice) PutChar(ch byte) { d.out.Write([]byte{ch}) }

// newAttachCmd is eonix's debug console: it puts the host terminal into
// raw mode and pipes it through kernel/terminal's line discipline bound
// to PID 1's session, so ISIG/ICANON/erase processing can be exercised
// against a real keyboard instead of only a fed byte buffer.
func newAttachCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "attach",
		Short: "attach the host TTY to the kernel's controlling terminal for PID 1",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAttach(cmd.Context())
		},
	}
}

func runAttach(ctx context.Context) error {
	k, err := NewKernel(jsonLogs)
	if err != nil {
		return err
	}

	if err := k.Init(ctx); err != nil {
		return err
	}
	defer k.Stop(context.Background())

	fd := int(os.Stdin.Fd())

	if !term.IsTerminal(fd) {
		return fmt.Errorf("eonix attach: stdin is not a terminal")
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("eonix attach: entering raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	tty := terminal.New(stdoutDevice{out: os.Stdout})

	if err := bindControlTerminal(tty, k.init.Process); err != nil {
		k.log.Warn("attach: failed to bind controlling terminal", logger.Ctx{"error": err.Error()})
	}

	fmt.Fprintln(os.Stderr, "eonix attach: raw mode engaged, Ctrl-D to detach")

	reader := bufio.NewReaderSize(os.Stdin, 1)

	for {
		b, err := reader.ReadByte()
		if err != nil {
			return nil
		}

		tty.CommitChar(b)

		if b == 0x04 {
			return nil
		}
	}
}
