package syscall

import (
	"context"

	"github.com/eonix-go/eonix/kernel/process"
)

func init() {
	Register(sysUname, "uname", sysUnameH)
	Register(sysSysinfo, "sysinfo", sysSysinfoH)
	Register(sysGetuid, "getuid", sysGetuidH)
	Register(sysGeteuid, "geteuid", sysGetuidH)
	Register(sysGetgid, "getgid", sysGetgidH)
	Register(sysGetegid, "getegid", sysGetgidH)
}

// utsFieldLen matches struct utsname's per-field length (Linux's
// __NEW_UTS_LEN + 1), mirroring original_source's NewUTSName.
const utsFieldLen = 65

func putCString(buf []byte, offset int, s string) {
	n := copy(buf[offset:offset+utsFieldLen-1], s)
	buf[offset+n] = 0
}

func sysUnameH(_ context.Context, t *process.Thread, args Args) (uintptr, error, bool) {
	buf := make([]byte, utsFieldLen*6)

	putCString(buf, utsFieldLen*0, "Linux")
	putCString(buf, utsFieldLen*1, "eonix")
	putCString(buf, utsFieldLen*2, "1.0.0")
	putCString(buf, utsFieldLen*3, "1.0.0")
	putCString(buf, utsFieldLen*4, "x86_64")
	putCString(buf, utsFieldLen*5, "(none)")

	if err := WriteUser(t.Process.MM, argUint64(args[0]), buf); err != nil {
		return retErr(err)
	}

	return ret(0)
}

// sysSysinfoH reports placeholder statistics, matching original_source's
// sysinfo handler: no real memory accounting is wired to a page allocator
// in this build, so the numbers are fixed rather than derived.
func sysSysinfoH(_ context.Context, t *process.Thread, args Args) (uintptr, error, bool) {
	buf := make([]byte, 64)

	putLE32(buf[0:4], 0) // uptime
	putLE32(buf[16:20], 100)
	putLE32(buf[20:24], 50)
	buf[40] = 1 // procs = 1 (u16, little-endian low byte)
	buf[41] = 0
	putLE32(buf[52:56], 1024) // mem_unit

	if err := WriteUser(t.Process.MM, argUint64(args[0]), buf); err != nil {
		return retErr(err)
	}

	return ret(0)
}

// sysGetuidH backs getuid and geteuid: this build tracks one uid per
// process (kernel/process/cap.go), no separate real/effective split, so
// both syscalls return the same value.
func sysGetuidH(_ context.Context, t *process.Thread, _ Args) (uintptr, error, bool) {
	return ret(uintptr(t.Process.UID()))
}

// sysGetgidH backs getgid/getegid: no gid is tracked in this build (only
// uid, per kernel/process/cap.go's capability-drop model), matching
// original_source's do_getgid/do_getegid, which both return 0
// unconditionally ("All users are root for now" for the group axis).
func sysGetgidH(_ context.Context, _ *process.Thread, _ Args) (uintptr, error, bool) {
	return ret(0)
}
