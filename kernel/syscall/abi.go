//go:build amd64

package syscall

import "golang.org/x/sys/unix"

// Numbers used by the registrations below, sourced from
// golang.org/x/sys/unix rather than re-declared, per SPEC_FULL.md's "ABI
// tables sourced from x/sys/unix" and spec.md §6 ("Linux-compatible
// numbering per architecture"). This build only wires the amd64 table;
// a riscv64 build would import the same constants from
// golang.org/x/sys/unix's riscv64-tagged files without any change to the
// handlers themselves, since Register keys off the syscall number, not
// the architecture.
const (
	sysRead       = unix.SYS_READ
	sysWrite      = unix.SYS_WRITE
	sysOpenat     = unix.SYS_OPENAT
	sysClose      = unix.SYS_CLOSE
	sysLseek      = unix.SYS_LSEEK
	sysFcntl      = unix.SYS_FCNTL
	sysDup        = unix.SYS_DUP
	sysDup3       = unix.SYS_DUP3
	sysPipe2      = unix.SYS_PIPE2
	sysIoctl      = unix.SYS_IOCTL
	sysFtruncate  = unix.SYS_FTRUNCATE
	sysGetdents64 = unix.SYS_GETDENTS64

	sysMmap     = unix.SYS_MMAP
	sysMunmap   = unix.SYS_MUNMAP
	sysBrk      = unix.SYS_BRK
	sysMprotect = unix.SYS_MPROTECT

	sysClone         = unix.SYS_CLONE
	sysFork          = unix.SYS_FORK
	sysVfork         = unix.SYS_VFORK
	sysExecve        = unix.SYS_EXECVE
	sysExit          = unix.SYS_EXIT
	sysExitGroup     = unix.SYS_EXIT_GROUP
	sysWait4         = unix.SYS_WAIT4
	sysKill          = unix.SYS_KILL
	sysTkill         = unix.SYS_TKILL
	sysSetsid        = unix.SYS_SETSID
	sysSetpgid       = unix.SYS_SETPGID
	sysGetsid        = unix.SYS_GETSID
	sysGetpgid       = unix.SYS_GETPGID
	sysGetpid        = unix.SYS_GETPID
	sysGetppid       = unix.SYS_GETPPID
	sysGettid        = unix.SYS_GETTID
	sysRtSigaction   = unix.SYS_RT_SIGACTION
	sysRtSigprocmask = unix.SYS_RT_SIGPROCMASK
	sysRtSigreturn   = unix.SYS_RT_SIGRETURN
	sysSetTidAddress = unix.SYS_SET_TID_ADDRESS
	sysPrctl         = unix.SYS_PRCTL

	sysChdir      = unix.SYS_CHDIR
	sysGetcwd     = unix.SYS_GETCWD
	sysMkdirat    = unix.SYS_MKDIRAT
	sysUnlinkat   = unix.SYS_UNLINKAT
	sysNewfstatat = unix.SYS_NEWFSTATAT
	sysUmask      = unix.SYS_UMASK
	sysMount      = unix.SYS_MOUNT
	sysUmount2    = unix.SYS_UMOUNT2

	sysUname   = unix.SYS_UNAME
	sysSysinfo = unix.SYS_SYSINFO
	sysGetuid  = unix.SYS_GETUID
	sysGeteuid = unix.SYS_GETEUID
	sysGetgid  = unix.SYS_GETGID
	sysGetegid = unix.SYS_GETEGID
)
