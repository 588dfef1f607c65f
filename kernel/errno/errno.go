// Package errno defines the POSIX error codes used as the return channel
// between kernel operations and the syscall dispatch layer (spec.md §6-7).
package errno

import (
	"errors"
	"fmt"
)

// Errno is a POSIX error number. The zero value is not a valid error.
type Errno int

// The subset of the POSIX errno namespace spec.md §6 calls out by name.
// Values match Linux/x86_64 numbering, i.e. golang.org/x/sys/unix's
// constants of the same name, so that kernel/syscall can return
// -int(Errno) directly as the ABI return value.
const (
	EPERM     Errno = 1
	ENOENT    Errno = 2
	ESRCH     Errno = 3
	EINTR     Errno = 4
	EIO       Errno = 5
	ENXIO     Errno = 6
	E2BIG     Errno = 7
	EBADF     Errno = 9
	ECHILD    Errno = 10
	EAGAIN    Errno = 11
	ENOMEM    Errno = 12
	EACCES    Errno = 13
	EFAULT    Errno = 14
	EBUSY     Errno = 16
	EEXIST    Errno = 17
	EXDEV     Errno = 18
	ENODEV    Errno = 19
	ENOTDIR   Errno = 20
	EISDIR    Errno = 21
	EINVAL    Errno = 22
	ENFILE    Errno = 23
	EMFILE    Errno = 24
	ENOTTY    Errno = 25
	EFBIG     Errno = 27
	ENOSPC    Errno = 28
	ESPIPE    Errno = 29
	EROFS     Errno = 30
	EMLINK    Errno = 31
	EPIPE     Errno = 32
	ENAMETOOLONG Errno = 36
	ENOSYS    Errno = 38
	ENOTEMPTY Errno = 39
	ELOOP     Errno = 40
	ERANGE    Errno = 34
	ENOTSOCK  Errno = 88
	EOVERFLOW Errno = 75
)

var names = map[Errno]string{
	EPERM: "EPERM", ENOENT: "ENOENT", ESRCH: "ESRCH", EINTR: "EINTR",
	EIO: "EIO", ENXIO: "ENXIO", E2BIG: "E2BIG", EBADF: "EBADF",
	ECHILD: "ECHILD", EAGAIN: "EAGAIN", ENOMEM: "ENOMEM", EACCES: "EACCES",
	EFAULT: "EFAULT", EBUSY: "EBUSY", EEXIST: "EEXIST", EXDEV: "EXDEV",
	ENODEV: "ENODEV", ENOTDIR: "ENOTDIR", EISDIR: "EISDIR", EINVAL: "EINVAL",
	ENFILE: "ENFILE", EMFILE: "EMFILE", ENOTTY: "ENOTTY", EFBIG: "EFBIG",
	ENOSPC: "ENOSPC", ESPIPE: "ESPIPE", EROFS: "EROFS", EMLINK: "EMLINK",
	EPIPE: "EPIPE", ENAMETOOLONG: "ENAMETOOLONG", ENOSYS: "ENOSYS",
	ENOTEMPTY: "ENOTEMPTY", ELOOP: "ELOOP", ENOTSOCK: "ENOTSOCK",
	EOVERFLOW: "EOVERFLOW", ERANGE: "ERANGE",
}

// String implements fmt.Stringer.
func (e Errno) String() string {
	if name, ok := names[e]; ok {
		return name
	}

	return fmt.Sprintf("errno(%d)", int(e))
}

// Error implements the error interface so an Errno can be returned and
// compared directly with errors.Is against another *Error.
func (e Errno) Error() string {
	return e.String()
}

// Error wraps an Errno with the operation that produced it and, optionally,
// the lower-level cause (e.g. a host I/O error for a file-backed mapping).
// Mirrors the teacher's fmt.Errorf("...: %w", err) wrapping idiom, typed so
// kernel/syscall can recover the Errno with As.
type Error struct {
	Errno Errno
	Op    string
	Cause error
}

// Wrap builds an *Error for op, optionally chaining cause.
func Wrap(code Errno, op string, cause error) *Error {
	return &Error{Errno: code, Op: op, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Errno, e.Cause)
	}

	return fmt.Sprintf("%s: %s", e.Op, e.Errno)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is(err, errno.ENOENT) work against a wrapped *Error.
func (e *Error) Is(target error) bool {
	code, ok := target.(Errno)
	return ok && code == e.Errno
}

// Code extracts the Errno from any error produced by this package, or
// EINVAL if err is a plain, non-errno error (never panics: callers on the
// syscall-return path always need *some* errno).
func Code(err error) Errno {
	if err == nil {
		return 0
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Errno
	}

	var code Errno
	if errors.As(err, &code) {
		return code
	}

	return EINVAL
}
