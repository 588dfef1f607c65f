package syscall

import (
	"encoding/binary"

	"github.com/eonix-go/eonix/kernel/errno"
	"github.com/eonix-go/eonix/kernel/mm"
)

// userTop is the user/kernel address split spec.md §4.H requires every
// User/UserMut constructor to check against ("pointer constructors check
// that the address + length lies below the user/kernel split"). This
// build's mm package already enforces the real split inside
// MMList.ReadAt/WriteAt against each area's actual mapping, so this is a
// coarse sanity bound catching the obviously-invalid case (address
// wraparound) before a real fault-checked access is attempted.
const userTop = uint64(1) << 47

// User is a read-only typed user-space pointer: a virtual address paired
// with the size of T for bounds math, validated at dereference time
// rather than at construction, matching original_source's User<T>.
type User[T any] struct {
	Addr uint64
}

// UserMut is User's writable counterpart, original_source's UserMut<T>.
type UserMut[T any] struct {
	Addr uint64
}

func (u User[T]) IsNull() bool    { return u.Addr == 0 }
func (u UserMut[T]) IsNull() bool { return u.Addr == 0 }

// checkRange is the common bound original_source's pointer constructors
// apply: address + length must not cross the user/kernel split.
func checkRange(addr uint64, length uint64) error {
	if addr == 0 {
		return errno.Wrap(errno.EFAULT, "user pointer", nil)
	}

	end, carried := addAddr(addr, length)
	if carried || end > userTop {
		return errno.Wrap(errno.EFAULT, "user pointer", nil)
	}

	return nil
}

func addAddr(a, b uint64) (sum uint64, overflow bool) {
	sum = a + b
	return sum, sum < a
}

// ReadUser copies len(buf) bytes from user address addr into buf, faulting
// in the memory first. EFAULT on a bad address or an address past the user/
// kernel split, matching the fix-list-entry behavior spec.md §4.H
// describes ("a fault during copy returns EFAULT rather than killing the
// process").
func ReadUser(mmList *mm.MMList, addr uint64, buf []byte) error {
	if err := checkRange(addr, uint64(len(buf))); err != nil {
		return err
	}

	if err := mmList.ReadAt(addr, buf); err != nil {
		return errno.Wrap(errno.EFAULT, "user pointer", err)
	}

	return nil
}

// WriteUser is ReadUser's write-side counterpart.
func WriteUser(mmList *mm.MMList, addr uint64, buf []byte) error {
	if err := checkRange(addr, uint64(len(buf))); err != nil {
		return err
	}

	if err := mmList.WriteAt(addr, buf); err != nil {
		return errno.Wrap(errno.EFAULT, "user pointer", err)
	}

	return nil
}

// ReadUserString copies a NUL-terminated string out of user memory, one
// 256-byte chunk at a time, up to maxLen bytes — the FromSyscallArg
// decoding every *const u8 pathname/exec argument goes through
// (original_source's UserString).
func ReadUserString(mmList *mm.MMList, addr uint64, maxLen int) (string, error) {
	if addr == 0 {
		return "", errno.Wrap(errno.EFAULT, "user string", nil)
	}

	const chunk = 256

	var out []byte
	buf := make([]byte, chunk)

	for len(out) < maxLen {
		n := chunk
		if remaining := maxLen - len(out); remaining < n {
			n = remaining
		}

		if err := ReadUser(mmList, addr+uint64(len(out)), buf[:n]); err != nil {
			return "", err
		}

		if i := indexZero(buf[:n]); i >= 0 {
			out = append(out, buf[:i]...)
			return string(out), nil
		}

		out = append(out, buf[:n]...)
	}

	return "", errno.Wrap(errno.ENAMETOOLONG, "user string", nil)
}

func indexZero(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}

	return -1
}

// ReadUserPtrArray reads a NULL-terminated array of user pointers (an
// argv/envp vector), the way sys_execve's argv/envp decoding loop does.
func ReadUserPtrArray(mmList *mm.MMList, addr uint64, maxCount int) ([]uint64, error) {
	var out []uint64

	var word [8]byte

	for i := 0; i < maxCount; i++ {
		if err := ReadUser(mmList, addr+uint64(i)*8, word[:]); err != nil {
			return nil, err
		}

		ptr := binary.LittleEndian.Uint64(word[:])
		if ptr == 0 {
			return out, nil
		}

		out = append(out, ptr)
	}

	return nil, errno.Wrap(errno.E2BIG, "user pointer array", nil)
}

// argInt32/argUint32/argUint64 are FromSyscallArg's primitive-integer
// impls: a syscall argument register truncated/reinterpreted to the
// handler's declared argument type.
func argInt32(v uintptr) int32   { return int32(v) }
func argUint32(v uintptr) uint32 { return uint32(v) }
func argUint64(v uintptr) uint64 { return uint64(v) }
func argInt64(v uintptr) int64   { return int64(v) }
