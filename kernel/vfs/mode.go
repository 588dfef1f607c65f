// Package vfs implements the virtual filesystem layer of spec.md §4.E:
// Dentry/Inode/Mount/Superblock, dentry-cache-backed path resolution with
// symlink following, and the three rename variants.
package vfs

import "fmt"

// Mode packs the file type bits (S_IFMT) and permission bits of a POSIX
// inode, mirroring original_source/src/kernel/vfs/inode.rs's Mode.
type Mode uint32

const (
	ModeFmt  Mode = 0o170000
	ModeFIFO Mode = 0o010000
	ModeChr  Mode = 0o020000
	ModeDir  Mode = 0o040000
	ModeBlk  Mode = 0o060000
	ModeReg  Mode = 0o100000
	ModeLnk  Mode = 0o120000
	ModeSock Mode = 0o140000
)

func (m Mode) IsDir() bool  { return m&ModeFmt == ModeDir }
func (m Mode) IsReg() bool  { return m&ModeFmt == ModeReg }
func (m Mode) IsLnk() bool  { return m&ModeFmt == ModeLnk }
func (m Mode) IsChr() bool  { return m&ModeFmt == ModeChr }
func (m Mode) IsBlk() bool  { return m&ModeFmt == ModeBlk }
func (m Mode) IsFIFO() bool { return m&ModeFmt == ModeFIFO }

// FormatBits returns the S_IFMT-masked file-type bits.
func (m Mode) FormatBits() Mode { return m & ModeFmt }

// Perm returns every bit outside S_IFMT: the owner/group/other rwx bits
// plus setuid, setgid and sticky.
func (m Mode) Perm() Mode { return m &^ ModeFmt }

func (m Mode) String() string {
	var kind string

	switch m.FormatBits() {
	case ModeDir:
		kind = "DIR"
	case ModeReg:
		kind = "REG"
	case ModeLnk:
		kind = "LNK"
	case ModeBlk:
		kind = "BLK"
	case ModeChr:
		kind = "CHR"
	case ModeFIFO:
		kind = "FIFO"
	case ModeSock:
		kind = "SOCK"
	default:
		kind = "UNK"
	}

	return fmt.Sprintf("Mode(%s, %#o)", kind, m.Perm())
}
