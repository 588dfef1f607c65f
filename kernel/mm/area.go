package mm

import (
	"context"
	"fmt"
)

// VRange is a page-aligned, half-open virtual address range [Start, End).
type VRange struct {
	Start uint64
	End   uint64
}

func (r VRange) Len() uint64 { return r.End - r.Start }

func (r VRange) Overlaps(o VRange) bool {
	return r.Start < o.End && o.Start < r.End
}

func (r VRange) Contains(addr uint64) bool {
	return addr >= r.Start && addr < r.End
}

func alignUpPage(v uint64) uint64 { return (v + PageSize - 1) &^ (PageSize - 1) }
func alignDownPage(v uint64) uint64 { return v &^ (PageSize - 1) }
func isPageAligned(v uint64) bool   { return v%PageSize == 0 }

// MappingKind distinguishes the two mapping sources spec.md §3 names.
type MappingKind int

const (
	MappingAnonymous MappingKind = iota
	MappingFile
)

// FileBacking is the narrow read contract mm needs from a file-backed
// mapping's inode, kept as an interface so this package has no import
// dependency on kernel/vfs.
type FileBacking interface {
	ReadAt(ctx context.Context, offset int64, p []byte) (int, error)
	Size() int64
}

// Mapping is spec.md §3's MMArea.mapping: "Anonymous | File(dentry,
// offset, length)".
type Mapping struct {
	Kind   MappingKind
	File   FileBacking
	Offset uint64 // page-aligned (spec.md invariant)
	Length uint64
}

// Permission is spec.md §3's MMArea.permission ("Read is always implied").
type Permission struct {
	Write   bool
	Execute bool
}

// MMArea is a contiguous, single-permission, single-mapping-source virtual
// range (spec.md §3 / GLOSSARY).
type MMArea struct {
	Range      VRange
	Mapping    Mapping
	Permission Permission
}

func (a *MMArea) String() string {
	return fmt.Sprintf("[%#x-%#x) w=%v x=%v", a.Range.Start, a.Range.End, a.Permission.Write, a.Permission.Execute)
}
