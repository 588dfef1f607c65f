package mm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeFile struct {
	data []byte
}

func (f *fakeFile) ReadAt(ctx context.Context, offset int64, p []byte) (int, error) {
	if offset >= int64(len(f.data)) {
		return 0, nil
	}

	n := copy(p, f.data[offset:])

	return n, nil
}

func (f *fakeFile) Size() int64 { return int64(len(f.data)) }

func TestMmapAnonymousFaultAndWrite(t *testing.T) {
	m := New(nil)

	addr, err := m.Mmap(0x1000, PageSize, Mapping{Kind: MappingAnonymous}, Permission{Write: true}, true)
	require.NoError(t, err)
	require.Equal(t, uint64(0x1000), addr)

	res, err := m.HandlePageFault(context.Background(), addr, true, false)
	require.NoError(t, err)
	require.Equal(t, FaultResolved, res)

	require.NoError(t, m.WriteAt(addr+10, []byte("hi")))

	buf := make([]byte, 2)
	require.NoError(t, m.ReadAt(addr+10, buf))
	require.Equal(t, "hi", string(buf))
}

func TestMmapFixedOverlapRejected(t *testing.T) {
	m := New(nil)

	_, err := m.Mmap(0x2000, PageSize, Mapping{Kind: MappingAnonymous}, Permission{Write: true}, true)
	require.NoError(t, err)

	_, err = m.Mmap(0x2000, PageSize, Mapping{Kind: MappingAnonymous}, Permission{Write: true}, true)
	require.Error(t, err)
}

func TestWriteToReadOnlyAreaFaultsSIGSEGV(t *testing.T) {
	m := New(nil)

	addr, err := m.Mmap(0x3000, PageSize, Mapping{Kind: MappingAnonymous}, Permission{}, true)
	require.NoError(t, err)

	res, err := m.HandlePageFault(context.Background(), addr, true, false)
	require.NoError(t, err)
	require.Equal(t, FaultSIGSEGV, res)
}

func TestFaultOnUnmappedAddressIsSIGBUS(t *testing.T) {
	m := New(nil)

	res, err := m.HandlePageFault(context.Background(), 0xdead0000, false, false)
	require.NoError(t, err)
	require.Equal(t, FaultSIGBUS, res)
}

func TestCloneThenWriteDiverges(t *testing.T) {
	parent := New(nil)

	addr, err := parent.Mmap(0x4000, PageSize, Mapping{Kind: MappingAnonymous}, Permission{Write: true}, true)
	require.NoError(t, err)

	_, err = parent.HandlePageFault(context.Background(), addr, true, false)
	require.NoError(t, err)
	require.NoError(t, parent.WriteAt(addr, []byte("parent")))

	child := parent.NewCloned()

	// Both sides still read the shared page identically right after clone.
	buf := make([]byte, 6)
	require.NoError(t, child.ReadAt(addr, buf))
	require.Equal(t, "parent", string(buf))

	// Writing through either side faults CoW and allocates a private page,
	// so the write never becomes visible to the other address space.
	res, err := child.HandlePageFault(context.Background(), addr, true, false)
	require.NoError(t, err)
	require.Equal(t, FaultResolved, res)
	require.NoError(t, child.WriteAt(addr, []byte("child!")))

	parentBuf := make([]byte, 6)
	require.NoError(t, parent.ReadAt(addr, parentBuf))
	require.Equal(t, "parent", string(parentBuf))

	childBuf := make([]byte, 6)
	require.NoError(t, child.ReadAt(addr, childBuf))
	require.Equal(t, "child!", string(childBuf))
}

func TestMmapFileBackedPageIn(t *testing.T) {
	m := New(nil)

	file := &fakeFile{data: []byte("hello from disk")}

	addr, err := m.Mmap(0x5000, PageSize, Mapping{Kind: MappingFile, File: file, Length: uint64(file.Size())}, Permission{}, true)
	require.NoError(t, err)

	res, err := m.HandlePageFault(context.Background(), addr, false, false)
	require.NoError(t, err)
	require.Equal(t, FaultResolved, res)

	buf := make([]byte, len(file.data))
	require.NoError(t, m.ReadAt(addr, buf))
	require.Equal(t, "hello from disk", string(buf))
}

func TestUnmapReleasesPages(t *testing.T) {
	m := New(nil)

	addr, err := m.Mmap(0x6000, PageSize, Mapping{Kind: MappingAnonymous}, Permission{Write: true}, true)
	require.NoError(t, err)

	require.NoError(t, m.Unmap(addr, PageSize))
	require.Empty(t, m.Areas())

	res, err := m.HandlePageFault(context.Background(), addr, false, false)
	require.NoError(t, err)
	require.Equal(t, FaultSIGBUS, res)
}

func TestSetBreakGrowsAndShrinks(t *testing.T) {
	m := New(nil)

	pos := m.SetBreak(0x10000)
	require.Equal(t, uint64(0x10000), pos)

	pos = m.SetBreak(0x12000)
	require.Equal(t, uint64(0x12000), pos)
	require.Equal(t, uint64(0x12000), m.BreakPos())

	pos = m.SetBreak(0x11000)
	require.Equal(t, uint64(0x11000), pos)
}
