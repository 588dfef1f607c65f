package mm

import (
	"context"
	"fmt"
)

// FaultResult reports how HandlePageFault resolved a user page fault.
type FaultResult int

const (
	// FaultResolved: the PTE is now present and the faulting instruction
	// can be retried.
	FaultResolved FaultResult = iota
	// FaultSIGSEGV: permission violation (spec.md §4.D steps 1-2).
	FaultSIGSEGV
	// FaultSIGBUS: address not backed by any MMArea.
	FaultSIGBUS
)

// HandlePageFault implements spec.md §4.D's demand-paging algorithm.
func (m *MMList) HandlePageFault(ctx context.Context, addr uint64, write, exec bool) (FaultResult, error) {
	pageAddr := alignDownPage(addr)

	m.mu.Lock()

	area := m.findLocked(addr)
	if area == nil {
		m.mu.Unlock()
		return FaultSIGBUS, nil
	}

	if write && !area.Permission.Write {
		m.mu.Unlock()
		return FaultSIGSEGV, nil
	}

	if exec && !area.Permission.Execute {
		m.mu.Unlock()
		return FaultSIGSEGV, nil
	}

	e, ok := m.pt[pageAddr]
	if !ok {
		e = &pte{mmapPending: area.Mapping.Kind == MappingFile}
		m.pt[pageAddr] = e
	}

	switch {
	case e.present && e.cow:
		m.handleCOWLocked(e)
		m.mu.Unlock()

		return FaultResolved, nil

	case e.mmapPending:
		m.mu.Unlock()
		return m.handleFileBackedFault(ctx, area, pageAddr, e)

	default:
		// Spurious: another goroutine already filled the PTE.
		m.mu.Unlock()
		return FaultResolved, nil
	}
}

// handleCOWLocked implements step 4: if this address space exclusively
// owns the page, just clear COW; otherwise allocate a private copy (or a
// freshly zeroed page, if the shared source was the zero page). Caller
// holds m.mu.
func (m *MMList) handleCOWLocked(e *pte) {
	if e.page.Exclusive() {
		e.cow = false
		e.writable = true

		return
	}

	newPage := NewPage()
	if e.page != zeroPage {
		newPage.WriteAt(0, pageBytes(e.page))
	}

	e.page.DecRef()
	e.page = newPage
	e.cow = false
	e.writable = true
	e.present = true
}

func pageBytes(p *Page) []byte {
	buf := make([]byte, PageSize)
	p.ReadAt(0, buf)

	return buf
}

// handleFileBackedFault implements step 5: read up to one page from the
// backing file, zero-filling any tail past the mapping's length, bounded
// by the per-MMList page-in semaphore (SPEC_FULL.md 2.2).
func (m *MMList) handleFileBackedFault(ctx context.Context, area *MMArea, pageAddr uint64, e *pte) (FaultResult, error) {
	if err := m.pageInSem.Acquire(ctx, 1); err != nil {
		return 0, fmt.Errorf("mm: page-in semaphore: %w", err)
	}
	defer m.pageInSem.Release(1)

	page := NewPage()

	pageOff := pageAddr - area.Range.Start

	var readLen uint64
	if area.Mapping.Length > pageOff {
		readLen = min(area.Mapping.Length-pageOff, PageSize)
	}

	if area.Mapping.File != nil && readLen > 0 {
		fileOff := int64(area.Mapping.Offset) + int64(pageOff)
		buf := make([]byte, readLen)

		n, err := area.Mapping.File.ReadAt(ctx, fileOff, buf)
		if err != nil && n == 0 {
			return 0, fmt.Errorf("mm: page-in read: %w", err)
		}

		page.WriteAt(0, buf[:n])
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e.page = page
	e.present = true
	e.mmapPending = false
	e.writable = area.Permission.Write
	e.cow = !area.Permission.Write // private mappings keep COW for later write-fault handling

	return FaultResolved, nil
}

// ReadAt/WriteAt satisfy kernel/signal.UserMemory against this address
// space's pages, letting kernel/signal write/read a handler frame on the
// user stack without depending on kernel/mm directly.
func (m *MMList) ReadAt(addr uint64, p []byte) error {
	return m.copyUser(addr, p, false)
}

func (m *MMList) WriteAt(addr uint64, p []byte) error {
	return m.copyUser(addr, p, true)
}

func (m *MMList) copyUser(addr uint64, p []byte, write bool) error {
	for len(p) > 0 {
		pageAddr := alignDownPage(addr)
		off := int(addr - pageAddr)
		n := PageSize - off
		if n > len(p) {
			n = len(p)
		}

		m.mu.RLock()
		e, ok := m.pt[pageAddr]
		m.mu.RUnlock()

		if !ok || !e.present {
			return fmt.Errorf("mm: copy_user: unmapped address %#x", addr)
		}

		if write {
			e.page.WriteAt(off, p[:n])
		} else {
			e.page.ReadAt(off, p[:n])
		}

		addr += uint64(n)
		p = p[n:]
	}

	return nil
}
