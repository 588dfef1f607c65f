package mm

// NewShared returns a second reference to the same address space, for
// CLONE_VM (spec.md §4.D: "return a second Arc to the same MMList"). Go's
// garbage collector, not manual refcounting, keeps the backing MMList
// alive for as long as any clone or the original holds this pointer.
func (m *MMList) NewShared() *MMList { return m }

// NewCloned duplicates the area set with identical ranges; every page
// reachable from an anonymous or private mapping is marked COW and
// read-only in both the parent and the child, and its refcount bumped
// (spec.md §4.D new_cloned). Locks are taken and released within this one
// call, matching "MM list-level locks are released in well-defined order
// to avoid deadlock with a concurrent page fault" — we simply never hold
// two MMLists' locks at once.
func (m *MMList) NewCloned() *MMList {
	m.mu.Lock()
	defer m.mu.Unlock()

	child := New(m.log)
	child.breakStart, child.breakPos, child.hasBreak = m.breakStart, m.breakPos, m.hasBreak
	child.userTop = m.userTop

	for _, a := range m.areas {
		dup := &MMArea{Range: a.Range, Mapping: a.Mapping, Permission: a.Permission}
		child.areas = append(child.areas, dup)

		for addr := a.Range.Start; addr < a.Range.End; addr += PageSize {
			src, ok := m.pt[addr]
			if !ok || !src.present {
				if ok {
					child.pt[addr] = &pte{mmapPending: src.mmapPending}
				}

				continue
			}

			if src.page != zeroPage {
				src.cow = true
				src.writable = false
			}

			src.page.IncRef()
			child.pt[addr] = &pte{page: src.page, present: true, cow: true, writable: false}
		}
	}

	return child
}
