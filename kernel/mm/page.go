// Package mm implements the per-process memory-management subsystem of
// spec.md §4.D: MMList/MMArea virtual-address-space bookkeeping, demand
// paging, copy-on-write, file-backed mmap and the user page-fault handler.
package mm

import "sync"

// PageSize is the architecture page size this kernel simulates.
const PageSize = 4096

// Page is spec.md §3's reference-counted physical page. Refcount here is
// the MM subsystem's own logical share count (how many page-table entries
// point at it) used to decide the CoW fast path — not a substitute for
// Go's garbage collector, which still owns the page's actual memory
// lifetime once nothing references it.
type Page struct {
	mu       sync.Mutex
	data     [PageSize]byte
	refcount int
	isZero   bool
}

// NewPage allocates a fresh, zeroed page with refcount 1.
func NewPage() *Page {
	return &Page{refcount: 1}
}

// IncRef increments the share count, e.g. when a second PTE starts
// pointing at the page under fork's CoW duplication.
func (p *Page) IncRef() {
	p.mu.Lock()
	p.refcount++
	p.mu.Unlock()
}

// DecRef decrements the share count. The caller drops its last PTE
// reference to the page when this returns 0; Go's GC reclaims the backing
// array once no PTE (and no other Go reference) remains.
func (p *Page) DecRef() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.refcount--

	return p.refcount
}

// Exclusive reports spec.md §3's CoW fast-path condition: "refcount == 1
// and not shared".
func (p *Page) Exclusive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.refcount == 1 && !p.isZero
}

// ReadAt/WriteAt copy into/out of the page's backing bytes, used both by
// the fault handler (populating a freshly allocated page) and by
// kernel/signal's UserMemory interface when a user address falls within
// this page.
func (p *Page) ReadAt(off int, dst []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	copy(dst, p.data[off:])
}

func (p *Page) WriteAt(off int, src []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	copy(p.data[off:], src)
}

// zeroPage is spec.md §3's "global empty zero page": "anonymous mappings
// are lazily populated by CoW-mapping it". Never written directly; its
// isZero flag keeps Exclusive() permanently false so the fault handler
// always takes the copy/zero-fill branch rather than the fast path.
var zeroPage = &Page{isZero: true, refcount: 1 << 30}

// ZeroPage returns the single shared zero page.
func ZeroPage() *Page { return zeroPage }
