package vfs

import "sync"

// dcacheKey identifies a cached dentry by (parent identity, name), the Go
// stand-in for original_source's hash of (parent-addr, name-hash).
type dcacheKey struct {
	parent *Dentry
	name   string
}

// dcache is the process-wide dentry cache. A real RCU hash table gives
// lock-free lookups; a sync.RWMutex-guarded map gives the same externally
// observable contract spec.md §4.E names ("a miss does not mean the file
// doesn't exist") without requiring unsafe/atomic pointer games this
// simulation has no need for.
var dcache = struct {
	mu sync.RWMutex
	m  map[dcacheKey]*Dentry
}{m: make(map[dcacheKey]*Dentry)}

// dFindRCU is spec.md §4.E's d_find_rcu: Some(dentry) iff cached, None
// meaning "consult the filesystem", never "does not exist".
func dFindRCU(parent *Dentry, name string) (*Dentry, bool) {
	dcache.mu.RLock()
	defer dcache.mu.RUnlock()

	d, ok := dcache.m[dcacheKey{parent, name}]

	return d, ok
}

// dAdd inserts d into the cache keyed by its own (parent, name).
func dAdd(d *Dentry) {
	dcache.mu.Lock()
	defer dcache.mu.Unlock()

	dcache.m[dcacheKey{d.parent, d.name}] = d
}

// dRemove evicts d.
func dRemove(d *Dentry) {
	dcache.mu.Lock()
	defer dcache.mu.Unlock()

	delete(dcache.m, dcacheKey{d.parent, d.name})
}

// dReplace swaps the cache entry for (mountpoint.parent, mountpoint.name)
// to point at newRoot, used by mount to overlay a filesystem's root onto
// the mountpoint dentry (spec.md §4.E "Mount").
func dReplace(mountpoint, newRoot *Dentry) {
	dcache.mu.Lock()
	defer dcache.mu.Unlock()

	dcache.m[dcacheKey{mountpoint.parent, mountpoint.name}] = newRoot
}

// dExchange atomically swaps the cache entries for two dentries, the
// primitive backing RENAME_EXCHANGE.
func dExchange(a, b *Dentry) {
	dcache.mu.Lock()
	defer dcache.mu.Unlock()

	ka, kb := dcacheKey{a.parent, a.name}, dcacheKey{b.parent, b.name}
	dcache.m[ka], dcache.m[kb] = b, a
}
