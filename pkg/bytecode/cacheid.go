package bytecode

// CacheIDCapacity is the number of distinct inline cache ids a single
// compiled function can address. Cache-id operands are one byte wide.
const CacheIDCapacity = 256

// MaxCacheID is the largest cache id. Once a function has used every id,
// all further access sites share this one.
const MaxCacheID uint8 = CacheIDCapacity - 1

// CacheIDAllocator hands out inline cache ids to access sites in emission
// order. The Nth request gets id N until the id space is exhausted, after
// which every request gets MaxCacheID. It never fails and never wraps.
//
// The zero value is ready to use. One allocator belongs to one compiling
// function; see Chunk.AllocCacheID.
type CacheIDAllocator struct {
	next int
}

// Next returns the cache id for the next access site.
func (a *CacheIDAllocator) Next() uint8 {
	n := a.next
	a.next++
	if n >= int(MaxCacheID) {
		if n == CacheIDCapacity {
			log.Debugf("inline cache ids saturated; sites from #%d share id %d", n, MaxCacheID)
		}
		return MaxCacheID
	}
	return uint8(n)
}

// Allocated returns how many ids have been requested so far.
func (a *CacheIDAllocator) Allocated() int {
	return a.next
}

// Saturated reports whether at least two sites share MaxCacheID.
func (a *CacheIDAllocator) Saturated() bool {
	return a.next > CacheIDCapacity
}

// Reset returns the allocator to its initial state.
func (a *CacheIDAllocator) Reset() {
	a.next = 0
}
