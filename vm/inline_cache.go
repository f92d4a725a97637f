package vm

import "github.com/chazu/classvm/pkg/bytecode"

// Inline Caching for Private Field Access
//
// Every private field site in a chunk carries a one-byte cache id. The
// cells those ids name live here, in a side table owned by the VM, so
// compiled chunks stay immutable and can be shared by several VMs.
//
// A cell remembers (shape, tag) -> offset. A hit needs both the shape and
// the tag to match: method code is shared by every activation of its
// factory, and once a function saturates its cache ids many sites share
// cell 255, so the shape alone does not identify the field.

// cacheKind distinguishes what a cell was populated by. Install cells map
// a shape without the tag to the shape with it; access cells map a shape
// with the tag to its offset. Sites sharing an id may populate either.
type cacheKind uint8

const (
	cacheEmpty cacheKind = iota
	cacheAccess
	cacheInstall
)

// FieldCache is one inline cache cell.
type FieldCache struct {
	kind   cacheKind
	shape  *Shape
	tag    *PrivateName
	offset int
	next   *Shape

	// Statistics for profiling
	Hits     uint64
	Misses   uint64
	Rewrites uint64
}

// lookupAccess returns the cached offset for a read or write of tag on an
// instance with shape s.
func (c *FieldCache) lookupAccess(s *Shape, tag *PrivateName) (int, bool) {
	if c.kind == cacheAccess && c.shape == s && c.tag == tag {
		c.Hits++
		return c.offset, true
	}
	c.Misses++
	return -1, false
}

// lookupInstall returns the cached transition for installing tag on an
// instance with shape s.
func (c *FieldCache) lookupInstall(s *Shape, tag *PrivateName) (*Shape, bool) {
	if c.kind == cacheInstall && c.shape == s && c.tag == tag {
		c.Hits++
		return c.next, true
	}
	c.Misses++
	return nil, false
}

func (c *FieldCache) updateAccess(s *Shape, tag *PrivateName, offset int) {
	c.rewrite()
	c.kind, c.shape, c.tag, c.offset, c.next = cacheAccess, s, tag, offset, nil
}

func (c *FieldCache) updateInstall(from *Shape, tag *PrivateName, to *Shape) {
	c.rewrite()
	c.kind, c.shape, c.tag, c.offset, c.next = cacheInstall, from, tag, from.FieldCount(), to
}

func (c *FieldCache) rewrite() {
	if c.kind != cacheEmpty {
		c.Rewrites++
	}
}

// Populated reports whether the cell has ever been filled.
func (c *FieldCache) Populated() bool {
	return c.kind != cacheEmpty
}

// HitRate returns the cell hit rate as a percentage (0-100).
func (c *FieldCache) HitRate() float64 {
	total := c.Hits + c.Misses
	if total == 0 {
		return 0
	}
	return float64(c.Hits) * 100 / float64(total)
}

// Reset clears the cell back to empty.
func (c *FieldCache) Reset() {
	*c = FieldCache{}
}

// ---------------------------------------------------------------------------
// FieldCacheTable: per-VM side table
// ---------------------------------------------------------------------------

// FieldCacheTable holds the cells of every chunk a VM has executed.
type FieldCacheTable struct {
	chunks map[*bytecode.Chunk][]FieldCache
}

// NewFieldCacheTable creates an empty table.
func NewFieldCacheTable() *FieldCacheTable {
	return &FieldCacheTable{chunks: make(map[*bytecode.Chunk][]FieldCache)}
}

// Cell returns the cell for cache id in chunk, allocating the chunk's
// cells on first use.
func (t *FieldCacheTable) Cell(chunk *bytecode.Chunk, id uint8) *FieldCache {
	cells, ok := t.chunks[chunk]
	if !ok || int(id) >= len(cells) {
		n := chunk.CacheSlotCount()
		if n <= int(id) {
			n = int(id) + 1
		}
		grown := make([]FieldCache, n)
		copy(grown, cells)
		cells = grown
		t.chunks[chunk] = cells
	}
	return &cells[id]
}

// Get returns the cell for cache id in chunk, or nil if it was never used.
func (t *FieldCacheTable) Get(chunk *bytecode.Chunk, id uint8) *FieldCache {
	cells := t.chunks[chunk]
	if int(id) >= len(cells) {
		return nil
	}
	return &cells[id]
}

// CacheStats aggregates counters over a set of cells.
type CacheStats struct {
	Chunks    int
	Populated int
	Hits      uint64
	Misses    uint64
	Rewrites  uint64
}

// HitRate returns the aggregate hit rate as a percentage (0-100).
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) * 100 / float64(total)
}

func (s *CacheStats) add(cells []FieldCache) {
	for i := range cells {
		c := &cells[i]
		if c.Populated() {
			s.Populated++
		}
		s.Hits += c.Hits
		s.Misses += c.Misses
		s.Rewrites += c.Rewrites
	}
}

// Stats returns aggregate statistics for every chunk in the table.
func (t *FieldCacheTable) Stats() CacheStats {
	var s CacheStats
	for _, cells := range t.chunks {
		s.Chunks++
		s.add(cells)
	}
	return s
}

// ChunkStats returns statistics for one chunk.
func (t *FieldCacheTable) ChunkStats(chunk *bytecode.Chunk) CacheStats {
	var s CacheStats
	if cells, ok := t.chunks[chunk]; ok {
		s.Chunks = 1
		s.add(cells)
	}
	return s
}

// Reset clears all cells in the table.
func (t *FieldCacheTable) Reset() {
	for chunk := range t.chunks {
		delete(t.chunks, chunk)
	}
}
