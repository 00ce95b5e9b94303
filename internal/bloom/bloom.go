// internal/bloom/bloom.go
package bloom

// Filter is a fixed-size probabilistic set. Check answers "possibly
// present" or "definitely absent": false positives happen, false
// negatives do not, provided the bit array and seeds are unchanged
// since insertion. Not safe for concurrent use; callers serialize.
type Filter struct {
	bits  []uint64
	size  uint32
	seeds []uint32
}

// DefaultSeeds gives four independent hash functions, which keeps the
// false-positive rate near 3% at a 10:1 bits-to-items ratio.
var DefaultSeeds = []uint32{0x9747b28c, 0x41c6ce57, 0x5bd1e995, 0xcc9e2d51}

// New creates a filter with the given bit-array size and hash seeds.
// A zero size or empty seed list falls back to 1<<16 bits and
// DefaultSeeds.
func New(size uint32, seeds []uint32) *Filter {
	if size == 0 {
		size = 1 << 16
	}
	if len(seeds) == 0 {
		seeds = DefaultSeeds
	}
	return &Filter{
		bits:  make([]uint64, (size+63)/64),
		size:  size,
		seeds: seeds,
	}
}

// Add inserts item into the set.
func (f *Filter) Add(item string) {
	for _, seed := range f.seeds {
		idx := f.index(item, seed)
		f.bits[idx/64] |= 1 << (idx % 64)
	}
}

// Check reports whether item is possibly present. A false return is
// definitive absence.
func (f *Filter) Check(item string) bool {
	for _, seed := range f.seeds {
		idx := f.index(item, seed)
		if f.bits[idx/64]&(1<<(idx%64)) == 0 {
			return false
		}
	}
	return true
}

// index computes a seeded FNV-1a hash of item reduced to a bit position.
func (f *Filter) index(item string, seed uint32) uint32 {
	const prime = 16777619
	h := 2166136261 ^ seed
	for i := 0; i < len(item); i++ {
		h ^= uint32(item[i])
		h *= prime
	}
	return h % f.size
}
