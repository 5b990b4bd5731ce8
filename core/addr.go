package core

import "math/bits"

// Config carries the construction-time cache/address parameters. Per
// spec.md §3 these are never compiled-in constants: every Cache and Bus is
// built against one Config, and invariants hold for any valid Config, not
// just the reference profile.
type Config struct {
	BlockBytes int // bytes per cache line / bus block, must be a power of two
	Ways       int // set associativity
	NumSets    int // sets per cache, must be a power of two
	WordBytes  int // bytes per addressable word (double), must be a power of two

	// StrictInvariants gates the response to a coherence message that
	// should be impossible under the SWMR invariants (spec.md §7), e.g. a
	// BusUpgr snooped against a Modified line. When true (a debug build),
	// the cache panics instead of recovering. When false (the default),
	// it drops the line to Invalid and logs a warning.
	StrictInvariants bool
}

// Reference returns the fixed reference profile from spec.md §3:
// block_bytes=32, ways=2, num_sets=8, word_bytes=8, invariants non-strict.
func Reference() Config {
	return Config{BlockBytes: 32, Ways: 2, NumSets: 8, WordBytes: 8}
}

func (c Config) offsetBits() uint { return uint(bits.TrailingZeros(uint(c.BlockBytes))) }
func (c Config) indexBits() uint  { return uint(bits.TrailingZeros(uint(c.NumSets))) }

// Fields is the (tag, index, offset) decomposition of a byte address.
type Fields struct {
	Tag    uint64
	Index  uint64
	Offset uint64
}

// Decode splits a byte address into tag/index/offset per spec.md §3.
func (c Config) Decode(addr uint64) Fields {
	offBits := c.offsetBits()
	idxBits := c.indexBits()
	offMask := uint64(1)<<offBits - 1
	idxMask := uint64(1)<<idxBits - 1
	return Fields{
		Offset: addr & offMask,
		Index:  (addr >> offBits) & idxMask,
		Tag:    addr >> (offBits + idxBits),
	}
}

// BlockBase clears the offset bits, yielding the block-aligned base address.
func (c Config) BlockBase(addr uint64) uint64 {
	offMask := uint64(1)<<c.offsetBits() - 1
	return addr &^ offMask
}

// BlockAddress reconstructs the block base address from a tag and set index,
// the inverse of Decode restricted to (tag, index).
func (c Config) BlockAddress(tag, index uint64) uint64 {
	return (tag<<c.indexBits() | index) << c.offsetBits()
}

// WordsPerBlock is the number of addressable words held by one block.
func (c Config) WordsPerBlock() int { return c.BlockBytes / c.WordBytes }
