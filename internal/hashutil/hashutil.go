// Package hashutil provides the keyed row hash used to place keys in the
// bucket grid.
//
// A key is hashed once with xxHash64; each row then derives its own value by
// mixing that base hash with a per-row seed through the splitmix64 finalizer
// (Vigna, 2014). Seeds depend only on the row index, so any two grids with the
// same depth place every key in the same columns. Merging, loading and
// attaching all rely on that.
//
// Row independence is assumed, not proven: two keys whose 64-bit base hashes
// collide share a column in every row.
package hashutil

import "github.com/cespare/xxhash/v2"

// Splitmix64 constants.
const (
	// BaseSeed is the starting state for deterministic seed generation.
	BaseSeed = 0x517cc1b727220a95

	mixShift1 = 30
	mixMul1   = 0xbf58476d1ce4e5b9
	mixShift2 = 27
	mixMul2   = 0x94d049bb133111eb
	mixShift3 = 31

	splitmix64Increment = 0x9e3779b97f4a7c15
)

// Mix64 applies the splitmix64 finalizer. It does not advance any state.
func Mix64(v uint64) uint64 {
	v ^= v >> mixShift1
	v *= mixMul1
	v ^= v >> mixShift2
	v *= mixMul2
	v ^= v >> mixShift3

	return v
}

// Splitmix64 advances state by the golden-ratio increment and mixes it.
func Splitmix64(state uint64) uint64 {
	return Mix64(state + splitmix64Increment)
}

// MixHash combines a base hash with a seed.
func MixHash(base, seed uint64) uint64 {
	return Mix64(base ^ seed)
}

// GenerateSeeds creates n deterministic row seeds.
func GenerateSeeds(n int) []uint64 {
	seeds := make([]uint64, n)
	state := uint64(BaseSeed)

	for i := range n {
		state = Splitmix64(state)
		seeds[i] = state
	}

	return seeds
}

// Hasher maps keys to one column per row.
type Hasher struct {
	seeds []uint64
	width uint64
}

// NewHasher returns a Hasher for a depth x width grid.
func NewHasher(depth, width uint64) *Hasher {
	return &Hasher{
		seeds: GenerateSeeds(int(depth)),
		width: width,
	}
}

// Sum64 returns hash(key, row): the keyed 64-bit hash for one row.
func (h *Hasher) Sum64(key []byte, row int) uint64 {
	return MixHash(xxhash.Sum64(key), h.seeds[row])
}

// Base returns the row-independent hash of key.
func Base(key []byte) uint64 {
	return xxhash.Sum64(key)
}

// Column returns the column in row of a key whose base hash is base.
func (h *Hasher) Column(base uint64, row int) uint64 {
	return MixHash(base, h.seeds[row]) % h.width
}

// Columns writes the column of key for every row into dst, which must hold
// at least depth entries. The key is hashed once.
func (h *Hasher) Columns(key []byte, dst []uint64) {
	base := Base(key)
	for row, seed := range h.seeds {
		dst[row] = MixHash(base, seed) % h.width
	}
}

// Depth returns the number of rows.
func (h *Hasher) Depth() int {
	return len(h.seeds)
}
