package testutil

import (
	"cmp"
	"math"
	"math/rand/v2"
	"slices"
	"sort"
	"strconv"
	"sync"
)

// RNG is a seeded random source safe for concurrent use.
type RNG struct {
	rand *rand.Rand
	seed uint64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed uint64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		seed: seed,
	}
}

// Seed returns the initial seed.
func (r *RNG) Seed() uint64 {
	return r.seed
}

// IntN returns a pseudo-random number in [0, n).
func (r *RNG) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.IntN(n)
}

// Uint32N returns a pseudo-random number in [0, n).
func (r *RNG) Uint32N(n uint32) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Uint32N(n)
}

// Key returns the canonical key for a vocabulary rank.
func Key(rank int) []byte {
	return []byte("k" + strconv.Itoa(rank))
}

// zipfCDF returns the cumulative Zipf distribution P(k) ∝ 1/k^s over n ranks.
func zipfCDF(n int, s float64) []float64 {
	cdf := make([]float64, n)
	var sum float64
	for k := 1; k <= n; k++ {
		sum += 1 / math.Pow(float64(k), s)
		cdf[k-1] = sum
	}
	for i := range cdf {
		cdf[i] /= sum
	}
	return cdf
}

// Zipf returns a Zipf-distributed rank in [0, n). s=1 gives standard Zipf;
// larger s concentrates mass on the first ranks.
func (r *RNG) Zipf(n int, s float64) int {
	if n <= 1 {
		return 0
	}
	cdf := zipfCDF(n, s)

	r.mu.Lock()
	defer r.mu.Unlock()
	return min(sort.SearchFloat64s(cdf, r.rand.Float64()), n-1)
}

// ZipfKeys generates a stream of count keys drawn from a vocabulary of
// vocab ranks with skew s. Rank 0 is the most frequent key.
func (r *RNG) ZipfKeys(count, vocab int, s float64) [][]byte {
	cdf := zipfCDF(max(vocab, 1), s)
	keys := make([][]byte, count)

	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range keys {
		rank := min(sort.SearchFloat64s(cdf, r.rand.Float64()), len(cdf)-1)
		keys[i] = Key(rank)
	}
	return keys
}

// UniqueKeys returns count distinct keys with the given prefix.
func UniqueKeys(prefix string, count int) [][]byte {
	keys := make([][]byte, count)
	for i := range keys {
		keys[i] = []byte(prefix + strconv.Itoa(i))
	}
	return keys
}

// Shuffle permutes keys in place.
func (r *RNG) Shuffle(keys [][]byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Shuffle(len(keys), func(i, j int) {
		keys[i], keys[j] = keys[j], keys[i]
	})
}

// Split deals keys round-robin into n shards.
func Split(keys [][]byte, n int) [][][]byte {
	shards := make([][][]byte, n)
	for i, k := range keys {
		shards[i%n] = append(shards[i%n], k)
	}
	return shards
}

// KeyCount is an exact frequency.
type KeyCount struct {
	Key   string
	Count uint64
}

// ExactCounts counts every key in the stream.
func ExactCounts(keys [][]byte) map[string]uint64 {
	counts := make(map[string]uint64)
	for _, k := range keys {
		counts[string(k)]++
	}
	return counts
}

// TopExact returns the k most frequent keys, ties broken by key.
func TopExact(counts map[string]uint64, k int) []KeyCount {
	all := make([]KeyCount, 0, len(counts))
	for key, c := range counts {
		all = append(all, KeyCount{Key: key, Count: c})
	}
	slices.SortFunc(all, func(a, b KeyCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Key, b.Key)
	})
	return all[:min(k, len(all))]
}

// Recall returns the fraction of truth keys present in got.
func Recall(truth []KeyCount, got [][]byte) float64 {
	if len(truth) == 0 {
		return 1
	}
	found := make(map[string]struct{}, len(got))
	for _, g := range got {
		found[string(g)] = struct{}{}
	}
	hits := 0
	for _, kc := range truth {
		if _, ok := found[kc.Key]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(truth))
}
