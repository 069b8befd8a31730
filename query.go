package topkapi

import (
	"bytes"
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/topkapi/internal/hashutil"
)

// Candidate is a key with its estimated count.
type Candidate struct {
	Key   []byte
	Count uint32
}

// candidateCache memoizes the candidate set for one (nAdded, threshold) pair.
type candidateCache struct {
	valid     bool
	nAdded    uint64
	threshold uint32
	items     []Candidate // discovery order
}

// Get returns the estimated count of key: the largest count among the rows
// whose bucket holds key, or 0 if none does.
func (s *Sketch) Get(key []byte) uint32 {
	if s.closed {
		return 0
	}
	return s.estimate(s.truncate(key), nil)
}

// GetString is Get for a string key.
func (s *Sketch) GetString(key string) uint32 {
	return s.Get([]byte(key))
}

// estimate computes the point estimate of an already truncated key. When
// seen is non-nil, every bucket holding key is marked in it.
func (s *Sketch) estimate(key []byte, seen *roaring64.Bitmap) uint32 {
	base := hashutil.Base(key)
	var best uint32

	for row := range int(s.shape.Depth) {
		i := s.g.Index(uint64(row), s.hasher.Column(base, row))
		if !s.g.Matches(i, key) {
			continue
		}
		best = max(best, s.g.Count(i))
		if seen != nil {
			seen.Add(i)
		}
	}
	return best
}

// Candidates returns every distinct stored key whose estimate is at least
// threshold, in row-major discovery order.
func (s *Sketch) Candidates(threshold uint32) []Candidate {
	if s.closed {
		return nil
	}
	return cloneCandidates(s.candidates(threshold))
}

// candidates returns the memoized set, regenerating it when nAdded or
// threshold changed since the last call.
func (s *Sketch) candidates(threshold uint32) []Candidate {
	nAdded := s.g.NAdded()
	if c := &s.cand; c.valid && c.nAdded == nAdded && c.threshold == threshold {
		return c.items
	}

	seen := roaring64.New()
	var items []Candidate

	for i := range s.shape.layout().Buckets() {
		if s.g.Count(i) == 0 || seen.Contains(i) {
			continue
		}
		key := s.g.Key(i)
		est := s.estimate(key, seen)
		// A bucket that is not at its key's column (never produced by
		// Add or Merge) still gets marked so it is visited once.
		seen.Add(i)
		if est >= threshold && est > 0 {
			items = append(items, Candidate{Key: bytes.Clone(key), Count: est})
		}
	}

	s.cand = candidateCache{valid: true, nAdded: nAdded, threshold: threshold, items: items}
	s.logger.LogCandidates(context.Background(), threshold, len(items))
	return items
}

// Query returns up to k candidates ordered by descending count; ties keep
// discovery order. A nil threshold means DefaultThreshold. k <= 0 returns nil.
func (s *Sketch) Query(k int, threshold *uint32) []Candidate {
	if k <= 0 || s.closed {
		return nil
	}
	start := time.Now()

	t := s.DefaultThreshold()
	if threshold != nil {
		t = *threshold
	}

	ranked := slices.Clone(s.candidates(t))
	slices.SortStableFunc(ranked, func(a, b Candidate) int {
		return cmp.Compare(b.Count, a.Count)
	})
	out := cloneCandidates(ranked[:min(k, len(ranked))])

	s.metrics.RecordQuery(k, len(out), time.Since(start))
	return out
}

// QueryThreshold is Query with an explicit threshold.
func (s *Sketch) QueryThreshold(k int, threshold uint32) []Candidate {
	return s.Query(k, &threshold)
}

func cloneCandidates(in []Candidate) []Candidate {
	if len(in) == 0 {
		return nil
	}
	out := make([]Candidate, len(in))
	for i, c := range in {
		out[i] = Candidate{Key: bytes.Clone(c.Key), Count: c.Count}
	}
	return out
}
