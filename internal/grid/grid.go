package grid

import (
	"bytes"
	"encoding/binary"
	"math"
)

// MaxCount is the saturation ceiling of a bucket counter.
const MaxCount = math.MaxUint32

// Grid is a view over a bucket region.
type Grid struct {
	layout Layout
	mkl    uint64

	buf      []byte
	keys     []byte
	keyLens  []byte
	counts   []byte
	counters []byte
}

// New allocates a zeroed grid on the heap.
func New(l Layout) (*Grid, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return wrap(l, make([]byte, l.BodySize())), nil
}

// Wrap returns a grid over region, which must be exactly l.BodySize() bytes.
// The grid aliases region; nothing is copied or cleared.
func Wrap(l Layout, region []byte) (*Grid, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	if len(region) != l.BodySize() {
		return nil, ErrRegionSize
	}
	return wrap(l, region), nil
}

func wrap(l Layout, buf []byte) *Grid {
	return &Grid{
		layout:   l,
		mkl:      l.MaxKeyLen,
		buf:      buf,
		keys:     buf[:l.keyLensOffset()],
		keyLens:  buf[l.keyLensOffset():l.countsOffset()],
		counts:   buf[l.countsOffset():l.countersOffset()],
		counters: buf[l.countersOffset():],
	}
}

// Layout returns the grid shape.
func (g *Grid) Layout() Layout {
	return g.layout
}

// Bytes returns the whole region. Writes through it mutate the grid.
func (g *Grid) Bytes() []byte {
	return g.buf
}

// Index returns the flat index of bucket (row, col).
func (g *Grid) Index(row, col uint64) uint64 {
	return row*g.layout.Width + col
}

// Row returns the half-open flat index range [lo, hi) of one row.
func (g *Grid) Row(row uint64) (lo, hi uint64) {
	lo = row * g.layout.Width
	return lo, lo + g.layout.Width
}

// KeyLen returns the stored key length of bucket i.
func (g *Grid) KeyLen(i uint64) uint8 {
	return g.keyLens[i]
}

// Key returns the stored key of bucket i. The slice aliases the grid.
func (g *Grid) Key(i uint64) []byte {
	off := i * g.mkl
	return g.keys[off : off+uint64(g.keyLens[i])]
}

// Matches reports whether bucket i holds exactly key (same bytes and length).
// key must already be truncated to MaxKeyLen.
func (g *Grid) Matches(i uint64, key []byte) bool {
	return int(g.keyLens[i]) == len(key) && bytes.Equal(g.Key(i), key)
}

// Count returns the counter of bucket i.
func (g *Grid) Count(i uint64) uint32 {
	return binary.LittleEndian.Uint32(g.counts[i*countSize:])
}

// SetCount overwrites the counter of bucket i.
func (g *Grid) SetCount(i uint64, v uint32) {
	binary.LittleEndian.PutUint32(g.counts[i*countSize:], v)
}

// Store replaces the key of bucket i (zero padding the tail) and sets its
// count. key must already be truncated to MaxKeyLen.
func (g *Grid) Store(i uint64, key []byte, count uint32) {
	off := i * g.mkl
	slot := g.keys[off : off+g.mkl]
	n := copy(slot, key)
	clear(slot[n:])
	g.keyLens[i] = uint8(n)
	g.SetCount(i, count)
}

// CopyBucket copies bucket i of src into bucket i of g. Both grids must
// share the same layout.
func (g *Grid) CopyBucket(i uint64, src *Grid) {
	off := i * g.mkl
	copy(g.keys[off:off+g.mkl], src.keys[off:off+src.mkl])
	g.keyLens[i] = src.keyLens[i]
	g.SetCount(i, src.Count(i))
}

// NAdded returns the cumulative added weight.
func (g *Grid) NAdded() uint64 {
	return binary.LittleEndian.Uint64(g.counters[0:8])
}

// SetNAdded overwrites the cumulative added weight.
func (g *Grid) SetNAdded(v uint64) {
	binary.LittleEndian.PutUint64(g.counters[0:8], v)
}

// NRecords returns the auxiliary record counter.
func (g *Grid) NRecords() uint64 {
	return binary.LittleEndian.Uint64(g.counters[8:16])
}

// SetNRecords overwrites the auxiliary record counter.
func (g *Grid) SetNRecords(v uint64) {
	binary.LittleEndian.PutUint64(g.counters[8:16], v)
}

// SaturatingAdd returns a+b clamped to MaxCount.
func SaturatingAdd(a, b uint32) uint32 {
	s := a + b
	if s < a {
		return MaxCount
	}
	return s
}
