package topkapi

import (
	"context"
	"fmt"
	"iter"
	"maps"
	"math"
	"slices"

	"github.com/hupe1980/topkapi/internal/fs"
	"github.com/hupe1980/topkapi/internal/grid"
	"github.com/hupe1980/topkapi/internal/hashutil"
	"github.com/hupe1980/topkapi/resource"
)

// UintMaxVal is the saturation ceiling of every bucket counter.
const UintMaxVal uint32 = grid.MaxCount

// MaxKeyLen is the largest supported per-bucket key size.
const MaxKeyLen = grid.MaxKeyLenLimit

// Shape is the immutable geometry of a sketch.
type Shape struct {
	Width     uint64
	Depth     uint64
	MaxKeyLen uint64
}

func (s Shape) String() string {
	return fmt.Sprintf("%dx%d/%d", s.Depth, s.Width, s.MaxKeyLen)
}

func (s Shape) layout() grid.Layout {
	return grid.Layout{Width: s.Width, Depth: s.Depth, MaxKeyLen: s.MaxKeyLen}
}

// Sketch is a Topkapi heavy-hitters sketch: a depth x width grid of
// (key, count) buckets maintained with the conservative-update rule.
//
// A Sketch has no internal locking. Use one Sketch per goroutine and combine
// them with Merge, or guard it externally.
type Sketch struct {
	shape  Shape
	phi    float64
	g      *grid.Grid
	hasher *hashutil.Hasher

	backing backing
	closed  bool

	cand candidateCache

	logger    *Logger
	metrics   MetricsCollector
	resources *resource.Controller
	fsys      fs.FileSystem
}

// New creates an empty sketch. Parameters are validated before any memory is
// allocated; failures are *ConfigError.
//
// With WithShared the grid lives in a new shared-memory segment owned by the
// returned sketch.
func New(width, depth, maxKeyLen uint64, opts ...Option) (*Sketch, error) {
	o := applyOptions(opts)

	shape := Shape{Width: width, Depth: depth, MaxKeyLen: maxKeyLen}
	phi, err := validate(shape, o)
	if err != nil {
		return nil, err
	}

	if o.shared {
		return allocateShared(shape, phi, o)
	}

	g, err := grid.New(shape.layout())
	if err != nil {
		return nil, &ConfigError{Field: "shape", Value: shape, Reason: err.Error()}
	}
	return newSketch(shape, phi, g, heapBacking{}, o), nil
}

// Validate reports whether New would accept the parameters, without
// allocating anything.
func Validate(width, depth, maxKeyLen uint64, opts ...Option) error {
	_, err := validate(Shape{Width: width, Depth: depth, MaxKeyLen: maxKeyLen}, applyOptions(opts))
	return err
}

func validate(shape Shape, o options) (float64, error) {
	switch {
	case shape.Width == 0:
		return 0, &ConfigError{Field: "width", Value: shape.Width, Reason: "must be positive"}
	case shape.Depth == 0:
		return 0, &ConfigError{Field: "depth", Value: shape.Depth, Reason: "must be positive"}
	case shape.MaxKeyLen < 1 || shape.MaxKeyLen > MaxKeyLen:
		return 0, &ConfigError{Field: "max_key_len", Value: shape.MaxKeyLen, Reason: "must be in [1, 255]"}
	}

	phi := 1 / float64(shape.Width)
	if o.phiSet {
		if !(o.phi > 0 && o.phi < 1) {
			return 0, &ConfigError{Field: "phi", Value: o.phi, Reason: "must be in (0, 1)"}
		}
		phi = o.phi
	}

	if err := shape.layout().Validate(); err != nil {
		return 0, &ConfigError{Field: "shape", Value: shape, Reason: err.Error()}
	}
	return phi, nil
}

func newSketch(shape Shape, phi float64, g *grid.Grid, b backing, o options) *Sketch {
	return &Sketch{
		shape:     shape,
		phi:       phi,
		g:         g,
		hasher:    hashutil.NewHasher(shape.Depth, shape.Width),
		backing:   b,
		logger:    o.logger.WithShape(shape),
		metrics:   o.metricsCollector,
		resources: o.resources,
		fsys:      o.fsys,
	}
}

// Shape returns the grid geometry.
func (s *Sketch) Shape() Shape { return s.shape }

// Width returns the number of columns.
func (s *Sketch) Width() uint64 { return s.shape.Width }

// Depth returns the number of rows.
func (s *Sketch) Depth() uint64 { return s.shape.Depth }

// MaxKeyLen returns the per-bucket key size. Longer keys are truncated.
func (s *Sketch) MaxKeyLen() uint64 { return s.shape.MaxKeyLen }

// Phi returns the default candidate threshold fraction.
func (s *Sketch) Phi() float64 { return s.phi }

// NAdded returns the cumulative weight of all adds, including merged shards.
func (s *Sketch) NAdded() uint64 {
	if s.closed {
		return 0
	}
	return s.g.NAdded()
}

// NRecords returns the auxiliary record counter.
func (s *Sketch) NRecords() uint64 {
	if s.closed {
		return 0
	}
	return s.g.NRecords()
}

// AddRecords advances the auxiliary record counter. Add never touches it;
// batch drivers use it to track how many input records a shard consumed.
func (s *Sketch) AddRecords(n uint64) {
	if s.closed {
		return
	}
	s.g.SetNRecords(s.g.NRecords() + n)
}

func (s *Sketch) truncate(key []byte) []byte {
	if uint64(len(key)) > s.shape.MaxKeyLen {
		return key[:s.shape.MaxKeyLen]
	}
	return key
}

// Add inserts key with weight value. Keys longer than MaxKeyLen are
// truncated first, so keys sharing that prefix count as one key.
// Add on a closed sketch does nothing.
func (s *Sketch) Add(key []byte, value uint32) {
	if s.closed {
		return
	}
	s.add(key, value)
	s.metrics.RecordAdd(1, uint64(value))
}

// AddString is Add for a string key.
func (s *Sketch) AddString(key string, value uint32) {
	s.Add([]byte(key), value)
}

func (s *Sketch) add(key []byte, value uint32) {
	key = s.truncate(key)
	base := hashutil.Base(key)
	g := s.g

	for row := range int(s.shape.Depth) {
		i := g.Index(uint64(row), s.hasher.Column(base, row))
		count := g.Count(i)

		switch {
		case g.Matches(i, key):
			g.SetCount(i, grid.SaturatingAdd(count, value))
		case value > count:
			g.Store(i, key, value-count)
		default:
			g.SetCount(i, count-value)
		}
	}

	g.SetNAdded(g.NAdded() + uint64(value))
}

// AddNgram adds every ngram-byte window of key with weight 1, left to right.
// A key no longer than ngram is added whole, as is any key when ngram is 0.
func (s *Sketch) AddNgram(key []byte, ngram uint64) {
	if s.closed {
		return
	}
	if ngram == 0 || uint64(len(key)) <= ngram {
		s.Add(key, 1)
		return
	}

	n := int(ngram)
	windows := len(key) - n + 1
	for i := range windows {
		s.add(key[i:i+n], 1)
	}
	s.metrics.RecordAdd(windows, uint64(windows))
}

// Update adds each key with weight 1. There is no atomicity across the batch.
func (s *Sketch) Update(keys [][]byte) {
	s.UpdateSeq(slices.Values(keys))
}

// UpdateWeighted adds each key with its weight. Keys are applied in sorted
// order so that the resulting grid does not depend on map iteration order.
func (s *Sketch) UpdateWeighted(weights map[string]uint32) {
	if s.closed {
		return
	}
	var total uint64
	for _, k := range slices.Sorted(maps.Keys(weights)) {
		w := weights[k]
		s.add([]byte(k), w)
		total += uint64(w)
	}
	s.metrics.RecordAdd(len(weights), total)
}

// UpdateSeq adds every key produced by seq with weight 1.
func (s *Sketch) UpdateSeq(seq iter.Seq[[]byte]) {
	if s.closed {
		return
	}
	n := 0
	for key := range seq {
		s.add(key, 1)
		n++
	}
	s.metrics.RecordAdd(n, uint64(n))
}

// UpdateSeq2 adds every (key, weight) pair produced by seq.
func (s *Sketch) UpdateSeq2(seq iter.Seq2[[]byte, uint32]) {
	if s.closed {
		return
	}
	n := 0
	var total uint64
	for key, w := range seq {
		s.add(key, w)
		n++
		total += uint64(w)
	}
	s.metrics.RecordAdd(n, total)
}

// Clone returns a private heap copy of s, including its counters.
func (s *Sketch) Clone() (*Sketch, error) {
	if s.closed {
		return nil, ErrClosed
	}
	g, err := grid.New(s.shape.layout())
	if err != nil {
		return nil, err
	}
	copy(g.Bytes(), s.g.Bytes())

	c := *s
	c.g = g
	c.backing = heapBacking{}
	c.cand = candidateCache{}
	return &c, nil
}

// Owner reports whether this handle owns its memory. Private sketches and
// the creator of a shared segment are owners; attached handles are not.
func (s *Sketch) Owner() bool { return s.backing.owner() }

// Shared reports whether the grid lives in a shared-memory segment.
func (s *Sketch) Shared() bool { return s.backing.name() != "" }

// Name returns the shared segment name, or "" for a private sketch.
func (s *Sketch) Name() string { return s.backing.name() }

// Sync flushes a shared grid to its backing segment. It is a no-op for
// private sketches.
func (s *Sketch) Sync() error {
	if s.closed {
		return ErrClosed
	}
	if err := s.backing.sync(); err != nil {
		return &SharedMemoryError{Name: s.Name(), Op: "sync", cause: err}
	}
	return nil
}

// Close releases the backing memory. For a private sketch it only marks the
// handle closed. A shared owner unmaps and unlinks the segment; an attached
// handle only unmaps its own view. Close is idempotent.
//
// After Close, adds are ignored, reads return zero values and Merge, Save
// and Sync return ErrClosed.
func (s *Sketch) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.cand = candidateCache{}

	name, owner := s.backing.name(), s.backing.owner()
	err := s.backing.release()
	s.g = nil

	if name == "" {
		return nil
	}
	s.logger.LogRelease(context.Background(), name, owner, err)
	if err != nil {
		op := "close"
		if owner {
			op = "unlink"
		}
		return &SharedMemoryError{Name: name, Op: op, cause: err}
	}
	return nil
}

// DefaultThreshold returns floor(phi * NAdded), clamped to UintMaxVal.
func (s *Sketch) DefaultThreshold() uint32 {
	t := math.Floor(s.phi * float64(s.NAdded()))
	if t >= float64(UintMaxVal) {
		return UintMaxVal
	}
	return uint32(t)
}
