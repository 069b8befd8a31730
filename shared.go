package topkapi

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/hupe1980/topkapi/internal/grid"
	"github.com/hupe1980/topkapi/internal/mmap"
	"github.com/hupe1980/topkapi/internal/shm"
)

// Shared segment header, followed by the grid body.
const (
	segmentHeaderSize = 64
	segmentVersion    = 1
)

var segmentMagic = [4]byte{'T', 'K', 'P', 'S'}

var (
	errSegmentUninitialized = errors.New("segment header not initialized")
	errSegmentMagic         = errors.New("bad segment magic")
	errSegmentVersion       = errors.New("unsupported segment version")
	errSegmentSize          = errors.New("segment size does not match header")
)

// backing owns the memory under a grid.
type backing interface {
	release() error
	sync() error
	owner() bool
	name() string
}

type heapBacking struct{}

func (heapBacking) release() error { return nil }
func (heapBacking) sync() error    { return nil }
func (heapBacking) owner() bool    { return true }
func (heapBacking) name() string   { return "" }

// ownedSegment is the creator's handle; releasing it unlinks the name.
type ownedSegment struct{ seg *shm.Segment }

func (o ownedSegment) release() error {
	return errors.Join(o.seg.Close(), o.seg.Unlink())
}
func (o ownedSegment) sync() error  { return o.seg.Sync() }
func (o ownedSegment) owner() bool  { return true }
func (o ownedSegment) name() string { return o.seg.Name() }

// borrowedSegment is an attached handle; releasing it only unmaps.
type borrowedSegment struct{ seg *shm.Segment }

func (b borrowedSegment) release() error { return b.seg.Close() }
func (b borrowedSegment) sync() error    { return b.seg.Sync() }
func (b borrowedSegment) owner() bool    { return false }
func (b borrowedSegment) name() string   { return b.seg.Name() }

// AllocateShared creates a sketch whose grid lives in a new shared-memory
// segment and returns it with the segment name. An empty name generates a
// unique one. The returned sketch owns the segment: its Close unlinks it.
func AllocateShared(name string, width, depth, maxKeyLen uint64, opts ...Option) (*Sketch, string, error) {
	s, err := New(width, depth, maxKeyLen, append(opts, WithShared(name))...)
	if err != nil {
		return nil, "", err
	}
	return s, s.Name(), nil
}

func allocateShared(shape Shape, phi float64, o options) (*Sketch, error) {
	name := o.sharedName
	if name == "" {
		name = shm.NewName()
	}
	size := segmentHeaderSize + shape.layout().BodySize()

	seg, err := shm.Create(name, size)
	o.logger.LogAllocate(context.Background(), name, size, err)
	if err != nil {
		return nil, &SharedMemoryError{Name: name, Op: "allocate", cause: err}
	}

	encodeSegmentHeader(seg.Bytes()[:segmentHeaderSize], shape, phi)

	g, err := wrapSegment(seg, shape)
	if err != nil {
		_ = ownedSegment{seg}.release()
		return nil, &SharedMemoryError{Name: name, Op: "allocate", cause: err}
	}
	return newSketch(shape, phi, g, ownedSegment{seg}, o), nil
}

// AttachShared maps an existing segment created by AllocateShared without
// taking ownership. Closing the returned sketch unmaps only its own view.
//
// Attached handles see each other's writes but nothing synchronizes them:
// concurrent adds to the same bucket race and may lose updates. Callers that
// need exact merging should build private shards and Merge them.
func AttachShared(name string, opts ...Option) (*Sketch, error) {
	o := applyOptions(opts)

	s, err := attachShared(name, o)
	size := 0
	if s != nil {
		size = segmentHeaderSize + s.shape.layout().BodySize()
	}
	o.logger.LogAttach(context.Background(), name, size, err)
	return s, err
}

func attachShared(name string, o options) (*Sketch, error) {
	seg, err := shm.Open(name)
	if err != nil {
		return nil, &SharedMemoryError{Name: name, Op: "attach", cause: err}
	}

	fail := func(cause error) (*Sketch, error) {
		_ = seg.Close()
		return nil, &SharedMemoryError{Name: name, Op: "attach", cause: cause}
	}

	buf := seg.Bytes()
	if len(buf) < segmentHeaderSize {
		return fail(errSegmentSize)
	}

	shape, phi, err := decodeSegmentHeader(buf[:segmentHeaderSize])
	if err != nil {
		return fail(err)
	}
	if _, err := validate(shape, options{}); err != nil {
		return fail(err)
	}
	if len(buf) != segmentHeaderSize+shape.layout().BodySize() {
		return fail(fmt.Errorf("%w: %d bytes", errSegmentSize, len(buf)))
	}

	g, err := wrapSegment(seg, shape)
	if err != nil {
		return fail(err)
	}
	return newSketch(shape, phi, g, borrowedSegment{seg}, o), nil
}

// wrapSegment aliases the grid onto the segment body after the header.
func wrapSegment(seg *shm.Segment, shape Shape) (*grid.Grid, error) {
	l := shape.layout()
	body, err := seg.Region(segmentHeaderSize, l.BodySize())
	if err != nil {
		return nil, err
	}
	_ = body.Advise(mmap.AccessRandom)
	return grid.Wrap(l, body.Bytes())
}

func encodeSegmentHeader(dst []byte, shape Shape, phi float64) {
	clear(dst)
	copy(dst[0:4], segmentMagic[:])
	dst[4] = segmentVersion
	binary.LittleEndian.PutUint64(dst[8:], shape.Width)
	binary.LittleEndian.PutUint64(dst[16:], shape.Depth)
	binary.LittleEndian.PutUint64(dst[24:], shape.MaxKeyLen)
	binary.LittleEndian.PutUint64(dst[32:], math.Float64bits(phi))
}

func decodeSegmentHeader(src []byte) (Shape, float64, error) {
	if [4]byte(src[0:4]) == ([4]byte{}) {
		return Shape{}, 0, errSegmentUninitialized
	}
	if [4]byte(src[0:4]) != segmentMagic {
		return Shape{}, 0, errSegmentMagic
	}
	if src[4] != segmentVersion {
		return Shape{}, 0, fmt.Errorf("%w: %d", errSegmentVersion, src[4])
	}

	shape := Shape{
		Width:     binary.LittleEndian.Uint64(src[8:]),
		Depth:     binary.LittleEndian.Uint64(src[16:]),
		MaxKeyLen: binary.LittleEndian.Uint64(src[24:]),
	}
	phi := math.Float64frombits(binary.LittleEndian.Uint64(src[32:]))
	if !(phi > 0 && phi <= 1) {
		return Shape{}, 0, fmt.Errorf("%w: phi %v", ErrCorruptHeader, phi)
	}
	return shape, phi, nil
}
