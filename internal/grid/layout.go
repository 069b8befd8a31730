package grid

import (
	"errors"
	"math"
)

const (
	// MaxKeyLenLimit is the largest supported per-bucket key size; key
	// lengths are stored in a single byte.
	MaxKeyLenLimit = 255

	// MaxBodySize bounds the grid region to 1 TiB.
	MaxBodySize = 1 << 40

	// CountersSize is the size of the trailing nAdded/nRecords section.
	CountersSize = 16

	countSize = 4
)

var (
	// ErrZeroWidth is returned for a layout with no columns.
	ErrZeroWidth = errors.New("grid: width must be positive")
	// ErrZeroDepth is returned for a layout with no rows.
	ErrZeroDepth = errors.New("grid: depth must be positive")
	// ErrKeyLen is returned when MaxKeyLen is outside [1, 255].
	ErrKeyLen = errors.New("grid: max key length must be in [1, 255]")
	// ErrTooLarge is returned when the region would exceed MaxBodySize.
	ErrTooLarge = errors.New("grid: dimensions exceed maximum region size")
	// ErrRegionSize is returned by Wrap when the region has the wrong size.
	ErrRegionSize = errors.New("grid: region size mismatch")
)

// Layout describes the fixed shape of a grid.
type Layout struct {
	Width     uint64
	Depth     uint64
	MaxKeyLen uint64
}

// Validate checks the dimensions and that the body size is at most
// MaxBodySize.
func (l Layout) Validate() error {
	switch {
	case l.Width == 0:
		return ErrZeroWidth
	case l.Depth == 0:
		return ErrZeroDepth
	case l.MaxKeyLen < 1 || l.MaxKeyLen > MaxKeyLenLimit:
		return ErrKeyLen
	}

	if l.Depth > math.MaxInt/l.Width {
		return ErrTooLarge
	}
	n := l.Width * l.Depth
	per := l.MaxKeyLen + 1 + countSize
	if n > (MaxBodySize-CountersSize)/per {
		return ErrTooLarge
	}
	return nil
}

// Buckets returns depth * width.
func (l Layout) Buckets() uint64 {
	return l.Width * l.Depth
}

// BodySize returns the size in bytes of the grid region.
// The layout must be valid.
func (l Layout) BodySize() int {
	return l.countersOffset() + CountersSize
}

// Equal reports whether two layouts have the same shape.
func (l Layout) Equal(o Layout) bool {
	return l.Width == o.Width && l.Depth == o.Depth && l.MaxKeyLen == o.MaxKeyLen
}

func (l Layout) keyLensOffset() int {
	return int(l.Buckets() * l.MaxKeyLen)
}

func (l Layout) countsOffset() int {
	return l.keyLensOffset() + int(l.Buckets())
}

func (l Layout) countersOffset() int {
	return l.countsOffset() + int(l.Buckets())*countSize
}
