package mmap

import "errors"

// AccessPattern is a paging hint for a mapping or region.
type AccessPattern int

const (
	// AccessDefault clears earlier hints.
	AccessDefault AccessPattern = iota
	// AccessSequential suits whole-segment scans such as snapshots and merges.
	AccessSequential
	// AccessRandom suits per-bucket lookups from Add and Get.
	AccessRandom
	// AccessWillNeed prefetches pages.
	AccessWillNeed
	// AccessDontNeed lets the kernel drop pages.
	AccessDontNeed
)

var (
	// ErrClosed is returned by views and reads on an unmapped segment.
	ErrClosed = errors.New("mmap: mapping is closed")
	// ErrInvalidSize is returned for a negative size or a backing file whose
	// size does not fit in memory.
	ErrInvalidSize = errors.New("mmap: invalid size")
	// ErrOutOfBounds is returned for a region reaching past the mapping.
	ErrOutOfBounds = errors.New("mmap: region out of bounds")
	// ErrInvalidOffset is returned for a negative read offset.
	ErrInvalidOffset = errors.New("mmap: invalid offset")
	// ErrReadOnly is returned when Sync is called on a read-only mapping.
	ErrReadOnly = errors.New("mmap: mapping is read-only")
	// ErrUnsupported is returned on platforms without shared read-write mappings.
	ErrUnsupported = errors.New("mmap: shared mappings not supported on this platform")
)
