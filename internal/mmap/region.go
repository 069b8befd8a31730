package mmap

import "os"

// Region is a view of part of a Mapping, such as the grid body that follows
// a segment header. The parent mapping owns the memory.
type Region struct {
	parent *Mapping
	offset int
	size   int
}

// Region returns the view [offset, offset+size) of m.
func (m *Mapping) Region(offset, size int) (*Region, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	if offset < 0 || size < 0 || offset+size > m.size {
		return nil, ErrOutOfBounds
	}
	return &Region{parent: m, offset: offset, size: size}, nil
}

// Bytes returns the region's memory, or nil once the mapping is closed.
// Writes through a shared mapping are visible to every process that maps it.
func (r *Region) Bytes() []byte {
	if r.parent.closed.Load() {
		return nil
	}
	return r.parent.data[r.offset : r.offset+r.size]
}

// Advise applies an access hint to the pages backing the region. The range
// is widened down to a page boundary, so a hint on a body that starts inside
// the header page covers the header as well.
func (r *Region) Advise(pattern AccessPattern) error {
	if r.parent.closed.Load() {
		return ErrClosed
	}
	start := r.offset &^ (os.Getpagesize() - 1)
	return osAdvise(r.parent.data[start:r.offset+r.size], pattern)
}
