// Package mmap provides memory-mapped file access.
//
// # Overview
//
// Two kinds of mappings are supported:
//
//   - Read-only mappings of existing files ([Open]), used for zero-copy
//     reads of persisted sketch snapshots.
//   - Read-write shared mappings ([MapShared]), used to place a sketch grid
//     in a segment that several processes can map at the same time.
//
// # Usage
//
//	m, err := mmap.Open("sketch.bin")
//	if err != nil { ... }
//	defer m.Close()
//
//	data := m.Bytes()
//
//	// Create a view into a specific region
//	region, _ := m.Region(offset, size)
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): mmap(2) with madvise(2) hints and msync(2)
//   - Windows: read-only CreateFileMapping/MapViewOfFile; shared read-write
//     mappings return [ErrUnsupported]
//
// # Thread Safety
//
// Close is idempotent and protected by atomic operations. Callers must
// ensure no goroutine touches Bytes() after Close returns. Writes through a
// shared mapping are not synchronized in any way.
package mmap
