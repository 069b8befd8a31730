// Package shm manages named shared-memory segments.
//
// A segment is a file under the shared-memory directory (/dev/shm on Linux,
// the system temp directory elsewhere) mapped read-write with MAP_SHARED.
// Every process that opens the same name sees the same bytes.
//
// Segment does not track ownership. Close only unmaps; Unlink removes the
// name. Callers decide who may unlink.
package shm

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/hupe1980/topkapi/internal/mmap"
)

var (
	// ErrNotFound is returned when opening a segment name that does not exist.
	ErrNotFound = errors.New("shm: segment not found")
	// ErrExists is returned when creating a segment name that already exists.
	ErrExists = errors.New("shm: segment already exists")
	// ErrInvalidName is returned for empty names or names containing a path separator.
	ErrInvalidName = errors.New("shm: invalid segment name")
	// ErrEmpty is returned when opening a zero-length segment.
	ErrEmpty = errors.New("shm: segment is empty")
)

const namePrefix = "topkapi-"

// Dir returns the directory that backs segment names.
func Dir() string {
	if fi, err := os.Stat("/dev/shm"); err == nil && fi.IsDir() {
		return "/dev/shm"
	}
	return os.TempDir()
}

// NewName returns a fresh, collision-resistant segment name.
func NewName() string {
	return namePrefix + uuid.NewString()
}

// Segment is a mapped shared-memory segment.
type Segment struct {
	name string
	path string
	m    *mmap.Mapping
}

// Create creates and maps a new zero-filled segment of size bytes.
// It fails with ErrExists if the name is taken.
func Create(name string, size int) (*Segment, error) {
	path, err := pathOf(name)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrExists, name)
		}
		return nil, err
	}
	defer f.Close()

	if err := f.Truncate(int64(size)); err != nil {
		_ = os.Remove(path)
		return nil, err
	}

	m, err := mmap.MapShared(f, size)
	if err != nil {
		_ = os.Remove(path)
		return nil, err
	}

	return &Segment{name: name, path: path, m: m}, nil
}

// Open maps an existing segment. The whole file is mapped.
func Open(name string) (*Segment, error) {
	path, err := pathOf(name)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if fi.Size() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmpty, name)
	}
	if int64(int(fi.Size())) != fi.Size() {
		return nil, mmap.ErrInvalidSize
	}

	m, err := mmap.MapShared(f, int(fi.Size()))
	if err != nil {
		return nil, err
	}

	return &Segment{name: name, path: path, m: m}, nil
}

// Name returns the segment name.
func (s *Segment) Name() string {
	return s.name
}

// Size returns the mapped size in bytes.
func (s *Segment) Size() int {
	return s.m.Size()
}

// Bytes returns the mapped memory. It is nil after Close.
func (s *Segment) Bytes() []byte {
	return s.m.Bytes()
}

// Region returns a view of size bytes starting at offset.
func (s *Segment) Region(offset, size int) (*mmap.Region, error) {
	return s.m.Region(offset, size)
}

// Sync flushes the mapping to its backing file.
func (s *Segment) Sync() error {
	return s.m.Sync()
}

// Close unmaps the segment. The name stays visible to other processes.
func (s *Segment) Close() error {
	return s.m.Close()
}

// Unlink removes the segment name. Existing mappings remain valid until
// they are closed.
func (s *Segment) Unlink() error {
	return Unlink(s.name)
}

// Unlink removes a segment name.
func Unlink(name string) error {
	path, err := pathOf(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return err
	}
	return nil
}

// Exists reports whether a segment name is present.
func Exists(name string) bool {
	path, err := pathOf(name)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

func pathOf(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(Dir(), name), nil
}
