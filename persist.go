package topkapi

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/hupe1980/topkapi/internal/fs"
	"github.com/hupe1980/topkapi/internal/grid"
)

// HeaderSize is the size of the persisted header:
// width u64, depth u64, max_key_len u64, phi f64, little-endian.
const HeaderSize = 32

// EncodedSize returns the persisted size of a sketch with the given shape.
// The shape must be valid.
func EncodedSize(shape Shape) int64 {
	return HeaderSize + int64(shape.layout().BodySize())
}

// EncodedSize returns the number of bytes WriteTo produces.
func (s *Sketch) EncodedSize() int64 {
	return EncodedSize(s.shape)
}

func (s *Sketch) encodeHeader() []byte {
	hdr := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint64(hdr[0:], s.shape.Width)
	binary.LittleEndian.PutUint64(hdr[8:], s.shape.Depth)
	binary.LittleEndian.PutUint64(hdr[16:], s.shape.MaxKeyLen)
	binary.LittleEndian.PutUint64(hdr[24:], math.Float64bits(s.phi))
	return hdr
}

func decodeHeader(hdr []byte) (Shape, float64, error) {
	shape := Shape{
		Width:     binary.LittleEndian.Uint64(hdr[0:]),
		Depth:     binary.LittleEndian.Uint64(hdr[8:]),
		MaxKeyLen: binary.LittleEndian.Uint64(hdr[16:]),
	}
	phi := math.Float64frombits(binary.LittleEndian.Uint64(hdr[24:]))

	if shape.Width == 0 || shape.Depth == 0 || shape.MaxKeyLen < 1 || shape.MaxKeyLen > MaxKeyLen {
		return Shape{}, 0, fmt.Errorf("%w: shape %s", ErrCorruptHeader, shape)
	}
	if !(phi > 0 && phi <= 1) {
		return Shape{}, 0, fmt.Errorf("%w: phi %v", ErrCorruptHeader, phi)
	}
	if err := shape.layout().Validate(); err != nil {
		return Shape{}, 0, fmt.Errorf("%w: %w", ErrCorruptHeader, err)
	}
	return shape, phi, nil
}

// WriteTo writes the persisted form of s: the header followed by the grid
// keys, key lengths, counts and the nAdded/nRecords counters.
func (s *Sketch) WriteTo(w io.Writer) (int64, error) {
	if s.closed {
		return 0, ErrClosed
	}
	n, err := w.Write(s.encodeHeader())
	if err != nil {
		return int64(n), err
	}
	m, err := w.Write(s.g.Bytes())
	return int64(n + m), err
}

// MarshalBinary returns the persisted form of s.
func (s *Sketch) MarshalBinary() ([]byte, error) {
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]byte, 0, s.EncodedSize())
	out = append(out, s.encodeHeader()...)
	return append(out, s.g.Bytes()...), nil
}

// Save writes s to path atomically: a temporary sibling is written, synced
// and renamed over path. Failures are *IoError and leave path untouched.
func (s *Sketch) Save(path string) error {
	start := time.Now()

	var written int64
	err := fs.WriteAtomic(s.fsys, path, func(w io.Writer) error {
		n, err := s.WriteTo(w)
		written = n
		return err
	})
	if err != nil {
		err = &IoError{Path: path, Op: "save", cause: err}
	}

	s.metrics.RecordSave(written, time.Since(start), err)
	s.logger.LogSave(context.Background(), path, written, err)
	return err
}

// Load reads a sketch saved with Save. Truncated files and invalid headers
// fail with *IoError; no partially initialized sketch is ever returned.
func Load(path string, opts ...Option) (*Sketch, error) {
	o := applyOptions(opts)
	start := time.Now()

	s, n, err := load(path, o)
	if err != nil {
		err = &IoError{Path: path, Op: "load", cause: err}
	}

	o.metricsCollector.RecordLoad(n, time.Since(start), err)
	o.logger.LogLoad(context.Background(), path, n, err)
	return s, err
}

func load(path string, o options) (*Sketch, int64, error) {
	f, err := o.fsys.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, 0, err
	}
	return decode(f, fi.Size(), o)
}

// Decode reads a sketch in the persisted form from r. Errors are *IoError.
func Decode(r io.Reader, opts ...Option) (*Sketch, error) {
	o := applyOptions(opts)
	start := time.Now()

	s, n, err := decode(r, -1, o)
	if err != nil {
		err = &IoError{Op: "decode", cause: err}
	}
	o.metricsCollector.RecordLoad(n, time.Since(start), err)
	return s, err
}

// UnmarshalBinary decodes data into a new private sketch.
func UnmarshalBinary(data []byte, opts ...Option) (*Sketch, error) {
	o := applyOptions(opts)
	s, _, err := decode(bytes.NewReader(data), int64(len(data)), o)
	if err != nil {
		return nil, &IoError{Op: "decode", cause: err}
	}
	return s, nil
}

// decode reads header and body. When size >= 0 it is the total input size
// and is checked against the header before any grid is allocated. Otherwise
// the body is read in full first, so a bare header allocates nothing large.
func decode(r io.Reader, size int64, o options) (*Sketch, int64, error) {
	hdr := make([]byte, HeaderSize)
	if n, err := io.ReadFull(r, hdr); err != nil {
		return nil, int64(n), eofAsTruncated(err)
	}

	shape, phi, err := decodeHeader(hdr)
	if err != nil {
		return nil, HeaderSize, err
	}
	bodySize := shape.layout().BodySize()
	if size >= 0 && size < EncodedSize(shape) {
		return nil, HeaderSize, fmt.Errorf("%w: %d of %d bytes", io.ErrUnexpectedEOF, size, EncodedSize(shape))
	}

	var body []byte
	if size < 0 {
		body, err = io.ReadAll(io.LimitReader(r, int64(bodySize)))
		read := HeaderSize + int64(len(body))
		if err != nil {
			return nil, read, err
		}
		if len(body) < bodySize {
			return nil, read, fmt.Errorf("%w: body %d of %d bytes", io.ErrUnexpectedEOF, len(body), bodySize)
		}
	}

	var s *Sketch
	switch {
	case o.shared:
		s, err = allocateShared(shape, phi, o)
	case body != nil:
		var g *grid.Grid
		g, err = grid.Wrap(shape.layout(), body)
		if err == nil {
			s = newSketch(shape, phi, g, heapBacking{}, o)
		}
	default:
		var g *grid.Grid
		g, err = grid.New(shape.layout())
		if err == nil {
			s = newSketch(shape, phi, g, heapBacking{}, o)
		}
	}
	if err != nil {
		return nil, HeaderSize, err
	}

	if body != nil {
		if o.shared {
			copy(s.g.Bytes(), body)
		}
		return s, HeaderSize + int64(bodySize), nil
	}

	n, err := io.ReadFull(r, s.g.Bytes())
	if err != nil {
		_ = s.Close()
		return nil, HeaderSize + int64(n), eofAsTruncated(err)
	}
	return s, HeaderSize + int64(n), nil
}

func eofAsTruncated(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
