package snapshot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/hupe1980/topkapi"
	"github.com/hupe1980/topkapi/internal/hash"
	"github.com/hupe1980/topkapi/resource"
)

const (
	// HeaderSize is the size of the envelope header in bytes.
	HeaderSize = 32
	// Version is the envelope version written by Encode.
	Version = 1
)

var magic = [4]byte{'T', 'K', 'S', 'N'}

var (
	// ErrCorrupt is returned for envelopes with a bad magic, version or size.
	ErrCorrupt = errors.New("snapshot: corrupt envelope")
	// ErrChecksumMismatch is returned when the payload does not match its CRC32C.
	ErrChecksumMismatch = errors.New("snapshot: checksum mismatch")
	// ErrUnsupportedCompression is returned for unknown codecs.
	ErrUnsupportedCompression = errors.New("snapshot: unsupported compression")
)

// Options configures encoding and transfer.
type Options struct {
	// Compression selects the payload codec. Default: none.
	Compression Compression
	// Resources rate-limits snapshot IO. Nil means unlimited.
	Resources *resource.Controller
	// SketchOptions are passed to the decoded sketch (logger, metrics,
	// WithShared to decode straight into shared memory).
	SketchOptions []topkapi.Option
}

type header struct {
	compression Compression
	rawSize     uint64
	payloadSize uint64
	checksum    uint32
}

func (h header) encode() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], magic[:])
	buf[4] = Version
	buf[5] = byte(h.compression)
	binary.LittleEndian.PutUint64(buf[8:], h.rawSize)
	binary.LittleEndian.PutUint64(buf[16:], h.payloadSize)
	binary.LittleEndian.PutUint32(buf[24:], h.checksum)
	return buf
}

func decodeHeader(buf []byte) (header, error) {
	if [4]byte(buf[0:4]) != magic {
		return header{}, fmt.Errorf("%w: bad magic %q", ErrCorrupt, buf[0:4])
	}
	if buf[4] != Version {
		return header{}, fmt.Errorf("%w: version %d", ErrCorrupt, buf[4])
	}
	h := header{
		compression: Compression(buf[5]),
		rawSize:     binary.LittleEndian.Uint64(buf[8:]),
		payloadSize: binary.LittleEndian.Uint64(buf[16:]),
		checksum:    binary.LittleEndian.Uint32(buf[24:]),
	}
	if h.compression > CompressionZstd {
		return header{}, fmt.Errorf("%w: %s", ErrUnsupportedCompression, h.compression)
	}
	if h.rawSize < topkapi.HeaderSize || h.rawSize > uint64(maxInt) {
		return header{}, fmt.Errorf("%w: raw size %d", ErrCorrupt, h.rawSize)
	}
	if h.payloadSize > uint64(maxInt) {
		return header{}, fmt.Errorf("%w: payload size %d", ErrCorrupt, h.payloadSize)
	}
	return h, nil
}

const maxInt = int(^uint(0) >> 1)

// Encode writes s as an envelope to w and returns the bytes written.
func Encode(w io.Writer, s *topkapi.Sketch, opts Options) (int64, error) {
	raw, err := s.MarshalBinary()
	if err != nil {
		return 0, err
	}

	payload, used, err := compress(raw, opts.Compression)
	if err != nil {
		return 0, err
	}

	h := header{
		compression: used,
		rawSize:     uint64(len(raw)),
		payloadSize: uint64(len(payload)),
		checksum:    hash.CRC32C(raw),
	}

	n, err := w.Write(h.encode())
	written := int64(n)
	if err != nil {
		return written, err
	}
	n, err = w.Write(payload)
	written += int64(n)
	return written, err
}

// Marshal returns the envelope for s.
func Marshal(s *topkapi.Sketch, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(HeaderSize + int(s.EncodedSize()))
	if _, err := Encode(&buf, s, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads one envelope from r and reconstructs the sketch.
func Decode(r io.Reader, opts Options) (*topkapi.Sketch, error) {
	hdr := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrCorrupt, err)
	}
	h, err := decodeHeader(hdr)
	if err != nil {
		return nil, err
	}

	// ReadAll over a LimitReader grows with the data actually present
	// rather than trusting payloadSize for the allocation.
	payload, err := io.ReadAll(io.LimitReader(r, int64(h.payloadSize)))
	if err != nil {
		return nil, err
	}
	if uint64(len(payload)) != h.payloadSize {
		return nil, fmt.Errorf("%w: payload truncated at %d of %d bytes", ErrCorrupt, len(payload), h.payloadSize)
	}

	raw, err := decompress(payload, h.compression, int(h.rawSize))
	if err != nil {
		return nil, err
	}
	if !hash.Verify(raw, h.checksum) {
		return nil, ErrChecksumMismatch
	}

	return topkapi.UnmarshalBinary(raw, opts.SketchOptions...)
}

// Unmarshal decodes an envelope held in memory.
func Unmarshal(data []byte, opts Options) (*topkapi.Sketch, error) {
	return Decode(bytes.NewReader(data), opts)
}
