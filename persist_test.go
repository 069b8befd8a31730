package topkapi

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/topkapi/internal/fs"
)

func filledSketch(t *testing.T) *Sketch {
	t.Helper()
	s := mustNew(t, 16, 3, 8, WithPhi(0.2))
	for i := range 200 {
		s.AddString(fmt.Sprintf("key-%d", i%7), uint32(1+i%3))
	}
	s.AddRecords(200)
	return s
}

func assertSameSketch(t *testing.T, want, got *Sketch) {
	t.Helper()
	assert.Equal(t, want.Shape(), got.Shape())
	assert.Equal(t, want.Phi(), got.Phi())
	assert.Equal(t, want.NAdded(), got.NAdded())
	assert.Equal(t, want.NRecords(), got.NRecords())
	assert.Equal(t, want.g.Bytes(), got.g.Bytes())
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	s := filledSketch(t)
	path := filepath.Join(t.TempDir(), "sketch.bin")

	require.NoError(t, s.Save(path))

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, s.EncodedSize(), fi.Size())

	loaded, err := Load(path)
	require.NoError(t, err)
	assertSameSketch(t, s, loaded)
	assert.Equal(t, s.Query(3, nil), loaded.Query(3, nil))
}

func TestSave_Layout(t *testing.T) {
	s := mustNew(t, 2, 1, 3, WithPhi(0.25))
	s.AddString("ab", 7)
	s.AddRecords(9)

	var buf bytes.Buffer
	n, err := s.WriteTo(&buf)
	require.NoError(t, err)
	require.Equal(t, int64(buf.Len()), n)

	data := buf.Bytes()
	require.Len(t, data, 32+2*3+2+2*4+16)

	assert.Equal(t, uint64(2), binary.LittleEndian.Uint64(data[0:]))
	assert.Equal(t, uint64(1), binary.LittleEndian.Uint64(data[8:]))
	assert.Equal(t, uint64(3), binary.LittleEndian.Uint64(data[16:]))
	assert.Equal(t, 0.25, math.Float64frombits(binary.LittleEndian.Uint64(data[24:])))

	keys, keyLens, counts := data[32:38], data[38:40], data[40:48]
	found := false
	for c := range 2 {
		if keyLens[c] == 2 {
			found = true
			assert.Equal(t, []byte{'a', 'b', 0}, keys[c*3:c*3+3], "keys are zero padded")
			assert.Equal(t, uint32(7), binary.LittleEndian.Uint32(counts[c*4:]))
		}
	}
	assert.True(t, found)
	assert.Equal(t, uint64(7), binary.LittleEndian.Uint64(data[48:]))
	assert.Equal(t, uint64(9), binary.LittleEndian.Uint64(data[56:]))
}

func TestMarshalBinary_RoundTrip(t *testing.T) {
	s := filledSketch(t)

	data, err := s.MarshalBinary()
	require.NoError(t, err)

	got, err := UnmarshalBinary(data)
	require.NoError(t, err)
	assertSameSketch(t, s, got)

	dec, err := Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assertSameSketch(t, s, dec)
}

func TestLoad_Truncated(t *testing.T) {
	s := filledSketch(t)
	data, err := s.MarshalBinary()
	require.NoError(t, err)

	dir := t.TempDir()
	for _, size := range []int{0, 10, HeaderSize, len(data) - 1} {
		path := filepath.Join(dir, fmt.Sprintf("trunc-%d.bin", size))
		require.NoError(t, os.WriteFile(path, data[:size], 0o644))

		loaded, err := Load(path)
		assert.Nil(t, loaded)
		require.ErrorIs(t, err, ErrIO, "size %d", size)
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF, "size %d", size)

		var ioe *IoError
		require.ErrorAs(t, err, &ioe)
		assert.Equal(t, path, ioe.Path)
		assert.Equal(t, "load", ioe.Op)
	}

	_, err = Decode(bytes.NewReader(data[:len(data)-5]))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestDecode_HeaderOnly(t *testing.T) {
	tests := []struct {
		name  string
		shape Shape
	}{
		{"small", Shape{Width: 16, Depth: 3, MaxKeyLen: 8}},
		{"huge", Shape{Width: 1 << 27, Depth: 4, MaxKeyLen: 255}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hdr := make([]byte, HeaderSize)
			binary.LittleEndian.PutUint64(hdr[0:], tt.shape.Width)
			binary.LittleEndian.PutUint64(hdr[8:], tt.shape.Depth)
			binary.LittleEndian.PutUint64(hdr[16:], tt.shape.MaxKeyLen)
			binary.LittleEndian.PutUint64(hdr[24:], math.Float64bits(0.5))

			s, err := Decode(bytes.NewReader(hdr))
			assert.Nil(t, s)
			require.ErrorIs(t, err, ErrIO)
			assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
		})
	}

	t.Run("beyond max size", func(t *testing.T) {
		hdr := make([]byte, HeaderSize)
		binary.LittleEndian.PutUint64(hdr[0:], 1<<40)
		binary.LittleEndian.PutUint64(hdr[8:], 1<<10)
		binary.LittleEndian.PutUint64(hdr[16:], 1)
		binary.LittleEndian.PutUint64(hdr[24:], math.Float64bits(0.5))

		_, err := Decode(bytes.NewReader(hdr))
		require.ErrorIs(t, err, ErrIO)
		assert.ErrorIs(t, err, ErrCorruptHeader)
	})
}

func TestLoad_CorruptHeader(t *testing.T) {
	valid, err := filledSketch(t).MarshalBinary()
	require.NoError(t, err)

	tests := []struct {
		name  string
		patch func(b []byte)
	}{
		{"zero width", func(b []byte) { binary.LittleEndian.PutUint64(b[0:], 0) }},
		{"zero depth", func(b []byte) { binary.LittleEndian.PutUint64(b[8:], 0) }},
		{"key len", func(b []byte) { binary.LittleEndian.PutUint64(b[16:], 300) }},
		{"phi", func(b []byte) { binary.LittleEndian.PutUint64(b[24:], math.Float64bits(2)) }},
		{"phi zero", func(b []byte) { binary.LittleEndian.PutUint64(b[24:], math.Float64bits(0)) }},
		{"phi negative", func(b []byte) { binary.LittleEndian.PutUint64(b[24:], math.Float64bits(-0.25)) }},
		{"phi NaN", func(b []byte) { binary.LittleEndian.PutUint64(b[24:], math.Float64bits(math.NaN())) }},
		{"overflow", func(b []byte) { binary.LittleEndian.PutUint64(b[0:], math.MaxUint64) }},
	}

	dir := t.TempDir()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := bytes.Clone(valid)
			tt.patch(data)
			path := filepath.Join(dir, tt.name)
			require.NoError(t, os.WriteFile(path, data, 0o644))

			_, err := Load(path)
			assert.ErrorIs(t, err, ErrIO)
			assert.ErrorIs(t, err, ErrCorruptHeader)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.bin"))
	assert.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSave_FaultyFileSystem(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fs.FaultyFS)
	}{
		{"disk full", func(f *fs.FaultyFS) { f.SetLimit(40) }},
		{"sync", func(f *fs.FaultyFS) { f.AddRule(".tmp-", fs.Fault{FailAfterBytes: -1, FailOnSync: true}) }},
		{"close", func(f *fs.FaultyFS) { f.AddRule(".tmp-", fs.Fault{FailAfterBytes: -1, FailOnClose: true}) }},
		{"open", func(f *fs.FaultyFS) { f.AddRule(".tmp-", fs.Fault{FailOnOpen: true}) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ffs := fs.NewFaultyFS(nil)
			tt.setup(ffs)

			mc := &BasicMetricsCollector{}
			s := mustNew(t, 16, 3, 8, withFileSystem(ffs), WithMetricsCollector(mc))
			s.AddString("k", 1)

			dir := t.TempDir()
			path := filepath.Join(dir, "sketch.bin")
			err := s.Save(path)
			require.ErrorIs(t, err, ErrIO)
			assert.ErrorIs(t, err, fs.ErrInjected)

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			assert.Empty(t, entries, "no destination or temporary file is left behind")
			assert.Equal(t, int64(1), mc.GetStats().SaveErrors)
		})
	}
}

func TestSave_OverwritesAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sketch.bin")

	a := mustNew(t, 8, 2, 4)
	a.AddString("a", 1)
	require.NoError(t, a.Save(path))

	b := mustNew(t, 8, 2, 4)
	b.AddString("b", 2)
	require.NoError(t, b.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assertSameSketch(t, b, loaded)
}

func TestPersist_Closed(t *testing.T) {
	s, err := New(8, 2, 4)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.WriteTo(io.Discard)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.MarshalBinary()
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Save(filepath.Join(t.TempDir(), "x")), ErrClosed)
}
