package snapshot

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/topkapi"
	"github.com/hupe1980/topkapi/blobstore"
	"github.com/hupe1980/topkapi/resource"
	"github.com/hupe1980/topkapi/testutil"
)

func buildSketch(t *testing.T) *topkapi.Sketch {
	t.Helper()
	s, err := topkapi.New(64, 4, 16)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	rng := testutil.NewRNG(7)
	for _, k := range rng.ZipfKeys(5000, 200, 1.1) {
		s.Add(k, 1)
	}
	s.AddRecords(5000)
	return s
}

func raw(t *testing.T, s *topkapi.Sketch) []byte {
	t.Helper()
	data, err := s.MarshalBinary()
	require.NoError(t, err)
	return data
}

func TestEncodeDecode_AllCodecs(t *testing.T) {
	s := buildSketch(t)
	want := raw(t, s)

	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd} {
		t.Run(c.String(), func(t *testing.T) {
			var buf bytes.Buffer
			n, err := Encode(&buf, s, Options{Compression: c})
			require.NoError(t, err)
			assert.Equal(t, int64(buf.Len()), n)
			assert.Equal(t, magic[:], buf.Bytes()[:4])

			got, err := Decode(&buf, Options{})
			require.NoError(t, err)
			defer got.Close()

			assert.Equal(t, want, raw(t, got))
			assert.Equal(t, s.NRecords(), got.NRecords())
			assert.Equal(t, s.Get(testutil.Key(0)), got.Get(testutil.Key(0)))
		})
	}
}

func TestEncode_CompressionShrinksSparseGrid(t *testing.T) {
	s, err := topkapi.New(4096, 4, 16)
	require.NoError(t, err)
	defer s.Close()
	s.AddString("only", 3)

	plain, err := Marshal(s, Options{})
	require.NoError(t, err)

	for _, c := range []Compression{CompressionLZ4, CompressionZstd} {
		packed, err := Marshal(s, Options{Compression: c})
		require.NoError(t, err)
		assert.Less(t, len(packed), len(plain)/4, c.String())
		assert.Equal(t, byte(c), packed[5])
	}
}

func TestDecode_ChecksumMismatch(t *testing.T) {
	s := buildSketch(t)
	data, err := Marshal(s, Options{})
	require.NoError(t, err)

	data[HeaderSize+topkapi.HeaderSize+3] ^= 0xff

	_, err = Unmarshal(data, Options{})
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestDecode_CorruptEnvelope(t *testing.T) {
	s := buildSketch(t)
	good, err := Marshal(s, Options{Compression: CompressionZstd})
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func([]byte) []byte
		want   error
	}{
		{"BadMagic", func(b []byte) []byte { b[0] = 'X'; return b }, ErrCorrupt},
		{"BadVersion", func(b []byte) []byte { b[4] = 9; return b }, ErrCorrupt},
		{"UnknownCodec", func(b []byte) []byte { b[5] = 7; return b }, ErrUnsupportedCompression},
		{"RawTooSmall", func(b []byte) []byte { binary.LittleEndian.PutUint64(b[8:], 4); return b }, ErrCorrupt},
		{"RawSizeWrong", func(b []byte) []byte {
			binary.LittleEndian.PutUint64(b[8:], binary.LittleEndian.Uint64(b[8:])+1)
			return b
		}, ErrCorrupt},
		{"TruncatedHeader", func(b []byte) []byte { return b[:10] }, ErrCorrupt},
		{"TruncatedPayload", func(b []byte) []byte { return b[:len(b)-5] }, ErrCorrupt},
		{"GarbledPayload", func(b []byte) []byte {
			for i := HeaderSize; i < len(b); i++ {
				b[i] = 0xaa
			}
			return b
		}, ErrCorrupt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.mutate(bytes.Clone(good))
			_, err := Unmarshal(data, Options{})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecode_LZ4ImpossibleRatio(t *testing.T) {
	_, err := decompress([]byte{1, 2, 3}, CompressionLZ4, 1<<20)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestEncode_ClosedSketch(t *testing.T) {
	s, err := topkapi.New(8, 2, 8)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Marshal(s, Options{})
	assert.ErrorIs(t, err, topkapi.ErrClosed)
}

func TestParseCompression(t *testing.T) {
	for in, want := range map[string]Compression{
		"": CompressionNone, "none": CompressionNone, "LZ4": CompressionLZ4, " zstd ": CompressionZstd,
	} {
		got, err := ParseCompression(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseCompression("gzip")
	assert.ErrorIs(t, err, ErrUnsupportedCompression)

	var c Compression
	require.NoError(t, c.UnmarshalText([]byte("zstd")))
	assert.Equal(t, CompressionZstd, c)
	text, err := c.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "zstd", string(text))
	assert.Equal(t, "compression(9)", Compression(9).String())
}

func TestPublishFetch(t *testing.T) {
	ctx := context.Background()
	s := buildSketch(t)
	store := blobstore.NewMemoryStore()

	rc := resource.NewController(resource.Config{IOLimitBytesPerSec: 64 << 20})
	opts := Options{Compression: CompressionLZ4, Resources: rc}

	n, err := Publish(ctx, store, "daily/2024-05-01.tks", s, opts)
	require.NoError(t, err)
	assert.Positive(t, n)

	_, err = Publish(ctx, store, "daily/2024-05-02.tks", s, opts)
	require.NoError(t, err)

	latest, err := Latest(ctx, store, "daily/")
	require.NoError(t, err)
	assert.Equal(t, "daily/2024-05-02.tks", latest)

	got, err := Fetch(ctx, store, latest, opts)
	require.NoError(t, err)
	defer got.Close()
	assert.Equal(t, raw(t, s), raw(t, got))

	_, err = Fetch(ctx, store, "missing.tks", opts)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	_, err = Latest(ctx, store, "hourly/")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestPublishFetch_LocalStore(t *testing.T) {
	ctx := context.Background()
	s := buildSketch(t)

	store := blobstore.NewLocalStore(t.TempDir())

	_, err := Publish(ctx, store, "snap.tks", s, Options{Compression: CompressionZstd})
	require.NoError(t, err)

	got, err := Fetch(ctx, store, "snap.tks", Options{})
	require.NoError(t, err)
	defer got.Close()
	assert.Equal(t, raw(t, s), raw(t, got))
}

func TestPublish_CancelledContextWithLimit(t *testing.T) {
	s := buildSketch(t)
	rc := resource.NewController(resource.Config{IOLimitBytesPerSec: 1024})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := blobstore.NewMemoryStore()
	_, err := Publish(ctx, store, "x.tks", s, Options{Resources: rc})
	assert.ErrorIs(t, err, context.Canceled)

	names, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, names)
}
