package grid

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayout_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		layout Layout
		want   error
	}{
		{"ok", Layout{Width: 8, Depth: 3, MaxKeyLen: 8}, nil},
		{"max_key_len_255", Layout{Width: 1, Depth: 1, MaxKeyLen: 255}, nil},
		{"zero_width", Layout{Width: 0, Depth: 3, MaxKeyLen: 8}, ErrZeroWidth},
		{"zero_depth", Layout{Width: 8, Depth: 0, MaxKeyLen: 8}, ErrZeroDepth},
		{"zero_key_len", Layout{Width: 8, Depth: 3, MaxKeyLen: 0}, ErrKeyLen},
		{"key_len_256", Layout{Width: 8, Depth: 3, MaxKeyLen: 256}, ErrKeyLen},
		{"overflow", Layout{Width: math.MaxUint64 / 2, Depth: 4, MaxKeyLen: 8}, ErrTooLarge},
		{"large", Layout{Width: 1 << 30, Depth: 1, MaxKeyLen: 255}, nil},
		{"above_max_body", Layout{Width: 1 << 40, Depth: 1 << 10, MaxKeyLen: 1}, ErrTooLarge},
		{"body_overflow", Layout{Width: math.MaxInt / 4, Depth: 2, MaxKeyLen: 255}, ErrTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.layout.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLayout_BodySize(t *testing.T) {
	t.Parallel()

	l := Layout{Width: 8, Depth: 3, MaxKeyLen: 8}
	// 24 buckets * (8 key + 1 len + 4 count) + 16 counters
	assert.Equal(t, 24*13+16, l.BodySize())
}

func TestGrid_StoreAndMatch(t *testing.T) {
	t.Parallel()

	g, err := New(Layout{Width: 4, Depth: 2, MaxKeyLen: 6})
	require.NoError(t, err)

	i := g.Index(1, 2)
	assert.Equal(t, uint64(6), i)
	assert.Equal(t, uint8(0), g.KeyLen(i))
	assert.True(t, g.Matches(i, nil), "an empty bucket matches the empty key")

	g.Store(i, []byte("abcdef"), 7)
	assert.Equal(t, []byte("abcdef"), g.Key(i))
	assert.Equal(t, uint32(7), g.Count(i))
	assert.True(t, g.Matches(i, []byte("abcdef")))
	assert.False(t, g.Matches(i, []byte("abcde")))

	// A shorter key must clear the old tail.
	g.Store(i, []byte("xy"), 1)
	assert.Equal(t, []byte("xy"), g.Key(i))
	off := i * 6
	assert.Equal(t, []byte{'x', 'y', 0, 0, 0, 0}, g.keys[off:off+6])

	// Neighbours untouched.
	assert.Equal(t, uint32(0), g.Count(i-1))
	assert.Equal(t, uint32(0), g.Count(i+1))
}

func TestGrid_Counters(t *testing.T) {
	t.Parallel()

	g, err := New(Layout{Width: 2, Depth: 2, MaxKeyLen: 1})
	require.NoError(t, err)

	g.SetNAdded(math.MaxUint64 - 1)
	g.SetNRecords(42)
	assert.Equal(t, uint64(math.MaxUint64-1), g.NAdded())
	assert.Equal(t, uint64(42), g.NRecords())

	body := g.Bytes()
	assert.Equal(t, byte(42), body[len(body)-8])
}

func TestWrap_AliasesRegion(t *testing.T) {
	t.Parallel()

	l := Layout{Width: 3, Depth: 2, MaxKeyLen: 4}
	region := make([]byte, l.BodySize())

	a, err := Wrap(l, region)
	require.NoError(t, err)
	b, err := Wrap(l, region)
	require.NoError(t, err)

	a.Store(a.Index(1, 1), []byte("key"), 99)
	assert.Equal(t, []byte("key"), b.Key(b.Index(1, 1)))
	assert.Equal(t, uint32(99), b.Count(b.Index(1, 1)))

	_, err = Wrap(l, region[:len(region)-1])
	assert.ErrorIs(t, err, ErrRegionSize)
}

func TestGrid_CopyBucket(t *testing.T) {
	t.Parallel()

	l := Layout{Width: 2, Depth: 1, MaxKeyLen: 4}
	src, _ := New(l)
	dst, _ := New(l)

	src.Store(1, []byte("ab"), 5)
	dst.Store(1, []byte("wxyz"), 9)
	dst.CopyBucket(1, src)

	assert.Equal(t, []byte("ab"), dst.Key(1))
	assert.Equal(t, uint32(5), dst.Count(1))
	assert.Equal(t, src.Bytes(), dst.Bytes())
}

func TestGrid_Row(t *testing.T) {
	t.Parallel()

	g, _ := New(Layout{Width: 5, Depth: 3, MaxKeyLen: 1})
	lo, hi := g.Row(2)
	assert.Equal(t, uint64(10), lo)
	assert.Equal(t, uint64(15), hi)
}

func TestSaturatingAdd(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uint32(5), SaturatingAdd(2, 3))
	assert.Equal(t, uint32(MaxCount), SaturatingAdd(MaxCount, 1))
	assert.Equal(t, uint32(MaxCount), SaturatingAdd(MaxCount-1, 1))
	assert.Equal(t, uint32(MaxCount), SaturatingAdd(math.MaxUint32/2+1, math.MaxUint32/2+1))
}
