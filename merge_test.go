package topkapi

import (
	"context"
	"fmt"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/topkapi/resource"
)

func TestMerge_SingleShardEqualsDirect(t *testing.T) {
	keys := [][]byte{[]byte("a"), []byte("b"), []byte("a"), []byte("c"), []byte("a")}

	direct := mustNew(t, 16, 3, 8)
	direct.Update(keys)

	empty := mustNew(t, 16, 3, 8)
	shard := mustNew(t, 16, 3, 8)
	shard.Update(keys)
	shard.AddRecords(5)

	require.NoError(t, empty.Merge(shard))
	for _, k := range []string{"a", "b", "c"} {
		assert.Equal(t, direct.GetString(k), empty.GetString(k), k)
	}
	for i := range direct.shape.layout().Buckets() {
		assert.Equal(t, direct.g.Count(i), empty.g.Count(i))
	}
	assert.Equal(t, uint64(5), empty.NAdded())
	assert.Equal(t, uint64(5), empty.NRecords())
}

func TestMerge_BucketRule(t *testing.T) {
	// Width 1 puts every key in the single bucket of each row.
	a := mustNew(t, 1, 2, 8)
	b := mustNew(t, 1, 2, 8)

	a.AddString("x", 10)
	b.AddString("x", 5)
	require.NoError(t, a.Merge(b))
	assert.Equal(t, uint32(15), a.GetString("x"), "same key adds")

	c := mustNew(t, 1, 2, 8)
	c.AddString("y", 4)
	require.NoError(t, a.Merge(c))
	assert.Equal(t, uint32(11), a.GetString("x"), "receiver survives, discounted")

	d := mustNew(t, 1, 2, 8)
	d.AddString("z", 20)
	require.NoError(t, a.Merge(d))
	assert.Zero(t, a.GetString("x"))
	assert.Equal(t, uint32(9), a.GetString("z"), "challenger adopted with residual")

	assert.Equal(t, uint64(39), a.NAdded())
	assert.Equal(t, uint32(20), d.GetString("z"), "other is not modified")
}

func TestMerge_Saturates(t *testing.T) {
	a := mustNew(t, 4, 2, 8)
	b := mustNew(t, 4, 2, 8)
	a.AddString("k", UintMaxVal-1)
	b.AddString("k", UintMaxVal-1)

	require.NoError(t, a.Merge(b))
	assert.Equal(t, UintMaxVal, a.GetString("k"))
}

func TestMerge_ShapeMismatch(t *testing.T) {
	tests := []struct {
		name  string
		other Shape
	}{
		{"width", Shape{Width: 16, Depth: 3, MaxKeyLen: 8}},
		{"depth", Shape{Width: 8, Depth: 4, MaxKeyLen: 8}},
		{"max key len", Shape{Width: 8, Depth: 3, MaxKeyLen: 9}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := mustNew(t, 8, 3, 8)
			a.AddString("apple", 3)
			b := mustNew(t, tt.other.Width, tt.other.Depth, tt.other.MaxKeyLen)
			b.AddString("pear", 2)

			beforeA := slices.Clone(a.g.Bytes())
			beforeB := slices.Clone(b.g.Bytes())

			err := a.Merge(b)
			require.ErrorIs(t, err, ErrShapeMismatch)

			var sme *ShapeMismatchError
			require.ErrorAs(t, err, &sme)
			assert.Equal(t, a.Shape(), sme.Want)
			assert.Equal(t, tt.other, sme.Got)

			assert.Equal(t, beforeA, a.g.Bytes())
			assert.Equal(t, beforeB, b.g.Bytes())
		})
	}
}

func TestMerge_Rejections(t *testing.T) {
	a := mustNew(t, 8, 3, 8)
	assert.ErrorIs(t, a.Merge(a), ErrSelfMerge)
	assert.ErrorIs(t, a.Merge(nil), ErrClosed)

	closed, err := New(8, 3, 8)
	require.NoError(t, err)
	require.NoError(t, closed.Close())
	assert.ErrorIs(t, a.Merge(closed), ErrClosed)
	assert.ErrorIs(t, closed.Merge(a), ErrClosed)
}

func TestMerge_CancelledContext(t *testing.T) {
	a := mustNew(t, 8, 3, 8)
	b := mustNew(t, 8, 3, 8)
	b.AddString("k", 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, a.MergeContext(ctx, b), context.Canceled)
	assert.Zero(t, a.NAdded())
}

func TestMerge_WithResourceController(t *testing.T) {
	rc := resource.NewController(resource.Config{MaxBackgroundWorkers: 2})
	a := mustNew(t, 32, 8, 8, WithResourceController(rc))
	b := mustNew(t, 32, 8, 8)

	for i := range 100 {
		a.AddString(fmt.Sprintf("a%d", i%7), 1)
		b.AddString(fmt.Sprintf("a%d", i%7), 1)
	}

	require.NoError(t, a.Merge(b))
	assert.Equal(t, uint64(200), a.NAdded())
	assert.True(t, rc.TryAcquireBackground(), "all worker slots are released")
}

// heavyShard builds one shard of a stream whose heavy keys h0..h4 have true
// frequencies 3*(5-i)*scale across all three shards.
func heavyShard(t *testing.T, idx, scale int) *Sketch {
	t.Helper()
	s := mustNew(t, 256, 4, 8)
	for round := range scale {
		for h := range 5 {
			for range 5 - h {
				s.AddString(fmt.Sprintf("h%d", h), 1)
			}
		}
		s.AddString(fmt.Sprintf("n%d-%d", idx, round), 1)
	}
	return s
}

func TestMerge_ApproximatelyAssociative(t *testing.T) {
	const scale = 40

	left := heavyShard(t, 0, scale)
	b1 := heavyShard(t, 1, scale)
	c1 := heavyShard(t, 2, scale)
	require.NoError(t, b1.Merge(c1))
	require.NoError(t, left.Merge(b1)) // A + (B + C)

	right := heavyShard(t, 0, scale)
	b2 := heavyShard(t, 1, scale)
	c2 := heavyShard(t, 2, scale)
	require.NoError(t, right.Merge(b2))
	require.NoError(t, right.Merge(c2)) // (A + B) + C

	assert.Equal(t, left.NAdded(), right.NAdded())

	total := float64(left.NAdded())
	for h := range 5 {
		key := []byte(fmt.Sprintf("h%d", h))
		truth := uint32(3 * (5 - h) * scale)
		require.GreaterOrEqual(t, float64(truth), 0.05*total, "h%d must be heavy", h)

		l, r := left.Get(key), right.Get(key)
		assert.LessOrEqual(t, l, truth, "estimates never exceed the true count")
		assert.LessOrEqual(t, r, truth)
		assert.GreaterOrEqual(t, float64(l), 0.8*float64(truth))
		assert.GreaterOrEqual(t, float64(r), 0.8*float64(truth))
		assert.InDelta(t, float64(l), float64(r), 0.1*float64(truth))
	}
}

func TestMergeAll(t *testing.T) {
	dst := mustNew(t, 16, 3, 8)
	shards := make([]*Sketch, 4)
	for i := range shards {
		shards[i] = mustNew(t, 16, 3, 8)
		shards[i].AddString("k", 2)
		shards[i].AddRecords(1)
	}

	require.NoError(t, MergeAll(context.Background(), dst, shards...))
	assert.Equal(t, uint32(8), dst.GetString("k"))
	assert.Equal(t, uint64(4), dst.NRecords())

	bad := mustNew(t, 8, 3, 8)
	err := MergeAll(context.Background(), dst, shards[0], bad)
	require.ErrorIs(t, err, ErrShapeMismatch)
	assert.Contains(t, err.Error(), "shard 1")
}
