package sqlite

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/topkapi/blobstore"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "snapshots.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_PutOpenRead(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	require.NoError(t, s.Put(ctx, "a.tks", []byte("hello sqlite")))

	b, err := s.Open(ctx, "a.tks")
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, int64(12), b.Size())

	buf := make([]byte, 6)
	n, err := b.ReadAt(ctx, buf, 6)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, "sqlite", string(buf))

	n, err = b.ReadAt(ctx, buf, 9)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "ite", string(buf[:n]))

	_, err = b.ReadAt(ctx, buf, 12)
	assert.ErrorIs(t, err, io.EOF)

	data, err := blobstore.Get(ctx, s, "a.tks")
	require.NoError(t, err)
	assert.Equal(t, "hello sqlite", string(data))
}

func TestStore_Overwrite(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	require.NoError(t, s.Put(ctx, "a.tks", []byte("first version")))
	require.NoError(t, s.Put(ctx, "a.tks", []byte("v2")))

	data, err := blobstore.Get(ctx, s, "a.tks")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}

func TestStore_BinaryAndEmpty(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	raw := []byte{0, 1, 2, 0xff, 0, 0xfe}
	require.NoError(t, s.Put(ctx, "bin", raw))
	require.NoError(t, s.Put(ctx, "empty", nil))

	data, err := blobstore.Get(ctx, s, "bin")
	require.NoError(t, err)
	assert.Equal(t, raw, data)

	data, err = blobstore.Get(ctx, s, "empty")
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestStore_ListDelete(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	for _, name := range []string{"daily/b.tks", "daily/a.tks", "hourly/x.tks"} {
		require.NoError(t, s.Put(ctx, name, []byte(name)))
	}

	names, err := s.List(ctx, "daily/")
	require.NoError(t, err)
	assert.Equal(t, []string{"daily/a.tks", "daily/b.tks"}, names)

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, s.Delete(ctx, "daily/a.tks"))
	require.NoError(t, s.Delete(ctx, "daily/a.tks"))

	_, err = s.Open(ctx, "daily/a.tks")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "snapshots.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "keep", []byte("persisted")))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	data, err := blobstore.Get(ctx, s, "keep")
	require.NoError(t, err)
	assert.Equal(t, "persisted", string(data))
}
