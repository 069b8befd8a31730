package snapshot

import (
	"bytes"
	"context"
	"fmt"

	"github.com/hupe1980/topkapi"
	"github.com/hupe1980/topkapi/blobstore"
	"github.com/hupe1980/topkapi/resource"
)

// Publish encodes s and stores it under name. It returns the envelope size.
// Encoding is charged against opts.Resources' IO budget before the upload.
func Publish(ctx context.Context, store blobstore.BlobStore, name string, s *topkapi.Sketch, opts Options) (int64, error) {
	var buf bytes.Buffer
	buf.Grow(HeaderSize + int(s.EncodedSize()))

	n, err := Encode(resource.NewRateLimitedWriter(ctx, &buf, opts.Resources), s, opts)
	if err != nil {
		return 0, fmt.Errorf("snapshot: encode %s: %w", name, err)
	}
	if err := store.Put(ctx, name, buf.Bytes()); err != nil {
		return 0, fmt.Errorf("snapshot: put %s: %w", name, err)
	}
	return n, nil
}

// Fetch reads the envelope stored under name and reconstructs the sketch.
func Fetch(ctx context.Context, store blobstore.BlobStore, name string, opts Options) (*topkapi.Sketch, error) {
	b, err := store.Open(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("snapshot: open %s: %w", name, err)
	}
	defer b.Close()

	r := resource.NewRateLimitedReader(ctx, blobstore.NewReader(ctx, b), opts.Resources)
	s, err := Decode(r, opts)
	if err != nil {
		return nil, fmt.Errorf("snapshot: fetch %s: %w", name, err)
	}
	return s, nil
}

// Latest returns the lexically greatest name under prefix, which is the
// newest one when names embed a sortable timestamp.
func Latest(ctx context.Context, store blobstore.BlobStore, prefix string) (string, error) {
	names, err := store.List(ctx, prefix)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", fmt.Errorf("%w: no snapshots under %q", blobstore.ErrNotFound, prefix)
	}
	return names[len(names)-1], nil
}
