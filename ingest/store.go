package ingest

import (
	"context"
	"fmt"

	"github.com/hupe1980/topkapi/blobstore"
	"github.com/hupe1980/topkapi/blobstore/minio"
	"github.com/hupe1980/topkapi/blobstore/s3"
	"github.com/hupe1980/topkapi/blobstore/sqlite"
	"github.com/hupe1980/topkapi/resource"
)

// Store kinds accepted by StoreConfig.Kind.
const (
	StoreMemory = "memory"
	StoreLocal  = "local"
	StoreSQLite = "sqlite"
	StoreS3     = "s3"
	StoreMinIO  = "minio"
)

// StoreConfig selects a blob store backend.
type StoreConfig struct {
	Kind string `yaml:"kind"`

	// Path is the root directory (local) or database file (sqlite).
	Path string `yaml:"path"`

	// Object store settings (s3, minio).
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Secure    bool   `yaml:"secure"`

	// CacheBlocks, when positive, puts an LRU block cache of that many
	// blocks in front of the store.
	CacheBlocks    int   `yaml:"cache_blocks"`
	CacheBlockSize int64 `yaml:"cache_block_size"`
}

// Validate checks that the fields required by Kind are present.
func (c StoreConfig) Validate() error {
	switch c.Kind {
	case StoreMemory:
		return nil
	case StoreLocal, StoreSQLite:
		if c.Path == "" {
			return fmt.Errorf("%w: %s store needs a path", ErrInvalidStore, c.Kind)
		}
	case StoreS3:
		if c.Bucket == "" {
			return fmt.Errorf("%w: s3 store needs a bucket", ErrInvalidStore)
		}
	case StoreMinIO:
		if c.Bucket == "" || c.Endpoint == "" {
			return fmt.Errorf("%w: minio store needs an endpoint and a bucket", ErrInvalidStore)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidStore, c.Kind)
	}
	if c.CacheBlocks < 0 || c.CacheBlockSize < 0 {
		return fmt.Errorf("%w: negative cache size", ErrInvalidStore)
	}
	return nil
}

// OpenStore builds the configured store. The returned close function
// releases backend resources and is never nil. Cached blocks are charged to
// rc, which may be nil.
func OpenStore(ctx context.Context, cfg StoreConfig, rc *resource.Controller) (blobstore.BlobStore, func() error, error) {
	noop := func() error { return nil }

	if err := cfg.Validate(); err != nil {
		return nil, noop, err
	}

	st, closeStore, err := openBackend(ctx, cfg)
	if err != nil || cfg.CacheBlocks == 0 {
		return st, closeStore, err
	}

	cache, err := blobstore.NewLRUBlockCache(cfg.CacheBlocks, rc)
	if err != nil {
		_ = closeStore()
		return nil, noop, err
	}
	return blobstore.NewCachingStore(st, cache, cfg.CacheBlockSize), closeStore, nil
}

func openBackend(ctx context.Context, cfg StoreConfig) (blobstore.BlobStore, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Kind {
	case StoreMemory:
		return blobstore.NewMemoryStore(), noop, nil
	case StoreLocal:
		return blobstore.NewLocalStore(cfg.Path), noop, nil
	case StoreSQLite:
		st, err := sqlite.Open(ctx, cfg.Path)
		if err != nil {
			return nil, noop, err
		}
		return st, st.Close, nil
	case StoreS3:
		st, err := s3.New(ctx, cfg.Bucket, s3.WithPrefix(cfg.Prefix))
		if err != nil {
			return nil, noop, err
		}
		return st, noop, nil
	default: // StoreMinIO
		st, err := minio.Dial(ctx, minio.Config{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Secure:    cfg.Secure,
			Bucket:    cfg.Bucket,
			Prefix:    cfg.Prefix,
		})
		if err != nil {
			return nil, noop, err
		}
		return st, noop, nil
	}
}
