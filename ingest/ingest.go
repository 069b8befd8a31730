package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/topkapi"
	"github.com/hupe1980/topkapi/resource"
	"github.com/hupe1980/topkapi/snapshot"
)

// Stats summarizes a finished job.
type Stats struct {
	// Records is the number of records read from the source.
	Records uint64
	// Weight is the total weight added to the result sketch.
	Weight uint64
	// Shards is the number of private shards actually used. It can be
	// lower than Config.Workers under a memory limit.
	Shards int
	// PublishedBytes is the snapshot envelope size, or 0 when not published.
	PublishedBytes int64
	Duration       time.Duration
}

// Run drains src into cfg.Workers private shards, merges them and returns
// the result. opts apply to the result sketch only (logger, metrics,
// WithShared); shards are always private.
//
// On error every sketch Run allocated is closed.
func Run(ctx context.Context, cfg Config, src Source, opts ...topkapi.Option) (*topkapi.Sketch, Stats, error) {
	start := time.Now()

	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, Stats{}, err
	}

	rc := cfg.Resources.controller()
	size := topkapi.EncodedSize(topkapi.Shape{Width: cfg.Width, Depth: cfg.Depth, MaxKeyLen: cfg.MaxKeyLen})

	if !rc.TryAcquireMemory(size) {
		return nil, Stats{}, fmt.Errorf("%w: need %d bytes", ErrMemoryLimit, size)
	}
	defer rc.ReleaseMemory(size)

	dstOpts := append(cfg.sketchOptions(), opts...)
	if rc != nil {
		dstOpts = append(dstOpts, topkapi.WithResourceController(rc))
	}
	dst, err := topkapi.New(cfg.Width, cfg.Depth, cfg.MaxKeyLen, dstOpts...)
	if err != nil {
		return nil, Stats{}, err
	}

	stats, err := run(ctx, cfg, rc, size, src, dst)
	if err != nil {
		_ = dst.Close()
		return nil, Stats{}, err
	}

	if cfg.Output != "" {
		if err := dst.Save(cfg.Output); err != nil {
			_ = dst.Close()
			return nil, Stats{}, err
		}
	}

	if cfg.Publish.Name != "" {
		n, err := publish(ctx, cfg.Publish, rc, dst)
		if err != nil {
			_ = dst.Close()
			return nil, Stats{}, err
		}
		stats.PublishedBytes = n
	}

	stats.Weight = dst.NAdded()
	stats.Duration = time.Since(start)
	return dst, stats, nil
}

func run(ctx context.Context, cfg Config, rc *resource.Controller, size int64, src Source, dst *topkapi.Sketch) (Stats, error) {
	shards, err := newShards(cfg, rc, size)
	defer func() {
		for _, s := range shards {
			_ = s.Close()
			rc.ReleaseMemory(size)
		}
	}()
	if err != nil {
		return Stats{}, err
	}

	var records atomic.Uint64
	batches := make(chan [][]byte, len(shards))
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(batches)
		return produce(gctx, src, cfg.BatchSize, batches)
	})

	for _, shard := range shards {
		g.Go(func() error {
			if err := rc.AcquireBackground(gctx); err != nil {
				return err
			}
			defer rc.ReleaseBackground()

			for batch := range batches {
				if err := gctx.Err(); err != nil {
					return err
				}
				for _, rec := range batch {
					if cfg.Ngram > 0 {
						shard.AddNgram(rec, cfg.Ngram)
					} else {
						shard.Add(rec, 1)
					}
				}
				shard.AddRecords(uint64(len(batch)))
				records.Add(uint64(len(batch)))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Stats{}, err
	}

	if err := topkapi.MergeAll(ctx, dst, shards...); err != nil {
		return Stats{}, err
	}

	return Stats{Records: records.Load(), Shards: len(shards)}, nil
}

// newShards allocates up to cfg.Workers shards, stopping early when the
// memory limit is reached.
func newShards(cfg Config, rc *resource.Controller, size int64) ([]*topkapi.Sketch, error) {
	shards := make([]*topkapi.Sketch, 0, cfg.Workers)
	for range cfg.Workers {
		if !rc.TryAcquireMemory(size) {
			if len(shards) == 0 {
				return nil, fmt.Errorf("%w: need %d bytes per shard", ErrMemoryLimit, size)
			}
			break
		}
		s, err := topkapi.New(cfg.Width, cfg.Depth, cfg.MaxKeyLen, cfg.sketchOptions()...)
		if err != nil {
			rc.ReleaseMemory(size)
			return shards, err
		}
		shards = append(shards, s)
	}
	return shards, nil
}

// produce copies records into batches. Each batch shares one backing
// buffer so a batch costs two allocations.
func produce(ctx context.Context, src Source, batchSize int, out chan<- [][]byte) error {
	var (
		buf   []byte
		batch [][]byte
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		select {
		case out <- batch:
		case <-ctx.Done():
			return ctx.Err()
		}
		buf, batch = nil, nil
		return nil
	}

	for {
		rec, err := src.Next()
		if errors.Is(err, io.EOF) {
			return flush()
		}
		if err != nil {
			return fmt.Errorf("ingest: read record: %w", err)
		}

		if batch == nil {
			batch = make([][]byte, 0, batchSize)
			buf = make([]byte, 0, batchSize*len(rec))
		}
		off := len(buf)
		buf = append(buf, rec...)
		batch = append(batch, buf[off:len(buf):len(buf)])

		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
}

func publish(ctx context.Context, cfg PublishConfig, rc *resource.Controller, s *topkapi.Sketch) (int64, error) {
	store, closeStore, err := OpenStore(ctx, cfg.Store, rc)
	if err != nil {
		return 0, err
	}
	defer func() { _ = closeStore() }()

	return snapshot.Publish(ctx, store, cfg.Name, s, snapshot.Options{
		Compression: cfg.Compression,
		Resources:   rc,
	})
}
