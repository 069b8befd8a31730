package topkapi

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/topkapi/internal/grid"
)

// Merge folds other into s bucket by bucket; see MergeContext.
func (s *Sketch) Merge(other *Sketch) error {
	return s.MergeContext(context.Background(), other)
}

// MergeContext folds other into s. Both sketches must have the same shape;
// otherwise a *ShapeMismatchError is returned and s is untouched.
//
// Each bucket applies the conservative-update rule with other's bucket as a
// single challenger: equal keys add (saturating), otherwise the larger count
// keeps or takes the slot and is discounted by the smaller. Rows are merged
// concurrently, bounded by the resource controller when one is configured.
//
// If ctx is cancelled mid-merge, ctx.Err() is returned and s may hold a
// partial merge: some rows merged and the counters not yet advanced.
func (s *Sketch) MergeContext(ctx context.Context, other *Sketch) (err error) {
	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		s.metrics.RecordMerge(elapsed, err)
		var nAdded uint64
		if err == nil {
			nAdded = s.NAdded()
		}
		s.logger.LogMerge(ctx, nAdded, elapsed, err)
	}()

	if err := s.checkMergeable(other); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.mergeRows(ctx, other.g); err != nil {
		return err
	}

	s.g.SetNAdded(s.g.NAdded() + other.g.NAdded())
	s.g.SetNRecords(s.g.NRecords() + other.g.NRecords())
	s.cand = candidateCache{}
	return nil
}

func (s *Sketch) checkMergeable(other *Sketch) error {
	if s.closed || other == nil || other.closed {
		return ErrClosed
	}
	if other == s || (s.Shared() && s.Name() == other.Name()) {
		return ErrSelfMerge
	}
	if s.shape != other.shape {
		return &ShapeMismatchError{Want: s.shape, Got: other.shape}
	}
	return nil
}

func (s *Sketch) mergeRows(ctx context.Context, src *grid.Grid) error {
	eg, egCtx := errgroup.WithContext(ctx)
	if s.resources == nil {
		eg.SetLimit(runtime.GOMAXPROCS(0))
	}

	for row := range s.shape.Depth {
		if s.resources != nil {
			if err := s.resources.AcquireBackground(egCtx); err != nil {
				_ = eg.Wait()
				return err
			}
		}
		eg.Go(func() error {
			if s.resources != nil {
				defer s.resources.ReleaseBackground()
			}
			if err := egCtx.Err(); err != nil {
				return err
			}
			mergeRow(s.g, src, row)
			return nil
		})
	}
	return eg.Wait()
}

// mergeRow touches only the buckets of one row, so rows may run in parallel.
func mergeRow(dst, src *grid.Grid, row uint64) {
	lo, hi := dst.Row(row)
	for i := lo; i < hi; i++ {
		dc, oc := dst.Count(i), src.Count(i)

		switch {
		case dst.Matches(i, src.Key(i)):
			dst.SetCount(i, grid.SaturatingAdd(dc, oc))
		case dc >= oc:
			dst.SetCount(i, dc-oc)
		default:
			dst.CopyBucket(i, src)
			dst.SetCount(i, oc-dc)
		}
	}
}

// MergeAll folds shards into dst left to right. It stops at the first
// failing shard and reports its index.
func MergeAll(ctx context.Context, dst *Sketch, shards ...*Sketch) error {
	for i, shard := range shards {
		if err := dst.MergeContext(ctx, shard); err != nil {
			return fmt.Errorf("topkapi: merge shard %d: %w", i, err)
		}
	}
	return nil
}
