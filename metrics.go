package topkapi

import (
	"sync/atomic"
	"time"
)

// MetricsCollector receives operational metrics from a sketch.
// Implement it to feed a monitoring system; metrics/prometheus provides a
// Prometheus implementation.
type MetricsCollector interface {
	// RecordAdd is called after Add and after each batch update.
	// keys is the number of keys inserted, weight their summed value.
	RecordAdd(keys int, weight uint64)

	// RecordMerge is called after each merge; err is nil on success.
	RecordMerge(duration time.Duration, err error)

	// RecordQuery is called after each top-k query.
	RecordQuery(k, results int, duration time.Duration)

	// RecordSave is called after Save or WriteTo with the bytes written.
	RecordSave(bytes int64, duration time.Duration, err error)

	// RecordLoad is called after Load or Decode with the bytes read.
	RecordLoad(bytes int64, duration time.Duration, err error)
}

// NoopMetricsCollector discards all metrics.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordAdd(int, uint64)                  {}
func (NoopMetricsCollector) RecordMerge(time.Duration, error)       {}
func (NoopMetricsCollector) RecordQuery(int, int, time.Duration)    {}
func (NoopMetricsCollector) RecordSave(int64, time.Duration, error) {}
func (NoopMetricsCollector) RecordLoad(int64, time.Duration, error) {}

// BasicMetricsCollector keeps in-memory counters.
// Useful for debugging and tests without external dependencies.
type BasicMetricsCollector struct {
	AddCount        atomic.Int64
	AddedWeight     atomic.Uint64
	MergeCount      atomic.Int64
	MergeErrors     atomic.Int64
	MergeTotalNanos atomic.Int64
	QueryCount      atomic.Int64
	QueryTotalNanos atomic.Int64
	SaveCount       atomic.Int64
	SaveErrors      atomic.Int64
	SavedBytes      atomic.Int64
	LoadCount       atomic.Int64
	LoadErrors      atomic.Int64
	LoadedBytes     atomic.Int64
}

// RecordAdd implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAdd(keys int, weight uint64) {
	b.AddCount.Add(int64(keys))
	b.AddedWeight.Add(weight)
}

// RecordMerge implements MetricsCollector.
func (b *BasicMetricsCollector) RecordMerge(duration time.Duration, err error) {
	b.MergeCount.Add(1)
	b.MergeTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.MergeErrors.Add(1)
	}
}

// RecordQuery implements MetricsCollector.
func (b *BasicMetricsCollector) RecordQuery(_, _ int, duration time.Duration) {
	b.QueryCount.Add(1)
	b.QueryTotalNanos.Add(duration.Nanoseconds())
}

// RecordSave implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSave(bytes int64, _ time.Duration, err error) {
	b.SaveCount.Add(1)
	b.SavedBytes.Add(bytes)
	if err != nil {
		b.SaveErrors.Add(1)
	}
}

// RecordLoad implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLoad(bytes int64, _ time.Duration, err error) {
	b.LoadCount.Add(1)
	b.LoadedBytes.Add(bytes)
	if err != nil {
		b.LoadErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		AddCount:      b.AddCount.Load(),
		AddedWeight:   b.AddedWeight.Load(),
		MergeCount:    b.MergeCount.Load(),
		MergeErrors:   b.MergeErrors.Load(),
		MergeAvgNanos: avg(b.MergeTotalNanos.Load(), b.MergeCount.Load()),
		QueryCount:    b.QueryCount.Load(),
		QueryAvgNanos: avg(b.QueryTotalNanos.Load(), b.QueryCount.Load()),
		SaveCount:     b.SaveCount.Load(),
		SaveErrors:    b.SaveErrors.Load(),
		SavedBytes:    b.SavedBytes.Load(),
		LoadCount:     b.LoadCount.Load(),
		LoadErrors:    b.LoadErrors.Load(),
		LoadedBytes:   b.LoadedBytes.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	AddCount      int64
	AddedWeight   uint64
	MergeCount    int64
	MergeErrors   int64
	MergeAvgNanos int64
	QueryCount    int64
	QueryAvgNanos int64
	SaveCount     int64
	SaveErrors    int64
	SavedBytes    int64
	LoadCount     int64
	LoadErrors    int64
	LoadedBytes   int64
}
