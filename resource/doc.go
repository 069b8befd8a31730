// Package resource bounds the background work around sketches: merge row
// workers, ingest shard workers, shard grid memory and snapshot IO
// throughput.
package resource
