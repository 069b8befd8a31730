// Package ingest builds a sketch from a record stream using parallel
// private shards that are merged at the end.
//
// A job is described by a Config, usually loaded from YAML:
//
//	workers: 8
//	width: 4096
//	depth: 4
//	max_key_len: 64
//	ngram: 0
//	output: /var/lib/topkapi/today.tks
//	publish:
//	  name: daily/2024-05-01.tks
//	  compression: zstd
//	  store:
//	    kind: s3
//	    bucket: sketches
//	resources:
//	  max_background_workers: 8
//	  memory_limit_bytes: 1073741824
//
// Each worker owns one private sketch, so the hot path takes no locks.
// Shards are folded into the result with topkapi.MergeAll.
package ingest
