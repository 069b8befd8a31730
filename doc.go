// Package topkapi provides a fixed-memory heavy-hitters sketch in the style
// of Topkapi: approximate per-key counts and top-k queries over a stream of
// byte keys.
//
// # Quick Start
//
//	s, _ := topkapi.New(1024, 4, 32, topkapi.WithPhi(0.01))
//	for _, word := range words {
//	    s.AddString(word, 1)
//	}
//	for _, c := range s.Query(10, nil) {
//	    fmt.Printf("%s %d\n", c.Key, c.Count)
//	}
//
// # Grid
//
// A sketch is a depth x width grid of buckets. Each bucket stores one key of
// up to MaxKeyLen bytes and a saturating u32 count. Every row places a key
// in one column chosen by a seeded hash. Adding a key to a bucket holding a
// different key discounts the incumbent; the challenger takes the slot only
// if its weight exceeds the incumbent's count. Keys with a true frequency
// above NAdded/width survive in at least one row with high probability.
//
// # Sharding
//
// A Sketch is not safe for concurrent use. Build one sketch per worker and
// fold them with Merge or MergeAll; the ingest package does exactly that.
//
//	for _, shard := range shards {
//	    if err := acc.Merge(shard); err != nil { ... }
//	}
//
// # Persistence
//
// Save and Load use a fixed little-endian layout:
//
//	header:    width u64, depth u64, max_key_len u64, phi f64
//	keys:      depth*width*max_key_len bytes
//	key_lens:  depth*width bytes
//	counts:    depth*width u32
//	counters:  n_added u64, n_records u64
//
// The in-memory grid uses the same body layout, so a save is a header plus
// one contiguous write. The snapshot package wraps this form with
// compression and a checksum for publication to blob stores.
//
// # Shared Memory
//
// AllocateShared places the grid in a named segment that other processes map
// with AttachShared. The allocating handle owns the segment and unlinks it
// on Close; attached handles only unmap. Writers on one segment are not
// synchronized.
package topkapi
