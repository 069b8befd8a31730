// Package grid implements the bucket grid of a heavy-hitters sketch.
//
// A grid is depth x width buckets, each holding a key (up to MaxKeyLen
// bytes, zero padded), the key length and a saturating uint32 count, plus
// two uint64 stream counters. Everything lives in one contiguous region laid
// out as four struct-of-arrays sections:
//
//	keys      Buckets() * MaxKeyLen bytes
//	keyLens   Buckets() bytes
//	counts    Buckets() * 4 bytes, little-endian uint32
//	counters  nAdded uint64, nRecords uint64, little-endian
//
// This is also the body of the persisted file format, so saving a grid is a
// single write of Bytes() and loading is a single read into a fresh region.
// Bucket (row, col) has flat index row*Width + col.
//
// A grid does no locking. It may wrap memory it does not own (a shared
// segment), in which case concurrent writers from other processes race with
// it.
package grid
