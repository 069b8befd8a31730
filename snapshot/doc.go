// Package snapshot wraps the sketch file format in a compressed,
// checksummed envelope and moves it through a blobstore.BlobStore.
//
// # Envelope
//
//	offset size field
//	0      4    magic "TKSN"
//	4      1    version (1)
//	5      1    compression (0 none, 1 lz4, 2 zstd)
//	6      2    reserved
//	8      8    raw size (bytes of the sketch file)
//	16     8    payload size (bytes following the header)
//	24     4    CRC32C of the raw sketch file
//	28     4    reserved
//	32     ...  payload
//
// All integers are little-endian. The checksum covers the uncompressed
// bytes, so it also catches a decompressor that silently misbehaves.
//
// # Usage
//
//	n, err := snapshot.Publish(ctx, store, "daily/2024-05-01.tks", sk, snapshot.Options{
//	    Compression: snapshot.CompressionZstd,
//	})
//	sk, err := snapshot.Fetch(ctx, store, "daily/2024-05-01.tks", snapshot.Options{})
package snapshot
