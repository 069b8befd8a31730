// Package s3 implements blobstore.BlobStore on Amazon S3.
//
//	store, err := s3.New(ctx, "my-bucket", s3.WithPrefix("sketches/"))
//	err = snapshot.Publish(ctx, store, "daily.tks", sketch, snapshot.Options{})
//
// Reads use ranged GetObject requests. Writes go through the S3 transfer
// manager, which switches to multipart uploads for large snapshots, and
// carry a CRC32C checksum by default.
package s3
