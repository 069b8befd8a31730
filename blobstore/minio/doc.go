// Package minio implements blobstore.BlobStore for MinIO and other
// S3-compatible object stores.
//
//	client, _ := minio.New("localhost:9000", &minio.Options{...})
//	store := NewStore(client, "sketches", "prod/")
package minio
