// Package sqlite implements blobstore.BlobStore on a single SQLite file.
//
// Snapshots are stored as BLOB rows in a topkapi_snapshots table, which
// suits single-node deployments that already keep state in SQLite. The
// driver is the pure-Go modernc.org/sqlite, so no cgo is required.
package sqlite
