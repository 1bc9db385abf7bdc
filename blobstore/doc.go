// Package blobstore abstracts the archival backends that hold migrated tier
// batches.
//
// A BlobStore stores immutable, named blobs. Batches are written once
// through Create or Put and read back with ranged ReadAt calls, so backends
// only need whole-object writes and byte-range reads.
//
// # Implementations
//
//   - MemoryStore: in-process maps, for tests and ephemeral deployments
//   - LocalStore: a directory tree; reads are served from read-only mmaps
//   - s3.Store: Amazon S3 with ranged GETs and multipart uploads
//   - minio.Store: MinIO and other S3-compatible endpoints
//   - CachingStore: wraps any store with an LRU block cache
//
// All implementations are safe for concurrent use.
package blobstore
