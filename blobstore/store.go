package blobstore

import (
	"context"
	"errors"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist. Implementations
// return errors satisfying errors.Is(err, ErrNotFound).
var ErrNotFound = os.ErrNotExist

// ErrClosed is returned when writing to a closed blob.
var ErrClosed = errors.New("blobstore: blob closed")

// BlobStore stores immutable named blobs.
type BlobStore interface {
	// Open opens a blob for reading.
	Open(ctx context.Context, name string) (Blob, error)
	// Create starts a new blob. It becomes visible when Close returns nil.
	Create(ctx context.Context, name string) (WritableBlob, error)
	// Put writes a whole blob atomically.
	Put(ctx context.Context, name string, data []byte) error
	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
	// List returns the names with the given prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Blob is a read-only handle to a stored blob.
type Blob interface {
	// ReadAt follows io.ReaderAt semantics.
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)
	Size() int64
	io.Closer
}

// WritableBlob is a blob being written.
type WritableBlob interface {
	io.Writer
	io.Closer
	// Sync flushes buffered data to the backend where that is meaningful.
	Sync() error
}

// ReadAll reads the complete contents of a blob.
func ReadAll(ctx context.Context, b Blob) ([]byte, error) {
	buf := make([]byte, b.Size())
	n, err := b.ReadAt(ctx, buf, 0)
	if err != nil && !(errors.Is(err, io.EOF) && n == len(buf)) {
		return nil, err
	}
	return buf[:n], nil
}

// readAtBytes implements ReadAt over an in-memory slice.
func readAtBytes(data, p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, os.ErrInvalid
	}
	if off >= int64(len(data)) {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := copy(p, data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
