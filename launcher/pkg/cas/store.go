package cas

import (
	"context"
	"errors"
	"io"
	"path"
)

var (
	ErrInvalidHash = errors.New("invalid content hash")
	// ErrObjectNotFound is returned by Open when no object with the given
	// hash is stored.
	ErrObjectNotFound = errors.New("content object not found")
)

// ObjectInfo describes one stored content object.
type ObjectInfo struct {
	Hash string
	Size int64
}

// ObjectStore persists content-addressed blobs keyed by their lowercase hex
// digest. Objects are immutable once written: implementations may treat a Put
// of an already-stored hash as a no-op, and concurrent writers of the same
// hash may race harmlessly because identical content is indistinguishable.
type ObjectStore interface {
	// Put stores the content under hash. Storing an existing hash is a no-op.
	Put(ctx context.Context, hash string, src io.Reader) error
	// Open returns a reader over the stored object, or ErrObjectNotFound.
	Open(ctx context.Context, hash string) (io.ReadCloser, error)
	// Exists reports whether an object with the hash is stored.
	Exists(ctx context.Context, hash string) (bool, error)
	// Remove deletes the object. Removing an absent hash is a no-op.
	Remove(ctx context.Context, hash string) error
	// List enumerates every stored object. Used by reference-scan garbage
	// collection and storage statistics.
	List(ctx context.Context) ([]ObjectInfo, error)
}

// objectsDir is the subtree holding content-addressed blobs. The layout is
// stable and documented because external tooling (garbage collection and
// integrity scans) depends on it.
const objectsDir = "cas-objects"

// ObjectKey maps a content hash to its storage-relative key:
// cas-objects/<first two hex chars>/<hash>. Sharding by prefix keeps
// directory listings manageable with tens of thousands of objects.
func ObjectKey(hash string) string {
	return path.Join(objectsDir, hash[:2], hash)
}
