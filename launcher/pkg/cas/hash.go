// Package cas implements the content-addressable storage layer: a streaming
// content hasher and object stores that persist blobs keyed solely by their
// hash. Object identity never includes a filename or path, which is what makes
// cross-manifest deduplication safe.
package cas

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"regexp"

	"github.com/spf13/afero"
)

// defaultChunkSize bounds memory while hashing large game archives.
const defaultChunkSize = 1 << 20

var hashRe = regexp.MustCompile(`^[0-9a-f]{64}$`)

// IsValidHash reports whether s is a well-formed lowercase hex SHA-256 digest.
func IsValidHash(s string) bool {
	return hashRe.MatchString(s)
}

// Hasher computes content hashes by streaming input in fixed-size chunks.
// Identical bytes always produce identical digests regardless of where the
// bytes came from.
type Hasher struct {
	chunkSize int
}

func NewHasher() *Hasher {
	return &Hasher{chunkSize: defaultChunkSize}
}

// Hash consumes the reader and returns the lowercase hex SHA-256 digest. The
// context is checked between chunks so hashing very large files can be
// cancelled without waiting for completion.
func (h *Hasher) Hash(ctx context.Context, r io.Reader) (string, error) {
	digest := sha256.New()
	buf := make([]byte, h.chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, err := r.Read(buf)
		if n > 0 {
			// Hash.Write never returns an error.
			digest.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("unable to hash content: %w", err)
		}
	}
	return hex.EncodeToString(digest.Sum(nil)), nil
}

// HashFile opens path on fsys and hashes its contents.
func (h *Hasher) HashFile(ctx context.Context, fsys afero.Fs, path string) (string, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return "", fmt.Errorf("unable to open %s for hashing: %w", path, err)
	}
	defer f.Close()
	return h.Hash(ctx, f)
}
