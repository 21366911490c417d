package cas

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hashOf(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func TestObjectKeyIsShardedAndStable(t *testing.T) {
	hash := hashOf("anything")
	key := ObjectKey(hash)
	assert.Equal(t, "cas-objects/"+hash[:2]+"/"+hash, key)
	// External tooling depends on this mapping, so it must never change for
	// the same input.
	assert.Equal(t, key, ObjectKey(hash))
}

func TestLocalStorePutOpenRoundTrip(t *testing.T) {
	store := NewLocalStore(afero.NewMemMapFs(), "/pool")
	ctx := context.Background()
	hash := hashOf("content")

	require.NoError(t, store.Put(ctx, hash, strings.NewReader("content")))

	exists, err := store.Exists(ctx, hash)
	require.NoError(t, err)
	assert.True(t, exists)

	r, err := store.Open(ctx, hash)
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))
}

func TestLocalStorePutDeduplicates(t *testing.T) {
	fsys := afero.NewMemMapFs()
	store := NewLocalStore(fsys, "/pool")
	ctx := context.Background()
	hash := hashOf("shared bytes")

	require.NoError(t, store.Put(ctx, hash, strings.NewReader("shared bytes")))
	// Second write of the same hash is a no-op, not an error.
	require.NoError(t, store.Put(ctx, hash, strings.NewReader("shared bytes")))

	objects, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, hash, objects[0].Hash)
	assert.Equal(t, int64(len("shared bytes")), objects[0].Size)
}

// nestedPutReader runs a callback on the first Read, letting a test complete
// a second write of the same hash while the first writer is still streaming.
type nestedPutReader struct {
	inner  io.Reader
	during func() error
	once   sync.Once
	err    error
}

func (r *nestedPutReader) Read(p []byte) (int, error) {
	r.once.Do(func() { r.err = r.during() })
	if r.err != nil {
		return 0, r.err
	}
	return r.inner.Read(p)
}

func TestLocalStorePutSameHashRace(t *testing.T) {
	store := NewLocalStore(afero.NewMemMapFs(), "/pool")
	ctx := context.Background()
	content := "raced bytes"
	hash := hashOf(content)

	// A second writer commits the same hash while the first is mid-stream.
	// Identical content makes the race harmless, so both writes must succeed
	// and the stored object must be intact.
	first := &nestedPutReader{
		inner: strings.NewReader(content),
		during: func() error {
			return store.Put(ctx, hash, strings.NewReader(content))
		},
	}
	require.NoError(t, store.Put(ctx, hash, first))

	r, err := store.Open(ctx, hash)
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, content, string(data))

	objects, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, int64(len(content)), objects[0].Size)
}

func TestLocalStoreRejectsInvalidHash(t *testing.T) {
	store := NewLocalStore(afero.NewMemMapFs(), "/pool")
	ctx := context.Background()

	err := store.Put(ctx, "../escape", bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrInvalidHash)
	_, err = store.Open(ctx, "UPPERCASE")
	assert.ErrorIs(t, err, ErrInvalidHash)
}

func TestLocalStoreOpenMissing(t *testing.T) {
	store := NewLocalStore(afero.NewMemMapFs(), "/pool")
	_, err := store.Open(context.Background(), hashOf("never stored"))
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestLocalStoreRemoveIsIdempotent(t *testing.T) {
	store := NewLocalStore(afero.NewMemMapFs(), "/pool")
	ctx := context.Background()
	hash := hashOf("to be removed")

	require.NoError(t, store.Put(ctx, hash, strings.NewReader("to be removed")))
	require.NoError(t, store.Remove(ctx, hash))
	// Removing an absent object is a successful no-op.
	require.NoError(t, store.Remove(ctx, hash))

	objects, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestLocalStoreListEmptyRoot(t *testing.T) {
	store := NewLocalStore(afero.NewMemMapFs(), "/does-not-exist")
	objects, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, objects)
}
