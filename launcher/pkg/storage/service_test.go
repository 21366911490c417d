package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/commandpost/commandpost-go/launcher/pkg/manifest"
)

func newTestService(t *testing.T) (*Service, afero.Fs) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	return NewService(fsys, "/pool", zap.NewNop()), fsys
}

func mustId(t *testing.T, value string) manifest.Id {
	t.Helper()
	id, err := manifest.NewId(value)
	require.NoError(t, err)
	return id
}

func hashOf(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func writeSource(t *testing.T, fsys afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fsys, path, []byte(content), 0644))
}

// testManifest builds a manifest declaring one content-addressable file per
// (relativePath, content) pair and writes the matching sources under srcDir.
func testManifest(t *testing.T, fsys afero.Fs, id, srcDir string, files map[string]string) *manifest.ContentManifest {
	t.Helper()
	b := manifest.NewBuilder(mustId(t, id), id, "1.0").
		WithContentType(manifest.Mod).
		WithTargetGame(manifest.ZeroHour)
	for rel, content := range files {
		writeSource(t, fsys, srcDir+"/"+rel, content)
		b = b.WithContentFile(rel, hashOf(content), int64(len(content)))
	}
	m, err := b.Build()
	require.NoError(t, err)
	return m
}

func TestStoreContentRoundTrip(t *testing.T) {
	svc, fsys := newTestService(t)
	ctx := context.Background()
	m := testManifest(t, fsys, "pub.tool.v1", "/src", map[string]string{
		"bin/tool.exe": "tool bytes",
		"data/map.ini": "map config",
	})

	require.NoError(t, svc.StoreContent(ctx, m, "/src"))

	stored, err := svc.IsContentStored(ctx, m.Id)
	require.NoError(t, err)
	assert.True(t, stored)

	loaded, err := svc.LoadManifest(ctx, m.Id)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.True(t, m.Id.Equal(loaded.Id))
	assert.Equal(t, m.Name, loaded.Name)
	assert.Len(t, loaded.Files, 2)

	for _, f := range loaded.Files {
		exists, err := svc.Objects().Exists(ctx, f.Hash)
		require.NoError(t, err)
		assert.True(t, exists, "object for %s must be stored", f.RelativePath)
	}
}

func TestStoreContentHashMismatchWritesNoRecord(t *testing.T) {
	svc, fsys := newTestService(t)
	ctx := context.Background()

	writeSource(t, fsys, "/src/bin/tool.exe", "actual bytes")
	m, err := manifest.NewBuilder(mustId(t, "pub.bad.v1"), "bad", "1.0").
		WithContentType(manifest.Mod).
		WithTargetGame(manifest.Generals).
		WithContentFile("bin/tool.exe", hashOf("declared bytes"), 12).
		Build()
	require.NoError(t, err)

	err = svc.StoreContent(ctx, m, "/src")
	require.ErrorIs(t, err, ErrHashMismatch)

	// The store must fail as a whole: no manifest record may exist.
	stored, err := svc.IsContentStored(ctx, m.Id)
	require.NoError(t, err)
	assert.False(t, stored)
	loaded, err := svc.LoadManifest(ctx, m.Id)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestStoreContentMissingSource(t *testing.T) {
	svc, _ := newTestService(t)
	m, err := manifest.NewBuilder(mustId(t, "pub.missing.v1"), "missing", "1.0").
		WithContentType(manifest.Mod).
		WithTargetGame(manifest.Generals).
		WithContentFile("bin/gone.exe", hashOf("gone"), 4).
		Build()
	require.NoError(t, err)

	err = svc.StoreContent(context.Background(), m, "/src")
	assert.ErrorIs(t, err, ErrSourceFileMissing)
}

func TestStoreContentCancelled(t *testing.T) {
	svc, fsys := newTestService(t)
	m := testManifest(t, fsys, "pub.tool.v1", "/src", map[string]string{
		"bin/tool.exe": "tool bytes",
		"data/map.ini": "map config",
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := svc.StoreContent(ctx, m, "/src")
	require.ErrorIs(t, err, context.Canceled)

	// An aborted store must not leave a manifest record behind.
	stored, err := svc.IsContentStored(context.Background(), m.Id)
	require.NoError(t, err)
	assert.False(t, stored)

	_, err = svc.LoadAllManifests(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStoreContentDeduplicatesAcrossManifests(t *testing.T) {
	svc, fsys := newTestService(t)
	ctx := context.Background()
	shared := "shared library bytes"

	a := testManifest(t, fsys, "pub.a.v1", "/srcA", map[string]string{"lib/common.dll": shared})
	b := testManifest(t, fsys, "pub.b.v1", "/srcB", map[string]string{"lib/common.dll": shared})

	require.NoError(t, svc.StoreContent(ctx, a, "/srcA"))
	require.NoError(t, svc.StoreContent(ctx, b, "/srcB"))

	objects, err := svc.Objects().List(ctx)
	require.NoError(t, err)
	require.Len(t, objects, 1, "identical content must be stored exactly once")
	assert.Equal(t, hashOf(shared), objects[0].Hash)
}

func TestRemoveContentKeepsSharedObjects(t *testing.T) {
	svc, fsys := newTestService(t)
	ctx := context.Background()
	shared := "shared library bytes"

	a := testManifest(t, fsys, "pub.a.v1", "/srcA", map[string]string{
		"lib/common.dll": shared,
		"a/only.ini":     "only in a",
	})
	b := testManifest(t, fsys, "pub.b.v1", "/srcB", map[string]string{"lib/common.dll": shared})
	require.NoError(t, svc.StoreContent(ctx, a, "/srcA"))
	require.NoError(t, svc.StoreContent(ctx, b, "/srcB"))

	require.NoError(t, svc.RemoveContent(ctx, a.Id))

	// a's record is gone, its exclusive object is gone, the shared one stays.
	loaded, err := svc.LoadManifest(ctx, a.Id)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	exists, err := svc.Objects().Exists(ctx, hashOf("only in a"))
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = svc.Objects().Exists(ctx, hashOf(shared))
	require.NoError(t, err)
	assert.True(t, exists, "object referenced by a remaining manifest must survive")
}

func TestRemoveContentIsIdempotent(t *testing.T) {
	svc, fsys := newTestService(t)
	ctx := context.Background()
	m := testManifest(t, fsys, "pub.tool.v1", "/src", map[string]string{"bin/tool.exe": "tool bytes"})
	require.NoError(t, svc.StoreContent(ctx, m, "/src"))

	require.NoError(t, svc.RemoveContent(ctx, m.Id))
	require.NoError(t, svc.RemoveContent(ctx, m.Id))
	require.NoError(t, svc.RemoveContent(ctx, mustId(t, "never.stored.v1")))
}

func TestRemoveContentSkipsCleanupWithUnreadableRecord(t *testing.T) {
	svc, fsys := newTestService(t)
	ctx := context.Background()
	m := testManifest(t, fsys, "pub.tool.v1", "/src", map[string]string{"bin/tool.exe": "tool bytes"})
	require.NoError(t, svc.StoreContent(ctx, m, "/src"))

	// A corrupted sibling record could reference any object, so removal must
	// keep all candidates.
	writeSource(t, fsys, "/pool/manifests/broken.json", "{not json")

	require.NoError(t, svc.RemoveContent(ctx, m.Id))

	exists, err := svc.Objects().Exists(ctx, hashOf("tool bytes"))
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSaveManifestRequiresStoredContent(t *testing.T) {
	svc, fsys := newTestService(t)
	ctx := context.Background()
	m := testManifest(t, fsys, "pub.tool.v1", "/src", map[string]string{"bin/tool.exe": "tool bytes"})

	err := svc.SaveManifest(ctx, m)
	assert.ErrorIs(t, err, ErrContentNotStored)

	require.NoError(t, svc.StoreContent(ctx, m, "/src"))
	m.Name = "renamed"
	require.NoError(t, svc.SaveManifest(ctx, m))

	loaded, err := svc.LoadManifest(ctx, m.Id)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "renamed", loaded.Name)
}

func TestLoadManifestCorruptedRecord(t *testing.T) {
	svc, fsys := newTestService(t)
	id := mustId(t, "pub.broken.v1")
	writeSource(t, fsys, svc.ManifestPath(id), "{not json")

	_, err := svc.LoadManifest(context.Background(), id)
	assert.Error(t, err, "a record that exists but cannot be decoded is an error, not nil")
}

func TestLoadAllManifestsSkipsUnreadable(t *testing.T) {
	svc, fsys := newTestService(t)
	ctx := context.Background()
	m := testManifest(t, fsys, "pub.tool.v1", "/src", map[string]string{"bin/tool.exe": "tool bytes"})
	require.NoError(t, svc.StoreContent(ctx, m, "/src"))
	writeSource(t, fsys, "/pool/manifests/broken.json", "{not json")

	all, err := svc.LoadAllManifests(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, m.Id.Equal(all[0].Id))
}

func TestConcurrentStoreDistinctIds(t *testing.T) {
	svc, fsys := newTestService(t)
	ctx := context.Background()

	manifests := []*manifest.ContentManifest{
		testManifest(t, fsys, "pub.a.v1", "/srcA", map[string]string{"a.bin": "content a"}),
		testManifest(t, fsys, "pub.b.v1", "/srcB", map[string]string{"b.bin": "content b"}),
		testManifest(t, fsys, "pub.c.v1", "/srcC", map[string]string{"c.bin": "content c"}),
	}

	errs := make(chan error, len(manifests))
	for i, m := range manifests {
		srcDir := []string{"/srcA", "/srcB", "/srcC"}[i]
		go func() {
			errs <- svc.StoreContent(ctx, m, srcDir)
		}()
	}
	for range manifests {
		require.NoError(t, <-errs)
	}

	all, err := svc.LoadAllManifests(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
