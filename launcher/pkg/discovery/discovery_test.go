package discovery

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
	"github.com/commandpost/commandpost-go/launcher/pkg/pool"
	"github.com/commandpost/commandpost-go/launcher/pkg/storage"
)

func storeManifest(t *testing.T, svc *storage.Service, fsys afero.Fs, id string) {
	t.Helper()
	mid, err := manifest.NewId(id)
	require.NoError(t, err)
	content := "content of " + id
	sum := sha256.Sum256([]byte(content))
	require.NoError(t, afero.WriteFile(fsys, "/src/"+id+"/file.bin", []byte(content), 0644))

	m, err := manifest.NewBuilder(mid, id, "1.0").
		WithContentType(manifest.Mod).
		WithTargetGame(manifest.ZeroHour).
		WithContentFile("file.bin", hex.EncodeToString(sum[:]), int64(len(content))).
		Build()
	require.NoError(t, err)
	require.NoError(t, svc.StoreContent(context.Background(), m, "/src/"+id))
}

func TestScannerRepopulatesCache(t *testing.T) {
	fsys := afero.NewMemMapFs()
	svc := storage.NewService(fsys, "/pool", zap.NewNop())
	storeManifest(t, svc, fsys, "pub.a.v1")
	storeManifest(t, svc, fsys, "pub.b.v1")
	// A corrupted record must not block the rest of the catalog.
	require.NoError(t, afero.WriteFile(fsys, "/pool/manifests/pub.broken.v1.json", []byte("{not json"), 0644))

	cache := pool.NewCache()
	scanner, err := NewScanner(svc, cache, zap.NewNop())
	require.NoError(t, err)

	cached, err := scanner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, cached)
	assert.Equal(t, 2, cache.Len())

	id, err := manifest.NewId("pub.a.v1")
	require.NoError(t, err)
	assert.NotNil(t, cache.Get(id))
}

func TestScannerIncludeExcludeFilters(t *testing.T) {
	fsys := afero.NewMemMapFs()
	svc := storage.NewService(fsys, "/pool", zap.NewNop())
	storeManifest(t, svc, fsys, "pub.tool.v1")
	storeManifest(t, svc, fsys, "pub.map.v1")
	storeManifest(t, svc, fsys, "other.tool.v1")

	tests := map[string]struct {
		opts []ScannerOpt
		want int
	}{
		"include prefix":      {opts: []ScannerOpt{WithIncludes("pub.*")}, want: 2},
		"exclude wins":        {opts: []ScannerOpt{WithIncludes("pub.*"), WithExcludes("*.map.*")}, want: 1},
		"exclude only":        {opts: []ScannerOpt{WithExcludes("other.*")}, want: 2},
		"no filters keep all": {want: 3},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			cache := pool.NewCache()
			scanner, err := NewScanner(svc, cache, zap.NewNop(), tt.opts...)
			require.NoError(t, err)
			cached, err := scanner.Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, cached)
		})
	}
}

func TestScannerRejectsInvalidPattern(t *testing.T) {
	fsys := afero.NewMemMapFs()
	svc := storage.NewService(fsys, "/pool", zap.NewNop())
	_, err := NewScanner(svc, pool.NewCache(), zap.NewNop(), WithIncludes("[invalid"))
	assert.Error(t, err)
}

func TestScannerEmptyRoot(t *testing.T) {
	svc := storage.NewService(afero.NewMemMapFs(), "/pool", zap.NewNop())
	scanner, err := NewScanner(svc, pool.NewCache(), zap.NewNop())
	require.NoError(t, err)
	cached, err := scanner.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, cached)
}
