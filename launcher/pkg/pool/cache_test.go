package pool

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commandpost/commandpost-go/launcher/pkg/manifest"
)

func cachedManifest(t *testing.T, id string) *manifest.ContentManifest {
	t.Helper()
	return &manifest.ContentManifest{Id: mustId(t, id), Name: id, Version: "1.0"}
}

func TestCacheLookupIsCaseInsensitive(t *testing.T) {
	c := NewCache()
	c.Upsert(cachedManifest(t, "Pub.Tool.V1"))

	got := c.Get(mustId(t, "pub.tool.v1"))
	require.NotNil(t, got)
	assert.Equal(t, "Pub.Tool.V1", got.Name)
	assert.Equal(t, 1, c.Len())
}

func TestCacheUpsertLastWriteWins(t *testing.T) {
	c := NewCache()
	c.Upsert(cachedManifest(t, "pub.tool.v1"))

	updated := cachedManifest(t, "pub.tool.v1")
	updated.Version = "2.0"
	c.Upsert(updated)

	require.Equal(t, 1, c.Len())
	assert.Equal(t, "2.0", c.Get(mustId(t, "pub.tool.v1")).Version)
}

func TestCacheRemoveAndClear(t *testing.T) {
	c := NewCache()
	c.Upsert(cachedManifest(t, "pub.a.v1"))
	c.Upsert(cachedManifest(t, "pub.b.v1"))

	c.Remove(mustId(t, "pub.a.v1"))
	c.Remove(mustId(t, "pub.a.v1")) // absent, no-op
	assert.Nil(t, c.Get(mustId(t, "pub.a.v1")))
	assert.Equal(t, 1, c.Len())

	c.Clear()
	assert.Zero(t, c.Len())
	assert.Empty(t, c.GetAll())
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := NewCache()
	const n = 32

	manifests := make([]*manifest.ContentManifest, n)
	for i := range manifests {
		manifests[i] = cachedManifest(t, fmt.Sprintf("pub.m%d.v1", i))
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.Upsert(manifests[i])
		}()
		go func() {
			defer wg.Done()
			c.Get(manifests[i].Id)
			c.GetAll()
		}()
	}
	wg.Wait()

	assert.Equal(t, n, c.Len())
}
