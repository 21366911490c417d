// Package pool implements the content manifest pool, the public surface the
// launcher's content providers, workspace builder, and maintenance UI consume.
// The pool validates manifests before admission, delegates persistence to the
// storage service, and keeps an in-memory cache coherent with what is stored.
//
// Expected failures (validation, missing content, I/O) are returned as errors;
// not found is not an error: lookups return a nil manifest with a nil error.
package pool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/commandpost/commandpost-go/launcher/pkg/manifest"
	"github.com/commandpost/commandpost-go/launcher/pkg/storage"
)

// ErrFileNotDeclared is returned when a patch operation targets a relative
// path the manifest does not declare.
var ErrFileNotDeclared = errors.New("file not declared by manifest")

type poolConfig struct {
	registerer prometheus.Registerer
}

type PoolOpt func(*poolConfig)

// WithMetricsRegisterer registers the pool's collectors on reg. Without this
// option the pool still counts internally but exposes nothing.
func WithMetricsRegisterer(reg prometheus.Registerer) PoolOpt {
	return func(cfg *poolConfig) {
		cfg.registerer = reg
	}
}

// Pool orchestrates manifest lifecycle: Absent, then Stored via AddManifest
// with content, back to Absent via RemoveManifest. Metadata-only updates keep
// a Stored manifest Stored without touching content.
type Pool struct {
	storage *storage.Service
	cache   *Cache
	log     *zap.Logger
	metrics *metrics
}

// NewPool creates a pool over the given storage service. The cache starts
// empty; run a discovery pass to repopulate it from persisted storage.
func NewPool(store *storage.Service, log *zap.Logger, opts ...PoolOpt) *Pool {
	cfg := &poolConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	cache := NewCache()
	return &Pool{
		storage: store,
		cache:   cache,
		log:     log,
		metrics: newMetrics(cfg.registerer, cache),
	}
}

// Cache exposes the pool's index for the discovery pass.
func (p *Pool) Cache() *Cache { return p.cache }

// AddManifest validates the manifest, stores every declared content file from
// sourceDir, and persists the manifest record. This is the only path that may
// introduce a new manifest with content. The operation fails as a whole on
// validation errors, missing source files, or hash mismatches; nothing is
// admitted partially.
func (p *Pool) AddManifest(ctx context.Context, m *manifest.ContentManifest, sourceDir string) (err error) {
	defer func() { p.metrics.observe("add", err) }()
	if result := manifest.Validate(m); !result.OK() {
		return result.Err()
	}

	start := time.Now()
	if err := p.storage.StoreContent(ctx, m, sourceDir); err != nil {
		return err
	}
	p.metrics.observeStore(start)

	p.cache.Upsert(m)
	p.log.Info("manifest added",
		zap.String("manifestId", m.Id.String()),
		zap.String("contentType", m.ContentType.String()),
		zap.Int("files", len(m.Files)))
	return nil
}

// AddManifestMetadata updates a stored manifest's record without re-touching
// content. The content must already be stored; updating an absent manifest
// fails with storage.ErrContentNotStored rather than silently creating it.
// Use AddManifest with a source directory to introduce new content.
func (p *Pool) AddManifestMetadata(ctx context.Context, m *manifest.ContentManifest) (err error) {
	defer func() { p.metrics.observe("update", err) }()
	if result := manifest.Validate(m); !result.OK() {
		return result.Err()
	}
	if err := p.storage.SaveManifest(ctx, m); err != nil {
		return err
	}
	p.cache.Upsert(m)
	p.log.Info("manifest metadata updated", zap.String("manifestId", m.Id.String()))
	return nil
}

// GetManifest returns the manifest or nil when not stored. The cache is the
// fast path; on a miss the record is loaded from storage and cached. A record
// that exists but cannot be decoded is an error.
func (p *Pool) GetManifest(ctx context.Context, id manifest.Id) (*manifest.ContentManifest, error) {
	if m := p.cache.Get(id); m != nil {
		return m, nil
	}
	m, err := p.storage.LoadManifest(ctx, id)
	if err != nil || m == nil {
		return nil, err
	}
	p.cache.Upsert(m)
	return m, nil
}

// GetAllManifests enumerates every stored manifest. Individual unreadable
// records are logged and skipped so one corrupted file never hides the rest of
// the catalog. The cache is refreshed with everything read.
func (p *Pool) GetAllManifests(ctx context.Context) ([]*manifest.ContentManifest, error) {
	manifests, err := p.storage.LoadAllManifests(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range manifests {
		p.cache.Upsert(m)
	}
	return manifests, nil
}

// SearchManifests filters the stored manifests in memory. Term, type, and
// game filters are AND-combined; zero values match everything. An invalid
// filter expression fails the whole search.
func (p *Pool) SearchManifests(ctx context.Context, query manifest.SearchQuery) ([]*manifest.ContentManifest, error) {
	var filter manifest.InfoFilter
	if query.Filter != "" {
		var err error
		if filter, err = manifest.CompileFilter(query.Filter); err != nil {
			return nil, fmt.Errorf("invalid search filter: %w", err)
		}
	}

	all, err := p.GetAllManifests(ctx)
	if err != nil {
		return nil, err
	}
	matched := make([]*manifest.ContentManifest, 0, len(all))
	for _, m := range all {
		if !query.Matches(m) {
			continue
		}
		if filter != nil {
			keep, err := filter(manifest.InfoFromManifest(m))
			if err != nil {
				return nil, err
			}
			if !keep {
				continue
			}
		}
		matched = append(matched, m)
	}
	return matched, nil
}

// RemoveManifest deletes the manifest and any content objects no remaining
// manifest references. Removing an absent id is a successful no-op, so callers
// never need an existence check first.
func (p *Pool) RemoveManifest(ctx context.Context, id manifest.Id) (err error) {
	defer func() { p.metrics.observe("remove", err) }()
	if err := p.storage.RemoveContent(ctx, id); err != nil {
		return err
	}
	p.cache.Remove(id)
	p.log.Info("manifest removed", zap.String("manifestId", id.String()))
	return nil
}

// RemoveAllManifests deletes every readable manifest and returns how many were
// removed. Backs the "delete all content" maintenance action.
func (p *Pool) RemoveAllManifests(ctx context.Context) (int, error) {
	all, err := p.storage.LoadAllManifests(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, m := range all {
		if err := p.RemoveManifest(ctx, m.Id); err != nil {
			return removed, err
		}
		removed++
	}
	p.cache.Clear()
	return removed, nil
}

// IsManifestAcquired reports whether the manifest is stored. Pure existence
// check, no side effects.
func (p *Pool) IsManifestAcquired(ctx context.Context, id manifest.Id) (bool, error) {
	if p.cache.Get(id) != nil {
		return true, nil
	}
	return p.storage.IsContentStored(ctx, id)
}

// GetContentDirectory resolves the manifest's logical content root, used by
// workspace construction. Returns "" when the manifest is not stored.
func (p *Pool) GetContentDirectory(ctx context.Context, id manifest.Id) (string, error) {
	stored, err := p.storage.IsContentStored(ctx, id)
	if err != nil || !stored {
		return "", err
	}
	return p.storage.ContentDirectoryPath(id), nil
}

// SetExecutableFlag flips the executable bit on one declared file and rewrites
// the manifest record in place. This is the narrow patch operation used for
// platform-specific launch selection; content is never touched.
func (p *Pool) SetExecutableFlag(ctx context.Context, id manifest.Id, relativePath string, executable bool) (err error) {
	defer func() { p.metrics.observe("patch", err) }()
	m, err := p.storage.LoadManifest(ctx, id)
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("%w: %s", storage.ErrContentNotStored, id)
	}

	idx := -1
	for i, f := range m.Files {
		if equalRelativePath(f.RelativePath, relativePath) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s in manifest %s", ErrFileNotDeclared, relativePath, id)
	}
	m.Files[idx].IsExecutable = executable

	if err := p.storage.SaveManifest(ctx, m); err != nil {
		return err
	}
	p.cache.Upsert(m)
	p.log.Info("executable flag updated", zap.String("manifestId", id.String()),
		zap.String("relativePath", relativePath), zap.Bool("executable", executable))
	return nil
}

// StorageStats reports manifest and content object counts for the
// maintenance UI.
func (p *Pool) StorageStats(ctx context.Context) (storage.Stats, error) {
	return p.storage.Stats(ctx)
}

// equalRelativePath compares declared paths the way game content is shipped:
// case-insensitively and regardless of slash direction.
func equalRelativePath(a, b string) bool {
	norm := func(p string) string {
		return strings.ToLower(strings.ReplaceAll(p, "\\", "/"))
	}
	return norm(a) == norm(b)
}
