// Package discovery repopulates the manifest cache from persisted storage.
// The cache starts empty on process start; a discovery pass walks the stored
// manifest records, loads each one, and upserts it into the cache. The pass is
// best-effort: unreadable records are logged and skipped so one corrupted file
// never blocks startup.
package discovery

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/commandpost/commandpost-go/launcher/pkg/manifest"
	"github.com/commandpost/commandpost-go/launcher/pkg/pool"
	"github.com/commandpost/commandpost-go/launcher/pkg/storage"
)

type scannerConfig struct {
	includes   []string
	excludes   []string
	numWorkers int
}

type ScannerOpt func(*scannerConfig)

// WithIncludes keeps only manifests whose normalized id matches at least one
// glob pattern. Without includes every id is eligible.
func WithIncludes(patterns ...string) ScannerOpt {
	return func(cfg *scannerConfig) {
		cfg.includes = append(cfg.includes, patterns...)
	}
}

// WithExcludes drops manifests whose normalized id matches any glob pattern.
// Excludes win over includes.
func WithExcludes(patterns ...string) ScannerOpt {
	return func(cfg *scannerConfig) {
		cfg.excludes = append(cfg.excludes, patterns...)
	}
}

// WithNumWorkers bounds how many records are loaded in parallel.
func WithNumWorkers(n int) ScannerOpt {
	return func(cfg *scannerConfig) {
		if n > 0 {
			cfg.numWorkers = n
		}
	}
}

// Scanner loads stored manifest records into a pool cache.
type Scanner struct {
	storage *storage.Service
	cache   *pool.Cache
	log     *zap.Logger
	cfg     scannerConfig
}

func NewScanner(store *storage.Service, cache *pool.Cache, log *zap.Logger, opts ...ScannerOpt) (*Scanner, error) {
	cfg := scannerConfig{numWorkers: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		opt(&cfg)
	}
	for _, pattern := range append(append([]string{}, cfg.includes...), cfg.excludes...) {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid discovery pattern %q", pattern)
		}
	}
	return &Scanner{storage: store, cache: cache, log: log, cfg: cfg}, nil
}

// Run discovers all stored manifests and returns how many were cached.
// Records that fail to load are logged and skipped; Run fails only when the
// storage root itself cannot be enumerated or the context is cancelled.
func (s *Scanner) Run(ctx context.Context) (int, error) {
	ids, err := s.storage.ListManifestIds(ctx)
	if err != nil {
		return 0, fmt.Errorf("unable to enumerate stored manifests: %w", err)
	}

	var cached atomic.Int64
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.numWorkers)
	for _, id := range ids {
		if !s.eligible(id) {
			continue
		}
		g.Go(func() error {
			m, err := s.storage.LoadManifest(gCtx, id)
			if err != nil {
				if gCtx.Err() != nil {
					return gCtx.Err()
				}
				s.log.Warn("skipping unreadable manifest during discovery",
					zap.String("manifestId", id.String()), zap.Error(err))
				return nil
			}
			if m == nil {
				// Removed between enumeration and load.
				return nil
			}
			s.cache.Upsert(m)
			cached.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(cached.Load()), err
	}
	s.log.Info("discovery pass complete",
		zap.Int("found", len(ids)), zap.Int64("cached", cached.Load()))
	return int(cached.Load()), nil
}

func (s *Scanner) eligible(id manifest.Id) bool {
	key := id.Normalized()
	for _, pattern := range s.cfg.excludes {
		if ok, _ := doublestar.Match(pattern, key); ok {
			return false
		}
	}
	if len(s.cfg.includes) == 0 {
		return true
	}
	for _, pattern := range s.cfg.includes {
		if ok, _ := doublestar.Match(pattern, key); ok {
			return true
		}
	}
	return false
}
