// Package storage owns the persistent layout that backs the content manifest
// pool: one JSON document per manifest under manifests/ and deduplicated
// content objects under cas-objects/. The service serializes store and remove
// operations per manifest id; operations on different ids run in parallel.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/commandpost/commandpost-go/launcher/pkg/cas"
	"github.com/commandpost/commandpost-go/launcher/pkg/manifest"
)

const (
	manifestsDir     = "manifests"
	contentDirsDir   = "content"
	manifestFileExt  = ".json"
	manifestFileMode = 0644
)

var (
	// ErrContentNotStored is returned when a metadata-only update targets a
	// manifest whose content was never stored.
	ErrContentNotStored = errors.New("manifest content is not stored")
	// ErrHashMismatch is returned when a source file's actual hash differs
	// from the hash the manifest declares.
	ErrHashMismatch = errors.New("content hash mismatch")
	// ErrSourceFileMissing is returned when a declared file cannot be found
	// under the source directory.
	ErrSourceFileMissing = errors.New("source file missing")
)

type serviceConfig struct {
	numWorkers int
	hasher     *cas.Hasher
}

type ServiceOpt func(*serviceConfig)

// WithNumWorkers bounds how many files are hashed and stored in parallel
// during StoreContent.
func WithNumWorkers(n int) ServiceOpt {
	return func(cfg *serviceConfig) {
		if n > 0 {
			cfg.numWorkers = n
		}
	}
}

// WithHasher overrides the default SHA-256 hasher.
func WithHasher(h *cas.Hasher) ServiceOpt {
	return func(cfg *serviceConfig) {
		cfg.hasher = h
	}
}

// Service stores manifests and their content-addressable objects under a
// single storage root.
type Service struct {
	fsys    afero.Fs
	root    string
	objects *cas.LocalStore
	hasher  *cas.Hasher
	log     *zap.Logger
	// locks serializes StoreContent/RemoveContent/SaveManifest per manifest
	// id. The object store itself needs no locking: objects are immutable and
	// concurrent writers of the same hash write identical bytes.
	locks      *keyedMutex
	numWorkers int
}

// NewService creates a storage service rooted at root on fsys.
func NewService(fsys afero.Fs, root string, log *zap.Logger, opts ...ServiceOpt) *Service {
	cfg := &serviceConfig{
		numWorkers: runtime.GOMAXPROCS(0),
		hasher:     cas.NewHasher(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Service{
		fsys:       fsys,
		root:       root,
		objects:    cas.NewLocalStore(fsys, root),
		hasher:     cfg.hasher,
		log:        log,
		locks:      newKeyedMutex(),
		numWorkers: cfg.numWorkers,
	}
}

// Objects exposes the underlying object store for maintenance tooling.
func (s *Service) Objects() cas.ObjectStore { return s.objects }

// ManifestPath is the deterministic location of a manifest's JSON record.
// Pure mapping, no I/O.
func (s *Service) ManifestPath(id manifest.Id) string {
	return filepath.Join(s.root, manifestsDir, id.Normalized()+manifestFileExt)
}

// ContentDirectoryPath is the logical content root for a manifest, used by
// workspace construction. Pure mapping, no I/O.
func (s *Service) ContentDirectoryPath(id manifest.Id) string {
	return filepath.Join(s.root, contentDirsDir, id.Normalized())
}

// IsContentStored reports whether the manifest's record exists on disk.
func (s *Service) IsContentStored(ctx context.Context, id manifest.Id) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return afero.Exists(s.fsys, s.ManifestPath(id))
}

// StoreContent stores every content-addressable file the manifest declares,
// then persists the manifest record itself. The operation fails as a whole if
// any source file is missing or hashes differently than declared; in that case
// no manifest record is written. Objects already stored by the failed attempt
// are harmless: the store is append-only and unreferenced objects are
// collected later.
func (s *Service) StoreContent(ctx context.Context, m *manifest.ContentManifest, sourceDir string) error {
	unlock := s.locks.lock(m.Id.Normalized())
	defer unlock()

	var contentFiles []manifest.File
	for _, f := range m.Files {
		if f.SourceType == manifest.SourceContentAddressable {
			contentFiles = append(contentFiles, f)
		}
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.numWorkers)
	for _, f := range contentFiles {
		g.Go(func() error {
			return s.storeFile(gCtx, f, sourceDir)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("unable to store content for manifest %s: %w", m.Id, err)
	}

	if err := s.fsys.MkdirAll(s.ContentDirectoryPath(m.Id), 0755); err != nil {
		return fmt.Errorf("unable to create content directory for manifest %s: %w", m.Id, err)
	}
	if err := s.writeManifest(m); err != nil {
		return fmt.Errorf("unable to persist manifest %s: %w", m.Id, err)
	}
	return nil
}

// storeFile hashes one declared file from the source directory and stores it
// in the object store if not already present.
func (s *Service) storeFile(ctx context.Context, f manifest.File, sourceDir string) error {
	src := filepath.Join(sourceDir, filepath.FromSlash(f.RelativePath))
	actual, err := s.hasher.HashFile(ctx, s.fsys, src)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrSourceFileMissing, f.RelativePath)
	}
	if err != nil {
		return err
	}
	if f.Hash != "" && !strings.EqualFold(f.Hash, actual) {
		return fmt.Errorf("%w for %s: declared %s, actual %s", ErrHashMismatch, f.RelativePath, f.Hash, actual)
	}

	in, err := s.fsys.Open(src)
	if err != nil {
		return fmt.Errorf("unable to open source file %s: %w", f.RelativePath, err)
	}
	defer in.Close()
	return s.objects.Put(ctx, actual, in)
}

// writeManifest atomically replaces the manifest's JSON record.
func (s *Service) writeManifest(m *manifest.ContentManifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("unable to encode manifest: %w", err)
	}

	dest := s.ManifestPath(m.Id)
	if err := s.fsys.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("unable to create manifests directory: %w", err)
	}
	tmp := dest + ".tmp"
	if err := afero.WriteFile(s.fsys, tmp, data, manifestFileMode); err != nil {
		return fmt.Errorf("unable to write manifest record: %w", err)
	}
	if err := s.fsys.Rename(tmp, dest); err != nil {
		s.fsys.Remove(tmp)
		return fmt.Errorf("unable to commit manifest record: %w", err)
	}
	return nil
}

// SaveManifest rewrites a manifest record in place without touching content.
// The content must already be stored; this backs metadata-only updates and
// the narrow patch operations (e.g. flipping an executable flag).
func (s *Service) SaveManifest(ctx context.Context, m *manifest.ContentManifest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := s.locks.lock(m.Id.Normalized())
	defer unlock()

	stored, err := afero.Exists(s.fsys, s.ManifestPath(m.Id))
	if err != nil {
		return fmt.Errorf("unable to check manifest %s: %w", m.Id, err)
	}
	if !stored {
		return fmt.Errorf("%w: %s", ErrContentNotStored, m.Id)
	}
	if err := s.writeManifest(m); err != nil {
		return fmt.Errorf("unable to persist manifest %s: %w", m.Id, err)
	}
	return nil
}

// LoadManifest reads a manifest record from disk. A missing record returns
// (nil, nil) since not found is not an error. A record that exists but cannot
// be decoded is an error.
func (s *Service) LoadManifest(ctx context.Context, id manifest.Id) (*manifest.ContentManifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(s.fsys, s.ManifestPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to read manifest %s: %w", id, err)
	}
	var m manifest.ContentManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest record for %s is corrupted: %w", id, err)
	}
	return &m, nil
}

// LoadAllManifests enumerates every manifest record under the storage root.
// Unreadable or corrupted records are logged and skipped so one bad file never
// hides the rest of the catalog.
func (s *Service) LoadAllManifests(ctx context.Context) ([]*manifest.ContentManifest, error) {
	entries, err := s.listManifestFiles(ctx)
	if err != nil {
		return nil, err
	}

	manifests := make([]*manifest.ContentManifest, 0, len(entries))
	for _, path := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m, err := s.loadManifestFile(path)
		if err != nil {
			s.log.Warn("skipping unreadable manifest record", zap.String("path", path), zap.Error(err))
			continue
		}
		manifests = append(manifests, m)
	}
	return manifests, nil
}

func (s *Service) loadManifestFile(path string) (*manifest.ContentManifest, error) {
	data, err := afero.ReadFile(s.fsys, path)
	if err != nil {
		return nil, err
	}
	var m manifest.ContentManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// ListManifestIds returns the id of every manifest record on disk, derived
// from the record file names. Files whose names are not valid ids are logged
// and skipped.
func (s *Service) ListManifestIds(ctx context.Context) ([]manifest.Id, error) {
	paths, err := s.listManifestFiles(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]manifest.Id, 0, len(paths))
	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), manifestFileExt)
		id, err := manifest.NewId(name)
		if err != nil {
			s.log.Warn("skipping manifest record with invalid name",
				zap.String("path", path), zap.Error(err))
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Service) listManifestFiles(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir := filepath.Join(s.root, manifestsDir)
	if exists, err := afero.DirExists(s.fsys, dir); err != nil {
		return nil, fmt.Errorf("unable to enumerate manifests: %w", err)
	} else if !exists {
		return nil, nil
	}
	infos, err := afero.ReadDir(s.fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("unable to enumerate manifests: %w", err)
	}
	paths := make([]string, 0, len(infos))
	for _, info := range infos {
		if info.IsDir() || !strings.HasSuffix(info.Name(), manifestFileExt) {
			continue
		}
		paths = append(paths, filepath.Join(dir, info.Name()))
	}
	return paths, nil
}

// RemoveContent deletes a manifest's record and any content objects that no
// remaining manifest references. Removing an absent id is a successful no-op.
// The reference scan is conservative: if any remaining manifest record cannot
// be read, object deletion is skipped entirely rather than risk deleting an
// object that record still references.
func (s *Service) RemoveContent(ctx context.Context, id manifest.Id) error {
	unlock := s.locks.lock(id.Normalized())
	defer unlock()

	removed, err := s.LoadManifest(ctx, id)
	if err != nil {
		// The record exists but is corrupted; it still has to go. Without its
		// file list no object cleanup is possible.
		s.log.Warn("removing corrupted manifest record without object cleanup",
			zap.String("manifestId", id.String()), zap.Error(err))
	}
	if removed == nil && err == nil {
		return nil
	}

	if err := s.fsys.Remove(s.ManifestPath(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("unable to remove manifest %s: %w", id, err)
	}
	if err := s.fsys.RemoveAll(s.ContentDirectoryPath(id)); err != nil {
		s.log.Warn("unable to remove content directory", zap.String("manifestId", id.String()), zap.Error(err))
	}

	if removed == nil {
		return nil
	}
	if err := s.removeUnreferencedObjects(ctx, removed); err != nil {
		return fmt.Errorf("unable to clean up objects for manifest %s: %w", id, err)
	}
	return nil
}

// removeUnreferencedObjects deletes the removed manifest's objects that no
// remaining manifest declares.
func (s *Service) removeUnreferencedObjects(ctx context.Context, removed *manifest.ContentManifest) error {
	candidates := make(map[string]struct{})
	for _, f := range removed.Files {
		if f.SourceType == manifest.SourceContentAddressable && f.Hash != "" {
			candidates[strings.ToLower(f.Hash)] = struct{}{}
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	entries, err := s.listManifestFiles(ctx)
	if err != nil {
		return err
	}
	for _, path := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		m, err := s.loadManifestFile(path)
		if err != nil {
			// Conservative: an unreadable manifest might reference any of the
			// candidates, so keep them all.
			s.log.Warn("skipping object cleanup: unreadable manifest record",
				zap.String("path", path), zap.Error(err))
			return nil
		}
		for _, f := range m.Files {
			delete(candidates, strings.ToLower(f.Hash))
		}
		if len(candidates) == 0 {
			return nil
		}
	}

	for hash := range candidates {
		if err := s.objects.Remove(ctx, hash); err != nil {
			return err
		}
		s.log.Debug("removed unreferenced content object", zap.String("hash", hash))
	}
	return nil
}
