package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/commandpost/commandpost-go/launcher/pkg/manifest"
)

// Stats summarizes what the storage root currently holds.
type Stats struct {
	Manifests        int
	Objects          int
	TotalObjectBytes int64
}

// Stats scans the storage root and returns catalog and object counts.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	entries, err := s.listManifestFiles(ctx)
	if err != nil {
		return Stats{}, err
	}
	objects, err := s.objects.List(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{Manifests: len(entries), Objects: len(objects)}
	for _, obj := range objects {
		stats.TotalObjectBytes += obj.Size
	}
	return stats, nil
}

// IntegrityIssue describes one stored object whose bytes no longer match its
// hash.
type IntegrityIssue struct {
	Hash       string
	ActualHash string
	Err        error
}

// VerifyIntegrity re-hashes every stored object and reports mismatches.
// Objects are verified in parallel; the scan stops early if the context is
// cancelled.
func (s *Service) VerifyIntegrity(ctx context.Context) ([]IntegrityIssue, error) {
	objects, err := s.objects.List(ctx)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	var issues []IntegrityIssue
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.numWorkers)
	for _, obj := range objects {
		g.Go(func() error {
			issue, err := s.verifyObject(gCtx, obj.Hash)
			if err != nil {
				return err
			}
			if issue != nil {
				mu.Lock()
				issues = append(issues, *issue)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("integrity scan aborted: %w", err)
	}
	return issues, nil
}

func (s *Service) verifyObject(ctx context.Context, hash string) (*IntegrityIssue, error) {
	r, err := s.objects.Open(ctx, hash)
	if err != nil {
		return &IntegrityIssue{Hash: hash, Err: err}, nil
	}
	defer r.Close()
	actual, err := s.hasher.Hash(ctx, r)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return &IntegrityIssue{Hash: hash, Err: err}, nil
	}
	if actual != hash {
		s.log.Error("content object is corrupted",
			zap.String("hash", hash), zap.String("actualHash", actual))
		return &IntegrityIssue{Hash: hash, ActualHash: actual}, nil
	}
	return nil, nil
}

// CollectGarbage removes content objects that no manifest references and
// returns their hashes. Unlike the per-removal cleanup this scans the whole
// object store, picking up objects orphaned by interrupted store operations.
// The scan aborts without deleting anything if any manifest record is
// unreadable.
func (s *Service) CollectGarbage(ctx context.Context) ([]string, error) {
	referenced, err := s.referencedHashes(ctx)
	if err != nil {
		return nil, err
	}
	objects, err := s.objects.List(ctx)
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, obj := range objects {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if _, ok := referenced[obj.Hash]; ok {
			continue
		}
		if err := s.objects.Remove(ctx, obj.Hash); err != nil {
			return removed, err
		}
		s.log.Info("collected unreferenced content object", zap.String("hash", obj.Hash))
		removed = append(removed, obj.Hash)
	}
	return removed, nil
}

// referencedHashes builds the set of hashes any manifest declares. Errors on
// the first unreadable record since deleting based on an incomplete reference
// set could destroy content a manifest still needs.
func (s *Service) referencedHashes(ctx context.Context) (map[string]struct{}, error) {
	entries, err := s.listManifestFiles(ctx)
	if err != nil {
		return nil, err
	}
	referenced := make(map[string]struct{})
	for _, path := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m, err := s.loadManifestFile(path)
		if err != nil {
			return nil, fmt.Errorf("unable to build reference set, manifest record %s is unreadable: %w", path, err)
		}
		for _, f := range m.Files {
			if f.SourceType == manifest.SourceContentAddressable && f.Hash != "" {
				referenced[strings.ToLower(f.Hash)] = struct{}{}
			}
		}
	}
	return referenced, nil
}
