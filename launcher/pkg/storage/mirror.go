package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/commandpost/commandpost-go/launcher/pkg/cas"
	"github.com/commandpost/commandpost-go/launcher/pkg/manifest"
)

// MirrorTarget receives a manifest's content objects and its JSON record.
// cas.S3Store satisfies it; tests use a local store wrapper.
type MirrorTarget interface {
	cas.ObjectStore
	// PutDocument uploads a non content-addressable document, such as a
	// manifest record, under the given key.
	PutDocument(ctx context.Context, key string, body io.Reader) error
}

// MirrorContent pushes a stored manifest's content objects and record to the
// target. Objects already present on the target are skipped, so re-mirroring
// after a partial failure only transfers what is missing. The record is
// uploaded last so a manifest never appears on the target before its content.
func (s *Service) MirrorContent(ctx context.Context, id manifest.Id, target MirrorTarget) error {
	m, err := s.LoadManifest(ctx, id)
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("%w: %s", ErrContentNotStored, id)
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.numWorkers)
	for _, f := range m.Files {
		if f.SourceType != manifest.SourceContentAddressable || f.Hash == "" {
			continue
		}
		g.Go(func() error {
			// Declared hashes may be mixed case; objects are stored under the
			// lowercase digest.
			return s.mirrorObject(gCtx, strings.ToLower(f.Hash), target)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("unable to mirror content for manifest %s: %w", id, err)
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("unable to encode manifest %s: %w", id, err)
	}
	key := path.Join(manifestsDir, id.Normalized()+manifestFileExt)
	if err := target.PutDocument(ctx, key, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("unable to mirror manifest record %s: %w", id, err)
	}
	s.log.Info("mirrored manifest", zap.String("manifestId", id.String()),
		zap.Int("files", len(m.Files)))
	return nil
}

func (s *Service) mirrorObject(ctx context.Context, hash string, target MirrorTarget) error {
	exists, err := target.Exists(ctx, hash)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	r, err := s.objects.Open(ctx, hash)
	if err != nil {
		return err
	}
	defer r.Close()
	return target.Put(ctx, hash, r)
}
