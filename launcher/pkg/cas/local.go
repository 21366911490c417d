package cas

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"
)

// LocalStore is the on-disk ObjectStore backing the launcher's content pool.
// It operates on an afero.Fs so tests can run against an in-memory filesystem.
type LocalStore struct {
	fsys afero.Fs
	root string
}

var _ ObjectStore = &LocalStore{}

// NewLocalStore creates a store rooted at root. The directory tree is created
// lazily on first Put.
func NewLocalStore(fsys afero.Fs, root string) *LocalStore {
	return &LocalStore{fsys: fsys, root: root}
}

// objectPath returns the absolute path for a hash under the store root.
func (s *LocalStore) objectPath(hash string) string {
	return filepath.Join(s.root, filepath.FromSlash(ObjectKey(hash)))
}

func (s *LocalStore) Put(ctx context.Context, hash string, src io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !IsValidHash(hash) {
		return fmt.Errorf("%w: %q", ErrInvalidHash, hash)
	}

	dest := s.objectPath(hash)
	if exists, err := afero.Exists(s.fsys, dest); err != nil {
		return fmt.Errorf("unable to check for existing object %s: %w", hash, err)
	} else if exists {
		// Deduplication: identical content is already stored.
		return nil
	}

	if err := s.fsys.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("unable to create object directory for %s: %w", hash, err)
	}

	// Write to a temporary name then rename so a crashed write never leaves a
	// partial object at the final path. Every writer gets its own temp file so
	// concurrent writers of the same hash never share intermediate state.
	f, err := afero.TempFile(s.fsys, filepath.Dir(dest), "."+hash+".tmp")
	if err != nil {
		return fmt.Errorf("unable to create object %s: %w", hash, err)
	}
	tmp := f.Name()
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		s.fsys.Remove(tmp)
		return fmt.Errorf("unable to write object %s: %w", hash, err)
	}
	if err := f.Close(); err != nil {
		s.fsys.Remove(tmp)
		return fmt.Errorf("unable to finalize object %s: %w", hash, err)
	}
	if err := s.fsys.Rename(tmp, dest); err != nil {
		s.fsys.Remove(tmp)
		// A concurrent writer of the same hash may have committed first. Its
		// bytes are identical, so losing the rename race is success.
		if exists, exErr := afero.Exists(s.fsys, dest); exErr == nil && exists {
			return nil
		}
		return fmt.Errorf("unable to commit object %s: %w", hash, err)
	}
	return nil
}

func (s *LocalStore) Open(ctx context.Context, hash string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !IsValidHash(hash) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidHash, hash)
	}
	f, err := s.fsys.Open(s.objectPath(hash))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, hash)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to open object %s: %w", hash, err)
	}
	return f, nil
}

func (s *LocalStore) Exists(ctx context.Context, hash string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !IsValidHash(hash) {
		return false, fmt.Errorf("%w: %q", ErrInvalidHash, hash)
	}
	return afero.Exists(s.fsys, s.objectPath(hash))
}

func (s *LocalStore) Remove(ctx context.Context, hash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !IsValidHash(hash) {
		return fmt.Errorf("%w: %q", ErrInvalidHash, hash)
	}
	err := s.fsys.Remove(s.objectPath(hash))
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("unable to remove object %s: %w", hash, err)
}

func (s *LocalStore) List(ctx context.Context) ([]ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	objectsRoot := filepath.Join(s.root, objectsDir)
	if exists, err := afero.DirExists(s.fsys, objectsRoot); err != nil {
		return nil, fmt.Errorf("unable to list objects: %w", err)
	} else if !exists {
		return []ObjectInfo{}, nil
	}

	objects := make([]ObjectInfo, 0)
	err := afero.Walk(s.fsys, objectsRoot, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if info.IsDir() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		name := filepath.Base(path)
		if !IsValidHash(name) {
			// Temporary or foreign files are not objects.
			return nil
		}
		objects = append(objects, ObjectInfo{Hash: name, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("unable to list objects: %w", err)
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Hash < objects[j].Hash })
	return objects, nil
}
