package publish

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ArtifactStore persists rendered artifacts. Write reports whether bytes were actually
// written; stores skip artifacts whose content is already in place.
type ArtifactStore interface {
	Write(ctx context.Context, path string, data []byte) (bool, error)
}

var _ ArtifactStore = (*FileStore)(nil)

// FileStore writes artifacts below a root directory. Each write goes to a temp file that is
// synced and renamed into place, so readers never see a partial artifact.
type FileStore struct {
	root string
}

func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifacts directory: %w", err)
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) Root() string {
	return s.root
}

// Resolve maps an artifact path to a file below the root, rejecting paths that escape it.
func (s *FileStore) Resolve(path string) (string, error) {
	cleaned := filepath.Clean("/" + strings.TrimPrefix(path, "/"))
	if cleaned == "/" {
		return "", fmt.Errorf("empty artifact path")
	}
	return filepath.Join(s.root, filepath.FromSlash(cleaned)), nil
}

func (s *FileStore) Read(path string) ([]byte, error) {
	full, err := s.Resolve(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(full)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact %s: %w", path, err)
	}
	return data, nil
}

func (s *FileStore) Write(ctx context.Context, path string, data []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	full, err := s.Resolve(path)
	if err != nil {
		return false, err
	}

	if existing, err := os.ReadFile(full); err == nil && bytes.Equal(existing, data) {
		return false, nil
	}

	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(full)+".*.tmp")
	if err != nil {
		return false, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return false, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return false, fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return false, fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return false, fmt.Errorf("failed to set permissions: %w", err)
	}

	if err := os.Rename(tmp.Name(), full); err != nil {
		return false, fmt.Errorf("failed to move artifact into place: %w", err)
	}

	return true, nil
}

var _ ArtifactStore = (MirrorStore)(nil)

// MirrorStore writes every artifact to each store in turn. The first failure stops the write.
type MirrorStore []ArtifactStore

func (m MirrorStore) Write(ctx context.Context, path string, data []byte) (bool, error) {
	written := false
	for _, store := range m {
		ok, err := store.Write(ctx, path, data)
		if err != nil {
			return written, err
		}
		written = written || ok
	}
	return written, nil
}
