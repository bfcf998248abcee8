// Package fsblob is the local-filesystem blob driver. Objects live at
// <root>/<namespace>/<id> with a <id>.meta.json sidecar carrying the
// provenance metadata. Writes go through a temp file + rename so a
// half-written object is never visible under its final id.
package fsblob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/harborworks/fieldsync/internal/sync/blob"
	"github.com/harborworks/fieldsync/pkg/idx"
)

const metaSuffix = ".meta.json"

type Store struct {
	root string
}

// NewStore creates the driver rooted at dir, creating it if necessary.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("fsblob: create root: %w", err)
	}
	return &Store{root: dir}, nil
}

func (s *Store) Put(ctx context.Context, namespace string, r io.Reader, meta blob.Metadata) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	nsDir := filepath.Join(s.root, namespace)
	if err := os.MkdirAll(nsDir, 0o750); err != nil {
		return "", fmt.Errorf("fsblob: create namespace: %w", err)
	}

	id := idx.New().String()

	tmp, err := os.CreateTemp(nsDir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("fsblob: create temp: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	written, err := io.Copy(tmp, r)
	if err != nil {
		return "", fmt.Errorf("fsblob: write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("fsblob: close temp: %w", err)
	}

	meta.Size = written
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}

	if err := s.writeMeta(nsDir, id, meta); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), filepath.Join(nsDir, id)); err != nil {
		_ = os.Remove(filepath.Join(nsDir, id+metaSuffix))
		return "", fmt.Errorf("fsblob: publish object: %w", err)
	}

	return id, nil
}

func (s *Store) Open(ctx context.Context, namespace, id string) (io.ReadCloser, blob.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, blob.Metadata{}, err
	}

	meta, err := s.Stat(ctx, namespace, id)
	if err != nil {
		return nil, blob.Metadata{}, err
	}

	f, err := os.Open(s.objectPath(namespace, id))
	if err != nil {
		return nil, blob.Metadata{}, mapFSError(err)
	}
	return f, meta, nil
}

func (s *Store) Stat(ctx context.Context, namespace, id string) (blob.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return blob.Metadata{}, err
	}

	data, err := os.ReadFile(s.objectPath(namespace, id) + metaSuffix)
	if err != nil {
		return blob.Metadata{}, mapFSError(err)
	}

	var meta blob.Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return blob.Metadata{}, fmt.Errorf("fsblob: decode metadata: %w", err)
	}
	return meta, nil
}

// Copy streams source to destination inside the driver; the caller never
// sees the bytes.
func (s *Store) Copy(ctx context.Context, srcNamespace, id, dstNamespace string, meta blob.Metadata) (string, error) {
	src, srcMeta, err := s.Open(ctx, srcNamespace, id)
	if err != nil {
		return "", err
	}
	defer src.Close()

	// The source's byte count wins over whatever the caller supplied.
	meta.Size = srcMeta.Size
	if meta.OriginalFilename == "" {
		meta.OriginalFilename = srcMeta.OriginalFilename
	}
	if meta.ContentType == "" {
		meta.ContentType = srcMeta.ContentType
	}

	return s.Put(ctx, dstNamespace, src, meta)
}

func (s *Store) objectPath(namespace, id string) string {
	return filepath.Join(s.root, namespace, filepath.Base(id))
}

func (s *Store) writeMeta(nsDir, id string, meta blob.Metadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("fsblob: encode metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(nsDir, id+metaSuffix), data, 0o640); err != nil {
		return fmt.Errorf("fsblob: write metadata: %w", err)
	}
	return nil
}

func mapFSError(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return blob.ErrNotFound
	}
	return err
}
