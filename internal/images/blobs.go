// Package images hosts vehicle photos locally so listings keep their gallery
// after the source site rotates or expires its image URLs.
package images

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var ErrBlobNotFound = errors.New("image blob not found")

// BlobStore keeps content-addressed blobs under a root directory. A blob's
// id is the SHA-256 of its bytes; the first two hex characters name its
// subdirectory.
type BlobStore struct {
	root string
}

// NewBlobStore creates root if needed.
func NewBlobStore(root string) (*BlobStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}
	return &BlobStore{root: root}, nil
}

// Put stores data and returns its id. Storing the same bytes twice is a no-op.
func (b *BlobStore) Put(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	id := hex.EncodeToString(sum[:])

	p := b.path(id)
	if _, err := os.Stat(p); err == nil {
		return id, nil
	}
	if err := writeAtomic(p, data, 0o644); err != nil {
		return "", fmt.Errorf("write blob %s: %w", id, err)
	}
	return id, nil
}

// Get returns a blob and verifies its digest.
func (b *BlobStore) Get(id string) ([]byte, error) {
	if !validID(id) {
		return nil, fmt.Errorf("%w: %q", ErrBlobNotFound, id)
	}
	data, err := os.ReadFile(b.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, id)
		}
		return nil, fmt.Errorf("read blob: %w", err)
	}
	sum := sha256.Sum256(data)
	if got := hex.EncodeToString(sum[:]); got != id {
		return nil, fmt.Errorf("blob integrity check failed: expected %s, got %s", id, got)
	}
	return data, nil
}

// Exists reports whether a blob is stored.
func (b *BlobStore) Exists(id string) bool {
	if !validID(id) {
		return false
	}
	_, err := os.Stat(b.path(id))
	return err == nil
}

// RelPath is the blob's path below the store root, "ab/abcdef...".
func RelPath(id string) string { return id[:2] + "/" + id }

func (b *BlobStore) path(id string) string {
	return filepath.Join(b.root, id[:2], id)
}

func validID(id string) bool {
	if len(id) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(id)
	return err == nil && strings.ToLower(id) == id
}

// writeAtomic writes through a temp file in the target directory and renames
// it into place, so readers never see a partial blob.
func writeAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmp != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	tmp = nil

	if err := os.Chmod(tmpPath, perm); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
