package cases

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/luckysitara/fluffy-succotash/internal/ids"
)

// StoredFile describes an object written by a FileStore.
type StoredFile struct {
	Path string
	Size int64
	Hash string // hex sha256
}

// FileStore persists uploaded evidence payloads.
type FileStore interface {
	// Save streams r to storage under a unique name derived from the
	// original filename and returns where it landed.
	Save(ctx context.Context, r io.Reader, filename string) (*StoredFile, error)
	Delete(ctx context.Context, path string) error
}

// LocalFileStore writes uploads under a root directory on local disk.
type LocalFileStore struct {
	root string
}

// NewLocalFileStore ensures the root directory exists and returns the
// store.
func NewLocalFileStore(root string) (*LocalFileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("cases: upload directory is required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("cases: create upload directory: %w", err)
	}
	return &LocalFileStore{root: root}, nil
}

// Save writes the stream to a ULID-prefixed file, hashing it on the way
// through. The ULID prefix keeps names unique and sortable by upload
// time; only the extension of the client-supplied name is trusted.
func (s *LocalFileStore) Save(_ context.Context, r io.Reader, filename string) (*StoredFile, error) {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	name := ids.New()
	if ext != "" && ext != "." {
		name += ext
	}
	path := filepath.Join(s.root, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return nil, fmt.Errorf("cases: create upload file: %w", err)
	}
	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(f, h), r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("cases: write upload file: %w", err)
	}
	return &StoredFile{
		Path: path,
		Size: size,
		Hash: hex.EncodeToString(h.Sum(nil)),
	}, nil
}

func (s *LocalFileStore) Delete(_ context.Context, path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("cases: remove upload file: %w", err)
	}
	return nil
}
