// Package storage holds attachment blobs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"project-hub-backend/pkg/utils"
)

var (
	// ErrInvalidKey is returned for keys that would escape the storage root.
	ErrInvalidKey = errors.New("invalid storage key")
	ErrNotFound   = errors.New("blob not found")
)

// Object describes a stored blob.
type Object struct {
	Key  string
	Size int64
}

// BlobStore stores, opens and deletes attachment blobs. Blobs are never
// served directly; downloads go through the attachment's parent.
type BlobStore interface {
	Put(ctx context.Context, filename string, r io.Reader) (*Object, error)
	Open(ctx context.Context, key string) (io.ReadSeekCloser, error)
	Delete(ctx context.Context, key string) error
}

// LocalStore writes blobs under root.
type LocalStore struct {
	root string
}

func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &LocalStore{root: root}, nil
}

// Root is the directory blobs are written to.
func (s *LocalStore) Root() string { return s.root }

// Put stores r under a fresh key of the form YYYY/MM/<token>-<filename>.
func (s *LocalStore) Put(ctx context.Context, filename string, r io.Reader) (*Object, error) {
	token, err := utils.GenerateURLToken(12)
	if err != nil {
		return nil, err
	}
	key := path.Join(time.Now().UTC().Format("2006/01"), token+"-"+utils.SafeFilename(filename))

	full, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return nil, err
	}

	f, err := os.Create(full)
	if err != nil {
		return nil, err
	}
	n, err := io.Copy(f, &ctxReader{ctx: ctx, r: r})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(full)
		return nil, fmt.Errorf("failed to store %s: %w", filename, err)
	}

	return &Object{Key: key, Size: n}, nil
}

// Open returns the content of a blob.
func (s *LocalStore) Open(ctx context.Context, key string) (io.ReadSeekCloser, error) {
	full, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Delete removes a blob. Missing blobs are not an error.
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	full, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *LocalStore) resolve(key string) (string, error) {
	clean := path.Clean("/" + key)
	if key == "" || clean == "/" || strings.Contains(key, "..") {
		return "", ErrInvalidKey
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
