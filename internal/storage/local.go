package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

type local struct {
	dir string
}

// NewLocalStore keeps media under dir, creating it if necessary. Paths
// returned by Save are absolute and only paths inside dir are accepted.
func NewLocalStore(dir string) (Store, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("storage.NewLocalStore: abs %q: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("storage.NewLocalStore: mkdir %q: %w", dir, err)
	}
	return &local{dir: dir}, nil
}

func (s *local) resolve(path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.dir, path)
	}
	path = filepath.Clean(path)
	if !strings.HasPrefix(path, s.dir+string(filepath.Separator)) {
		return "", fmt.Errorf("storage: path %q outside %q", path, s.dir)
	}
	return path, nil
}

func (s *local) Save(ctx context.Context, name string, r io.Reader, contentType string) (Object, error) {
	path, err := s.resolve(name)
	if err != nil {
		return Object{}, err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return Object{}, err
	}
	n, err := io.Copy(f, r)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return Object{}, err
	}
	return Object{Path: path, Size: n}, nil
}

func (s *local) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	path, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoObject, path)
	}
	return f, err
}

func (s *local) Remove(ctx context.Context, path string) error {
	path, err := s.resolve(path)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNoObject, path)
	}
	return err
}
