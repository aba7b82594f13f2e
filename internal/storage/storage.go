// Package storage persists uploaded media. Implementations stream in both
// directions and never hold a whole file in memory.
package storage

import (
	"context"
	"errors"
	"io"
)

var ErrNoObject = errors.New("storage: no object")

// Object describes media written by Save.
type Object struct {
	Path string
	Size int64
}

type Store interface {
	Save(ctx context.Context, name string, r io.Reader, contentType string) (Object, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Remove(ctx context.Context, path string) error
}
