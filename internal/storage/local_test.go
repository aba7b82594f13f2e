package storage_test

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"transcription-service/internal/storage"
)

func TestLocalStore_SaveOpenRemove(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := storage.NewLocalStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	obj, err := s.Save(ctx, "clip.mp4", strings.NewReader("frames"), "video/mp4")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if obj.Size != 6 {
		t.Fatalf("expected size 6, got %d", obj.Size)
	}
	if !filepath.IsAbs(obj.Path) {
		t.Fatalf("expected absolute path, got %s", obj.Path)
	}

	rc, err := s.Open(ctx, obj.Path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	b, _ := io.ReadAll(rc)
	rc.Close()
	if string(b) != "frames" {
		t.Fatalf("unexpected content %q", b)
	}

	if err := s.Remove(ctx, obj.Path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := s.Open(ctx, obj.Path); !errors.Is(err, storage.ErrNoObject) {
		t.Fatalf("expected ErrNoObject, got %v", err)
	}
	if err := s.Remove(ctx, obj.Path); !errors.Is(err, storage.ErrNoObject) {
		t.Fatalf("expected ErrNoObject on second remove, got %v", err)
	}
}

func TestLocalStore_RejectsPathsOutsideDir(t *testing.T) {
	ctx := context.Background()
	s, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	if _, err := s.Save(ctx, "../escape.mp4", strings.NewReader("x"), "video/mp4"); err == nil {
		t.Fatal("expected error for relative escape")
	}
	if _, err := s.Open(ctx, "/etc/passwd"); err == nil {
		t.Fatal("expected error for absolute path outside store")
	}
}

func TestLocalStore_SaveDoesNotOverwrite(t *testing.T) {
	ctx := context.Background()
	s, _ := storage.NewLocalStore(t.TempDir())

	if _, err := s.Save(ctx, "a.mp4", strings.NewReader("one"), "video/mp4"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := s.Save(ctx, "a.mp4", strings.NewReader("two"), "video/mp4"); err == nil {
		t.Fatal("expected error saving over an existing file")
	}
}
