package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

type LocalStorage struct {
	basePath string
}

func NewLocal(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create crate directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// Upload writes content to a temporary file first so that a failed upload
// never leaves a partial crate behind.
func (l *LocalStorage) Upload(ctx context.Context, name string, content io.Reader, size int64) error {
	destPath := l.GetPath(name)

	dest, err := os.CreateTemp(l.basePath, ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create dest: %w", err)
	}
	defer os.Remove(dest.Name())

	written, err := io.Copy(dest, contextReader{ctx: ctx, r: content})
	if err != nil {
		dest.Close()
		return fmt.Errorf("failed to copy: %w", err)
	}
	if err := dest.Close(); err != nil {
		return fmt.Errorf("failed to close dest: %w", err)
	}
	if size >= 0 && written != size {
		return fmt.Errorf("failed to copy: expected [%d] bytes but [%d] were written", size, written)
	}

	if err := os.Rename(dest.Name(), destPath); err != nil {
		return fmt.Errorf("failed to store crate: %w", err)
	}

	return nil
}

func (l *LocalStorage) Download(_ context.Context, name string) (io.ReadCloser, error) {
	file, err := os.Open(l.GetPath(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open crate: %w", err)
	}
	return file, nil
}

func (l *LocalStorage) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(l.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && entry.Name()[0] != '.' {
			files = append(files, entry.Name())
		}
	}

	return files, nil
}

func (l *LocalStorage) Delete(_ context.Context, name string) error {
	if err := os.Remove(l.GetPath(name)); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (l *LocalStorage) GetOldFiles(ctx context.Context, cutoffTime time.Time) ([]string, error) {
	names, err := l.List(ctx)
	if err != nil {
		return nil, err
	}

	var oldFiles []string
	for _, name := range names {
		info, err := os.Stat(l.GetPath(name))
		if err != nil {
			return nil, fmt.Errorf("failed to get file info for %s: %w", name, err)
		}
		if info.ModTime().Before(cutoffTime) {
			oldFiles = append(oldFiles, name)
		}
	}

	return oldFiles, nil
}

func (l *LocalStorage) GetPath(name string) string {
	return filepath.Join(l.basePath, filepath.Base(name))
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
