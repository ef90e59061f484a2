package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const prefix = "part_"

// Directory keeps temporary part files under a single directory. File names
// carry their creation timestamp so stale files can be found by name.
type Directory struct {
	path string
	now  func() time.Time
}

func NewDirectory(path string) (*Directory, error) {
	if path == "" {
		path = filepath.Join(os.TempDir(), "stasis-staging")
	}
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	return &Directory{path: path, now: time.Now}, nil
}

func (d *Directory) Path() string { return d.path }

func (d *Directory) Temporary() (*os.File, error) {
	file, err := os.CreateTemp(d.path, prefix+d.now().Format("20060102_150405")+"_*")
	if err != nil {
		return nil, fmt.Errorf("failed to create staged file: %w", err)
	}
	return file, nil
}

func (d *Directory) Discard(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to discard staged file: %w", err)
	}
	return nil
}

// Destage moves a staged file to its final location, copying when the
// destination is on another filesystem.
func (d *Directory) Destage(from, to string) error {
	if err := os.Rename(from, to); err == nil {
		return nil
	}

	if err := copyFile(from, to); err != nil {
		return fmt.Errorf("failed to destage file: %w", err)
	}

	return d.Discard(from)
}

func (d *Directory) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), prefix) {
			files = append(files, entry.Name())
		}
	}

	return files, nil
}

func (d *Directory) Delete(_ context.Context, name string) error {
	return d.Discard(filepath.Join(d.path, filepath.Base(name)))
}

func (d *Directory) GetOldFiles(ctx context.Context, cutoffTime time.Time) ([]string, error) {
	names, err := d.List(ctx)
	if err != nil {
		return nil, err
	}

	var oldFiles []string
	for _, name := range names {
		info, err := os.Stat(filepath.Join(d.path, name))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("failed to get file info for %s: %w", name, err)
		}
		if info.ModTime().Before(cutoffTime) {
			oldFiles = append(oldFiles, name)
		}
	}

	return oldFiles, nil
}

func copyFile(from, to string) error {
	source, err := os.Open(from)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer source.Close()

	dest, err := os.OpenFile(to, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create dest: %w", err)
	}

	if _, err := io.Copy(dest, source); err != nil {
		dest.Close()
		return fmt.Errorf("failed to copy: %w", err)
	}

	return dest.Close()
}
