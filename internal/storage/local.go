package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fileshare/backend/pkg/logger"
)

// LocalBackend keeps blobs as plain files under a single directory.
type LocalBackend struct {
	dir string
}

func NewLocalBackend(dir string) (*LocalBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed creating storage directory %s: %w", dir, err)
	}
	return &LocalBackend{dir: dir}, nil
}

// path maps a storage name onto the backing directory. Names containing
// separators or relative parts never touch the filesystem.
func (l *LocalBackend) path(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("storage: invalid blob name %q", name)
	}
	return filepath.Join(l.dir, name), nil
}

func (l *LocalBackend) Save(ctx context.Context, name string, reader io.Reader, size int64, contentType string) error {
	target, err := l.path(name)
	if err != nil {
		return err
	}

	// Write to a temp file and rename so a failed upload never leaves a
	// partial blob under the final name.
	tmp, err := os.CreateTemp(l.dir, ".upload-*")
	if err != nil {
		logger.Error("local_store_failed", err, map[string]interface{}{
			"name": name,
		})
		return err
	}

	written, err := io.Copy(tmp, reader)
	if err == nil && size >= 0 && written != size {
		err = fmt.Errorf("short write: got %d bytes, expected %d", written, size)
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), target)
	}
	if err != nil {
		os.Remove(tmp.Name())
		logger.Error("local_store_failed", err, map[string]interface{}{
			"name": name,
			"size": size,
		})
		return err
	}

	logger.Info("local_store_success", map[string]interface{}{
		"name":         name,
		"size":         written,
		"content_type": contentType,
	})
	return nil
}

func (l *LocalBackend) Open(ctx context.Context, name string) (io.ReadCloser, int64, error) {
	target, err := l.path(name)
	if err != nil {
		return nil, 0, err
	}

	f, err := os.Open(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, ErrNotFound
		}
		logger.Error("local_open_failed", err, map[string]interface{}{
			"name": name,
		})
		return nil, 0, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		logger.Error("local_open_failed", err, map[string]interface{}{
			"name": name,
		})
		return nil, 0, err
	}

	return f, info.Size(), nil
}

func (l *LocalBackend) Delete(ctx context.Context, name string) error {
	target, err := l.path(name)
	if err != nil {
		return err
	}

	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		logger.Error("local_delete_failed", err, map[string]interface{}{
			"name": name,
		})
		return err
	}

	logger.Info("local_delete_success", map[string]interface{}{
		"name": name,
	})
	return nil
}
