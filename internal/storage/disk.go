package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DiskStore writes blobs under a local directory and serves them through
// a static file route. Keys may contain slashes; intermediate directories
// are created on demand.
type DiskStore struct {
	baseDir string
	baseURL string
}

func NewDiskStore(baseDir, baseURL string) *DiskStore {
	return &DiskStore{
		baseDir: baseDir,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (d *DiskStore) Store(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	absPath := filepath.Join(d.baseDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	if err := os.WriteFile(absPath, data, 0644); err != nil {
		_ = os.Remove(absPath)
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	return d.baseURL + "/" + key, nil
}

func (d *DiskStore) Fetch(ctx context.Context, locator string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key, err := locatorToKey(d.baseURL, locator)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(d.baseDir, filepath.FromSlash(key)))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

func (d *DiskStore) Remove(ctx context.Context, locator string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key, err := locatorToKey(d.baseURL, locator)
	if err != nil {
		return err
	}

	absPath := filepath.Join(d.baseDir, filepath.FromSlash(key))
	if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove file: %w", err)
	}
	return nil
}

func (d *DiskStore) Has(ctx context.Context, locator string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	key, err := locatorToKey(d.baseURL, locator)
	if err != nil {
		return false, nil
	}

	info, err := os.Stat(filepath.Join(d.baseDir, filepath.FromSlash(key)))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

func (d *DiskStore) BaseURL() string {
	return d.baseURL
}
