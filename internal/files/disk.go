package files

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var _ BlobStore = (*DiskStore)(nil)

// DiskStore writes blobs under a single directory. Names are generated by the
// service from random ids, so no path sanitization beyond a base check is
// needed, but the check stays as a guard.
type DiskStore struct {
	dir string
}

func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("files: create upload dir: %w", err)
	}
	return &DiskStore{dir: dir}, nil
}

func (d *DiskStore) Put(ctx context.Context, name string, data []byte) (string, error) {
	if name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: bad file name", ErrInvalidInput)
	}
	path := filepath.Join(d.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("files: write blob: %w", err)
	}
	return "/files/" + name, nil
}

func (d *DiskStore) Remove(ctx context.Context, name string) error {
	if name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: bad file name", ErrInvalidInput)
	}
	err := os.Remove(filepath.Join(d.dir, name))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Open returns the on-disk path for a stored name, used by the HTTP layer to
// serve /files/ requests.
func (d *DiskStore) Path(name string) (string, error) {
	if name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: bad file name", ErrInvalidInput)
	}
	return filepath.Join(d.dir, name), nil
}
