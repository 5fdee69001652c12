package downloader

import (
	"crypto/sha1" //nolint:gosec // content key, not a security boundary
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// CacheDirName is the marker directory under <output>/<prefix>.
// The spelling is kept so existing caches stay valid.
const CacheDirName = "debscraber_cache"

// Cache records completed artifact URLs as empty marker files named by the
// SHA-1 of the URL. A marker is written only after the sorter has consumed
// the artifact, so its presence means the artifact is fully handled.
type Cache struct {
	dir string
}

// NewCache returns the cache for output and prefix. It does not touch the disk.
func NewCache(output, prefix string) *Cache {
	return &Cache{dir: filepath.Join(output, prefix, CacheDirName)}
}

// Dir returns the marker directory.
func (c *Cache) Dir() string {
	return c.dir
}

// Ensure creates the marker directory.
func (c *Cache) Ensure() error {
	if err := os.MkdirAll(c.dir, 0750); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	return nil
}

// Key returns the hex SHA-1 digest of rawURL.
func Key(rawURL string) string {
	sum := sha1.Sum([]byte(rawURL)) //nolint:gosec // see import
	return hex.EncodeToString(sum[:])
}

// Path returns the marker path for rawURL.
func (c *Cache) Path(rawURL string) string {
	return filepath.Join(c.dir, Key(rawURL))
}

// Has reports whether rawURL has a marker.
func (c *Cache) Has(rawURL string) bool {
	_, err := os.Stat(c.Path(rawURL))
	return err == nil
}

// Mark writes the marker for rawURL.
func (c *Cache) Mark(rawURL string) error {
	f, err := os.OpenFile(c.Path(rawURL), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to write cache marker: %w", err)
	}
	return f.Close()
}

// Count returns the number of markers present.
func (c *Cache) Count() (int, error) {
	entries, err := os.ReadDir(c.dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	n := 0
	for _, e := range entries {
		if e.Type().IsRegular() {
			n++
		}
	}
	return n, nil
}
