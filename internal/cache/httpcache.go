// Package cache provides small on-disk caches for fetched pages and
// enhancement responses. Entries are keyed by sha256 digests and written
// atomically via rename.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// PageEntry holds the validators needed for a conditional re-fetch.
type PageEntry struct {
	URL          string    `json:"url"`
	FinalURL     string    `json:"final_url"`
	ContentType  string    `json:"content_type"`
	ETag         string    `json:"etag"`
	LastModified string    `json:"last_modified"`
	SavedAt      time.Time `json:"saved_at"`
}

// HTTPCache stores <key>.meta.json and <key>.body under Dir/http.
type HTTPCache struct {
	Dir string
	// StrictPerms restricts directories to 0700 and files to 0600.
	StrictPerms bool
}

func (c *HTTPCache) root() string { return filepath.Join(c.Dir, "http") }

func (c *HTTPCache) ensureDir() error {
	if c == nil || c.Dir == "" {
		return errors.New("cache dir not configured")
	}
	return mkdir(c.root(), c.StrictPerms)
}

func digest(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte("\n\n"))
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (c *HTTPCache) metaPath(url string) string {
	return filepath.Join(c.root(), digest(url)+".meta.json")
}

func (c *HTTPCache) bodyPath(url string) string {
	return filepath.Join(c.root(), digest(url)+".body")
}

// Lookup returns the cached entry for url, or ok=false when absent.
func (c *HTTPCache) Lookup(_ context.Context, url string) (*PageEntry, bool) {
	if err := c.ensureDir(); err != nil {
		return nil, false
	}
	b, err := os.ReadFile(c.metaPath(url))
	if err != nil {
		return nil, false
	}
	var e PageEntry
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, false
	}
	return &e, true
}

// Body returns the cached body for url.
func (c *HTTPCache) Body(_ context.Context, url string) ([]byte, error) {
	if err := c.ensureDir(); err != nil {
		return nil, err
	}
	return os.ReadFile(c.bodyPath(url))
}

// Store writes entry and body. The body lands first so a meta file never
// points at a missing body.
func (c *HTTPCache) Store(_ context.Context, entry PageEntry, body []byte) error {
	if err := c.ensureDir(); err != nil {
		return err
	}
	if entry.SavedAt.IsZero() {
		entry.SavedAt = time.Now().UTC()
	}
	if err := writeAtomic(c.bodyPath(entry.URL), body, c.StrictPerms); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	meta, err := json.Marshal(&entry)
	if err != nil {
		return fmt.Errorf("encode meta: %w", err)
	}
	return writeAtomic(c.metaPath(entry.URL), meta, c.StrictPerms)
}

func mkdir(dir string, strict bool) error {
	perm := os.FileMode(0o755)
	if strict {
		perm = 0o700
	}
	if err := os.MkdirAll(dir, perm); err != nil {
		return err
	}
	if strict {
		if info, err := os.Stat(dir); err == nil && info.Mode()&0o777 != 0o700 {
			_ = os.Chmod(dir, 0o700)
		}
	}
	return nil
}

func writeAtomic(path string, data []byte, strict bool) error {
	mode := os.FileMode(0o644)
	if strict {
		mode = 0o600
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, mode); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
