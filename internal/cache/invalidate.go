package cache

import (
    "errors"
    "io/fs"
    "os"
    "path/filepath"
    "strings"
    "time"
)

// ClearDir removes the cache directory and recreates it empty.
func ClearDir(dir string) error {
    if strings.TrimSpace(dir) == "" {
        return errors.New("empty dir")
    }
    if err := os.RemoveAll(dir); err != nil {
        return err
    }
    return os.MkdirAll(dir, 0o755)
}

// PurgeByAge removes cache files whose modification time is older than
// maxAge. A page's meta and body are removed together. It returns the number
// of entries removed.
func PurgeByAge(dir string, maxAge time.Duration) (int, error) {
    if maxAge <= 0 || strings.TrimSpace(dir) == "" {
        return 0, nil
    }
    if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
        return 0, nil
    }
    cutoff := time.Now().Add(-maxAge)
    removed := 0
    err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
        if err != nil {
            return err
        }
        if d.IsDir() {
            return nil
        }
        name := d.Name()
        if strings.HasSuffix(name, ".body") || strings.HasSuffix(name, ".tmp") {
            // bodies go with their meta file
            return nil
        }
        if !strings.HasSuffix(name, ".json") {
            return nil
        }
        info, err := d.Info()
        if err != nil || !info.ModTime().Before(cutoff) {
            return nil
        }
        removed++
        _ = os.Remove(path)
        if base, ok := strings.CutSuffix(path, ".meta.json"); ok {
            _ = os.Remove(base + ".body")
        }
        return nil
    })
    return removed, err
}
