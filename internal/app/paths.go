package app

import (
    "fmt"
    "net/url"
    "path/filepath"
    "regexp"
    "strings"
)

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// slugify lowercases s and replaces runs of non-alphanumerics with hyphens.
func slugify(s string) string {
    s = strings.ToLower(strings.TrimSpace(s))
    s = nonSlug.ReplaceAllString(s, "-")
    s = strings.Trim(s, "-")
    if len(s) > 80 {
        s = strings.TrimRight(s[:80], "-")
    }
    if s == "" { s = "document" }
    return s
}

// outputPathFor returns the Markdown path for the index-th batch input under
// dir. The numeric prefix keeps names unique and in input order.
func outputPathFor(dir string, index int, reference string) string {
    name := reference
    if u, err := url.Parse(reference); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
        name = u.Host + u.Path
    } else {
        base := filepath.Base(reference)
        name = strings.TrimSuffix(base, filepath.Ext(base))
    }
    return filepath.Join(dir, fmt.Sprintf("%03d-%s.md", index+1, slugify(name)))
}
