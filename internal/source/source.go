// Package source classifies input references into the kind of document they
// name and applies the URL rewrites that run ahead of retrieval.
package source

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hyperifyio/tomd/internal/errs"
)

// Kind is the closed set of supported source kinds.
type Kind int

const (
	KindUnknown Kind = iota
	KindLocalHTML
	KindLocalPDF
	KindLocalDOCX
	KindLocalText
	KindLocalMarkdown
	KindRemoteURL
)

func (k Kind) String() string {
	switch k {
	case KindLocalHTML:
		return "html"
	case KindLocalPDF:
		return "pdf"
	case KindLocalDOCX:
		return "docx"
	case KindLocalText:
		return "text"
	case KindLocalMarkdown:
		return "markdown"
	case KindRemoteURL:
		return "url"
	default:
		return "unknown"
	}
}

// IsLocal reports whether k names a file on disk.
func (k Kind) IsLocal() bool {
	return k != KindUnknown && k != KindRemoteURL
}

var extensions = map[string]Kind{
	".html":     KindLocalHTML,
	".htm":      KindLocalHTML,
	".pdf":      KindLocalPDF,
	".docx":     KindLocalDOCX,
	".txt":      KindLocalText,
	".text":     KindLocalText,
	".md":       KindLocalMarkdown,
	".markdown": KindLocalMarkdown,
}

// SupportedExtensions returns the recognized local file extensions, sorted.
func SupportedExtensions() []string {
	out := make([]string, 0, len(extensions))
	for ext := range extensions {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// IsURL reports whether reference parses as an absolute http(s) URL.
func IsURL(reference string) bool {
	u, err := url.Parse(strings.TrimSpace(reference))
	if err != nil || u.Host == "" {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

// Classify maps a reference to its Kind. URLs win over any extension they
// carry; local references are classified by extension alone.
func Classify(reference string) (Kind, error) {
	if IsURL(reference) {
		return KindRemoteURL, nil
	}
	ext := strings.ToLower(filepath.Ext(reference))
	if k, ok := extensions[ext]; ok {
		return k, nil
	}
	if ext == "" {
		ext = "(none)"
	}
	return KindUnknown, errs.New(errs.ErrUnsupportedFormat, errs.StageClassify, reference,
		fmt.Errorf("extension %s; supported formats: %s", ext, strings.Join(SupportedExtensions(), ", ")))
}

// CheckExists verifies that path names a regular file.
func CheckExists(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errs.New(errs.ErrSourceNotFound, errs.StageClassify, path, nil)
		}
		return errs.New(errs.ErrSourceNotFound, errs.StageClassify, path, err)
	}
	if info.IsDir() {
		return errs.Newf(errs.ErrUnsupportedFormat, errs.StageClassify, "path is not a file: %s", path)
	}
	return nil
}
