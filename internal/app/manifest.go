package app

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperifyio/tomd/internal/errs"
	"github.com/hyperifyio/tomd/internal/pipeline"
)

// ManifestFile is written next to batch outputs.
const ManifestFile = "manifest.json"

// manifestEntry is a compact record of one converted input.
type manifestEntry struct {
	Index     int    `json:"index"`
	Reference string `json:"reference"`
	Output    string `json:"output,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Method    string `json:"method,omitempty"`
	Origin    string `json:"origin,omitempty"`
	SHA256    string `json:"sha256,omitempty"`
	Chars     int    `json:"chars"`
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}

// manifestMeta captures run details that aid reproducibility.
type manifestMeta struct {
	Enhanced    bool      `json:"enhanced"`
	Model       string    `json:"model,omitempty"`
	Language    string    `json:"language,omitempty"`
	HTTPCache   bool      `json:"http_cache"`
	Inputs      int       `json:"inputs"`
	Failed      int       `json:"failed"`
	GeneratedAt time.Time `json:"generated_at"`
}

// computeSHA256Hex returns a lowercase hex-encoded SHA-256 of the given text.
func computeSHA256Hex(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// buildManifestEntries records each batch result. outputs holds the written
// file per index, empty for failures.
func buildManifestEntries(results []pipeline.BatchResult, outputs []string) []manifestEntry {
	out := make([]manifestEntry, 0, len(results))
	for i, r := range results {
		e := manifestEntry{Index: i + 1, Reference: strings.TrimSpace(r.Request.Reference)}
		if i < len(outputs) {
			e.Output = outputs[i]
		}
		if r.Err != nil {
			e.Error = r.Err.Error()
			if k := errs.KindOf(r.Err); k != nil {
				e.ErrorKind = k.Error()
			}
		} else {
			e.Kind = r.Result.Kind.String()
			e.Method = string(r.Result.Method)
			e.Origin = string(r.Result.Origin)
			e.SHA256 = computeSHA256Hex(r.Result.Markdown)
			e.Chars = len(r.Result.Markdown)
		}
		out = append(out, e)
	}
	return out
}

// writeManifest encodes a machine-readable manifest into dir.
func writeManifest(dir string, meta manifestMeta, entries []manifestEntry) error {
	payload := struct {
		Meta    manifestMeta    `json:"meta"`
		Outputs []manifestEntry `json:"outputs"`
	}{Meta: meta, Outputs: entries}
	b, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, ManifestFile), b, 0o644)
}
