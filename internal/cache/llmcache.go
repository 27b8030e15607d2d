package cache

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"
)

// LLMCache stores enhancement outputs under Dir/llm keyed by model and prompt.
type LLMCache struct {
    Dir         string
    StrictPerms bool
}

type llmEntry struct {
	Model   string    `json:"model"`
	Output  string    `json:"output"`
	SavedAt time.Time `json:"saved_at"`
}

// KeyFrom builds a cache key from the model name and the full prompt text.
func KeyFrom(model string, prompt string) string {
	return digest(model, prompt)
}

func (c *LLMCache) root() string { return filepath.Join(c.Dir, "llm") }

func (c *LLMCache) pathFor(key string) string {
	return filepath.Join(c.root(), key+".json")
}

// Get returns the cached output for key. A miss is not an error.
func (c *LLMCache) Get(_ context.Context, key string) (string, bool, error) {
	if c == nil || c.Dir == "" {
		return "", false, errors.New("cache dir not configured")
	}
	p := c.pathFor(key)
    b, err := os.ReadFile(p)
    if err != nil {
        return "", false, nil
    }
	var e llmEntry
	if err := json.Unmarshal(b, &e); err != nil || e.Output == "" {
		return "", false, nil
	}
    // Touch mtime so age-based purges keep recently used entries.
    now := time.Now()
    _ = os.Chtimes(p, now, now)
	return e.Output, true, nil
}

// Save stores output under key.
func (c *LLMCache) Save(_ context.Context, key string, model string, output string) error {
	if c == nil || c.Dir == "" {
		return errors.New("cache dir not configured")
	}
	if err := mkdir(c.root(), c.StrictPerms); err != nil {
		return err
	}
	b, err := json.Marshal(llmEntry{Model: model, Output: output, SavedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	return writeAtomic(c.pathFor(key), b, c.StrictPerms)
}
