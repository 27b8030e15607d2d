package app

import (
    "os"
    "path/filepath"
    "strings"
    "testing"
    "time"
)

func TestLoadConfigFile_YAML(t *testing.T) {
    dir := t.TempDir()
    p := filepath.Join(dir, "tomd.yaml")
    content := `llm:
  base: http://localhost:8080/v1
  model: local-model
  maxTokens: 2048
retrieval:
  timeout: 20s
  deadline: 5m
  blockedStatuses: [403, 451]
  minContentLength: 300
browser:
  bin: /opt/chrome
  poolSize: 3
rules:
  file: site-rules.yml
language: de
concurrency: 6
cache:
  dir: .tomd-cache
  maxAge: 24h
`
    if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
        t.Fatalf("write: %v", err)
    }
    fc, err := LoadConfigFile(p)
    if err != nil {
        t.Fatalf("LoadConfigFile: %v", err)
    }
    var cfg Config
    ApplyFileConfig(&cfg, fc)
    if cfg.LLMBaseURL != "http://localhost:8080/v1" || cfg.LLMModel != "local-model" || cfg.LLMMaxTokens != 2048 {
        t.Fatalf("llm section not applied: %+v", cfg)
    }
    if cfg.Timeout != 20*time.Second || cfg.Deadline != 5*time.Minute || cfg.MinContentLength != 300 {
        t.Fatalf("retrieval section not applied: %+v", cfg)
    }
    if len(cfg.BlockedStatuses) != 2 || cfg.BlockedStatuses[1] != 451 {
        t.Fatalf("BlockedStatuses=%v", cfg.BlockedStatuses)
    }
    if cfg.BrowserBin != "/opt/chrome" || cfg.BrowserPoolSize != 3 || cfg.RuleFile != "site-rules.yml" {
        t.Fatalf("browser/rules not applied: %+v", cfg)
    }
    if cfg.Language != "de" || cfg.Concurrency != 6 || cfg.CacheDir != ".tomd-cache" || cfg.CacheMaxAge != 24*time.Hour {
        t.Fatalf("misc not applied: %+v", cfg)
    }
}

func TestLoadConfigFile_JSON(t *testing.T) {
    dir := t.TempDir()
    p := filepath.Join(dir, "tomd.json")
    if err := os.WriteFile(p, []byte(`{"llm":{"model":"gpt-4o"},"enhance":true,"output":"out.md"}`), 0o644); err != nil {
        t.Fatalf("write: %v", err)
    }
    fc, err := LoadConfigFile(p)
    if err != nil {
        t.Fatalf("LoadConfigFile: %v", err)
    }
    if fc.LLM.Model != "gpt-4o" || !fc.Enhance || fc.Output != "out.md" {
        t.Fatalf("unexpected file config: %+v", fc)
    }
}

func TestLoadConfigFile_Invalid(t *testing.T) {
    dir := t.TempDir()
    p := filepath.Join(dir, "broken.yaml")
    if err := os.WriteFile(p, []byte("llm: [unterminated"), 0o644); err != nil {
        t.Fatalf("write: %v", err)
    }
    if _, err := LoadConfigFile(p); err == nil || !strings.Contains(err.Error(), "parse yaml") {
        t.Fatalf("expected parse yaml error, got %v", err)
    }
}

// Flags set before the file is applied keep their values.
func TestApplyFileConfig_FlagsWin(t *testing.T) {
    var fc FileConfig
    fc.LLM.Model = "file-model"
    fc.Rules.File = "file-rules.yml"
    cfg := Config{LLMModel: "flag-model"}
    ApplyFileConfig(&cfg, fc)
    if cfg.LLMModel != "flag-model" {
        t.Fatalf("flag overwritten: %q", cfg.LLMModel)
    }
    if cfg.RuleFile != "file-rules.yml" {
        t.Fatalf("unset field not filled: %q", cfg.RuleFile)
    }
}

// File values also win over the environment when applied first.
func TestPrecedence_FileOverEnv(t *testing.T) {
    t.Setenv("LLM_MODEL", "env-model")
    t.Setenv("TOMD_CACHE_DIR", "/env/cache")
    var fc FileConfig
    fc.LLM.Model = "file-model"
    var cfg Config
    ApplyFileConfig(&cfg, fc)
    ApplyEnvToConfig(&cfg)
    ApplyDefaults(&cfg)
    if cfg.LLMModel != "file-model" {
        t.Fatalf("LLMModel=%q, want file-model", cfg.LLMModel)
    }
    if cfg.CacheDir != "/env/cache" {
        t.Fatalf("CacheDir=%q, want /env/cache", cfg.CacheDir)
    }
    if cfg.Timeout != DefaultTimeout || cfg.LLMMaxTokens != DefaultLLMMaxTokens {
        t.Fatalf("defaults not applied: %+v", cfg)
    }
}

func TestApplyDefaults_BlockedStatuses(t *testing.T) {
    var cfg Config
    ApplyDefaults(&cfg)
    if len(cfg.BlockedStatuses) != 3 || cfg.MinContentLength != DefaultMinContentLength {
        t.Fatalf("unexpected defaults: %+v", cfg)
    }
    cfg = Config{BlockedStatuses: []int{451}}
    ApplyDefaults(&cfg)
    if len(cfg.BlockedStatuses) != 1 {
        t.Fatalf("explicit statuses replaced: %v", cfg.BlockedStatuses)
    }
}

func TestValidateConfig(t *testing.T) {
    cases := []struct {
        name string
        cfg  Config
        ok   bool
    }{
        {"ok", Config{Inputs: []string{"a.md"}}, true},
        {"no inputs", Config{}, false},
        {"blank input", Config{Inputs: []string{" "}}, false},
        {"negative", Config{Inputs: []string{"a.md"}, Concurrency: -1}, false},
        {"bad status", Config{Inputs: []string{"a.md"}, BlockedStatuses: []int{42}}, false},
        {"pdf batch", Config{Inputs: []string{"a.md", "b.md"}, OutputPDFPath: "x.pdf"}, false},
    }
    for _, tc := range cases {
        err := ValidateConfig(tc.cfg)
        if (err == nil) != tc.ok {
            t.Fatalf("%s: err=%v, want ok=%v", tc.name, err, tc.ok)
        }
    }
}
