package app

import (
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "strings"
    "time"

    yaml "gopkg.in/yaml.v3"
)

// FileConfig represents the single-file configuration schema.
// Nested sections map naturally to flags/env.
type FileConfig struct {
    Output    string `yaml:"output" json:"output"`
    OutputPDF string `yaml:"outputPDF" json:"outputPDF"`

    LLM struct {
        BaseURL   string `yaml:"base" json:"base"`
        Model     string `yaml:"model" json:"model"`
        APIKey    string `yaml:"key" json:"key"`
        MaxTokens int    `yaml:"maxTokens" json:"maxTokens"`
    } `yaml:"llm" json:"llm"`

    Retrieval struct {
        Timeout          time.Duration `yaml:"timeout" json:"timeout"`
        Deadline         time.Duration `yaml:"deadline" json:"deadline"`
        BlockedStatuses  []int         `yaml:"blockedStatuses" json:"blockedStatuses"`
        MinContentLength int           `yaml:"minContentLength" json:"minContentLength"`
        InsecureTLS      bool          `yaml:"insecureTLS" json:"insecureTLS"`
    } `yaml:"retrieval" json:"retrieval"`

    Browser struct {
        Bin       string `yaml:"bin" json:"bin"`
        NoSandbox bool   `yaml:"noSandbox" json:"noSandbox"`
        PoolSize  int    `yaml:"poolSize" json:"poolSize"`
    } `yaml:"browser" json:"browser"`

    Rules struct {
        File string `yaml:"file" json:"file"`
    } `yaml:"rules" json:"rules"`

    Language    string `yaml:"language" json:"language"`
    Enhance     bool   `yaml:"enhance" json:"enhance"`
    Concurrency int    `yaml:"concurrency" json:"concurrency"`
    Verbose     bool   `yaml:"verbose" json:"verbose"`

    Cache struct {
        Dir         string        `yaml:"dir" json:"dir"`
        MaxAge      time.Duration `yaml:"maxAge" json:"maxAge"`
        Clear       bool          `yaml:"clear" json:"clear"`
        StrictPerms bool          `yaml:"strictPerms" json:"strictPerms"`
    } `yaml:"cache" json:"cache"`
}

// LoadConfigFile reads YAML or JSON into FileConfig.
func LoadConfigFile(path string) (FileConfig, error) {
    var fc FileConfig
    b, err := os.ReadFile(path)
    if err != nil {
        return fc, err
    }
    switch ext := filepath.Ext(path); ext {
    case ".yaml", ".yml":
        if err := yaml.Unmarshal(b, &fc); err != nil {
            return fc, fmt.Errorf("parse yaml: %w", err)
        }
    case ".json":
        if err := json.Unmarshal(b, &fc); err != nil {
            return fc, fmt.Errorf("parse json: %w", err)
        }
    default:
        // Try YAML then JSON
        if err := yaml.Unmarshal(b, &fc); err != nil {
            if jerr := json.Unmarshal(b, &fc); jerr != nil {
                return fc, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
            }
        }
    }
    return fc, nil
}

// ApplyFileConfig overlays values from FileConfig into cfg for any fields that
// are currently unset/zero in cfg. Flags should already have been parsed; this
// lets the file supply defaults while preserving explicit flags.
func ApplyFileConfig(cfg *Config, fc FileConfig) {
    if cfg == nil { return }

    if cfg.OutputPath == "" && fc.Output != "" { cfg.OutputPath = fc.Output }
    if cfg.OutputPDFPath == "" && fc.OutputPDF != "" { cfg.OutputPDFPath = fc.OutputPDF }

    if cfg.LLMBaseURL == "" && fc.LLM.BaseURL != "" { cfg.LLMBaseURL = fc.LLM.BaseURL }
    if cfg.LLMModel == "" && fc.LLM.Model != "" { cfg.LLMModel = fc.LLM.Model }
    if cfg.LLMAPIKey == "" && fc.LLM.APIKey != "" { cfg.LLMAPIKey = fc.LLM.APIKey }
    if cfg.LLMMaxTokens == 0 && fc.LLM.MaxTokens > 0 { cfg.LLMMaxTokens = fc.LLM.MaxTokens }

    if cfg.Timeout == 0 && fc.Retrieval.Timeout > 0 { cfg.Timeout = fc.Retrieval.Timeout }
    if cfg.Deadline == 0 && fc.Retrieval.Deadline > 0 { cfg.Deadline = fc.Retrieval.Deadline }
    if len(cfg.BlockedStatuses) == 0 && len(fc.Retrieval.BlockedStatuses) > 0 {
        cfg.BlockedStatuses = append([]int{}, fc.Retrieval.BlockedStatuses...)
    }
    if cfg.MinContentLength == 0 && fc.Retrieval.MinContentLength > 0 { cfg.MinContentLength = fc.Retrieval.MinContentLength }
    if !cfg.InsecureTLS && fc.Retrieval.InsecureTLS { cfg.InsecureTLS = true }

    if cfg.BrowserBin == "" && fc.Browser.Bin != "" { cfg.BrowserBin = fc.Browser.Bin }
    if !cfg.BrowserNoSandbox && fc.Browser.NoSandbox { cfg.BrowserNoSandbox = true }
    if cfg.BrowserPoolSize == 0 && fc.Browser.PoolSize > 0 { cfg.BrowserPoolSize = fc.Browser.PoolSize }

    if cfg.RuleFile == "" && fc.Rules.File != "" { cfg.RuleFile = fc.Rules.File }
    if cfg.Language == "" && fc.Language != "" { cfg.Language = fc.Language }
    if !cfg.Enhance && fc.Enhance { cfg.Enhance = true }
    if cfg.Concurrency == 0 && fc.Concurrency > 0 { cfg.Concurrency = fc.Concurrency }
    if !cfg.Verbose && fc.Verbose { cfg.Verbose = true }

    if cfg.CacheDir == "" && fc.Cache.Dir != "" { cfg.CacheDir = fc.Cache.Dir }
    if cfg.CacheMaxAge == 0 && fc.Cache.MaxAge > 0 { cfg.CacheMaxAge = fc.Cache.MaxAge }
    if !cfg.CacheClear && fc.Cache.Clear { cfg.CacheClear = true }
    if !cfg.CacheStrictPerms && fc.Cache.StrictPerms { cfg.CacheStrictPerms = true }
}

// ValidateConfig performs minimal schema validation. Credentials are checked
// by the enhancement stage itself so that the error carries its kind.
func ValidateConfig(cfg Config) error {
    if len(cfg.Inputs) == 0 {
        return errors.New("config: at least one input file or URL is required")
    }
    for _, in := range cfg.Inputs {
        if strings.TrimSpace(in) == "" {
            return errors.New("config: empty input")
        }
    }
    if cfg.Timeout < 0 || cfg.Deadline < 0 || cfg.LLMMaxTokens < 0 || cfg.MinContentLength < 0 || cfg.Concurrency < 0 {
        return errors.New("config: negative limits are not allowed")
    }
    for _, s := range cfg.BlockedStatuses {
        if s < 100 || s > 599 {
            return fmt.Errorf("config: blocked status %d is not an HTTP status", s)
        }
    }
    if cfg.OutputPDFPath != "" && len(cfg.Inputs) > 1 {
        return errors.New("config: PDF output takes a single input")
    }
    return nil
}
