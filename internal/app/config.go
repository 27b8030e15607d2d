package app

import "time"

// Config holds runtime configuration for the application.
type Config struct {
	Inputs        []string
	OutputPath    string
	OutputPDFPath string

	// Request options
	UseBrowser      bool
	ContentSelector string
	RuleFile        string
	Enhance         bool
	Language        string

	// LLM
	LLMBaseURL   string
	LLMModel     string
	LLMAPIKey    string
	LLMMaxTokens int

	// Retrieval
	// Timeout bounds each network call: one fetch, one browser render or
	// one model request.
	Timeout          time.Duration
	// Deadline bounds a whole conversion request. Zero means none.
	Deadline         time.Duration
	BlockedStatuses  []int
	MinContentLength int
	BrowserBin       string
	BrowserNoSandbox bool
	BrowserPoolSize  int
	// InsecureTLS skips certificate verification for lightweight fetches.
	InsecureTLS bool

	// Behavior
	Concurrency      int
	CacheDir         string
	CacheMaxAge      time.Duration
	CacheClear       bool
	CacheStrictPerms bool
	Verbose          bool
}

// Defaults applied by ApplyDefaults when a field is left zero.
const (
	DefaultTimeout          = 30 * time.Second
	DefaultLLMMaxTokens     = 8192
	DefaultMinContentLength = 512
	DefaultConcurrency      = 4
	DefaultBrowserPoolSize  = 2
)

// ApplyDefaults fills zero fields with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.LLMMaxTokens == 0 {
		cfg.LLMMaxTokens = DefaultLLMMaxTokens
	}
	if cfg.MinContentLength == 0 {
		cfg.MinContentLength = DefaultMinContentLength
	}
	if len(cfg.BlockedStatuses) == 0 {
		cfg.BlockedStatuses = []int{403, 429, 503}
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.BrowserPoolSize == 0 {
		cfg.BrowserPoolSize = DefaultBrowserPoolSize
	}
}
