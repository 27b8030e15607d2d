package app

import (
    "os"
    "strconv"
    "strings"
    "time"
)

// ApplyEnvToConfig populates unset fields of cfg from environment variables.
// Explicit cfg values take precedence over env.
func ApplyEnvToConfig(cfg *Config) {
    if cfg == nil { return }

    if cfg.LLMBaseURL == "" {
        cfg.LLMBaseURL = os.Getenv("OPENAI_API_BASE")
    }
    if cfg.LLMAPIKey == "" {
        cfg.LLMAPIKey = os.Getenv("OPENAI_API_KEY")
    }
    if cfg.LLMModel == "" {
        cfg.LLMModel = os.Getenv("LLM_MODEL")
    }
    if cfg.LLMMaxTokens == 0 {
        if n, err := strconv.Atoi(strings.TrimSpace(os.Getenv("LLM_MAX_TOKENS"))); err == nil && n > 0 {
            cfg.LLMMaxTokens = n
        }
    }

    if cfg.RuleFile == "" {
        cfg.RuleFile = os.Getenv("TOMD_RULE_FILE")
    }
    if cfg.CacheDir == "" {
        cfg.CacheDir = os.Getenv("TOMD_CACHE_DIR")
    }
    if cfg.BrowserBin == "" {
        cfg.BrowserBin = os.Getenv("TOMD_BROWSER_BIN")
    }
    if cfg.Language == "" {
        cfg.Language = os.Getenv("TOMD_LANGUAGE")
    }

    // TOMD_TIMEOUT accepts a Go duration or plain seconds.
    if cfg.Timeout == 0 {
        if d, ok := parseTimeout(os.Getenv("TOMD_TIMEOUT")); ok {
            cfg.Timeout = d
        }
    }
    if cfg.Deadline == 0 {
        if d, ok := parseTimeout(os.Getenv("TOMD_DEADLINE")); ok {
            cfg.Deadline = d
        }
    }
    if cfg.CacheMaxAge == 0 {
        if s := os.Getenv("TOMD_CACHE_MAX_AGE"); s != "" {
            if d, err := time.ParseDuration(s); err == nil {
                cfg.CacheMaxAge = d
            }
        }
    }

    setBool := func(dst *bool, envKey string) {
        if *dst { return }
        if s := strings.ToLower(strings.TrimSpace(os.Getenv(envKey))); s != "" {
            if s == "1" || s == "true" || s == "yes" || s == "on" {
                *dst = true
            }
        }
    }
    setBool(&cfg.Verbose, "TOMD_VERBOSE")
    setBool(&cfg.BrowserNoSandbox, "TOMD_BROWSER_NO_SANDBOX")
    setBool(&cfg.CacheStrictPerms, "TOMD_CACHE_STRICT_PERMS")
    setBool(&cfg.InsecureTLS, "TOMD_INSECURE_TLS")
}

func parseTimeout(s string) (time.Duration, bool) {
    s = strings.TrimSpace(s)
    if s == "" {
        return 0, false
    }
    if n, err := strconv.Atoi(s); err == nil && n > 0 {
        return time.Duration(n) * time.Second, true
    }
    if d, err := time.ParseDuration(s); err == nil && d > 0 {
        return d, true
    }
    return 0, false
}
