package budget

import (
    "math"
    "strings"
)

// EstimateTokensFromChars converts a character count into an estimated token
// count using a conservative heuristic (~4 chars per token in English). The
// result is always at least 1 when chars > 0.
func EstimateTokensFromChars(charCount int) int {
    if charCount <= 0 {
        return 0
    }
    return int(math.Ceil(float64(charCount) / 4.0))
}

// EstimateTokens returns the estimated token count of a string.
func EstimateTokens(s string) int {
    return EstimateTokensFromChars(len(s))
}

// Counter counts tokens in text. Implementations must be safe for concurrent use.
type Counter interface {
    Count(s string) int
}

// Heuristic is the default Counter backed by EstimateTokens.
type Heuristic struct{}

func (Heuristic) Count(s string) int { return EstimateTokens(s) }

// ModelContextTokens returns an estimated maximum context window for a given
// model name. Unknown models fall back to a sensible default.
func ModelContextTokens(modelName string) int {
    name := strings.ToLower(strings.TrimSpace(modelName))
    if name == "" {
        return 8192
    }
    if v, ok := knownModelMax[name]; ok {
        return v
    }
    switch {
    case strings.HasSuffix(name, "1m"):
        return 1_000_000
    case strings.HasSuffix(name, "200k"):
        return 200_000
    case strings.HasSuffix(name, "128k"):
        return 128_000
    case strings.HasSuffix(name, "32k"):
        return 32_768
    case strings.Contains(name, "-mini"):
        return 128_000
    }
    return 8192
}

// HeadroomTokens returns a safety margin for tokenizer and message framing
// overheads: the larger of 5% of the model context or 512 tokens.
func HeadroomTokens(modelName string) int {
    max := ModelContextTokens(modelName)
    dyn := int(math.Ceil(float64(max) * 0.05))
    if dyn < 512 {
        return 512
    }
    return dyn
}

// ChunkBudget returns how many content tokens fit in a single request given
// the configured per-request budget and the fixed instruction overhead.
//
// The per-request budget is clamped so that a request plus an equally sized
// response still fits the model context window. The result is at least 1.
func ChunkBudget(modelName string, maxTokensPerRequest int, overhead int) int {
    limit := maxTokensPerRequest
    ctxCap := (ModelContextTokens(modelName) - HeadroomTokens(modelName)) / 2
    if limit <= 0 || limit > ctxCap {
        limit = ctxCap
    }
    remaining := limit - overhead
    if remaining < 1 {
        return 1
    }
    return remaining
}

// knownModelMax contains rough context sizes for common model identifiers.
var knownModelMax = map[string]int{
    "gpt-4o":        128_000,
    "gpt-4o-mini":   128_000,
    "gpt-4-turbo":   128_000,
    "gpt-4.1":       1_000_000,
    "gpt-4.1-mini":  1_000_000,
    "gpt-4":         8_192,
    "gpt-3.5-turbo": 16_384,

    "claude-3-5-sonnet": 200_000,
    "claude-3-haiku":    200_000,

    "llama-3":   8_192,
    "llama-3.1": 128_000,

    "deepseek-chat": 64_000,
    "qwen-plus":     128_000,
}
