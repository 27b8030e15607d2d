package extract

// Extractor defines a minimal interface for main-content strategies.
// Implementations can swap readability tactics without changing callers.
type Extractor interface {
    // Extract picks the main content out of raw HTML bytes.
    // Implementations should be deterministic and avoid side effects.
    Extract(input []byte) Document
}

// HeuristicExtractor uses FromHTML.
type HeuristicExtractor struct{}

func (HeuristicExtractor) Extract(input []byte) Document {
    return FromHTML(input)
}
