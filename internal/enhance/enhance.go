// Package enhance rewrites Markdown through a chat model, optionally
// translating it. Long documents are cut into ordered chunks that each fit
// the per-request token budget; any failed chunk fails the whole document.
package enhance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/tomd/internal/budget"
	"github.com/hyperifyio/tomd/internal/cache"
	"github.com/hyperifyio/tomd/internal/errs"
	"github.com/hyperifyio/tomd/internal/llm"
)

// DefaultModel matches the historical default of the tool.
const DefaultModel = "gpt-3.5-turbo"

// Config selects the endpoint and budget.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	// MaxTokensPerChunk bounds one request (instructions plus content) and
	// the reply. Zero or oversized values are clamped to the model window.
	MaxTokensPerChunk int
	Temperature       float32
	// CallTimeout bounds each model request separately. Zero leaves only the
	// caller's context.
	CallTimeout time.Duration
	// Counter estimates tokens. Nil uses budget.Heuristic.
	Counter budget.Counter
	// Cache stores replies keyed by model and prompt. Optional.
	Cache *cache.LLMCache
}

// Enhancer runs the enhancement stage.
type Enhancer struct {
	client llm.Client
	cfg    Config
}

// Validate reports MissingCredentials when no API key is set. It touches no
// network.
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return errs.New(errs.ErrMissingCredentials, errs.StageEnhance, "OPENAI_API_KEY",
			errors.New("an API key is required for enhancement"))
	}
	return nil
}

// New validates cfg and builds an Enhancer. A nil client gets an
// OpenAI-compatible provider for cfg.BaseURL.
func New(cfg Config, client llm.Client) (*Enhancer, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.3
	}
	if cfg.Counter == nil {
		cfg.Counter = budget.Heuristic{}
	}
	if client == nil {
		client = llm.NewOpenAIProvider(llm.Settings{BaseURL: cfg.BaseURL, APIKey: cfg.APIKey})
	}
	return &Enhancer{client: client, cfg: cfg}, nil
}

// ChunkBudget is the content token allowance per request for lang, after
// the fixed instructions are accounted for.
func (e *Enhancer) ChunkBudget(lang string) int {
	overhead := e.cfg.Counter.Count(systemPrompt) + e.cfg.Counter.Count(userPrompt("", lang))
	return budget.ChunkBudget(e.cfg.Model, e.cfg.MaxTokensPerChunk, overhead)
}

// Chunks returns how md would be cut for lang.
func (e *Enhancer) Chunks(md, lang string) []Chunk {
	return Split(md, e.ChunkBudget(lang), e.cfg.Counter)
}

// Enhance returns the enhanced document, or EnhancementFailed with no
// partial output.
func (e *Enhancer) Enhance(ctx context.Context, md string, lang string) (string, error) {
	if strings.TrimSpace(md) == "" {
		return md, nil
	}
	chunks := e.Chunks(md, lang)
	log.Info().Str("model", e.cfg.Model).Int("chunks", len(chunks)).Int("chars", len(md)).Str("language", lang).Msg("enhancing markdown")

	outputs := make([]string, 0, len(chunks))
	for i, c := range chunks {
		if err := ctx.Err(); err != nil {
			return "", errs.New(errs.ErrEnhancementFailed, errs.StageEnhance, fmt.Sprintf("chunk %d/%d", i+1, len(chunks)), err)
		}
		out, err := e.enhanceChunk(ctx, c.Text, lang)
		if err != nil {
			log.Error().Err(err).Int("chunk", i+1).Int("chunks", len(chunks)).Msg("enhancement failed")
			return "", errs.New(errs.ErrEnhancementFailed, errs.StageEnhance, fmt.Sprintf("chunk %d/%d", i+1, len(chunks)), err)
		}
		log.Debug().Int("chunk", i+1).Int("chunks", len(chunks)).Int("in_chars", len(c.Text)).Int("out_chars", len(out)).Msg("chunk enhanced")
		outputs = append(outputs, out)
	}
	return Join(chunks, outputs), nil
}

func (e *Enhancer) enhanceChunk(ctx context.Context, chunk, lang string) (string, error) {
	user := userPrompt(chunk, lang)
	var key string
	if e.cfg.Cache != nil {
		key = cache.KeyFrom(e.cfg.Model, systemPrompt+"\n\n"+user)
		if out, ok, _ := e.cfg.Cache.Get(ctx, key); ok {
			return out, nil
		}
	}
	req := openai.ChatCompletionRequest{
		Model: e.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: e.cfg.Temperature,
		N:           1,
	}
	if e.cfg.MaxTokensPerChunk > 0 {
		req.MaxTokens = e.cfg.MaxTokensPerChunk
	}
	if e.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.CallTimeout)
		defer cancel()
	}
	resp, err := e.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices returned")
	}
	out := unwrap(resp.Choices[0].Message.Content)
	if out == "" {
		return "", errors.New("empty response")
	}
	if e.cfg.Cache != nil {
		if err := e.cfg.Cache.Save(ctx, key, e.cfg.Model, out); err != nil {
			log.Debug().Err(err).Msg("llm cache save failed")
		}
	}
	return out, nil
}
