package llm

import (
    "context"
    "net/http"
    "strings"

    openai "github.com/sashabaranov/go-openai"
)

// Client is the minimal interface needed by the enhancement stage to call a
// chat model. It mirrors go-openai's CreateChatCompletion so any
// OpenAI-compatible backend or a test fake can be plugged in.
type Client interface {
    CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ModelLister is an optional capability that allows listing available models.
// Callers should use a type assertion to detect availability.
type ModelLister interface {
    ListModels(ctx context.Context) (openai.ModelsList, error)
}

// Settings describes how to reach an OpenAI-compatible endpoint.
type Settings struct {
    BaseURL string
    APIKey  string
    // HTTPClient is optional; nil uses go-openai's default.
    HTTPClient *http.Client
}

// OpenAIProvider adapts *openai.Client to the Client/ModelLister interfaces.
type OpenAIProvider struct {
    Inner *openai.Client
}

// NewOpenAIProvider builds a provider from s. An empty BaseURL keeps the
// public OpenAI endpoint.
func NewOpenAIProvider(s Settings) *OpenAIProvider {
    cfg := openai.DefaultConfig(s.APIKey)
    if base := strings.TrimSpace(s.BaseURL); base != "" {
        cfg.BaseURL = strings.TrimRight(base, "/")
    }
    if s.HTTPClient != nil {
        cfg.HTTPClient = s.HTTPClient
    }
    return &OpenAIProvider{Inner: openai.NewClientWithConfig(cfg)}
}

func (p *OpenAIProvider) CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
    return p.Inner.CreateChatCompletion(ctx, request)
}

func (p *OpenAIProvider) ListModels(ctx context.Context) (openai.ModelsList, error) {
    return p.Inner.ListModels(ctx)
}
