package llm

import (
    "context"
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "testing"

    openai "github.com/sashabaranov/go-openai"
)

func TestOpenAIProvider_UsesBaseURLAndKey(t *testing.T) {
    var auth, path string
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        auth = r.Header.Get("Authorization")
        path = r.URL.Path
        w.Header().Set("Content-Type", "application/json")
        _ = json.NewEncoder(w).Encode(map[string]any{
            "id":      "x",
            "object":  "chat.completion",
            "choices": []map[string]any{{"index": 0, "message": map[string]string{"role": "assistant", "content": "hi"}}},
        })
    }))
    defer srv.Close()

    p := NewOpenAIProvider(Settings{BaseURL: srv.URL + "/v1/", APIKey: "sk-test"})
    resp, err := p.CreateChatCompletion(context.Background(), openai.ChatCompletionRequest{
        Model:    "gpt-3.5-turbo",
        Messages: []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: "hello"}},
    })
    if err != nil {
        t.Fatalf("create: %v", err)
    }
    if len(resp.Choices) != 1 || resp.Choices[0].Message.Content != "hi" {
        t.Fatalf("unexpected response: %+v", resp)
    }
    if auth != "Bearer sk-test" {
        t.Fatalf("authorization = %q", auth)
    }
    if path != "/v1/chat/completions" {
        t.Fatalf("path = %q", path)
    }
}

func TestOpenAIProvider_ImplementsModelLister(t *testing.T) {
    var c Client = NewOpenAIProvider(Settings{APIKey: "k"})
    if _, ok := c.(ModelLister); !ok {
        t.Fatalf("expected provider to list models")
    }
}
