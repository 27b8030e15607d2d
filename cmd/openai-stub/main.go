// Command openai-stub is a local OpenAI-compatible server for manual runs of
// tomd --enhance. It echoes each chunk back inside the expected wrapper,
// optionally prefixed with STUB_PREFIX, so chunking can be inspected offline.
package main

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

const (
	wrapOpen  = "<enhanced_content>```markdown\n"
	wrapClose = "\n```</enhanced_content>"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	model := os.Getenv("MODEL_ID")
	if strings.TrimSpace(model) == "" {
		model = "test-model"
	}
	addr := os.Getenv("ADDR")
	if strings.TrimSpace(addr) == "" {
		addr = ":8081"
	}

	log.Info().Str("addr", addr).Str("model", model).Msg("openai-stub listening")
	if err := http.ListenAndServe(addr, newMux(model, os.Getenv("STUB_PREFIX"))); err != nil {
		log.Fatal().Err(err).Msg("serve")
	}
}

func newMux(model, prefix string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   []map[string]any{{"id": model, "object": "model"}},
		})
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if len(req.Messages) < 2 || !strings.Contains(req.Messages[0].Content, "content editor") {
			http.Error(w, "unexpected system", http.StatusBadRequest)
			return
		}
		chunk := chunkFromPrompt(req.Messages[len(req.Messages)-1].Content)
		log.Debug().Int("chars", len(chunk)).Msg("echoing chunk")
		content := wrapOpen + prefix + chunk + wrapClose

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "chat.completion",
			"model":  model,
			"choices": []map[string]any{
				{"index": 0, "finish_reason": "stop", "message": map[string]string{"role": "assistant", "content": content}},
			},
		})
	})
	return mux
}

// chunkFromPrompt strips the instruction paragraph and the trailing open
// wrapper from a user prompt, leaving the chunk.
func chunkFromPrompt(prompt string) string {
	body := strings.TrimSuffix(prompt, "<enhanced_content>```markdown\n")
	if _, rest, ok := strings.Cut(body, "\n\n"); ok {
		body = rest
	}
	return strings.TrimSpace(body)
}
