package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/tomd/internal/browser"
	"github.com/hyperifyio/tomd/internal/budget"
	"github.com/hyperifyio/tomd/internal/errs"
)

type countingRenderer struct {
	calls atomic.Int32
	html  string
}

func (r *countingRenderer) Render(_ context.Context, url string) (*browser.Page, error) {
	r.calls.Add(1)
	return &browser.Page{HTML: r.html, FinalURL: url}, nil
}

type echoLLM struct{ calls atomic.Int32 }

func (e *echoLLM) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	e.calls.Add(1)
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{
		Message: openai.ChatCompletionMessage{Content: "<enhanced_content>```markdown\nPolished.\n```</enhanced_content>"},
	}}}, nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func newTestApp(t *testing.T, cfg Config, opts ...Option) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, opts...)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(a.Close)
	return a
}

func TestRun_SingleMarkdownToStdout(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "notes.md", "# Notes\n\nHello.\n")

	a := newTestApp(t, Config{Inputs: []string{in}})
	var out bytes.Buffer
	if err := a.Run(context.Background(), &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := out.String(); got != "# Notes\n\nHello.\n" {
		t.Fatalf("stdout=%q", got)
	}
}

func TestRun_WritesMarkdownAndPDF(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "page.html", "<html><body><h1>Title</h1><p>See <a href=\"https://example.com\">this</a>.</p></body></html>")
	mdPath := filepath.Join(dir, "out.md")
	pdfPath := filepath.Join(dir, "out.pdf")

	a := newTestApp(t, Config{Inputs: []string{in}, OutputPath: mdPath, OutputPDFPath: pdfPath})
	if err := a.Run(context.Background(), &bytes.Buffer{}); err != nil {
		t.Fatalf("run: %v", err)
	}
	md, err := os.ReadFile(mdPath)
	if err != nil {
		t.Fatalf("read md: %v", err)
	}
	if !strings.Contains(string(md), "# Title") || !strings.Contains(string(md), "[this](https://example.com)") {
		t.Fatalf("unexpected markdown: %q", md)
	}
	pdf, err := os.ReadFile(pdfPath)
	if err != nil {
		t.Fatalf("read pdf: %v", err)
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF-")) {
		t.Fatalf("output is not a PDF")
	}
}

func TestRun_MissingFileKeepsKind(t *testing.T) {
	a := newTestApp(t, Config{Inputs: []string{filepath.Join(t.TempDir(), "absent.md")}})
	err := a.Run(context.Background(), &bytes.Buffer{})
	if !errors.Is(err, errs.ErrSourceNotFound) {
		t.Fatalf("want SourceNotFound, got %v", err)
	}
}

func TestRun_BatchWritesFilesAndManifest(t *testing.T) {
	dir := t.TempDir()
	a1 := writeFile(t, dir, "a.txt", "alpha")
	b1 := writeFile(t, dir, "b.md", "# Beta")
	missing := filepath.Join(dir, "gone.docx")
	outDir := filepath.Join(dir, "out")

	a := newTestApp(t, Config{Inputs: []string{a1, missing, b1}, OutputPath: outDir, Concurrency: 2})
	err := a.Run(context.Background(), &bytes.Buffer{})
	if !errors.Is(err, ErrPartialBatch) || !errors.Is(err, errs.ErrSourceNotFound) {
		t.Fatalf("want partial batch with SourceNotFound, got %v", err)
	}

	got, err := os.ReadFile(filepath.Join(outDir, "001-a.md"))
	if err != nil || string(got) != "alpha\n" {
		t.Fatalf("first output=%q err=%v", got, err)
	}
	if _, err := os.Stat(filepath.Join(outDir, "003-b.md")); err != nil {
		t.Fatalf("third output missing: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(outDir, ManifestFile))
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	var m struct {
		Meta    manifestMeta    `json:"meta"`
		Outputs []manifestEntry `json:"outputs"`
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	if m.Meta.Inputs != 3 || m.Meta.Failed != 1 || len(m.Outputs) != 3 {
		t.Fatalf("unexpected manifest meta: %+v", m.Meta)
	}
	if m.Outputs[1].ErrorKind != errs.ErrSourceNotFound.Error() || m.Outputs[1].Output != "" {
		t.Fatalf("failed entry not recorded: %+v", m.Outputs[1])
	}
	if m.Outputs[0].SHA256 != computeSHA256Hex("alpha") || m.Outputs[0].Kind != "text" {
		t.Fatalf("first entry: %+v", m.Outputs[0])
	}
}

func TestRun_BatchToStdoutKeepsOrder(t *testing.T) {
	dir := t.TempDir()
	var inputs []string
	for _, n := range []string{"one", "two", "three"} {
		inputs = append(inputs, writeFile(t, dir, n+".txt", n))
	}
	a := newTestApp(t, Config{Inputs: inputs})
	var out bytes.Buffer
	if err := a.Run(context.Background(), &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := out.String(); got != "one\n\ntwo\n\nthree\n\n" {
		t.Fatalf("stdout=%q", got)
	}
}

func TestRun_BlockedURLFallsBackToBrowser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	r := &countingRenderer{html: "<html><body><article><h1>Rendered</h1><p>" + strings.Repeat("body text ", 80) + "</p></article></body></html>"}
	a := newTestApp(t, Config{Inputs: []string{srv.URL + "/post"}}, WithRenderer(r))
	var out bytes.Buffer
	if err := a.Run(context.Background(), &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	if r.calls.Load() != 1 {
		t.Fatalf("browser calls=%d, want 1", r.calls.Load())
	}
	if !strings.HasPrefix(out.String(), "# Source: "+srv.URL+"/post\n\n") || !strings.Contains(out.String(), "# Rendered") {
		t.Fatalf("unexpected output: %q", out.String())
	}
}

func TestRun_LightweightTimeoutStillReachesBrowser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	r := &countingRenderer{html: "<html><body><article><h1>Rendered</h1><p>" + strings.Repeat("body text ", 80) + "</p></article></body></html>"}
	a := newTestApp(t, Config{Inputs: []string{srv.URL + "/slow"}, Timeout: 300 * time.Millisecond}, WithRenderer(r))
	var out bytes.Buffer
	if err := a.Run(context.Background(), &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	if r.calls.Load() != 1 {
		t.Fatalf("browser calls=%d, want 1", r.calls.Load())
	}
	if !strings.Contains(out.String(), "# Rendered") {
		t.Fatalf("unexpected output: %q", out.String())
	}
}

// slowLLM takes delay per call and gives up when its context ends.
type slowLLM struct {
	delay time.Duration
	calls atomic.Int32
}

func (s *slowLLM) CreateChatCompletion(ctx context.Context, _ openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.calls.Add(1)
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return openai.ChatCompletionResponse{}, ctx.Err()
	}
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{
		Message: openai.ChatCompletionMessage{Content: "<enhanced_content>```markdown\nPolished.\n```</enhanced_content>"},
	}}}, nil
}

func TestRun_TimeoutAppliesPerModelCall(t *testing.T) {
	dir := t.TempDir()
	paras := make([]string, 6)
	for i := range paras {
		paras[i] = strings.TrimSpace(strings.Repeat("word ", 80))
	}
	in := writeFile(t, dir, "long.md", strings.Join(paras, "\n\n"))

	llm := &slowLLM{delay: 150 * time.Millisecond}
	a := newTestApp(t, Config{
		Inputs:       []string{in},
		Enhance:      true,
		LLMAPIKey:    "sk-test",
		LLMMaxTokens: 400,
		Timeout:      300 * time.Millisecond,
	}, WithLLM(llm), WithCounter(budget.Heuristic{}))
	var out bytes.Buffer
	if err := a.Run(context.Background(), &out); err != nil {
		t.Fatalf("run: %v (calls=%d)", err, llm.calls.Load())
	}
	if n := llm.calls.Load(); n < 3 {
		t.Fatalf("calls=%d, want one per chunk with a total well past the timeout", n)
	}
}

func TestRun_DeadlineBoundsWholeRequest(t *testing.T) {
	dir := t.TempDir()
	paras := make([]string, 6)
	for i := range paras {
		paras[i] = strings.TrimSpace(strings.Repeat("word ", 80))
	}
	in := writeFile(t, dir, "long.md", strings.Join(paras, "\n\n"))

	llm := &slowLLM{delay: 150 * time.Millisecond}
	a := newTestApp(t, Config{
		Inputs:       []string{in},
		Enhance:      true,
		LLMAPIKey:    "sk-test",
		LLMMaxTokens: 400,
		Timeout:      time.Second,
		Deadline:     250 * time.Millisecond,
	}, WithLLM(llm), WithCounter(budget.Heuristic{}))
	err := a.Run(context.Background(), &bytes.Buffer{})
	if !errors.Is(err, errs.ErrEnhancementFailed) || !errors.Is(err, errs.ErrTimeout) {
		t.Fatalf("want enhancement timeout, got %v", err)
	}
}

func TestRun_EnhanceWithoutKeyFailsUpFront(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "a.md", "text")
	llm := &echoLLM{}
	a := newTestApp(t, Config{Inputs: []string{in}, Enhance: true}, WithLLM(llm), WithCounter(budget.Heuristic{}))
	err := a.Run(context.Background(), &bytes.Buffer{})
	if !errors.Is(err, errs.ErrMissingCredentials) {
		t.Fatalf("want MissingCredentials, got %v", err)
	}
	if llm.calls.Load() != 0 {
		t.Fatalf("model called without credentials")
	}
}

func TestRun_EnhanceUsesInjectedClient(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "a.md", "rough draft")
	llm := &echoLLM{}
	a := newTestApp(t, Config{Inputs: []string{in}, Enhance: true, LLMAPIKey: "sk-test"}, WithLLM(llm), WithCounter(budget.Heuristic{}))
	var out bytes.Buffer
	if err := a.Run(context.Background(), &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.String() != "Polished.\n" || llm.calls.Load() != 1 {
		t.Fatalf("out=%q calls=%d", out.String(), llm.calls.Load())
	}
}

func TestRun_RequiresInput(t *testing.T) {
	a := newTestApp(t, Config{})
	if err := a.Run(context.Background(), &bytes.Buffer{}); err == nil {
		t.Fatalf("expected error without inputs")
	}
}

func TestRequest_CarriesOptions(t *testing.T) {
	a := newTestApp(t, Config{UseBrowser: true, ContentSelector: "#main", RuleFile: "r.yml", Enhance: true, Language: "fi"}, WithCounter(budget.Heuristic{}))
	req := a.Request("  https://example.com  ")
	if req.Reference != "https://example.com" || !req.UseBrowser || req.ContentSelector != "#main" ||
		req.RuleFile != "r.yml" || !req.Enhance || req.Language != "fi" {
		t.Fatalf("unexpected request: %+v", req)
	}
}
