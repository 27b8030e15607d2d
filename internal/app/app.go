package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/tomd/internal/browser"
	"github.com/hyperifyio/tomd/internal/budget"
	"github.com/hyperifyio/tomd/internal/cache"
	"github.com/hyperifyio/tomd/internal/enhance"
	"github.com/hyperifyio/tomd/internal/fetch"
	"github.com/hyperifyio/tomd/internal/llm"
	"github.com/hyperifyio/tomd/internal/pipeline"
	"github.com/hyperifyio/tomd/internal/retrieve"
)

// App wires the conversion pipeline from a Config.
type App struct {
	cfg       Config
	pipe      *pipeline.Pipeline
	pool      *browser.Pool
	httpCache *cache.HTTPCache
}

// ErrPartialBatch is returned when some inputs of a batch failed.
var ErrPartialBatch = errors.New("some inputs failed")

// Option customizes New, mainly for tests.
type Option func(*options)

type options struct {
	renderer  browser.Renderer
	llmClient llm.Client
	counter   budget.Counter
}

// WithRenderer replaces the headless browser.
func WithRenderer(r browser.Renderer) Option { return func(o *options) { o.renderer = r } }

// WithLLM replaces the OpenAI-compatible client.
func WithLLM(c llm.Client) Option { return func(o *options) { o.llmClient = c } }

// WithCounter replaces the tiktoken token counter.
func WithCounter(c budget.Counter) Option { return func(o *options) { o.counter = c } }

func New(ctx context.Context, cfg Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	ApplyDefaults(&cfg)

	a := &App{cfg: cfg}
	var llmCache *cache.LLMCache
	if cfg.CacheDir != "" {
		if cfg.CacheClear {
			if err := cache.ClearDir(cfg.CacheDir); err != nil {
				log.Warn().Err(err).Str("dir", cfg.CacheDir).Msg("cache clear failed")
			}
		}
		if cfg.CacheMaxAge > 0 {
			if n, err := cache.PurgeByAge(cfg.CacheDir, cfg.CacheMaxAge); err != nil {
				log.Warn().Err(err).Msg("cache purge failed")
			} else if n > 0 {
				log.Debug().Int("removed", n).Msg("purged stale cache entries")
			}
		}
		a.httpCache = &cache.HTTPCache{Dir: cfg.CacheDir, StrictPerms: cfg.CacheStrictPerms}
		llmCache = &cache.LLMCache{Dir: cfg.CacheDir, StrictPerms: cfg.CacheStrictPerms}
	}

	client := &fetch.Client{
		HTTPClient:        newHighThroughputHTTPClient(cfg.Timeout, !cfg.InsecureTLS),
		PerRequestTimeout: cfg.Timeout,
		Cache:             a.httpCache,
		MaxConcurrent:     cfg.Concurrency,
	}
	renderer := o.renderer
	if renderer == nil {
		renderer = &browser.RodRenderer{Bin: cfg.BrowserBin, NoSandbox: cfg.BrowserNoSandbox}
	}
	a.pool = browser.NewPool(renderer, cfg.BrowserPoolSize)
	lw := retrieve.HTTP{Client: client}
	strategy := &retrieve.Strategy{
		Lightweight: lw,
		Browser:     retrieve.Rendered{Renderer: a.pool, Timeout: cfg.Timeout},
		Resolver:    lw,
		Policy:      retrieve.Policy{BlockedStatuses: cfg.BlockedStatuses, MinContentLength: cfg.MinContentLength},
	}

	enh := enhance.Config{
		BaseURL:           cfg.LLMBaseURL,
		APIKey:            cfg.LLMAPIKey,
		Model:             cfg.LLMModel,
		MaxTokensPerChunk: cfg.LLMMaxTokens,
		CallTimeout:       cfg.Timeout,
		Cache:             llmCache,
	}
	if enh.Model == "" {
		enh.Model = enhance.DefaultModel
	}
	llmClient := o.llmClient
	enh.Counter = o.counter
	// Without a key enhancement fails up front, so skip the setup.
	if cfg.Enhance && strings.TrimSpace(cfg.LLMAPIKey) != "" {
		if enh.Counter == nil {
			if tk, err := budget.NewTiktoken(enh.Model); err != nil {
				log.Warn().Err(err).Msg("tiktoken unavailable; using character estimate")
			} else {
				enh.Counter = tk
			}
		}
		if llmClient == nil {
			p := llm.NewOpenAIProvider(llm.Settings{
				BaseURL:    cfg.LLMBaseURL,
				APIKey:     cfg.LLMAPIKey,
				HTTPClient: newHighThroughputHTTPClient(cfg.Timeout, !cfg.InsecureTLS),
			})
			preflight(ctx, p)
			llmClient = p
		}
	}

	a.pipe = &pipeline.Pipeline{
		Retriever:      strategy,
		Enhance:        enh,
		LLM:            llmClient,
		Timeout:        cfg.Deadline,
		ConvertTimeout: cfg.Timeout,
	}
	return a, nil
}

// preflight lists models to surface an unreachable endpoint early. It never
// fails; enhancement reports the real error with its kind.
func preflight(ctx context.Context, lister llm.ModelLister) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	models, err := lister.ListModels(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("LLM model list failed; continuing")
		return
	}
	if len(models.Models) > 0 {
		log.Info().Int("count", len(models.Models)).Msg("LLM models available")
	} else {
		log.Warn().Msg("LLM returned zero models")
	}
}

// Pipeline exposes the configured pipeline, for the MCP server.
func (a *App) Pipeline() *pipeline.Pipeline { return a.pipe }

// Close releases the browser pool.
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

// Request builds a pipeline request for reference from the configured options.
func (a *App) Request(reference string) pipeline.Request {
	return pipeline.Request{
		Reference:       strings.TrimSpace(reference),
		UseBrowser:      a.cfg.UseBrowser,
		ContentSelector: a.cfg.ContentSelector,
		RuleFile:        a.cfg.RuleFile,
		Enhance:         a.cfg.Enhance,
		Language:        a.cfg.Language,
	}
}

// Run converts every configured input. A single input goes to OutputPath (or
// stdout, when empty) and optionally to OutputPDFPath. Several inputs are
// converted in parallel: with OutputPath set they are written into that
// directory with a manifest, otherwise to stdout in input order.
func (a *App) Run(ctx context.Context, stdout io.Writer) error {
	if err := ValidateConfig(a.cfg); err != nil {
		return err
	}
	if len(a.cfg.Inputs) == 1 {
		return a.runOne(ctx, stdout)
	}
	return a.runBatch(ctx, stdout)
}

func (a *App) runOne(ctx context.Context, stdout io.Writer) error {
	req := a.Request(a.cfg.Inputs[0])
	res, err := a.pipe.Run(ctx, req)
	if err != nil {
		return err
	}
	log.Info().Str("reference", req.Reference).Str("kind", res.Kind.String()).Str("method", string(res.Method)).Int("chars", len(res.Markdown)).Msg("converted")

	if a.cfg.OutputPath == "" {
		if _, err := io.WriteString(stdout, withNewline(res.Markdown)); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	} else if err := os.WriteFile(a.cfg.OutputPath, []byte(withNewline(res.Markdown)), 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	} else {
		log.Info().Str("out", a.cfg.OutputPath).Msg("wrote markdown")
	}
	if a.cfg.OutputPDFPath != "" {
		if err := WritePDF(res.Markdown, a.cfg.OutputPDFPath); err != nil {
			return fmt.Errorf("write pdf: %w", err)
		}
		log.Info().Str("out", a.cfg.OutputPDFPath).Msg("wrote pdf")
	}
	return nil
}

func (a *App) runBatch(ctx context.Context, stdout io.Writer) error {
	reqs := make([]pipeline.Request, 0, len(a.cfg.Inputs))
	for _, in := range a.cfg.Inputs {
		reqs = append(reqs, a.Request(in))
	}
	results := a.pipe.Batch(ctx, reqs, a.cfg.Concurrency)

	dir := a.cfg.OutputPath
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	outputs := make([]string, len(results))
	var failed []error
	for i, r := range results {
		if r.Err != nil {
			failed = append(failed, fmt.Errorf("%s: %w", r.Request.Reference, r.Err))
			continue
		}
		if dir == "" {
			if _, err := io.WriteString(stdout, withNewline(r.Result.Markdown)+"\n"); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			continue
		}
		path := outputPathFor(dir, i, r.Request.Reference)
		if err := os.WriteFile(path, []byte(withNewline(r.Result.Markdown)), 0o644); err != nil {
			failed = append(failed, fmt.Errorf("%s: write output: %w", r.Request.Reference, err))
			continue
		}
		outputs[i] = path
	}
	if dir != "" {
		meta := manifestMeta{
			Enhanced:    a.cfg.Enhance,
			Model:       a.pipe.Enhance.Model,
			Language:    a.cfg.Language,
			HTTPCache:   a.httpCache != nil,
			Inputs:      len(results),
			Failed:      len(failed),
			GeneratedAt: time.Now().UTC(),
		}
		if !a.cfg.Enhance {
			meta.Model = ""
		}
		if err := writeManifest(dir, meta, buildManifestEntries(results, outputs)); err != nil {
			return fmt.Errorf("write manifest: %w", err)
		}
	}
	log.Info().Int("inputs", len(results)).Int("failed", len(failed)).Msg("batch finished")
	if len(failed) > 0 {
		return fmt.Errorf("%w: %w", ErrPartialBatch, errors.Join(failed...))
	}
	return nil
}

func withNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
