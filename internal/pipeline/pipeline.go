// Package pipeline runs one conversion request end to end: classify,
// retrieve, resolve, convert and optionally enhance.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/hyperifyio/tomd/internal/enhance"
	"github.com/hyperifyio/tomd/internal/errs"
	"github.com/hyperifyio/tomd/internal/extract"
	"github.com/hyperifyio/tomd/internal/fetch"
	"github.com/hyperifyio/tomd/internal/llm"
	"github.com/hyperifyio/tomd/internal/markdown"
	"github.com/hyperifyio/tomd/internal/resolve"
	"github.com/hyperifyio/tomd/internal/retrieve"
	"github.com/hyperifyio/tomd/internal/rules"
	"github.com/hyperifyio/tomd/internal/source"
)

// Request is one input and its options.
type Request struct {
	// Reference is a local path or an http(s) URL.
	Reference       string
	UseBrowser      bool
	ContentSelector string
	// RuleFile replaces the default rule file when set.
	RuleFile string
	Enhance  bool
	Language string
}

// Result is a finished conversion.
type Result struct {
	Markdown string
	Kind     source.Kind
	// Method and Origin are set for URL sources.
	Method   retrieve.Method
	Origin   resolve.Origin
	FinalURL string
	Warnings []string
}

// Retriever fetches remote documents.
type Retriever interface {
	Retrieve(ctx context.Context, url string, useBrowser bool) (retrieve.Result, error)
}

// Pipeline holds the collaborators shared by all requests. None of them
// carry per-request state, so one Pipeline serves concurrent requests.
type Pipeline struct {
	Registry  *markdown.Registry
	Retriever Retriever
	Rules     *rules.Loader
	// DefaultRuleFile is used when a request names none. Empty means rules.DefaultFile.
	DefaultRuleFile string
	Resolver        resolve.Resolver
	// Enhance configures the enhancement stage; LLM overrides its client.
	Enhance enhance.Config
	LLM     llm.Client
	// Timeout is the deadline for a whole request, on top of the per-call
	// timeouts of fetch, render and model calls. Zero leaves it to ctx.
	Timeout time.Duration
	// ConvertTimeout bounds one format conversion. Zero means no own limit.
	ConvertTimeout time.Duration
}

// Convert runs req and returns only the Markdown.
func (p *Pipeline) Convert(ctx context.Context, req Request) (string, error) {
	res, err := p.Run(ctx, req)
	if err != nil {
		return "", err
	}
	return res.Markdown, nil
}

// Run executes req. Every failure is an *errs.Error carrying kind and stage.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	// Credentials are checked before any other work.
	var enh *enhance.Enhancer
	if req.Enhance {
		var err error
		if enh, err = enhance.New(p.Enhance, p.LLM); err != nil {
			return Result{}, err
		}
	}

	kind, err := source.Classify(req.Reference)
	if err != nil {
		return Result{}, err
	}

	var res Result
	if kind.IsLocal() {
		res, err = p.runLocal(ctx, kind, req)
	} else {
		res, err = p.runRemote(ctx, req)
	}
	if err != nil {
		return Result{}, err
	}
	res.Kind = kind

	if enh != nil {
		out, err := enh.Enhance(ctx, res.Markdown, req.Language)
		if err != nil {
			return Result{}, err
		}
		res.Markdown = out
	}
	return res, nil
}

func (p *Pipeline) convert(ctx context.Context, kind source.Kind, in markdown.Input) (string, error) {
	if p.ConvertTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.ConvertTimeout)
		defer cancel()
	}
	return p.registry().Convert(ctx, kind, in)
}

func (p *Pipeline) registry() *markdown.Registry {
	if p.Registry != nil {
		return p.Registry
	}
	return markdown.Default
}

func (p *Pipeline) runLocal(ctx context.Context, kind source.Kind, req Request) (Result, error) {
	if err := source.CheckExists(req.Reference); err != nil {
		return Result{}, err
	}
	in := markdown.Input{Path: req.Reference}
	var res Result
	if kind == source.KindLocalHTML && strings.TrimSpace(req.ContentSelector) != "" {
		data, err := in.Bytes()
		if err != nil {
			return Result{}, errs.New(errs.ErrConversionFailed, errs.StageConvert, req.Reference, err)
		}
		r := p.Resolver.Resolve(data, "", resolve.Options{ContentSelector: req.ContentSelector}, nil)
		in = markdown.Input{Path: req.Reference, Data: []byte(r.HTML)}
		res.Origin, res.Warnings = r.Origin, r.Warnings
	}
	md, err := p.convert(ctx, kind, in)
	if err != nil {
		return Result{}, err
	}
	res.Markdown = md
	return res, nil
}

func (p *Pipeline) runRemote(ctx context.Context, req Request) (Result, error) {
	if p.Retriever == nil {
		return Result{}, errs.Newf(errs.ErrRetrievalFailed, errs.StageRetrieve, "no retriever configured")
	}
	// A bad rule file fails before any network work.
	loader := p.Rules
	if loader == nil {
		loader = rules.Shared()
	}
	table, err := loader.Resolve(req.RuleFile, p.DefaultRuleFile)
	if err != nil {
		return Result{}, err
	}
	got, err := p.Retriever.Retrieve(ctx, req.Reference, req.UseBrowser)
	if err != nil {
		return Result{}, err
	}
	res := Result{Method: got.Method, FinalURL: got.FinalURL}
	in := markdown.Input{Data: got.Body, URL: got.FinalURL}

	var md string
	switch kind := remoteKind(got); kind {
	case source.KindLocalHTML:
		host := source.Host(got.FinalURL)
		r := p.Resolver.Resolve(got.Body, host, resolve.Options{ContentSelector: req.ContentSelector}, table)
		res.Origin, res.Warnings = r.Origin, r.Warnings
		log.Debug().Str("url", got.FinalURL).Str("origin", string(r.Origin)).Str("selector", r.Selector).Msg("content resolved")

		in.Data = []byte(r.HTML)
		if md, err = p.convert(ctx, kind, in); err != nil {
			return Result{}, err
		}
		if source.IsMediaPage(host) {
			if m, ok := extract.MediaFromHTML(got.Body); ok {
				md = strings.TrimSpace(m.Markdown() + "\n\n" + md)
			}
		}
	case source.KindUnknown:
		return Result{}, errs.New(errs.ErrUnsupportedFormat, errs.StageConvert, got.FinalURL,
			fmt.Errorf("content type %q", got.ContentType))
	default:
		if md, err = p.convert(ctx, kind, in); err != nil {
			return Result{}, err
		}
	}
	res.Markdown = "# Source: " + req.Reference + "\n\n" + md
	return res, nil
}

const docxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// remoteKind maps fetched content to the converter that handles it.
func remoteKind(r retrieve.Result) source.Kind {
	ct := strings.ToLower(strings.TrimSpace(r.ContentType))
	switch {
	case fetch.IsPDF(ct) || bytes.HasPrefix(r.Body, []byte("%PDF-")):
		return source.KindLocalPDF
	case strings.HasPrefix(ct, docxContentType):
		return source.KindLocalDOCX
	case strings.HasPrefix(ct, "text/markdown"), strings.HasPrefix(ct, "text/x-markdown"):
		return source.KindLocalMarkdown
	case strings.HasPrefix(ct, "text/plain"):
		return source.KindLocalText
	case fetch.IsHTML(ct):
		return source.KindLocalHTML
	}
	return source.KindUnknown
}

// BatchResult pairs a request with its outcome.
type BatchResult struct {
	Request Request
	Result  Result
	Err     error
}

// Batch runs independent requests with at most limit in flight (limit < 1
// means unbounded). One failure does not stop the others. Results keep the
// input order.
func (p *Pipeline) Batch(ctx context.Context, reqs []Request, limit int) []BatchResult {
	out := make([]BatchResult, len(reqs))
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, req := range reqs {
		g.Go(func() error {
			res, err := p.Run(ctx, req)
			out[i] = BatchResult{Request: req, Result: res, Err: err}
			if err != nil {
				log.Warn().Str("reference", req.Reference).Err(err).Msg("conversion failed")
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}
