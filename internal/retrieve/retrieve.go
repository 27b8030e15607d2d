// Package retrieve decides how a remote page is fetched: a plain HTTP GET
// first, and a single headless-browser render when that is blocked, too
// short, or fails in transport.
package retrieve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/tomd/internal/browser"
	"github.com/hyperifyio/tomd/internal/errs"
	"github.com/hyperifyio/tomd/internal/fetch"
	"github.com/hyperifyio/tomd/internal/source"
)

// Method records which path produced a Result.
type Method string

const (
	MethodLightweight Method = "lightweight"
	MethodBrowser     Method = "browser"
)

// Lightweight fetches a URL without executing scripts.
type Lightweight interface {
	FetchLightweight(ctx context.Context, url string) (*fetch.Response, error)
}

// Browser renders a URL in a real browser.
type Browser interface {
	FetchBrowser(ctx context.Context, url string) (*browser.Page, error)
}

// Resolver follows redirects to a final URL.
type Resolver interface {
	Resolve(ctx context.Context, url string) (string, error)
}

// Policy holds the fallback triggers.
type Policy struct {
	// BlockedStatuses are treated as anti-bot responses.
	BlockedStatuses []int
	// MinContentLength is the smallest HTML body accepted from the
	// lightweight path, in bytes.
	MinContentLength int
}

// DefaultPolicy blocks on 403, 429 and 503 and requires 512 bytes.
func DefaultPolicy() Policy {
	return Policy{
		BlockedStatuses:  []int{http.StatusForbidden, http.StatusTooManyRequests, http.StatusServiceUnavailable},
		MinContentLength: 512,
	}
}

// Result is the retrieved document.
type Result struct {
	// URL is the address actually fetched, after rewrites.
	URL         string
	FinalURL    string
	Body        []byte
	ContentType string
	Method      Method
	// FallbackReason is set when the browser ran after a lightweight attempt.
	FallbackReason string
}

// ErrNoBrowser is the browser-side cause when a fallback is needed but no
// browser is configured.
var ErrNoBrowser = errors.New("browser fallback not configured")

// Strategy implements the lightweight-then-browser retrieval.
type Strategy struct {
	Lightweight Lightweight
	Browser     Browser
	// Resolver expands short video links. Optional.
	Resolver Resolver
	Policy   Policy
}

// Retrieve fetches rawURL. useBrowser skips the lightweight attempt.
func (s *Strategy) Retrieve(ctx context.Context, rawURL string, useBrowser bool) (Result, error) {
	target := s.rewrite(ctx, rawURL)

	if useBrowser {
		res, err := s.render(ctx, target)
		if err != nil {
			return Result{}, errs.New(errs.ErrRetrievalFailed, errs.StageRetrieve, target, err)
		}
		return res, nil
	}

	resp, err := s.Lightweight.FetchLightweight(ctx, target)
	var reason string
	var lightErr error
	switch {
	case err != nil:
		var se *fetch.StatusError
		if errors.As(err, &se) {
			switch {
			case se.StatusCode == http.StatusNotFound || se.StatusCode == http.StatusGone:
				return Result{}, errs.New(errs.ErrSourceNotFound, errs.StageRetrieve, target, err)
			case !slices.Contains(s.policy().BlockedStatuses, se.StatusCode):
				return Result{}, errs.New(errs.ErrRetrievalFailed, errs.StageRetrieve, target, err)
			}
			reason = fmt.Sprintf("status %d", se.StatusCode)
		} else {
			if ctxErr := ctx.Err(); ctxErr != nil {
				// The caller's deadline is gone; a browser would fail the same way.
				return Result{}, errs.New(errs.ErrRetrievalFailed, errs.StageRetrieve, target, err)
			}
			reason = "transport error"
		}
		lightErr = err
	case fetch.IsHTML(resp.ContentType) && len(resp.Body) < s.policy().MinContentLength:
		reason = "short body"
		lightErr = fmt.Errorf("body of %d bytes is below %d", len(resp.Body), s.policy().MinContentLength)
	default:
		return Result{
			URL:         target,
			FinalURL:    finalOr(resp.FinalURL, target),
			Body:        resp.Body,
			ContentType: resp.ContentType,
			Method:      MethodLightweight,
		}, nil
	}

	log.Info().Str("url", target).Str("reason", reason).Err(lightErr).Msg("lightweight fetch insufficient; rendering in browser")
	res, berr := s.render(ctx, target)
	if berr != nil {
		return Result{}, errs.New(errs.ErrRetrievalFailed, errs.StageRetrieve, target,
			&errs.RetrievalError{URL: target, Lightweight: lightErr, Browser: berr})
	}
	res.FallbackReason = reason
	return res, nil
}

func (s *Strategy) render(ctx context.Context, target string) (Result, error) {
	if s.Browser == nil {
		return Result{}, ErrNoBrowser
	}
	page, err := s.Browser.FetchBrowser(ctx, target)
	if err != nil {
		return Result{}, err
	}
	return Result{
		URL:         target,
		FinalURL:    finalOr(page.FinalURL, target),
		Body:        []byte(page.HTML),
		ContentType: "text/html; charset=utf-8",
		Method:      MethodBrowser,
	}, nil
}

// rewrite maps abstract pages to their PDFs and expands short video links.
func (s *Strategy) rewrite(ctx context.Context, rawURL string) string {
	if pdf, ok := source.RewriteAcademic(rawURL); ok {
		log.Debug().Str("from", rawURL).Str("to", pdf).Msg("rewrote academic abstract URL")
		return pdf
	}
	if s.Resolver != nil && source.IsShortVideo(source.Host(rawURL)) {
		final, err := s.Resolver.Resolve(ctx, rawURL)
		if err != nil {
			log.Warn().Str("url", rawURL).Err(err).Msg("short link resolution failed; using original URL")
			return rawURL
		}
		log.Debug().Str("from", rawURL).Str("to", final).Msg("resolved short video link")
		return final
	}
	return rawURL
}

func (s *Strategy) policy() Policy {
	p := s.Policy
	if p.BlockedStatuses == nil {
		p.BlockedStatuses = DefaultPolicy().BlockedStatuses
	}
	if p.MinContentLength <= 0 {
		p.MinContentLength = DefaultPolicy().MinContentLength
	}
	return p
}

func finalOr(final, fallback string) string {
	if final != "" {
		return final
	}
	return fallback
}

// HTTP adapts a fetch.Client to Lightweight and Resolver.
type HTTP struct {
	Client *fetch.Client
}

func (h HTTP) FetchLightweight(ctx context.Context, url string) (*fetch.Response, error) {
	return h.Client.Get(ctx, url)
}

func (h HTTP) Resolve(ctx context.Context, url string) (string, error) {
	return h.Client.Resolve(ctx, url)
}

// Rendered adapts a browser.Renderer to Browser.
type Rendered struct {
	Renderer browser.Renderer
	// Timeout bounds one render, counted from the call. Zero means only the
	// caller's context applies.
	Timeout time.Duration
}

func (r Rendered) FetchBrowser(ctx context.Context, url string) (*browser.Page, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	return r.Renderer.Render(ctx, url)
}
