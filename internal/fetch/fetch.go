package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/hyperifyio/tomd/internal/cache"
)

// DefaultUserAgent mimics a desktop browser; many sites reject obvious bots.
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Client wraps http.Client with browser-like headers, a per-request timeout,
// a redirect cap and an optional conditional cache. It never retries.
type Client struct {
	HTTPClient *http.Client
	UserAgent  string
	// PerRequestTimeout bounds each request. Zero leaves it to ctx.
	PerRequestTimeout time.Duration
	// Optional on-disk cache for bodies and validators.
	Cache *cache.HTTPCache
	// RedirectMaxHops caps redirect following. Zero means default (5).
	RedirectMaxHops int
	// MaxBodyBytes caps the body read. Zero means 32 MiB.
	MaxBodyBytes int64
	// MaxConcurrent limits concurrent in-flight requests per client instance.
	// Zero means unlimited.
	MaxConcurrent int

	limiter     chan struct{}
	limiterOnce sync.Once
}

// Response is a successful (2xx or revalidated 304) fetch.
type Response struct {
	Body        []byte
	ContentType string
	StatusCode  int
	// FinalURL is the request URL after redirects.
	FinalURL  string
	FromCache bool
}

// StatusError reports a non-2xx response.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.StatusCode, e.URL)
}

func (c *Client) getHTTPClient() *http.Client {
	if c.HTTPClient != nil {
		// Clone to attach our redirect policy without mutating caller's client
		base := *c.HTTPClient
		base.CheckRedirect = c.checkRedirectFunc()
		return &base
	}
	return &http.Client{CheckRedirect: c.checkRedirectFunc()}
}

// Get issues a single GET. With a cache configured it sends validators and
// serves the cached body on 304.
func (c *Client) Get(ctx context.Context, rawURL string) (*Response, error) {
	var cached *cache.PageEntry
	if c.Cache != nil {
		if e, ok := c.Cache.Lookup(ctx, rawURL); ok {
			cached = e
		}
	}

	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.release()

	req, err := c.newRequest(ctx, http.MethodGet, rawURL)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		if cached.ETag != "" {
			req.Header.Set("If-None-Match", cached.ETag)
		}
		if cached.LastModified != "" {
			req.Header.Set("If-Modified-Since", cached.LastModified)
		}
	}
	if c.PerRequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(req.Context(), c.PerRequestTimeout)
		defer cancel()
		req = req.WithContext(ctx)
	}

	resp, err := c.getHTTPClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	final := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}

	if resp.StatusCode == http.StatusNotModified && cached != nil {
		body, err := c.Cache.Body(ctx, rawURL)
		if err == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return &Response{Body: body, ContentType: cached.ContentType, StatusCode: http.StatusOK, FinalURL: cached.FinalURL, FromCache: true}, nil
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: rawURL}
	}

	contentType := resp.Header.Get("Content-Type")
	limit := c.MaxBodyBytes
	if limit <= 0 {
		limit = 32 << 20
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	body := decodeHTML(raw, contentType)

	if c.Cache != nil {
		_ = c.Cache.Store(ctx, cache.PageEntry{
			URL:          rawURL,
			FinalURL:     final,
			ContentType:  contentType,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}, body)
	}
	return &Response{Body: body, ContentType: contentType, StatusCode: resp.StatusCode, FinalURL: final}, nil
}

// Resolve follows the redirect chain of rawURL and returns the final URL.
// It tries HEAD first and falls back to GET for servers that reject HEAD.
func (c *Client) Resolve(ctx context.Context, rawURL string) (string, error) {
	if err := c.acquire(ctx); err != nil {
		return "", err
	}
	defer c.release()

	if c.PerRequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.PerRequestTimeout)
		defer cancel()
	}
	var lastErr error
	for _, method := range []string{http.MethodHead, http.MethodGet} {
		req, err := c.newRequest(ctx, method, rawURL)
		if err != nil {
			return "", err
		}
		resp, err := c.getHTTPClient().Do(req)
		if err != nil {
			lastErr = err
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return "", err
			}
			continue
		}
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()
		if resp.StatusCode == http.StatusMethodNotAllowed && method == http.MethodHead {
			continue
		}
		if resp.StatusCode >= 400 {
			lastErr = &StatusError{StatusCode: resp.StatusCode, URL: rawURL}
			continue
		}
		return resp.Request.URL.String(), nil
	}
	return "", lastErr
}

func (c *Client) newRequest(ctx context.Context, method, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	// Reject non-HTTP(S) schemes early
	if !isHTTPScheme(req.URL) {
		return nil, fmt.Errorf("unsupported URL scheme: %q", req.URL.String())
	}
	ua := c.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,application/pdf;q=0.8,*/*;q=0.7")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	return req, nil
}

func (c *Client) checkRedirectFunc() func(req *http.Request, via []*http.Request) error {
	max := c.RedirectMaxHops
	if max <= 0 {
		max = 5
	}
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= max {
			return errors.New("too many redirects")
		}
		if !isHTTPScheme(req.URL) {
			return errors.New("redirect to unsupported scheme")
		}
		return nil
	}
}

func isHTTPScheme(u *url.URL) bool {
	if u == nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

// IsHTML reports whether a Content-Type names an HTML document. An empty
// type is treated as HTML since many servers omit it for pages.
func IsHTML(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	return ct == "" || strings.HasPrefix(ct, "text/html") || strings.HasPrefix(ct, "application/xhtml+xml")
}

// IsPDF reports whether a Content-Type names a PDF document.
func IsPDF(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "application/pdf")
}

// decodeHTML converts HTML bodies to UTF-8 using the declared or sniffed
// charset. Other content is returned untouched.
func decodeHTML(body []byte, contentType string) []byte {
	if !IsHTML(contentType) || len(body) == 0 {
		return body
	}
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return body
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return body
	}
	return out
}

// acquire waits for a slot or for ctx to end.
func (c *Client) acquire(ctx context.Context) error {
	if c.MaxConcurrent <= 0 {
		return nil
	}
	c.limiterOnce.Do(func() {
		c.limiter = make(chan struct{}, c.MaxConcurrent)
	})
	select {
	case c.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) release() {
	if c.MaxConcurrent <= 0 || c.limiter == nil {
		return
	}
	select {
	case <-c.limiter:
	default:
	}
}
