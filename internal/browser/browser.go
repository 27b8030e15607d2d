// Package browser renders pages in headless Chromium for sites that block
// or script around plain HTTP clients.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"
)

// Page is the rendered document after scripts ran.
type Page struct {
	HTML     string
	FinalURL string
}

// Renderer renders a URL to its post-script markup.
type Renderer interface {
	Render(ctx context.Context, url string) (*Page, error)
}

const (
	defaultIdleWindow    = 500 * time.Millisecond
	defaultSettleTimeout = 10 * time.Second
)

// RodRenderer launches a fresh headless browser for each call and tears it
// down before returning.
type RodRenderer struct {
	// Bin is an explicit Chromium binary. Empty lets rod locate or download one.
	Bin string
	// IdleWindow is how long the network must stay quiet to count as settled.
	IdleWindow time.Duration
	// SettleTimeout caps the wait for network idle after navigation.
	SettleTimeout time.Duration
	// NoSandbox is needed when running as root in containers.
	NoSandbox bool
}

func (r *RodRenderer) idleWindow() time.Duration {
	if r.IdleWindow > 0 {
		return r.IdleWindow
	}
	return defaultIdleWindow
}

func (r *RodRenderer) settleTimeout() time.Duration {
	if r.SettleTimeout > 0 {
		return r.SettleTimeout
	}
	return defaultSettleTimeout
}

// Render navigates to url and returns the markup once the page settles:
// no in-flight requests for IdleWindow, or SettleTimeout, whichever is first.
func (r *RodRenderer) Render(ctx context.Context, url string) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l := launcher.New().Context(ctx).Headless(true)
	if r.Bin != "" {
		l = l.Bin(r.Bin)
	}
	if r.NoSandbox {
		l = l.NoSandbox(true)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	defer l.Cleanup()
	defer l.Kill()

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	defer func() { _ = b.Close() }()

	pctx, cancel := context.WithCancel(ctx)
	defer cancel()

	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	page = page.Context(pctx)
	defer func() { _ = page.Close() }()

	wait := page.WaitRequestIdle(r.idleWindow(), nil, nil, nil)
	if err := page.Navigate(url); err != nil {
		return nil, fmt.Errorf("navigate: %w", err)
	}

	idle := make(chan struct{})
	go func() {
		defer close(idle)
		wait()
	}()
	settle := time.NewTimer(r.settleTimeout())
	defer settle.Stop()
	select {
	case <-idle:
	case <-settle.C:
		log.Debug().Str("url", url).Dur("settle_timeout", r.settleTimeout()).Msg("browser settle timeout; capturing current DOM")
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	markup, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("read DOM: %w", err)
	}
	final := url
	if info, err := page.Info(); err == nil && info != nil && info.URL != "" {
		final = info.URL
	}
	return &Page{HTML: markup, FinalURL: final}, nil
}

// ErrPoolClosed is returned by a Pool after Close.
var ErrPoolClosed = errors.New("browser pool closed")

// Pool bounds how many renders run at once. Each Render acquires a slot
// and releases it on return.
type Pool struct {
	Renderer Renderer
	slots    chan struct{}
	done     chan struct{}
}

// NewPool wraps r so at most size renders run concurrently. size < 1 means 1.
func NewPool(r Renderer, size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{Renderer: r, slots: make(chan struct{}, size), done: make(chan struct{})}
}

// Render waits for a free slot, honoring ctx, then delegates.
func (p *Pool) Render(ctx context.Context, url string) (*Page, error) {
	select {
	case <-p.done:
		return nil, ErrPoolClosed
	default:
	}
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return nil, ErrPoolClosed
	}
	defer func() { <-p.slots }()
	return p.Renderer.Render(ctx, url)
}

// Close rejects future renders. In-flight renders finish normally.
func (p *Pool) Close() {
	select {
	case <-p.done:
	default:
		close(p.done)
	}
}
