package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jung-kurt/gofpdf"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperifyio/tomd/internal/browser"
	"github.com/hyperifyio/tomd/internal/enhance"
	"github.com/hyperifyio/tomd/internal/errs"
	"github.com/hyperifyio/tomd/internal/fetch"
	"github.com/hyperifyio/tomd/internal/markdown"
	"github.com/hyperifyio/tomd/internal/retrieve"
	"github.com/hyperifyio/tomd/internal/rules"
	"github.com/hyperifyio/tomd/internal/source"
)

const articlePage = `<html><head><title>Post</title></head><body>
<nav>menu</nav>
<div id="main"><p>Main block text.</p></div>
<article><h1>Headline</h1><p>Article block text.</p></article>
</body></html>`

type fakeRetriever struct {
	mu       sync.Mutex
	calls    int
	byURL    map[string]retrieve.Result
	err      error
	inFlight int32
	peak     int32
	delay    time.Duration
}

func (f *fakeRetriever) Retrieve(_ context.Context, url string, useBrowser bool) (retrieve.Result, error) {
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		p := atomic.LoadInt32(&f.peak)
		if n <= p || atomic.CompareAndSwapInt32(&f.peak, p, n) {
			break
		}
	}
	time.Sleep(f.delay)
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return retrieve.Result{}, f.err
	}
	if r, ok := f.byURL[url]; ok {
		return r, nil
	}
	return retrieve.Result{}, errs.New(errs.ErrSourceNotFound, errs.StageRetrieve, url, nil)
}

func htmlResult(url, body string) retrieve.Result {
	return retrieve.Result{URL: url, FinalURL: url, Body: []byte(body), ContentType: "text/html; charset=utf-8", Method: retrieve.MethodLightweight}
}

type echoLLM struct{ calls int }

func (e *echoLLM) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	e.calls++
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{
		Message: openai.ChatCompletionMessage{Content: "<enhanced_content>```markdown\nENHANCED\n```</enhanced_content>"},
	}}}, nil
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func newPipeline(r Retriever) *Pipeline {
	return &Pipeline{Retriever: r, Rules: &rules.Loader{}, DefaultRuleFile: filepath.Join(os.TempDir(), "tomd-no-such-rule.yml")}
}

func TestConvert_LocalMarkdownIdempotent(t *testing.T) {
	p := writeFile(t, t.TempDir(), "doc.md", "# Hello\n\nWorld\n")
	pl := newPipeline(nil)

	first, err := pl.Convert(context.Background(), Request{Reference: p})
	require.NoError(t, err)
	second, err := pl.Convert(context.Background(), Request{Reference: p})
	require.NoError(t, err)
	assert.Equal(t, "# Hello\n\nWorld", first)
	assert.Equal(t, first, second)
}

func TestConvert_LocalHTMLWholeFile(t *testing.T) {
	p := writeFile(t, t.TempDir(), "page.html", articlePage)
	md, err := newPipeline(nil).Convert(context.Background(), Request{Reference: p})
	require.NoError(t, err)
	assert.Contains(t, md, "Main block text.")
	assert.Contains(t, md, "Article block text.")
	assert.NotContains(t, md, "# Source:")
}

func TestConvert_LocalHTMLWithSelector(t *testing.T) {
	p := writeFile(t, t.TempDir(), "page.html", articlePage)
	res, err := newPipeline(nil).Run(context.Background(), Request{Reference: p, ContentSelector: "#main"})
	require.NoError(t, err)
	assert.Contains(t, res.Markdown, "Main block text.")
	assert.NotContains(t, res.Markdown, "Article block text.")
	assert.Equal(t, source.KindLocalHTML, res.Kind)
}

func TestConvert_MissingLocalFile(t *testing.T) {
	_, err := newPipeline(nil).Convert(context.Background(), Request{Reference: filepath.Join(t.TempDir(), "gone.pdf")})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrSourceNotFound)
}

func TestConvert_UnsupportedExtension(t *testing.T) {
	p := writeFile(t, t.TempDir(), "sheet.xlsx", "x")
	_, err := newPipeline(nil).Convert(context.Background(), Request{Reference: p})
	assert.ErrorIs(t, err, errs.ErrUnsupportedFormat)
}

func TestConvert_MissingCredentialsBeforeNetwork(t *testing.T) {
	r := &fakeRetriever{byURL: map[string]retrieve.Result{"https://x.test/a": htmlResult("https://x.test/a", articlePage)}}
	pl := newPipeline(r)

	_, err := pl.Convert(context.Background(), Request{Reference: "https://x.test/a", Enhance: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrMissingCredentials)
	assert.Equal(t, 0, r.calls)

	// Also before classification of an unsupported input.
	_, err = pl.Convert(context.Background(), Request{Reference: "file.xyz", Enhance: true})
	assert.ErrorIs(t, err, errs.ErrMissingCredentials)
}

func TestConvert_URLUsesHeuristicAndSourcePrefix(t *testing.T) {
	r := &fakeRetriever{byURL: map[string]retrieve.Result{"https://x.test/a": htmlResult("https://x.test/a", articlePage)}}
	res, err := newPipeline(r).Run(context.Background(), Request{Reference: "https://x.test/a"})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(res.Markdown, "# Source: https://x.test/a\n\n"), res.Markdown)
	assert.Contains(t, res.Markdown, "Article block text.")
	assert.NotContains(t, res.Markdown, "menu")
	assert.Equal(t, source.KindRemoteURL, res.Kind)
	assert.Equal(t, "heuristic", string(res.Origin))
}

func TestConvert_ExplicitSelectorBeatsRule(t *testing.T) {
	dir := t.TempDir()
	ruleFile := writeFile(t, dir, "rules.yml", "- domain: x.test\n  selector: article\n")
	r := &fakeRetriever{byURL: map[string]retrieve.Result{"https://x.test/a": htmlResult("https://x.test/a", articlePage)}}

	md, err := newPipeline(r).Convert(context.Background(), Request{Reference: "https://x.test/a", RuleFile: ruleFile, ContentSelector: "#main"})
	require.NoError(t, err)
	assert.Contains(t, md, "Main block text.")
	assert.NotContains(t, md, "Article block text.")
}

func TestConvert_RuleAppliesToSubdomain(t *testing.T) {
	dir := t.TempDir()
	ruleFile := writeFile(t, dir, "rules.yml", "rules:\n  - domain: medium.com\n    selector: '#main'\n")
	url := "https://blog.medium.com/post"
	r := &fakeRetriever{byURL: map[string]retrieve.Result{url: htmlResult(url, articlePage)}}

	res, err := newPipeline(r).Run(context.Background(), Request{Reference: url, RuleFile: ruleFile})
	require.NoError(t, err)
	assert.Equal(t, "rule", string(res.Origin))
	assert.Contains(t, res.Markdown, "Main block text.")
	assert.NotContains(t, res.Markdown, "Article block text.")
}

func TestConvert_ZeroMatchSelectorFallsBack(t *testing.T) {
	r := &fakeRetriever{byURL: map[string]retrieve.Result{"https://x.test/a": htmlResult("https://x.test/a", articlePage)}}
	res, err := newPipeline(r).Run(context.Background(), Request{Reference: "https://x.test/a", ContentSelector: ".nope"})
	require.NoError(t, err)
	assert.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Markdown, "Article block text.")
}

func TestConvert_MissingExplicitRuleFile(t *testing.T) {
	r := &fakeRetriever{byURL: map[string]retrieve.Result{"https://x.test/a": htmlResult("https://x.test/a", articlePage)}}
	_, err := newPipeline(r).Convert(context.Background(), Request{Reference: "https://x.test/a", RuleFile: filepath.Join(t.TempDir(), "absent.yml")})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrRuleFileNotFound)
	assert.Equal(t, errs.StageRules, errs.StageOf(err))
	assert.Equal(t, 0, r.calls, "rule file must be checked before fetching")
}

func TestConvert_RetrievalErrorPassesThrough(t *testing.T) {
	r := &fakeRetriever{byURL: map[string]retrieve.Result{}}
	_, err := newPipeline(r).Convert(context.Background(), Request{Reference: "https://x.test/missing"})
	assert.ErrorIs(t, err, errs.ErrSourceNotFound)
	assert.Equal(t, errs.StageRetrieve, errs.StageOf(err))
}

func TestConvert_RemotePDF(t *testing.T) {
	doc := gofpdf.New("P", "mm", "A4", "")
	doc.SetCompression(false)
	doc.AddPage()
	doc.SetFont("Helvetica", "", 14)
	doc.Cell(40, 10, "Abstract")
	var buf bytes.Buffer
	require.NoError(t, doc.Output(&buf))

	url := "https://arxiv.org/pdf/2401.01234"
	r := &fakeRetriever{byURL: map[string]retrieve.Result{url: {URL: url, FinalURL: url, Body: buf.Bytes(), ContentType: "application/pdf"}}}
	md, err := newPipeline(r).Convert(context.Background(), Request{Reference: url})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(md, "# Source: "+url))
	assert.Contains(t, md, "Abstract")
}

func TestConvert_UnknownRemoteContentType(t *testing.T) {
	url := "https://x.test/blob"
	r := &fakeRetriever{byURL: map[string]retrieve.Result{url: {URL: url, FinalURL: url, Body: []byte{1, 2, 3}, ContentType: "application/octet-stream"}}}
	_, err := newPipeline(r).Convert(context.Background(), Request{Reference: url})
	assert.ErrorIs(t, err, errs.ErrUnsupportedFormat)
}

func TestConvert_MediaPageSummary(t *testing.T) {
	url := "https://www.youtube.com/watch?v=abc"
	page := `<html><head>
	<meta property="og:title" content="Launch video">
	<meta property="og:description" content="Watch the launch.">
	</head><body><main><p>Comments and player.</p></main></body></html>`
	r := &fakeRetriever{byURL: map[string]retrieve.Result{url: htmlResult(url, page)}}

	md, err := newPipeline(r).Convert(context.Background(), Request{Reference: url})
	require.NoError(t, err)
	assert.Contains(t, md, "## Launch video")
	assert.Less(t, strings.Index(md, "Launch video"), strings.Index(md, "Comments and player."))
}

func TestConvert_EnhanceRunsLast(t *testing.T) {
	p := writeFile(t, t.TempDir(), "doc.txt", "plain text")
	llm := &echoLLM{}
	pl := newPipeline(nil)
	pl.Enhance = enhance.Config{APIKey: "sk", Model: "gpt-4o"}
	pl.LLM = llm

	md, err := pl.Convert(context.Background(), Request{Reference: p, Enhance: true, Language: "ja"})
	require.NoError(t, err)
	assert.Equal(t, "ENHANCED", md)
	assert.Equal(t, 1, llm.calls)
}

func TestConvert_TimeoutIsDistinguishable(t *testing.T) {
	r := &fakeRetriever{err: errs.New(errs.ErrRetrievalFailed, errs.StageRetrieve, "x", context.DeadlineExceeded)}
	_, err := newPipeline(r).Convert(context.Background(), Request{Reference: "https://x.test/a"})
	assert.ErrorIs(t, err, errs.ErrRetrievalFailed)
	assert.ErrorIs(t, err, errs.ErrTimeout)
}

func TestBatch_OrderAndIsolation(t *testing.T) {
	byURL := map[string]retrieve.Result{}
	var reqs []Request
	for i := 0; i < 6; i++ {
		url := fmt.Sprintf("https://x.test/%d", i)
		if i != 3 {
			byURL[url] = htmlResult(url, fmt.Sprintf("<html><body><article><p>doc %d</p></article></body></html>", i))
		}
		reqs = append(reqs, Request{Reference: url})
	}
	r := &fakeRetriever{byURL: byURL, delay: 10 * time.Millisecond}

	results := newPipeline(r).Batch(context.Background(), reqs, 2)
	require.Len(t, results, 6)
	for i, br := range results {
		assert.Equal(t, reqs[i].Reference, br.Request.Reference)
		if i == 3 {
			assert.ErrorIs(t, br.Err, errs.ErrSourceNotFound)
			continue
		}
		require.NoError(t, br.Err)
		assert.Contains(t, br.Result.Markdown, fmt.Sprintf("doc %d", i))
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&r.peak), int32(2))
	assert.Equal(t, 6, r.calls)
}

type countingBrowser struct{ calls int32 }

func (c *countingBrowser) FetchBrowser(_ context.Context, url string) (*browser.Page, error) {
	atomic.AddInt32(&c.calls, 1)
	return &browser.Page{HTML: articlePage, FinalURL: url}, nil
}

func TestConvert_RealStrategyFallsBackOn403(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	br := &countingBrowser{}
	strategy := &retrieve.Strategy{Lightweight: retrieve.HTTP{Client: &fetch.Client{}}, Browser: br}
	md, err := newPipeline(strategy).Convert(context.Background(), Request{Reference: srv.URL})
	require.NoError(t, err)
	assert.Contains(t, md, "Article block text.")
	assert.EqualValues(t, 1, atomic.LoadInt32(&br.calls))
}

func TestConvert_NoRetriever(t *testing.T) {
	_, err := newPipeline(nil).Convert(context.Background(), Request{Reference: "https://x.test"})
	assert.True(t, errors.Is(err, errs.ErrRetrievalFailed))
}

func TestConvert_ConvertTimeoutStopsStuckConverter(t *testing.T) {
	reg := markdown.NewRegistry()
	reg.Register(source.KindLocalText, markdown.ConverterFunc(func(ctx context.Context, _ markdown.Input) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}))
	pl := newPipeline(nil)
	pl.Registry = reg
	pl.ConvertTimeout = 50 * time.Millisecond

	in := writeFile(t, t.TempDir(), "stuck.txt", "text")
	_, err := pl.Convert(context.Background(), Request{Reference: in})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrConversionFailed)
	assert.ErrorIs(t, err, errs.ErrTimeout)
}
