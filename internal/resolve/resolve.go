// Package resolve selects the main-content markup of a page: an explicit
// selector first, then a per-domain rule, then the readability heuristic.
package resolve

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/tomd/internal/extract"
	"github.com/hyperifyio/tomd/internal/rules"
)

// Origin names where the winning selector came from.
type Origin string

const (
	OriginExplicit  Origin = "explicit"
	OriginRule      Origin = "rule"
	OriginHeuristic Origin = "heuristic"
)

// Options carries per-request overrides.
type Options struct {
	// ContentSelector is a user-supplied CSS selector. Empty means none.
	ContentSelector string
}

// Result is the chosen fragment.
type Result struct {
	HTML     string
	Title    string
	Selector string
	Origin   Origin
	// Warnings are recoverable problems, such as a selector matching nothing.
	Warnings []string
}

// Resolver picks content. The zero value uses the heuristic extractor.
type Resolver struct {
	Extractor extract.Extractor
}

// Resolve applies explicit selector > rule for host > heuristic. A
// selector that matches nothing or does not parse falls through to the
// heuristic with a warning; it never fails.
func (r Resolver) Resolve(markup []byte, host string, opts Options, table *rules.Table) Result {
	var warnings []string
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("parse markup: %v", err))
	}

	title := ""
	if doc != nil {
		title = strings.TrimSpace(doc.Find("head title").First().Text())
	}

	type candidate struct {
		selector string
		origin   Origin
	}
	var candidates []candidate
	if sel := strings.TrimSpace(opts.ContentSelector); sel != "" {
		candidates = append(candidates, candidate{sel, OriginExplicit})
	} else if rule, ok := table.Match(host); ok {
		candidates = append(candidates, candidate{rule.Selector, OriginRule})
	}

	for _, c := range candidates {
		if doc == nil {
			break
		}
		html, n, err := selectOuter(doc, c.selector)
		switch {
		case err != nil:
			warnings = append(warnings, fmt.Sprintf("%s selector %q is invalid: %v; using heuristic", c.origin, c.selector, err))
		case n == 0:
			warnings = append(warnings, fmt.Sprintf("%s selector %q matched no elements; using heuristic", c.origin, c.selector))
		default:
			return Result{HTML: html, Title: title, Selector: c.selector, Origin: c.origin, Warnings: warnings}
		}
	}
	for _, w := range warnings {
		log.Warn().Str("host", host).Msg(w)
	}

	ex := r.Extractor
	if ex == nil {
		ex = extract.HeuristicExtractor{}
	}
	d := ex.Extract(markup)
	if title == "" {
		title = d.Title
	}
	return Result{HTML: d.HTML, Title: title, Origin: OriginHeuristic, Warnings: warnings}
}

// selectOuter returns the outer markup of every element matching selector,
// in document order. goquery silently matches nothing on a bad selector, so
// it is compiled up front to report why.
func selectOuter(doc *goquery.Document, selector string) (string, int, error) {
	if _, err := cascadia.ParseGroup(selector); err != nil {
		return "", 0, err
	}
	sel := doc.Find(selector)
	var b strings.Builder
	sel.Each(func(_ int, s *goquery.Selection) {
		out, oerr := goquery.OuterHtml(s)
		if oerr != nil {
			return
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(out)
	})
	return b.String(), sel.Length(), nil
}
