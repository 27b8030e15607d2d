package markdown

import (
	"context"
	"regexp"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
)

// HTML converts markup with html-to-markdown.
type HTML struct {
	conv *converter.Converter
}

// NewHTML builds an HTML converter with commonmark and table support.
func NewHTML() *HTML {
	conv := converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)
	return &HTML{conv: conv}
}

func (h *HTML) Convert(_ context.Context, in Input) (string, error) {
	data, err := in.Bytes()
	if err != nil {
		return "", err
	}
	return h.FromString(string(data), in.URL)
}

// FromString converts markup. domain, when set, makes relative links absolute.
func (h *HTML) FromString(markup, domain string) (string, error) {
	if strings.TrimSpace(markup) == "" {
		return "", nil
	}
	md, err := h.conv.ConvertString(markup, converter.WithDomain(domain))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(trimCodeBlockWhitespace(md)), nil
}

var (
	fenceLeadingBlank  = regexp.MustCompile("(```\\w*)\n(\n)+")
	fenceTrailingBlank = regexp.MustCompile("\n(\n)+```")
)

// trimCodeBlockWhitespace removes blank lines just inside fenced code blocks
// left over from whitespace between tags.
func trimCodeBlockWhitespace(md string) string {
	md = fenceLeadingBlank.ReplaceAllString(md, "$1\n")
	return fenceTrailingBlank.ReplaceAllString(md, "\n```")
}
