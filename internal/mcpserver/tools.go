package mcpserver

import (
	"context"
	"errors"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/tomd/internal/errs"
	"github.com/hyperifyio/tomd/internal/pipeline"
)

// ToMarkdownInput is the input schema for the to_markdown tool.
type ToMarkdownInput struct {
	Source     string `json:"source" jsonschema:"local file path or http(s) URL to convert"`
	UseBrowser bool   `json:"use_browser,omitempty" jsonschema:"render URLs in a headless browser instead of a plain HTTP fetch"`
	Selector   string `json:"selector,omitempty" jsonschema:"CSS selector naming the main content of an HTML page"`
	RuleFile   string `json:"rule_file,omitempty" jsonschema:"YAML file mapping domains to content selectors"`
	Enhance    bool   `json:"enhance,omitempty" jsonschema:"rewrite the result through the configured language model"`
	Language   string `json:"language,omitempty" jsonschema:"target language for enhancement, for example en or fi"`
}

// ToMarkdownOutput is the output schema for the to_markdown tool.
type ToMarkdownOutput struct {
	Markdown string   `json:"markdown"`
	Kind     string   `json:"kind"`
	Method   string   `json:"method,omitempty"`
	Origin   string   `json:"origin,omitempty"`
	FinalURL string   `json:"final_url,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "to_markdown",
		Description: "Convert an HTML, PDF, DOCX, text or Markdown file, or a web page URL, to Markdown",
	}, s.handleToMarkdown)
}

func (s *Server) handleToMarkdown(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ToMarkdownInput,
) (*mcp.CallToolResult, ToMarkdownOutput, error) {
	ref := strings.TrimSpace(input.Source)
	if ref == "" {
		return nil, ToMarkdownOutput{}, errors.New("source is required")
	}
	res, err := s.conv.Run(ctx, pipeline.Request{
		Reference:       ref,
		UseBrowser:      input.UseBrowser,
		ContentSelector: input.Selector,
		RuleFile:        input.RuleFile,
		Enhance:         input.Enhance,
		Language:        input.Language,
	})
	if err != nil {
		log.Warn().Str("source", ref).Str("stage", string(errs.StageOf(err))).Err(err).Msg("tool conversion failed")
		return nil, ToMarkdownOutput{}, err
	}
	return nil, ToMarkdownOutput{
		Markdown: res.Markdown,
		Kind:     res.Kind.String(),
		Method:   string(res.Method),
		Origin:   string(res.Origin),
		FinalURL: res.FinalURL,
		Warnings: res.Warnings,
	}, nil
}
