package enhance

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

const systemPrompt = "You are a professional content editor and translator. " +
	"Your task is to improve the quality of markdown content while preserving its structure. " +
	"Keep all markdown formatting (headers, lists, links, code blocks, etc.) intact. " +
	"Make the content more clear, concise, and well-organized. " +
	"You can clean up grammar, web action info (eg: 'loading', 'share'), improve phrasing, and enhance readability. " +
	"You can remove paragraphs that do not add value to the main content, such as ads, unrelated links, or navigation instructions. " +
	"**IMPORTANT**: ALL ENHANCED CONTENT MUST BE MADE WITHOUT ADDITIONAL INFORMATION OR CONTEXT.\n" +
	"<output_format>" +
	"<enhanced_content>```markdown\n...enhanced markdown content...```</enhanced_content>" +
	"</output_format>"

const (
	openTag   = "<enhanced_content>"
	openFence = "```markdown\n"
	closeTag  = "```</enhanced_content>"
)

// LanguageName turns a BCP 47 tag such as "zh" or "pt-BR" into an English
// display name. Anything that is not a tag, such as "Chinese", is returned
// as given.
func LanguageName(lang string) string {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return ""
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return lang
	}
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return lang
}

// userPrompt frames one chunk. An empty language means enhance only.
func userPrompt(chunk, lang string) string {
	var b strings.Builder
	if name := LanguageName(lang); name != "" {
		fmt.Fprintf(&b, "Please enhance and translate the following markdown content to %s. ", name)
		b.WriteString("Preserve all markdown formatting and structure. ")
		b.WriteString("Make the content clear and professional.\n\n")
	} else {
		b.WriteString("Please enhance the following markdown content. ")
		b.WriteString("Preserve all markdown formatting and structure. ")
		b.WriteString("Make the content more clear, concise, and well-organized.\n\n")
	}
	b.WriteString(chunk)
	b.WriteString("\n\n")
	b.WriteString(openTag)
	b.WriteString(openFence)
	return b.String()
}

// unwrap extracts the Markdown body from a model reply. Replies without the
// wrapper are taken as-is.
func unwrap(reply string) string {
	s := strings.TrimSpace(reply)
	closed := false
	if i := strings.Index(s, closeTag); i >= 0 {
		s, closed = s[:i], true
	} else if t, ok := strings.CutSuffix(s, "</enhanced_content>"); ok {
		s = strings.TrimSpace(t)
	}
	s = strings.TrimSpace(strings.TrimPrefix(s, openTag))
	if rest, ok := strings.CutPrefix(s, "```markdown"); ok {
		s = strings.TrimSpace(rest)
		if !closed {
			s = strings.TrimSuffix(s, "```")
		}
	}
	return strings.TrimSpace(s)
}
