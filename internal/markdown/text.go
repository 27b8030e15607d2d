package markdown

import (
	"context"
	"strings"
	"unicode/utf8"
)

// Text passes plain text and Markdown through, trimmed.
type Text struct{}

func (Text) Convert(_ context.Context, in Input) (string, error) {
	data, err := in.Bytes()
	if err != nil {
		return "", err
	}
	data = []byte(strings.TrimPrefix(string(data), "\ufeff"))
	if !utf8.Valid(data) {
		return "", errInvalidUTF8
	}
	return strings.TrimSpace(strings.ReplaceAll(string(data), "\r\n", "\n")), nil
}
