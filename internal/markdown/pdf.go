package markdown

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDF extracts the embedded text layer. Scanned, image-only pages yield
// nothing; OCR is out of scope.
type PDF struct{}

// Convert returns when extraction finishes or ctx ends, whichever comes
// first. The parser cannot be interrupted mid-page, so on cancellation the
// worker is abandoned and its result dropped.
func (PDF) Convert(ctx context.Context, in Input) (string, error) {
	data, err := in.Bytes()
	if err != nil {
		return "", err
	}
	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := pdfText(ctx, data)
		done <- result{text, err}
	}()
	select {
	case r := <-done:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// pdfText walks the pages of data. ledongthuc/pdf reports malformed objects
// by panicking, so panics become errors here.
func pdfText(ctx context.Context, data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	fonts := make(map[string]*pdf.Font)
	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		for _, name := range p.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := p.Font(name)
				fonts[name] = &f
			}
		}
		text, err := p.GetPlainText(fonts)
		if err != nil {
			return "", fmt.Errorf("read pdf page %d: %w", i, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		if i > 1 {
			fmt.Fprintf(&b, "\n\n---\n\n## Page %d\n\n", i)
		}
		b.WriteString(text)
	}
	return strings.TrimSpace(b.String()), nil
}
