// Package markdown turns classified documents into Markdown. Converters are
// registered per source.Kind so new formats plug in without touching the
// classifier.
package markdown

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/hyperifyio/tomd/internal/errs"
	"github.com/hyperifyio/tomd/internal/source"
)

// Input is one document to convert. Data wins over Path when both are set.
type Input struct {
	Path string
	Data []byte
	// URL is the origin of remote content, used to absolutize links.
	URL string
}

// Bytes returns Data, reading Path when Data is nil.
func (in Input) Bytes() ([]byte, error) {
	if in.Data != nil {
		return in.Data, nil
	}
	if in.Path == "" {
		return nil, fmt.Errorf("no data and no path")
	}
	return os.ReadFile(in.Path)
}

// Converter turns one document into Markdown.
type Converter interface {
	Convert(ctx context.Context, in Input) (string, error)
}

// ConverterFunc adapts a function to Converter.
type ConverterFunc func(ctx context.Context, in Input) (string, error)

func (f ConverterFunc) Convert(ctx context.Context, in Input) (string, error) { return f(ctx, in) }

// Registry maps kinds to converters. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	convs map[source.Kind]Converter
}

// NewRegistry returns a registry with the built-in converters.
func NewRegistry() *Registry {
	r := &Registry{convs: make(map[source.Kind]Converter)}
	html := NewHTML()
	r.Register(source.KindLocalHTML, html)
	r.Register(source.KindLocalPDF, PDF{})
	r.Register(source.KindLocalDOCX, DOCX{})
	r.Register(source.KindLocalText, Text{})
	r.Register(source.KindLocalMarkdown, Text{})
	return r
}

// Register adds or replaces the converter for kind.
func (r *Registry) Register(kind source.Kind, c Converter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.convs[kind] = c
}

// Lookup returns the converter for kind.
func (r *Registry) Lookup(kind source.Kind) (Converter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.convs[kind]
	return c, ok
}

// Convert runs the converter for kind. Failures are ConversionFailed with the
// converter's message kept as the cause.
func (r *Registry) Convert(ctx context.Context, kind source.Kind, in Input) (string, error) {
	c, ok := r.Lookup(kind)
	if !ok {
		return "", errs.Newf(errs.ErrUnsupportedFormat, errs.StageConvert, "no converter for %s", kind)
	}
	op := in.Path
	if op == "" {
		op = in.URL
	}
	out, err := c.Convert(ctx, in)
	if err != nil {
		return "", errs.New(errs.ErrConversionFailed, errs.StageConvert, op, err)
	}
	return out, nil
}

// Default is the process-wide registry.
var Default = NewRegistry()

// Register adds a converter to Default.
func Register(kind source.Kind, c Converter) { Default.Register(kind, c) }
