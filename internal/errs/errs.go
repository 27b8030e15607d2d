// Package errs defines the failure kinds surfaced by the conversion pipeline.
//
// Every stage returns an *Error whose Kind is one of the sentinels below, so
// callers branch with errors.Is instead of matching message text.
package errs

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSourceNotFound     = errors.New("source not found")
	ErrUnsupportedFormat  = errors.New("unsupported format")
	ErrRetrievalFailed    = errors.New("retrieval failed")
	ErrRuleFileNotFound   = errors.New("rule file not found")
	ErrInvalidRuleFile    = errors.New("invalid rule file")
	ErrConversionFailed   = errors.New("conversion failed")
	ErrMissingCredentials = errors.New("missing credentials")
	ErrEnhancementFailed  = errors.New("enhancement failed")
	ErrTimeout            = errors.New("timeout")
)

// Stage names the pipeline step that produced an error.
type Stage string

const (
	StageClassify Stage = "classify"
	StageRetrieve Stage = "retrieve"
	StageRules    Stage = "rules"
	StageResolve  Stage = "resolve"
	StageConvert  Stage = "convert"
	StageEnhance  Stage = "enhance"
)

// Error carries a failure kind, the stage it came from and the original cause.
type Error struct {
	Kind  error
	Stage Stage
	// Op is a short human description such as the path or URL involved.
	Op  string
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Stage != "" {
		b.WriteString(string(e.Stage))
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.Error())
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the kind sentinel. ErrTimeout also matches when the cause chain
// holds a context deadline.
func (e *Error) Is(target error) bool {
	if target == e.Kind {
		return true
	}
	return target == ErrTimeout && causeTimedOut(e.Err)
}

func causeTimedOut(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

// New builds an *Error. cause may be nil.
func New(kind error, stage Stage, op string, cause error) *Error {
	return &Error{Kind: kind, Stage: stage, Op: op, Err: cause}
}

// Newf builds an *Error whose cause is a formatted message.
func Newf(kind error, stage Stage, format string, args ...any) *Error {
	return &Error{Kind: kind, Stage: stage, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind sentinel of err, or nil when err is not an *Error.
func KindOf(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return nil
}

// StageOf returns the stage recorded on err, or "" when unknown.
func StageOf(err error) Stage {
	var e *Error
	if errors.As(err, &e) {
		return e.Stage
	}
	return ""
}

// IsTimeout reports whether err is a deadline or was classified as a timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || causeTimedOut(err)
}

// RetrievalError is returned when both the lightweight and the browser paths
// failed. It unwraps to both causes.
type RetrievalError struct {
	URL         string
	Lightweight error
	Browser     error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("lightweight fetch: %v; browser fetch: %v", e.Lightweight, e.Browser)
}

func (e *RetrievalError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Lightweight != nil {
		out = append(out, e.Lightweight)
	}
	if e.Browser != nil {
		out = append(out, e.Browser)
	}
	return out
}
