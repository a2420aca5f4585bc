// Package failure defines the typed error taxonomy shared by every stage of the
// extraction pipeline and the classification used by the retry controller.
package failure

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Nephrolytics-ai/polyglot-extract/pkg/utils"
)

type Kind string

const (
	KindUnknown           Kind = "unknown"
	KindConfiguration     Kind = "configuration"
	KindQuotaExceeded     Kind = "quota_exceeded"
	KindThrottled         Kind = "throttled"
	KindMalformedOutput   Kind = "malformed_output"
	KindValidation        Kind = "validation"
	KindDecode            Kind = "decode"
	KindSchemaNotFound    Kind = "schema_not_found"
	KindUnsupportedFormat Kind = "unsupported_format"
	KindUnavailable       Kind = "unavailable"
	KindCanceled          Kind = "canceled"
)

// ParseKind maps a kind name back to its Kind. Unknown names yield KindUnknown.
func ParseKind(name string) Kind {
	k := Kind(strings.ToLower(strings.TrimSpace(name)))
	switch k {
	case KindConfiguration, KindQuotaExceeded, KindThrottled, KindMalformedOutput, KindValidation,
		KindDecode, KindSchemaNotFound, KindUnsupportedFormat, KindUnavailable, KindCanceled:
		return k
	default:
		return KindUnknown
	}
}

// Retryable reports whether another attempt may succeed for this kind.
func (k Kind) Retryable() bool {
	switch k {
	case KindThrottled, KindMalformedOutput, KindValidation, KindUnknown:
		return true
	default:
		return false
	}
}

// Error is the classified error returned to callers. Attempts is set by the retry
// controller once the attempt budget is spent.
type Error struct {
	Kind     Kind
	Op       string
	Provider string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Op != "" {
		b.WriteString(" in ")
		b.WriteString(e.Op)
	}
	if e.Provider != "" {
		b.WriteString(" (provider ")
		b.WriteString(e.Provider)
		b.WriteString(")")
	}
	if e.Attempts > 0 {
		fmt.Fprintf(&b, " after %d attempt(s)", e.Attempts)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind so errors.Is(err, failure.Throttled) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || t.Err != nil || t.Op != "" {
		return false
	}
	return t.Kind == e.Kind
}

var (
	Configuration     = &Error{Kind: KindConfiguration}
	QuotaExceeded     = &Error{Kind: KindQuotaExceeded}
	Throttled         = &Error{Kind: KindThrottled}
	MalformedOutput   = &Error{Kind: KindMalformedOutput}
	Validation        = &Error{Kind: KindValidation}
	Decode            = &Error{Kind: KindDecode}
	SchemaNotFound    = &Error{Kind: KindSchemaNotFound}
	UnsupportedFormat = &Error{Kind: KindUnsupportedFormat}
	Unavailable       = &Error{Kind: KindUnavailable}
	Canceled          = &Error{Kind: KindCanceled}
)

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Newf(kind Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// WithProvider tags err with the provider name. Unclassified errors are classified first.
func WithProvider(err error, provider string) error {
	if err == nil {
		return nil
	}
	classified := Classify(err)
	out := *classified
	out.Provider = provider
	return &out
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether err should be retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return Classify(err).Kind.Retryable()
}

type substringRule struct {
	needles []string
	kind    Kind
}

// Checked in order; configuration wins over quota wins over throttling.
var substringRules = []substringRule{
	{needles: []string{"api_key", "api key", "invalid_api_key", "unauthorized", "permission denied", "authentication"}, kind: KindConfiguration},
	{needles: []string{"insufficient_quota", "quota", "billing"}, kind: KindQuotaExceeded},
	{needles: []string{"rate limit", "rate_limit", "ratelimit", "too many requests", "429", "throttl", "resource_exhausted"}, kind: KindThrottled},
}

// Classify maps any error onto the taxonomy. Typed *Error values are returned as is;
// context errors become KindCanceled; untyped errors fall back to message matching and
// finally KindUnknown, which is retryable.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindCanceled, Err: err}
	}

	for _, rule := range substringRules {
		if _, ok := utils.MatchErrorSubstring(err, rule.needles...); ok {
			return &Error{Kind: rule.kind, Err: err}
		}
	}
	return &Error{Kind: KindUnknown, Err: err}
}
