package openai

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Nephrolytics-ai/polyglot-extract/pkg/failure"
	openai "github.com/openai/openai-go/v3"
)

// classifyError maps OpenAI API errors by status and error code. Anything else goes
// through the generic classifier.
func classifyError(op string, err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return failure.WithProvider(err, providerName)
	}

	kind := failure.KindUnknown
	switch {
	case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
		kind = failure.KindConfiguration
	case apiErr.StatusCode == http.StatusTooManyRequests:
		kind = failure.KindThrottled
		if strings.Contains(apiErr.Code, "insufficient_quota") || strings.Contains(apiErr.Type, "insufficient_quota") {
			kind = failure.KindQuotaExceeded
		}
	case apiErr.StatusCode == http.StatusBadRequest || apiErr.StatusCode == http.StatusNotFound ||
		apiErr.StatusCode == http.StatusUnprocessableEntity:
		kind = failure.KindConfiguration
	}
	return &failure.Error{Kind: kind, Op: op, Provider: providerName, Err: err}
}
