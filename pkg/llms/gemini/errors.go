package gemini

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Nephrolytics-ai/polyglot-extract/pkg/failure"
	"google.golang.org/genai"
)

func classifyError(op string, err error) error {
	if err == nil {
		return nil
	}

	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		var apiErrPtr *genai.APIError
		if !errors.As(err, &apiErrPtr) || apiErrPtr == nil {
			return failure.WithProvider(err, providerName)
		}
		apiErr = *apiErrPtr
	}

	return &failure.Error{Kind: kindForAPIError(apiErr), Op: op, Provider: providerName, Err: err}
}

func kindForAPIError(apiErr genai.APIError) failure.Kind {
	message := strings.ToLower(apiErr.Message)
	switch {
	case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
		return failure.KindConfiguration
	case apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED":
		if strings.Contains(message, "billing") {
			return failure.KindQuotaExceeded
		}
		return failure.KindThrottled
	case apiErr.Code == http.StatusBadRequest && strings.Contains(message, "api key"):
		return failure.KindConfiguration
	case apiErr.Code == http.StatusBadRequest || apiErr.Code == http.StatusNotFound:
		return failure.KindConfiguration
	case apiErr.Code == http.StatusServiceUnavailable:
		return failure.KindThrottled
	default:
		return failure.KindUnknown
	}
}
