package bedrock

import (
	"errors"

	"github.com/Nephrolytics-ai/polyglot-extract/pkg/failure"
	"github.com/aws/smithy-go"
)

var errorCodeKinds = map[string]failure.Kind{
	"ThrottlingException":           failure.KindThrottled,
	"TooManyRequestsException":      failure.KindThrottled,
	"ServiceUnavailableException":   failure.KindThrottled,
	"ModelNotReadyException":        failure.KindThrottled,
	"ServiceQuotaExceededException": failure.KindQuotaExceeded,
	"AccessDeniedException":         failure.KindConfiguration,
	"UnrecognizedClientException":   failure.KindConfiguration,
	"ExpiredTokenException":         failure.KindConfiguration,
	"ResourceNotFoundException":     failure.KindConfiguration,
	"ValidationException":           failure.KindConfiguration,
	"ModelTimeoutException":         failure.KindUnknown,
	"InternalServerException":       failure.KindUnknown,
}

func classifyError(op string, err error) error {
	if err == nil {
		return nil
	}

	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return failure.WithProvider(err, providerName)
	}

	kind, ok := errorCodeKinds[apiErr.ErrorCode()]
	if !ok {
		kind = failure.KindUnknown
	}
	return &failure.Error{Kind: kind, Op: op, Provider: providerName, Err: err}
}
