// Package apierr classifies provider API failures into shared sentinels
// and provides the retry infrastructure built on that classification.
//
// Adapters wrap provider errors with fmt.Errorf("%s: %w", msg, sentinel);
// callers check with errors.Is(err, apierr.ErrRateLimit) etc.
package apierr

import (
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// Sentinel errors for API interaction failures.
var (
	// ErrRateLimit indicates the API rate limit was exceeded (temporary, retryable).
	ErrRateLimit = errors.New("rate limit exceeded")

	// ErrQuotaExceeded indicates the API quota was exceeded (billing issue, not retryable).
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrTimeout indicates a request timed out.
	ErrTimeout = errors.New("request timeout")

	// ErrAuthFailed indicates API authentication failed (invalid key).
	ErrAuthFailed = errors.New("authentication failed")

	// ErrBadRequest indicates a client error (4xx) that is not otherwise classified.
	ErrBadRequest = errors.New("bad request")

	// ErrServer indicates a provider-side failure (5xx, retryable).
	ErrServer = errors.New("provider server error")
)

// Classify maps an OpenAI API error to a package sentinel. Errors that
// are not *openai.APIError pass through unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) {
		return err
	}

	switch apiErr.HTTPStatusCode {
	case 401, 403:
		return fmt.Errorf("%s: %w", apiErr.Message, ErrAuthFailed)
	case 429:
		if apiErr.Type == "insufficient_quota" {
			return fmt.Errorf("%s: %w", apiErr.Message, ErrQuotaExceeded)
		}
		return fmt.Errorf("%s: %w", apiErr.Message, ErrRateLimit)
	case 408:
		return fmt.Errorf("%s: %w", apiErr.Message, ErrTimeout)
	case 500, 502, 503, 504:
		return fmt.Errorf("%s: %w", apiErr.Message, ErrServer)
	default:
		if apiErr.HTTPStatusCode >= 400 && apiErr.HTTPStatusCode < 500 {
			return fmt.Errorf("%s: %w", apiErr.Message, ErrBadRequest)
		}
		return err
	}
}

// IsRetryable reports whether a classified error is worth retrying.
// Rate limits, timeouts and server errors are transient; auth, quota
// and bad-request failures are not.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimit) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrServer)
}
